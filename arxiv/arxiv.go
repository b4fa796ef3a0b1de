// Package arxiv adapts the arXiv export API (an Atom-like XML search feed)
// into the normalized article shape.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aiharvest/fetch"
	"aiharvest/logging"
	"aiharvest/types"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "http://export.arxiv.org/api/query"

	// arXiv asks clients to space requests out; stay well under their
	// guidance with a conservative ceiling.
	requestsPerMinute = 20
	minRequestDelay   = 3 * time.Second

	httpTimeout = 30 * time.Second
)

// feed mirrors the subset of the arXiv Atom response we consume.
type feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	Entries      []entry  `xml:"entry"`
}

type entry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Summary    string     `xml:"summary"`
	Published  string     `xml:"published"`
	Authors    []author   `xml:"author"`
	Categories []category `xml:"category"`
	Links      []link     `xml:"link"`
}

type author struct {
	Name string `xml:"name"`
}

type category struct {
	Term string `xml:"term,attr"`
}

type link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

// Adapter crawls arXiv categories. One instance owns one rate-limiter.
type Adapter struct {
	baseURL    string
	categories []string
	http       *http.Client
	client     *fetch.Client
	log        zerolog.Logger
}

// New builds an adapter crawling the given categories. An empty category
// list is allowed; FetchLatest then returns an empty result. rpm overrides
// the request ceiling when positive.
func New(categories []string, rpm int) *Adapter {
	log := logging.New("arxiv")
	if rpm <= 0 {
		rpm = requestsPerMinute
	}
	return &Adapter{
		baseURL:    defaultBaseURL,
		categories: categories,
		http:       &http.Client{Timeout: httpTimeout},
		client: fetch.NewClient(fetch.Config{
			RequestsPerMinute: rpm,
			MinDelay:          minRequestDelay,
		}, log),
		log: log,
	}
}

// Name implements the source contract.
func (a *Adapter) Name() string { return "arxiv" }

// FetchLatest issues one query per configured category, newest submissions
// first. A failed category is logged and skipped; the batch fails only when
// every category fails.
func (a *Adapter) FetchLatest(ctx context.Context, limit int) types.CrawlResult {
	var items []*types.Article
	total := 0
	failures := 0

	for _, cat := range a.categories {
		res := a.Fetch(ctx, "cat:"+cat, 0, limit)
		if res.Err != nil {
			failures++
			a.log.Warn().Err(res.Err).Str("category", cat).Msg("category query failed")
			continue
		}
		items = append(items, res.Items...)
		total += res.TotalAvailable
	}

	if failures > 0 && failures == len(a.categories) {
		return types.CrawlResult{Err: fmt.Errorf("all %d arxiv category queries failed", failures)}
	}
	return types.CrawlResult{Success: true, Items: items, TotalAvailable: total}
}

// Fetch runs one search query against the export API.
func (a *Adapter) Fetch(ctx context.Context, query string, start, maxResults int) types.CrawlResult {
	if maxResults <= 0 {
		maxResults = 25
	}

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", fmt.Sprint(start))
	params.Set("max_results", fmt.Sprint(maxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")
	reqURL := a.baseURL + "?" + params.Encode()

	var parsed feed
	err := a.client.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		resp, err := a.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &fetch.HTTPError{Status: resp.StatusCode, URL: reqURL}
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		parsed = feed{}
		if err := xml.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("failed to parse arxiv response: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.CrawlResult{Err: err}
	}

	items := make([]*types.Article, 0, len(parsed.Entries))
	for _, e := range parsed.Entries {
		article, err := a.normalize(e)
		if err != nil {
			// Malformed entries are skipped, never fatal to the batch.
			a.log.Debug().Err(err).Str("entry", e.ID).Msg("skipping malformed entry")
			continue
		}
		items = append(items, article)
	}

	return types.CrawlResult{Success: true, Items: items, TotalAvailable: parsed.TotalResults}
}

// normalize maps one Atom entry into the shared article shape.
func (a *Adapter) normalize(e entry) (*types.Article, error) {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		return nil, fmt.Errorf("entry has no title")
	}
	if strings.TrimSpace(e.ID) == "" {
		return nil, fmt.Errorf("entry has no id")
	}

	publishedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
	if err != nil {
		return nil, fmt.Errorf("entry %s has unparseable published date %q", e.ID, e.Published)
	}

	authors := make([]string, 0, len(e.Authors))
	for _, au := range e.Authors {
		if name := strings.TrimSpace(au.Name); name != "" {
			authors = append(authors, name)
		}
	}

	tags := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		if c.Term != "" {
			tags = append(tags, c.Term)
		}
	}

	abstractURL := strings.TrimSpace(e.ID)
	pdfURL := ""
	for _, l := range e.Links {
		if l.Title == "pdf" || strings.Contains(l.Href, "/pdf/") {
			pdfURL = l.Href
		} else if l.Rel == "alternate" && l.Href != "" {
			abstractURL = l.Href
		}
	}

	category := ""
	if len(tags) > 0 {
		category = tags[0]
	}
	if pdfURL != "" {
		tags = append(tags, "pdf:"+pdfURL)
	}

	article := &types.Article{
		Title:       title,
		Summary:     strings.TrimSpace(e.Summary),
		URL:         abstractURL,
		Author:      strings.Join(authors, ", "),
		PublishedAt: publishedAt,
		Category:    category,
		Tags:        tags,
		SourceType:  types.SourceAcademicPaper,
	}
	article.Normalize()
	return article, nil
}

// PaperID extracts the numeric arXiv identifier from an abstract URL, e.g.
// "2401.12345" from "http://arxiv.org/abs/2401.12345v2".
func PaperID(entryURL string) string {
	idx := strings.LastIndex(entryURL, "/abs/")
	if idx < 0 {
		return ""
	}
	id := entryURL[idx+len("/abs/"):]
	if v := strings.LastIndex(id, "v"); v > 0 {
		if rest := id[v+1:]; rest != "" && allDigits(rest) {
			id = id[:v]
		}
	}
	return id
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
