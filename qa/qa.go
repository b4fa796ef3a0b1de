// Package qa adapts the Stack Exchange questions API into the normalized
// article shape. The API always compresses bodies, so the adapter
// decompresses transparently before JSON decoding.
package qa

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"aiharvest/fetch"
	"aiharvest/logging"
	"aiharvest/types"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.stackexchange.com/2.3"
	defaultSite    = "stackoverflow"

	requestsPerMinute = 25
	httpTimeout       = 30 * time.Second

	// Body excerpts are long HTML; keep a readable slice, bounded in
	// runes, for the summary.
	maxBodyExcerpt = 500
)

// questionsResponse mirrors the wrapper object of /questions and /search.
type questionsResponse struct {
	Items   []question `json:"items"`
	Total   int        `json:"total"`
	HasMore bool       `json:"has_more"`
}

type question struct {
	Title        string   `json:"title"`
	Link         string   `json:"link"`
	Body         string   `json:"body"`
	Tags         []string `json:"tags"`
	CreationDate int64    `json:"creation_date"`
	Score        int      `json:"score"`
	Owner        struct {
		DisplayName string `json:"display_name"`
	} `json:"owner"`
}

// Adapter crawls Stack Exchange questions. AI relevance is approximated by
// rotating through the configured tag list.
type Adapter struct {
	baseURL string
	site    string
	tags    []string
	http    *http.Client
	client  *fetch.Client
	log     zerolog.Logger
}

// New builds an adapter rotating through the given tags. rpm overrides the
// request ceiling when positive.
func New(tags []string, rpm int) *Adapter {
	log := logging.New("qa")
	if rpm <= 0 {
		rpm = requestsPerMinute
	}
	return &Adapter{
		baseURL: defaultBaseURL,
		site:    defaultSite,
		tags:    tags,
		http:    &http.Client{Timeout: httpTimeout},
		client: fetch.NewClient(fetch.Config{
			RequestsPerMinute: rpm,
		}, log),
		log: log,
	}
}

// Name implements the source contract.
func (a *Adapter) Name() string { return "qa" }

// FetchLatest lists newest questions for each configured tag.
func (a *Adapter) FetchLatest(ctx context.Context, limit int) types.CrawlResult {
	var items []*types.Article
	failures := 0

	for _, tag := range a.tags {
		res := a.FetchTagged(ctx, tag, limit)
		if res.Err != nil {
			failures++
			a.log.Warn().Err(res.Err).Str("tag", tag).Msg("tag listing failed")
			continue
		}
		items = append(items, res.Items...)
	}

	if failures > 0 && failures == len(a.tags) {
		return types.CrawlResult{Err: fmt.Errorf("all %d tag listings failed", failures)}
	}
	return types.CrawlResult{Success: true, Items: items}
}

// FetchTagged lists newest questions carrying the given tag.
func (a *Adapter) FetchTagged(ctx context.Context, tag string, pageSize int) types.CrawlResult {
	params := a.baseParams(pageSize)
	params.Set("tagged", tag)
	return a.fetch(ctx, a.baseURL+"/questions?"+params.Encode())
}

// Search runs a free-text query over question titles.
func (a *Adapter) Search(ctx context.Context, query string, pageSize int) types.CrawlResult {
	params := a.baseParams(pageSize)
	params.Set("q", query)
	return a.fetch(ctx, a.baseURL+"/search/advanced?"+params.Encode())
}

func (a *Adapter) baseParams(pageSize int) url.Values {
	if pageSize <= 0 {
		pageSize = 20
	}
	params := url.Values{}
	params.Set("site", a.site)
	params.Set("sort", "creation")
	params.Set("order", "desc")
	params.Set("pagesize", fmt.Sprint(pageSize))
	params.Set("filter", "withbody")
	return params
}

func (a *Adapter) fetch(ctx context.Context, reqURL string) types.CrawlResult {
	var parsed questionsResponse
	err := a.client.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept-Encoding", "gzip")
		resp, err := a.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &fetch.HTTPError{Status: resp.StatusCode, URL: reqURL}
		}

		body := resp.Body
		// The API gzips everything; only skip decompression when the
		// header says the payload is plain (test servers, proxies).
		if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
			gz, err := gzip.NewReader(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to decompress response: %w", err)
			}
			defer gz.Close()
			body = gz
		}

		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		parsed = questionsResponse{}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse questions response: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.CrawlResult{Err: err}
	}

	items := make([]*types.Article, 0, len(parsed.Items))
	for _, q := range parsed.Items {
		article, err := a.normalize(q)
		if err != nil {
			a.log.Debug().Err(err).Str("link", q.Link).Msg("skipping question")
			continue
		}
		items = append(items, article)
	}

	return types.CrawlResult{Success: true, Items: items, TotalAvailable: parsed.Total}
}

// normalize maps one question into the shared article shape.
func (a *Adapter) normalize(q question) (*types.Article, error) {
	title := html.UnescapeString(strings.TrimSpace(q.Title))
	if title == "" || q.Link == "" {
		return nil, fmt.Errorf("question missing title or link")
	}
	if q.CreationDate <= 0 {
		return nil, fmt.Errorf("question %q has no creation date", title)
	}

	article := &types.Article{
		Title:       title,
		Summary:     bodyExcerpt(q.Body),
		URL:         q.Link,
		Author:      q.Owner.DisplayName,
		PublishedAt: time.Unix(q.CreationDate, 0).UTC(),
		Category:    a.site,
		Tags:        q.Tags,
		SourceType:  types.SourceQAQuestion,
	}
	article.Normalize()
	return article, nil
}

// bodyExcerpt strips markup from the HTML body and bounds its length.
// Truncation happens on rune boundaries so multibyte text stays valid.
func bodyExcerpt(body string) string {
	text := stripTags(html.UnescapeString(body))
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxBodyExcerpt {
		return text
	}
	cut := string([]rune(text)[:maxBodyExcerpt])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

// stripTags removes HTML elements, keeping character data.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
