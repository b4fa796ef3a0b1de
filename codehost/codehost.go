// Package codehost adapts the GitHub repository-search REST API into the
// normalized article shape, with optional per-repository enrichment.
package codehost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"aiharvest/fetch"
	"aiharvest/logging"
	"aiharvest/types"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://api.github.com"

	// Unauthenticated clients get a far smaller search budget.
	authedRequestsPerMinute = 60
	anonRequestsPerMinute   = 10

	httpTimeout = 30 * time.Second
)

// searchResponse mirrors the subset of GET /search/repositories we consume.
type searchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []repository `json:"items"`
}

type repository struct {
	FullName    string   `json:"full_name"`
	Description string   `json:"description"`
	HTMLURL     string   `json:"html_url"`
	Stars       int      `json:"stargazers_count"`
	Forks       int      `json:"forks_count"`
	Topics      []string `json:"topics"`
	Language    string   `json:"language"`
	PushedAt    string   `json:"pushed_at"`
	CreatedAt   string   `json:"created_at"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
	License struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

// Enrichment carries the optional detail calls for a single repository.
// Any field may be empty when its call failed; enrichment never fails the
// primary record.
type Enrichment struct {
	Readme        string   `json:"readme,omitempty"`
	RecentCommits []string `json:"recent_commits,omitempty"`
	LatestRelease string   `json:"latest_release,omitempty"`
}

// Adapter crawls GitHub repository search. One instance owns one limiter.
type Adapter struct {
	baseURL   string
	queries   []string
	http      *http.Client
	client    *fetch.Client
	log       zerolog.Logger
	enrichTop bool
}

// New builds an adapter. A non-empty token authenticates requests through an
// oauth2 static token source and raises the rate ceiling. rpm overrides the
// ceiling when positive. enrichTop folds the detail calls (readme, latest
// release) into the top hit of every search.
func New(queries []string, token string, rpm int, enrichTop bool) *Adapter {
	log := logging.New("codehost")

	httpClient := &http.Client{Timeout: httpTimeout}
	perMinute := anonRequestsPerMinute
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), src)
		httpClient.Timeout = httpTimeout
		perMinute = authedRequestsPerMinute
	}
	if rpm > 0 {
		perMinute = rpm
	}

	return &Adapter{
		baseURL: defaultBaseURL,
		queries: queries,
		http:    httpClient,
		client: fetch.NewClient(fetch.Config{
			RequestsPerMinute: perMinute,
		}, log),
		log:       log,
		enrichTop: enrichTop,
	}
}

// Name implements the source contract.
func (a *Adapter) Name() string { return "codehost" }

// FetchLatest searches each configured query, most-starred first.
func (a *Adapter) FetchLatest(ctx context.Context, limit int) types.CrawlResult {
	var items []*types.Article
	total := 0
	failures := 0

	for _, q := range a.queries {
		res := a.Fetch(ctx, q, limit)
		if res.Err != nil {
			failures++
			a.log.Warn().Err(res.Err).Str("query", q).Msg("search query failed")
			continue
		}
		items = append(items, res.Items...)
		total += res.TotalAvailable
	}

	if failures > 0 && failures == len(a.queries) {
		return types.CrawlResult{Err: fmt.Errorf("all %d code-host queries failed", failures)}
	}
	return types.CrawlResult{Success: true, Items: items, TotalAvailable: total}
}

// Fetch runs one repository search.
func (a *Adapter) Fetch(ctx context.Context, query string, perPage int) types.CrawlResult {
	if perPage <= 0 {
		perPage = 10
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", fmt.Sprint(perPage))
	reqURL := a.baseURL + "/search/repositories?" + params.Encode()

	body, err := a.get(ctx, reqURL, "")
	if err != nil {
		return types.CrawlResult{Err: err}
	}
	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return types.CrawlResult{Err: fmt.Errorf("failed to parse search response: %w", err)}
	}

	items := make([]*types.Article, 0, len(parsed.Items))
	for _, repo := range parsed.Items {
		article, err := a.normalize(repo)
		if err != nil {
			a.log.Debug().Err(err).Str("repo", repo.FullName).Msg("skipping repository")
			continue
		}
		items = append(items, article)
	}

	if a.enrichTop && len(items) > 0 {
		a.enrichArticle(ctx, items[0])
	}

	return types.CrawlResult{Success: true, Items: items, TotalAvailable: parsed.TotalCount}
}

// enrichArticle folds the detail calls for a search hit into its normalized
// record: the readme extends the summary, the latest release becomes a tag.
// The fingerprint is recomputed since the content changed.
func (a *Adapter) enrichArticle(ctx context.Context, item *types.Article) {
	e := a.Enrich(ctx, item.Title)
	if e.Readme != "" {
		item.Summary = strings.TrimSpace(item.Summary + "\n\n" + strings.TrimSpace(e.Readme))
	}
	if e.LatestRelease != "" {
		item.Tags = append(item.Tags, "release:"+e.LatestRelease)
	}
	item.Normalize()
}

// Enrich performs the three optional detail calls for one repository in
// parallel. Each call is wrapped independently; a failure leaves its field
// empty and never fails the others.
func (a *Adapter) Enrich(ctx context.Context, fullName string) Enrichment {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		e  Enrichment
	)

	run := func(fn func() error, what string) {
		defer wg.Done()
		if err := fn(); err != nil {
			a.log.Debug().Err(err).Str("repo", fullName).Str("call", what).Msg("enrichment call failed")
		}
	}

	wg.Add(3)
	go run(func() error {
		body, err := a.get(ctx, a.baseURL+"/repos/"+fullName+"/readme", "application/vnd.github.raw+json")
		if err != nil {
			return err
		}
		mu.Lock()
		e.Readme = string(body)
		mu.Unlock()
		return nil
	}, "readme")

	go run(func() error {
		body, err := a.get(ctx, a.baseURL+"/repos/"+fullName+"/commits?per_page=5", "")
		if err != nil {
			return err
		}
		var commits []struct {
			Commit struct {
				Message string `json:"message"`
			} `json:"commit"`
		}
		if err := json.Unmarshal(body, &commits); err != nil {
			return err
		}
		msgs := make([]string, 0, len(commits))
		for _, c := range commits {
			if line := firstLine(c.Commit.Message); line != "" {
				msgs = append(msgs, line)
			}
		}
		mu.Lock()
		e.RecentCommits = msgs
		mu.Unlock()
		return nil
	}, "commits")

	go run(func() error {
		body, err := a.get(ctx, a.baseURL+"/repos/"+fullName+"/releases/latest", "")
		if err != nil {
			return err
		}
		var rel struct {
			TagName string `json:"tag_name"`
			Name    string `json:"name"`
		}
		if err := json.Unmarshal(body, &rel); err != nil {
			return err
		}
		mu.Lock()
		if rel.Name != "" {
			e.LatestRelease = rel.Name
		} else {
			e.LatestRelease = rel.TagName
		}
		mu.Unlock()
		return nil
	}, "release")

	wg.Wait()
	return e
}

// get issues one rate-limited GET and returns the body. Enrichment calls go
// through the same retry contract as searches.
func (a *Adapter) get(ctx context.Context, reqURL, accept string) ([]byte, error) {
	var body []byte
	err := a.client.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		resp, err := a.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &fetch.HTTPError{Status: resp.StatusCode, URL: reqURL}
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	return body, err
}

// normalize maps one search hit into the shared article shape.
func (a *Adapter) normalize(repo repository) (*types.Article, error) {
	if repo.FullName == "" || repo.HTMLURL == "" {
		return nil, fmt.Errorf("repository missing name or URL")
	}

	// Search hits always carry timestamps; prefer the last push as the
	// publication signal, falling back to creation time.
	publishedAt, err := time.Parse(time.RFC3339, repo.PushedAt)
	if err != nil {
		publishedAt, err = time.Parse(time.RFC3339, repo.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("repository %s has no parseable timestamp", repo.FullName)
		}
	}

	summary := strings.TrimSpace(repo.Description)
	meta := fmt.Sprintf("%d stars, %d forks", repo.Stars, repo.Forks)
	if repo.License.SPDXID != "" && repo.License.SPDXID != "NOASSERTION" {
		meta += ", " + repo.License.SPDXID + " license"
	}
	if summary != "" {
		summary += " (" + meta + ")"
	} else {
		summary = meta
	}

	tags := append([]string(nil), repo.Topics...)
	if repo.Language != "" {
		tags = append(tags, strings.ToLower(repo.Language))
	}

	article := &types.Article{
		Title:       repo.FullName,
		Summary:     summary,
		URL:         repo.HTMLURL,
		Author:      repo.Owner.Login,
		PublishedAt: publishedAt,
		Category:    "repositories",
		Tags:        tags,
		SourceType:  types.SourceCodeRepo,
	}
	article.Normalize()
	return article, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
