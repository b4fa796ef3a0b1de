// Package rssfeeds adapts arbitrary RSS 2.0 and Atom feeds into the
// normalized article shape. The wire format is auto-detected, redirects are
// followed, and gzip-encoded payloads are decompressed transparently.
package rssfeeds

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aiharvest/fetch"
	"aiharvest/logging"
	"aiharvest/types"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

const (
	maxRedirects = 10
	httpTimeout  = 30 * time.Second

	requestsPerMinute = 30
)

// Adapter fetches one or more feeds. Which feeds to crawl is always passed
// in by the caller; the adapter holds no embedded source catalog.
type Adapter struct {
	http    *http.Client
	parser  *gofeed.Parser
	client  *fetch.Client
	log     zerolog.Logger
	extract *Extractor
}

// New builds a feed adapter. extractContent enables the readability
// enrichment pool for items whose feed entry carries no description. rpm
// overrides the request ceiling when positive.
func New(extractContent bool, rpm int) *Adapter {
	log := logging.New("rssfeeds")
	if rpm <= 0 {
		rpm = requestsPerMinute
	}

	httpClient := &http.Client{
		Timeout: httpTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	a := &Adapter{
		http:   httpClient,
		parser: gofeed.NewParser(),
		client: fetch.NewClient(fetch.Config{
			RequestsPerMinute: rpm,
		}, log),
		log: log,
	}
	if extractContent {
		a.extract = NewExtractor(log)
	}
	return a
}

// Name implements the source contract.
func (a *Adapter) Name() string { return "rssfeeds" }

// Fetch retrieves and normalizes one feed. Entries without a parseable
// publish date are dropped, never defaulted to now: the lookback filter
// downstream depends on genuine dates.
func (a *Adapter) Fetch(ctx context.Context, feedName, feedURL string, limit int) types.CrawlResult {
	var parsed *gofeed.Feed
	err := a.client.Do(ctx, func(ctx context.Context) error {
		body, err := a.download(ctx, feedURL)
		if err != nil {
			return err
		}
		defer body.Close()
		f, err := a.parser.Parse(body)
		if err != nil {
			return fmt.Errorf("failed to parse feed: %w", err)
		}
		parsed = f
		return nil
	})
	if err != nil {
		return types.CrawlResult{Err: err}
	}

	count := len(parsed.Items)
	if limit > 0 && limit < count {
		count = limit
	}

	items := make([]*types.Article, 0, count)
	dropped := 0
	for _, item := range parsed.Items {
		if len(items) >= count {
			break
		}
		article, ok := a.normalize(feedName, item)
		if !ok {
			dropped++
			continue
		}
		items = append(items, article)
	}
	if dropped > 0 {
		a.log.Debug().Str("feed", feedName).Int("dropped", dropped).Msg("dropped undated or invalid entries")
	}

	if a.extract != nil {
		a.extract.FillMissingSummaries(items)
	}

	return types.CrawlResult{Success: true, Items: items, TotalAvailable: len(parsed.Items)}
}

// download follows redirects and returns a transparently decompressed body.
func (a *Adapter) download(ctx context.Context, feedURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	// Asking for gzip explicitly disables the transport's automatic
	// decompression, so both paths are handled here.
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", "aiharvest/1.0 (+feed collector)")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &fetch.HTTPError{Status: resp.StatusCode, URL: feedURL}
	}

	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decompress feed: %w", err)
		}
		return &gzipBody{gz: gz, underlying: resp.Body}, nil
	}
	return resp.Body, nil
}

// normalize maps one feed item; ok is false when the item must be dropped.
func (a *Adapter) normalize(feedName string, item *gofeed.Item) (*types.Article, bool) {
	if item == nil || strings.TrimSpace(item.Title) == "" || item.Link == "" {
		return nil, false
	}

	// RSS pubDate or Atom updated, whichever parsed. No date, no item.
	var publishedAt time.Time
	switch {
	case item.PublishedParsed != nil:
		publishedAt = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		publishedAt = *item.UpdatedParsed
	default:
		return nil, false
	}

	author := ""
	if item.Author != nil {
		author = item.Author.Name
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	article := &types.Article{
		Title:       item.Title,
		Summary:     summary,
		URL:         item.Link,
		Author:      author,
		PublishedAt: publishedAt,
		Category:    feedName,
		Tags:        flattenCategories(item),
		SourceType:  types.SourceFeedItem,
	}
	article.Normalize()
	return article, true
}

// flattenCategories reduces category values to their primary text. Permissive
// XML parsing can surface categories as nested attribute objects (e.g. a
// domain attribute plus character data); only the text value survives.
func flattenCategories(item *gofeed.Item) []string {
	tags := append([]string(nil), item.Categories...)

	for _, extsByName := range item.Extensions {
		for _, exts := range extsByName {
			for _, ext := range exts {
				if ext.Name != "category" && ext.Name != "subject" {
					continue
				}
				if v := strings.TrimSpace(ext.Value); v != "" {
					tags = append(tags, v)
				} else if v, ok := ext.Attrs["term"]; ok && strings.TrimSpace(v) != "" {
					tags = append(tags, strings.TrimSpace(v))
				}
			}
		}
	}
	return tags
}

// gzipBody closes both the gzip reader and the wrapped response body.
type gzipBody struct {
	gz         *gzip.Reader
	underlying io.ReadCloser
}

func (g *gzipBody) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipBody) Close() error {
	gerr := g.gz.Close()
	uerr := g.underlying.Close()
	if gerr != nil {
		return gerr
	}
	return uerr
}
