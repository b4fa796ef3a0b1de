package rssfeeds

import (
	"sync"
	"time"

	"aiharvest/types"

	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"
)

const (
	workerCount      = 5
	extractorTimeout = 30 * time.Second
)

// Extractor fills missing summaries by fetching the article page and running
// readability extraction over it. Extraction is best effort: a failure
// leaves the summary empty and the item proceeds.
type Extractor struct {
	log zerolog.Logger

	// fromURL is swapped out in tests.
	fromURL func(string, time.Duration) (readability.Article, error)
}

// NewExtractor builds an extractor.
func NewExtractor(log zerolog.Logger) *Extractor {
	return &Extractor{log: log, fromURL: func(pageURL string, timeout time.Duration) (readability.Article, error) {
		return readability.FromURL(pageURL, timeout)
	}}
}

// FillMissingSummaries runs a worker pool over items lacking a summary.
func (e *Extractor) FillMissingSummaries(items []*types.Article) {
	pending := make(chan *types.Article, len(items))
	for _, item := range items {
		if item.Summary == "" {
			pending <- item
		}
	}
	close(pending)
	if len(pending) == 0 {
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range pending {
				extracted, err := e.fromURL(item.URL, extractorTimeout)
				if err != nil {
					e.log.Debug().Err(err).Str("url", item.URL).Msg("content extraction failed")
					continue
				}
				item.Summary = extracted.Excerpt
				if item.Summary == "" {
					item.Summary = extracted.TextContent
				}
				if item.Author == "" {
					item.Author = extracted.Byline
				}
				// Summary changed, so the fingerprint must be recomputed.
				item.Normalize()
			}
		}()
	}
	wg.Wait()
}
