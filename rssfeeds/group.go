package rssfeeds

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aiharvest/types"
)

const (
	// Sub-feeds are crawled in fixed-size concurrent batches with a short
	// pause in between, to avoid overwhelming the network or downstream
	// rate limits.
	batchSize  = 5
	batchPause = 2 * time.Second
)

// FeedRef names one feed inside a group.
type FeedRef struct {
	Name string
	URL  string
}

// Group crawls a list of feeds through one adapter, batching the sub-calls.
// Each sub-feed fails independently; the group fails only when every feed
// does.
type Group struct {
	adapter *Adapter
	feeds   []FeedRef

	// pause is swapped out in tests.
	pause func(context.Context, time.Duration) error
}

// NewGroup builds a feed group over the given catalog entries.
func NewGroup(feeds []FeedRef, extractContent bool, rpm int) *Group {
	return &Group{
		adapter: New(extractContent, rpm),
		feeds:   feeds,
		pause:   pauseContext,
	}
}

// Name implements the source contract.
func (g *Group) Name() string { return "rssfeeds" }

// FetchLatest crawls every feed in the group.
func (g *Group) FetchLatest(ctx context.Context, limit int) types.CrawlResult {
	type subResult struct {
		items []*types.Article
		err   error
	}

	results := make([]subResult, len(g.feeds))

	for start := 0; start < len(g.feeds); start += batchSize {
		end := start + batchSize
		if end > len(g.feeds) {
			end = len(g.feeds)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res := g.adapter.Fetch(ctx, g.feeds[i].Name, g.feeds[i].URL, limit)
				results[i] = subResult{items: res.Items, err: res.Err}
			}(i)
		}
		wg.Wait()

		if end < len(g.feeds) {
			if err := g.pause(ctx, batchPause); err != nil {
				return types.CrawlResult{Err: err}
			}
		}
	}

	var items []*types.Article
	failures := 0
	for i, r := range results {
		if r.err != nil {
			failures++
			g.adapter.log.Warn().Err(r.err).Str("feed", g.feeds[i].Name).Msg("feed fetch failed")
			continue
		}
		items = append(items, r.items...)
	}

	if len(g.feeds) > 0 && failures == len(g.feeds) {
		return types.CrawlResult{Err: fmt.Errorf("all %d feeds failed", failures)}
	}
	return types.CrawlResult{Success: true, Items: items}
}

func pauseContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
