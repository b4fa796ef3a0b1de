// Package orchestrator runs source adapters concurrently, filters and
// deduplicates their output, and drives idempotent persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"aiharvest/dedup"
	"aiharvest/logging"
	"aiharvest/store"
	"aiharvest/types"

	"github.com/rs/zerolog"
)

const (
	// DefaultSourceBudget is the soft per-source wall-clock budget. It is
	// checked between persistence attempts, not enforced pre-emptively.
	DefaultSourceBudget = 15 * time.Minute

	lookupTimeout = 10 * time.Second
	writeTimeout  = 15 * time.Second
)

// Source is the capability every adapter exposes to the orchestrator. The
// orchestrator never depends on concrete adapter types.
type Source interface {
	Name() string
	FetchLatest(ctx context.Context, limit int) types.CrawlResult
}

// RecentChecker is the optional fast-path duplicate filter.
type RecentChecker interface {
	Seen(ctx context.Context, fingerprint string) (bool, error)
	Mark(ctx context.Context, fingerprint string) error
}

// Archiver optionally snapshots persisted records.
type Archiver interface {
	Archive(ctx context.Context, rec *store.Record) error
}

// Publisher optionally hands persisted records to the downstream
// summarization stage.
type Publisher interface {
	PublishArticle(ctx context.Context, rec *store.Record) error
}

// RunOptions selects what one invocation collects.
type RunOptions struct {
	// Sources filters by adapter name; empty means all registered.
	Sources []string
	// PerSourceLimit bounds items per source call; 0 uses source defaults.
	PerSourceLimit int
	// Lookback keeps only items published within [now-Lookback, now].
	// Zero disables the filter.
	Lookback time.Duration
	// SourceBudget is the soft per-source time budget.
	SourceBudget time.Duration
	// ContinueOnError lets the run proceed when the store is unreachable
	// at startup.
	ContinueOnError bool
	// DryRun fetches and filters but skips persistence and hand-off.
	DryRun bool
}

// Collector wires sources to the store and side channels.
type Collector struct {
	sources []Source
	store   store.ArticleStore
	recent  RecentChecker
	archive Archiver
	publish []Publisher
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures optional collaborators.
type Option func(*Collector)

// WithRecentFilter attaches the fast-path duplicate filter.
func WithRecentFilter(r RecentChecker) Option {
	return func(c *Collector) { c.recent = r }
}

// WithArchiver attaches a snapshot archiver.
func WithArchiver(a Archiver) Option {
	return func(c *Collector) { c.archive = a }
}

// WithPublisher attaches a downstream hand-off. Multiple publishers may be
// attached; each receives every persisted record.
func WithPublisher(p Publisher) Option {
	return func(c *Collector) { c.publish = append(c.publish, p) }
}

// New builds a collector over the given sources and store.
func New(sources []Source, st store.ArticleStore, opts ...Option) *Collector {
	c := &Collector{
		sources: sources,
		store:   st,
		log:     logging.New("orchestrator"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// sourceOutcome is the per-task accumulator. Each task owns its outcome
// exclusively; outcomes are merged only after the settle-all join.
type sourceOutcome struct {
	name   string
	report types.SourceReport
}

// Run executes one collection cycle: every selected source runs as an
// independent concurrent task, all outcomes are collected regardless of
// individual failure, and a combined report is returned. The returned error
// is non-nil only for a fundamentally misconfigured invocation or a run
// that fetched nothing at all.
func (c *Collector) Run(ctx context.Context, opts RunOptions) (*types.RunReport, error) {
	if opts.SourceBudget <= 0 {
		opts.SourceBudget = DefaultSourceBudget
	}

	selected, err := c.selectSources(opts.Sources)
	if err != nil {
		return nil, err
	}

	if !opts.DryRun && c.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
		err := c.store.Ping(pingCtx)
		cancel()
		if err != nil {
			if !opts.ContinueOnError {
				return nil, fmt.Errorf("store unreachable at startup: %w", err)
			}
			c.log.Warn().Err(err).Msg("store unreachable, continuing on request")
		}
	}

	c.log.Info().
		Int("sources", len(selected)).
		Dur("lookback", opts.Lookback).
		Bool("dry_run", opts.DryRun).
		Msg("collection run starting")

	outcomes := make(chan sourceOutcome, len(selected))
	for _, src := range selected {
		go func(src Source) {
			outcomes <- c.runSource(ctx, src, opts)
		}(src)
	}

	// Settle-all join: every task reports, success or failure.
	report := &types.RunReport{Sources: make(map[string]types.SourceReport, len(selected))}
	for range selected {
		out := <-outcomes
		report.Sources[out.name] = out.report
	}

	totals := report.Totals()
	c.log.Info().
		Int("attempted", totals.Attempted).
		Int("normalized", totals.Normalized).
		Int("deduplicated", totals.Deduplicated).
		Int("persisted", totals.Persisted).
		Int("failed", totals.Failed).
		Msg("collection run complete")

	if !report.OK() {
		return report, errors.New("collection run fetched no items from any source")
	}
	return report, nil
}

// runSource executes one source task end to end: fetch, filter, persist.
func (c *Collector) runSource(ctx context.Context, src Source, opts RunOptions) sourceOutcome {
	started := c.now()
	out := sourceOutcome{name: src.Name()}
	log := c.log.With().Str("source", src.Name()).Logger()

	res := src.FetchLatest(ctx, opts.PerSourceLimit)
	if res.Err != nil {
		log.Error().Err(res.Err).Msg("source fetch failed")
		out.report.State = types.SourceFailed
		out.report.Error = res.Err.Error()
		return out
	}

	stats := &out.report.Stats
	stats.Attempted = len(res.Items)

	budgetExceeded := false
	for _, item := range res.Items {
		if err := item.Validate(); err != nil {
			log.Debug().Err(err).Msg("dropping invalid item")
			continue
		}
		if !c.withinLookback(item.PublishedAt, opts.Lookback) {
			continue
		}
		stats.Normalized++

		if opts.DryRun {
			continue
		}

		// The budget is a soft stop: remaining items in this source are
		// skipped, other sources are unaffected.
		if c.now().Sub(started) > opts.SourceBudget {
			log.Warn().Dur("budget", opts.SourceBudget).Msg("source budget exceeded, stopping remaining items")
			budgetExceeded = true
			break
		}

		switch c.persistItem(ctx, log, item) {
		case persistInserted, persistUpdated:
			stats.Persisted++
		case persistDuplicate:
			stats.Deduplicated++
		case persistFailed:
			stats.Failed++
		}
	}

	switch {
	case stats.Failed > 0 || budgetExceeded:
		out.report.State = types.SourcePartiallyFailed
	default:
		out.report.State = types.SourceCompleted
	}
	log.Info().
		Int("attempted", stats.Attempted).
		Int("normalized", stats.Normalized).
		Int("persisted", stats.Persisted).
		Int("deduplicated", stats.Deduplicated).
		Int("failed", stats.Failed).
		Str("state", string(out.report.State)).
		Msg("source task settled")
	return out
}

type persistResult int

const (
	persistInserted persistResult = iota
	persistUpdated
	persistDuplicate
	persistFailed
)

// persistItem upserts one article. Every store call gets its own bounded
// timeout; a failure here is item-local and never aborts the batch.
func (c *Collector) persistItem(ctx context.Context, log zerolog.Logger, item *types.Article) persistResult {
	if c.store == nil {
		return persistFailed
	}
	naturalKey := dedup.NaturalKey(item.URL)
	now := c.now().UTC()

	// Fast path: a recently seen fingerprint means identical content was
	// already persisted. Check errors fall through to the store lookup.
	if c.recent != nil {
		if seen, err := c.recent.Seen(ctx, item.Fingerprint); err == nil && seen {
			return persistDuplicate
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	existing, err := c.store.GetByKey(lookupCtx, naturalKey, item.Fingerprint, string(item.SourceType))
	cancel()

	rec := &store.Record{
		NaturalKey:  naturalKey,
		Fingerprint: item.Fingerprint,
		Article:     *item,
		FirstSeen:   now,
		LastSeen:    now,
	}

	switch {
	case err == nil:
		// Re-crawl of a known, possibly edited item: update in place.
		rec.NaturalKey = existing.NaturalKey
		rec.FirstSeen = existing.FirstSeen
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = c.store.Update(writeCtx, existing.NaturalKey, rec)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("url", item.URL).Msg("article update failed")
			return persistFailed
		}
		c.afterPersist(ctx, rec)
		return persistUpdated

	case errors.Is(err, store.ErrNotFound):
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = c.store.Insert(writeCtx, rec)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("url", item.URL).Msg("article insert failed")
			return persistFailed
		}
		c.afterPersist(ctx, rec)
		return persistInserted

	default:
		log.Warn().Err(err).Str("url", item.URL).Msg("article lookup failed")
		return persistFailed
	}
}

// afterPersist runs the best-effort side channels for a stored record.
func (c *Collector) afterPersist(ctx context.Context, rec *store.Record) {
	if c.recent != nil {
		if err := c.recent.Mark(ctx, rec.Fingerprint); err != nil {
			c.log.Debug().Err(err).Msg("recent-filter mark failed")
		}
	}
	if c.archive != nil {
		if err := c.archive.Archive(ctx, rec); err != nil {
			c.log.Warn().Err(err).Str("key", rec.NaturalKey).Msg("archive failed")
		}
	}
	for _, p := range c.publish {
		if err := p.PublishArticle(ctx, rec); err != nil {
			c.log.Warn().Err(err).Str("key", rec.NaturalKey).Msg("downstream publish failed")
		}
	}
}

func (c *Collector) withinLookback(publishedAt time.Time, lookback time.Duration) bool {
	if lookback <= 0 {
		return true
	}
	now := c.now()
	return !publishedAt.Before(now.Add(-lookback)) && !publishedAt.After(now)
}

// selectSources resolves the requested names against the registry.
func (c *Collector) selectSources(names []string) ([]Source, error) {
	if len(names) == 0 {
		return c.sources, nil
	}

	byName := make(map[string]Source, len(c.sources))
	for _, s := range c.sources {
		byName[s.Name()] = s
	}

	selected := make([]Source, 0, len(names))
	for _, name := range names {
		src, ok := byName[strings.TrimSpace(name)]
		if !ok {
			known := make([]string, 0, len(byName))
			for k := range byName {
				known = append(known, k)
			}
			sort.Strings(known)
			return nil, fmt.Errorf("unknown source %q (known: %s)", name, strings.Join(known, ", "))
		}
		selected = append(selected, src)
	}
	return selected, nil
}
