// Package store persists normalized articles. The pipeline treats every
// operation as an independent remote call; there is no client-side
// transaction spanning lookups and writes.
package store

import (
	"context"
	"errors"
	"time"

	"aiharvest/types"
)

// ErrNotFound is returned by GetByKey when no record matches.
var ErrNotFound = errors.New("article not found")

// Record is one persisted article row.
type Record struct {
	NaturalKey  string
	Fingerprint string
	Article     types.Article
	FirstSeen   time.Time
	LastSeen    time.Time
}

// ArticleStore is the pipeline's only contract with the persistent store:
// upsert-by-unique-key plus count-by-category, each an opaque remote call
// with its own failure modes.
type ArticleStore interface {
	// GetByKey looks a record up by natural key, then by fingerprint
	// within the same source family: identical content re-published under
	// a different URL by the same kind of source is the same logical
	// item. The same content from a different source family is not.
	GetByKey(ctx context.Context, naturalKey, fingerprint, sourceType string) (*Record, error)

	// Insert stores a new record.
	Insert(ctx context.Context, rec *Record) error

	// Update overwrites the record with the given natural key, treating
	// the write as a re-crawl of a possibly edited item.
	Update(ctx context.Context, naturalKey string, rec *Record) error

	// CountByCategory reports how many records each category holds.
	CountByCategory(ctx context.Context) (map[string]int, error)

	// Ping verifies connectivity; the orchestrator refuses to start a
	// run against an unreachable store unless told to continue on error.
	Ping(ctx context.Context) error

	Close() error
}
