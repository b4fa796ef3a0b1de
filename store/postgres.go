package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aiharvest/types"

	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	natural_key  TEXT PRIMARY KEY,
	fingerprint  TEXT NOT NULL,
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL,
	author       TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	tags         TEXT[] NOT NULL DEFAULT '{}',
	source_type  TEXT NOT NULL,
	first_seen   TIMESTAMPTZ NOT NULL,
	last_seen    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS articles_fingerprint_idx ON articles (fingerprint, source_type);
CREATE INDEX IF NOT EXISTS articles_category_idx ON articles (category);
`

// Postgres implements ArticleStore over a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the database, verifies connectivity, and ensures the
// schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

// GetByKey implements ArticleStore.
func (p *Postgres) GetByKey(ctx context.Context, naturalKey, fingerprint, sourceType string) (*Record, error) {
	const q = `
		SELECT natural_key, fingerprint, title, summary, url, author,
		       published_at, category, tags, source_type, first_seen, last_seen
		FROM articles
		WHERE natural_key = $1 OR (fingerprint = $2 AND source_type = $3)
		LIMIT 1`

	row := p.db.QueryRowContext(ctx, q, naturalKey, fingerprint, sourceType)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up article: %w", err)
	}
	return rec, nil
}

// Insert implements ArticleStore.
func (p *Postgres) Insert(ctx context.Context, rec *Record) error {
	const q = `
		INSERT INTO articles (natural_key, fingerprint, title, summary, url, author,
		                      published_at, category, tags, source_type, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	a := rec.Article
	_, err := p.db.ExecContext(ctx, q,
		rec.NaturalKey, rec.Fingerprint, a.Title, a.Summary, a.URL, a.Author,
		a.PublishedAt, a.Category, pq.Array(a.Tags), string(a.SourceType),
		rec.FirstSeen, rec.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}
	return nil
}

// Update implements ArticleStore.
func (p *Postgres) Update(ctx context.Context, naturalKey string, rec *Record) error {
	const q = `
		UPDATE articles
		SET fingerprint = $2, title = $3, summary = $4, url = $5, author = $6,
		    published_at = $7, category = $8, tags = $9, source_type = $10, last_seen = $11
		WHERE natural_key = $1`

	a := rec.Article
	res, err := p.db.ExecContext(ctx, q,
		naturalKey, rec.Fingerprint, a.Title, a.Summary, a.URL, a.Author,
		a.PublishedAt, a.Category, pq.Array(a.Tags), string(a.SourceType), rec.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to update article: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByCategory implements ArticleStore.
func (p *Postgres) CountByCategory(ctx context.Context) (map[string]int, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM articles GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to count articles: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[category] = n
	}
	return counts, rows.Err()
}

// Ping implements ArticleStore.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close implements ArticleStore.
func (p *Postgres) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var tags pq.StringArray
	var sourceType string
	err := row.Scan(
		&rec.NaturalKey, &rec.Fingerprint, &rec.Article.Title, &rec.Article.Summary,
		&rec.Article.URL, &rec.Article.Author, &rec.Article.PublishedAt,
		&rec.Article.Category, &tags, &sourceType, &rec.FirstSeen, &rec.LastSeen)
	if err != nil {
		return nil, err
	}
	rec.Article.Tags = []string(tags)
	rec.Article.SourceType = types.SourceType(sourceType)
	rec.Article.Fingerprint = rec.Fingerprint
	return &rec, nil
}
