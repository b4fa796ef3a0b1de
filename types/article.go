package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// SourceType identifies which family of upstream API an article came from.
type SourceType string

const (
	SourceAcademicPaper SourceType = "academic-paper"
	SourceCodeRepo      SourceType = "code-repo"
	SourceFeedItem      SourceType = "feed-item"
	SourceQAQuestion    SourceType = "qa-question"
)

const (
	// MaxSummaryRunes bounds the summary length before persistence.
	MaxSummaryRunes = 2000

	// MaxCategoryRunes bounds the adapter-assigned category label.
	MaxCategoryRunes = 64
)

// Article is the normalized shape every source adapter produces.
// Adapters must never leak source-specific types past their boundary.
type Article struct {
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	URL         string     `json:"url"`
	Author      string     `json:"author,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
	Category    string     `json:"category,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	SourceType  SourceType `json:"source_type"`
	Fingerprint string     `json:"fingerprint"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

// Validate reports whether the article satisfies the normalized-shape
// invariants: non-empty title, parseable URL, and a genuine publish date.
// Items lacking a parseable date are dropped upstream, never defaulted to
// now, so a zero PublishedAt here is a bug in the producing adapter.
func (a *Article) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("article has empty title")
	}
	u, err := url.Parse(a.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("article has invalid URL %q", a.URL)
	}
	if a.PublishedAt.IsZero() {
		return fmt.Errorf("article %q has no publish date", a.Title)
	}
	if a.SourceType == "" {
		return fmt.Errorf("article %q has no source type", a.Title)
	}
	return nil
}

// Normalize trims and bounds the mutable fields in place and computes the
// content fingerprint. Adapters call this once, right before returning the
// article across the adapter boundary.
func (a *Article) Normalize() {
	a.Title = collapseWhitespace(a.Title)
	a.Summary = truncateRunes(strings.TrimSpace(a.Summary), MaxSummaryRunes)
	a.Category = truncateRunes(strings.TrimSpace(a.Category), MaxCategoryRunes)
	a.Tags = normalizeTags(a.Tags)
	if a.FetchedAt.IsZero() {
		a.FetchedAt = time.Now().UTC()
	}
	a.Fingerprint = ContentFingerprint(a.Title, a.Summary)
}

// ContentFingerprint returns a SHA-256 digest over the stable content fields
// (casefolded title + body). Two items with the same fingerprint from the
// same source are the same logical item even when their URLs differ.
func ContentFingerprint(title, body string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(collapseWhitespace(title))))
	h.Write([]byte{'\n'})
	h.Write([]byte(strings.TrimSpace(body)))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeTags trims, drops empties, and removes duplicates while keeping
// first-seen order.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
