package rssfeeds

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aiharvest/fetch"
	"aiharvest/types"
	readability "github.com/go-shiori/go-readability"
)

const atomDoc = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Research Blog</title>
  <updated>2024-03-10T09:00:00Z</updated>
  <entry>
    <title>Model Distillation in Practice</title>
    <link href="https://example.com/distillation?utm_source=atom"/>
    <updated>2024-03-10T09:00:00Z</updated>
    <author><name>J. Writer</name></author>
    <summary>Shrinking models without losing accuracy.</summary>
    <category term="ml"/>
  </entry>
  <entry>
    <title>Entry Without Any Date</title>
    <link href="https://example.com/undated"/>
    <summary>This one must be dropped.</summary>
  </entry>
  <entry>
    <title>Evaluation Pitfalls</title>
    <link href="https://example.com/eval"/>
    <updated>2024-03-09T08:30:00Z</updated>
    <summary>Benchmarks lie in interesting ways.</summary>
  </entry>
</feed>`

const rssDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example News</title>
    <item>
      <title>Chips for Training</title>
      <link>https://example.com/chips</link>
      <pubDate>Mon, 11 Mar 2024 10:00:00 GMT</pubDate>
      <description>New accelerators announced.</description>
      <category domain="https://example.com/taxonomy">hardware</category>
      <category>ai</category>
    </item>
    <item>
      <title>Undated Item</title>
      <link>https://example.com/undated-rss</link>
      <description>Dropped as well.</description>
    </item>
  </channel>
</rss>`

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a := New(false, 0)
	a.client = fetch.NewClient(fetch.Config{MinDelay: time.Nanosecond, BaseDelay: time.Millisecond}, a.log)
	return a
}

func TestFetchGzipAtomDropsUndated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(atomDoc))
		gz.Close()
	}))
	defer srv.Close()

	a := newTestAdapter(t)
	res := a.Fetch(context.Background(), "example", srv.URL, 0)
	if res.Err != nil {
		t.Fatalf("Fetch: %v", res.Err)
	}
	// Three entries, one without updated: exactly two normalized items.
	if len(res.Items) != 2 {
		t.Fatalf("got %d items; want 2", len(res.Items))
	}

	got := res.Items[0]
	if got.Title != "Model Distillation in Practice" {
		t.Errorf("title = %q", got.Title)
	}
	if got.SourceType != types.SourceFeedItem {
		t.Errorf("source type = %q", got.SourceType)
	}
	if got.PublishedAt != time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) {
		t.Errorf("published = %v", got.PublishedAt)
	}
	if got.Category != "example" {
		t.Errorf("category = %q", got.Category)
	}
}

func TestFetchRSSFlattensCategories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssDoc))
	}))
	defer srv.Close()

	a := newTestAdapter(t)
	res := a.Fetch(context.Background(), "example-news", srv.URL, 0)
	if res.Err != nil {
		t.Fatalf("Fetch: %v", res.Err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items; want 1", len(res.Items))
	}

	got := res.Items[0]
	// The domain-attributed category collapses to its text value.
	wantTags := []string{"hardware", "ai"}
	if len(got.Tags) != len(wantTags) {
		t.Fatalf("tags = %v; want %v", got.Tags, wantTags)
	}
	for i, tag := range wantTags {
		if got.Tags[i] != tag {
			t.Errorf("tag[%d] = %q; want %q", i, got.Tags[i], tag)
		}
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	var target *httptest.Server
	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/hop" {
			http.Redirect(w, r, target.URL+"/feed", http.StatusMovedPermanently)
			return
		}
		w.Write([]byte(atomDoc))
	}))
	defer target.Close()

	a := newTestAdapter(t)
	res := a.Fetch(context.Background(), "example", target.URL+"/hop", 0)
	if res.Err != nil {
		t.Fatalf("Fetch through redirect: %v", res.Err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("got %d items", len(res.Items))
	}
}

func TestFetchLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(atomDoc))
	}))
	defer srv.Close()

	a := newTestAdapter(t)
	res := a.Fetch(context.Background(), "example", srv.URL, 1)
	if res.Err != nil {
		t.Fatalf("Fetch: %v", res.Err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items; want 1", len(res.Items))
	}
	if res.TotalAvailable != 3 {
		t.Fatalf("TotalAvailable = %d; want 3", res.TotalAvailable)
	}
}

func TestExtractorFillsMissingSummaries(t *testing.T) {
	a := New(true, 0)
	a.extract.fromURL = func(url string, _ time.Duration) (readability.Article, error) {
		return readability.Article{Excerpt: "extracted body", Byline: "Site Author"}, nil
	}

	items := []*types.Article{
		{Title: "No Summary", URL: "https://example.com/a", PublishedAt: time.Now(), SourceType: types.SourceFeedItem},
		{Title: "Has Summary", URL: "https://example.com/b", Summary: "already here", PublishedAt: time.Now(), SourceType: types.SourceFeedItem},
	}
	for _, it := range items {
		it.Normalize()
	}
	before := items[1].Fingerprint

	a.extract.FillMissingSummaries(items)

	if items[0].Summary != "extracted body" || items[0].Author != "Site Author" {
		t.Fatalf("extraction did not fill item: %+v", items[0])
	}
	if items[0].Fingerprint == "" {
		t.Fatal("fingerprint not recomputed")
	}
	if items[1].Summary != "already here" || items[1].Fingerprint != before {
		t.Fatal("item with existing summary must be untouched")
	}
}
