package qa

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"aiharvest/fetch"
	"aiharvest/types"
)

const questionsBody = `{
  "items": [
    {
      "title": "How do I fine-tune a small model?",
      "link": "https://stackoverflow.com/q/101",
      "body": "<p>I have a <b>dataset</b> of 10k rows &amp; want to fine-tune.</p>",
      "tags": ["machine-learning", "fine-tuning"],
      "creation_date": 1710064800,
      "score": 4,
      "owner": {"display_name": "ml_novice"}
    },
    {
      "title": "",
      "link": "https://stackoverflow.com/q/102",
      "creation_date": 1710064900
    },
    {
      "title": "Question with no date",
      "link": "https://stackoverflow.com/q/103",
      "creation_date": 0
    }
  ],
  "total": 3,
  "has_more": false
}`

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := New([]string{"machine-learning"}, 0)
	a.baseURL = srv.URL
	a.client = fetch.NewClient(fetch.Config{MinDelay: time.Nanosecond, BaseDelay: time.Millisecond}, a.log)
	return a
}

func gzipHandler(payload string, capture func(*http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			capture(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(payload))
		gz.Close()
	}
}

func TestFetchTaggedDecompressesAndMaps(t *testing.T) {
	var gotReq *http.Request
	a := newTestAdapter(t, gzipHandler(questionsBody, func(r *http.Request) { gotReq = r }))

	res := a.FetchTagged(context.Background(), "machine-learning", 20)
	if res.Err != nil {
		t.Fatalf("FetchTagged: %v", res.Err)
	}

	q := gotReq.URL.Query()
	if q.Get("site") != "stackoverflow" || q.Get("tagged") != "machine-learning" || q.Get("filter") != "withbody" {
		t.Fatalf("query params = %v", q)
	}

	// Titleless and dateless questions are skipped.
	if len(res.Items) != 1 {
		t.Fatalf("got %d items; want 1", len(res.Items))
	}
	got := res.Items[0]
	if got.Title != "How do I fine-tune a small model?" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Summary != "I have a dataset of 10k rows & want to fine-tune." {
		t.Errorf("summary = %q", got.Summary)
	}
	if got.Author != "ml_novice" {
		t.Errorf("author = %q", got.Author)
	}
	if got.SourceType != types.SourceQAQuestion {
		t.Errorf("source type = %q", got.SourceType)
	}
	if got.PublishedAt != time.Unix(1710064800, 0).UTC() {
		t.Errorf("published = %v", got.PublishedAt)
	}
	if len(got.Tags) != 2 {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestSearchUsesAdvancedEndpoint(t *testing.T) {
	var gotPath, gotQ string
	a := newTestAdapter(t, gzipHandler(questionsBody, func(r *http.Request) {
		gotPath = r.URL.Path
		gotQ = r.URL.Query().Get("q")
	}))

	res := a.Search(context.Background(), "transformer memory", 10)
	if res.Err != nil {
		t.Fatalf("Search: %v", res.Err)
	}
	if gotPath != "/search/advanced" || gotQ != "transformer memory" {
		t.Fatalf("path=%q q=%q", gotPath, gotQ)
	}
}

func TestFetchPlainBodyStillParses(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(questionsBody))
	})

	res := a.FetchTagged(context.Background(), "nlp", 5)
	if res.Err != nil {
		t.Fatalf("plain body: %v", res.Err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items", len(res.Items))
	}
}

func TestBodyExcerptBounds(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "<p>word</p> "
	}
	got := bodyExcerpt(long)
	if len(got) > maxBodyExcerpt+len("…") {
		t.Fatalf("excerpt too long: %d bytes", len(got))
	}
	if got == "" {
		t.Fatal("excerpt empty")
	}
}

func TestBodyExcerptMultibyteStaysValid(t *testing.T) {
	// A long unbroken run of multibyte runes: no space for the word-break
	// repair, so the cut itself must land on a rune boundary.
	long := strings.Repeat("深", maxBodyExcerpt*2)
	got := bodyExcerpt(long)
	if !utf8.ValidString(got) {
		t.Fatal("excerpt contains invalid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n > maxBodyExcerpt+1 {
		t.Fatalf("excerpt too long: %d runes", n)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("excerpt missing ellipsis: %q", got[len(got)-12:])
	}
}
