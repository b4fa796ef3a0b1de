package codehost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aiharvest/fetch"
	"aiharvest/types"
)

const searchBody = `{
  "total_count": 4123,
  "items": [
    {
      "full_name": "acme/llm-toolkit",
      "description": "Utilities for serving language models",
      "html_url": "https://github.com/acme/llm-toolkit",
      "stargazers_count": 2100,
      "forks_count": 160,
      "topics": ["llm", "inference"],
      "language": "Go",
      "pushed_at": "2024-03-01T12:00:00Z",
      "created_at": "2022-01-01T00:00:00Z",
      "owner": {"login": "acme"},
      "license": {"spdx_id": "MIT"}
    },
    {
      "full_name": "",
      "html_url": "",
      "pushed_at": "2024-03-01T12:00:00Z"
    }
  ]
}`

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := New([]string{"machine learning"}, "", 0, false)
	a.baseURL = srv.URL
	a.client = fetch.NewClient(fetch.Config{MinDelay: time.Nanosecond, BaseDelay: time.Millisecond}, a.log)
	return a
}

func TestFetchMapsRepositories(t *testing.T) {
	var gotQuery, gotPerPage string
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/repositories" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query().Get("q")
		gotPerPage = r.URL.Query().Get("per_page")
		w.Write([]byte(searchBody))
	}))

	res := a.Fetch(context.Background(), "machine learning", 5)
	if res.Err != nil {
		t.Fatalf("Fetch: %v", res.Err)
	}
	if gotQuery != "machine learning" || gotPerPage != "5" {
		t.Fatalf("query params: q=%q per_page=%q", gotQuery, gotPerPage)
	}
	if res.TotalAvailable != 4123 {
		t.Fatalf("TotalAvailable = %d", res.TotalAvailable)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items; want 1 (nameless repo skipped)", len(res.Items))
	}

	got := res.Items[0]
	if got.Title != "acme/llm-toolkit" || got.Author != "acme" {
		t.Errorf("title/author = %q/%q", got.Title, got.Author)
	}
	if got.SourceType != types.SourceCodeRepo {
		t.Errorf("source type = %q", got.SourceType)
	}
	if got.Summary != "Utilities for serving language models (2100 stars, 160 forks, MIT license)" {
		t.Errorf("summary = %q", got.Summary)
	}
	wantTags := []string{"llm", "inference", "go"}
	if len(got.Tags) != len(wantTags) {
		t.Fatalf("tags = %v", got.Tags)
	}
	for i, tag := range wantTags {
		if got.Tags[i] != tag {
			t.Errorf("tag[%d] = %q; want %q", i, got.Tags[i], tag)
		}
	}
}

func TestFetchRetriesOn503(t *testing.T) {
	hits := 0
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(searchBody))
	}))

	res := a.Fetch(context.Background(), "machine learning", 5)
	if res.Err != nil {
		t.Fatalf("expected recovery after 503, got %v", res.Err)
	}
	if hits != 2 {
		t.Fatalf("expected exactly one retry, got %d hits", hits)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items", len(res.Items))
	}
}

func TestFetchEnrichesTopHit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchBody))
	})
	mux.HandleFunc("/repos/acme/llm-toolkit/readme", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# llm-toolkit\nServing utilities for production."))
	})
	mux.HandleFunc("/repos/acme/llm-toolkit/commits", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"commit":{"message":"fix batching"}}]`))
	})
	mux.HandleFunc("/repos/acme/llm-toolkit/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tag_name":"v1.2.0","name":""}`))
	})
	a := newTestAdapter(t, mux)
	a.enrichTop = true

	res := a.Fetch(context.Background(), "machine learning", 5)
	if res.Err != nil {
		t.Fatalf("Fetch: %v", res.Err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items", len(res.Items))
	}

	top := res.Items[0]
	if !strings.Contains(top.Summary, "Serving utilities for production.") {
		t.Errorf("summary not enriched: %q", top.Summary)
	}
	if got := top.Tags[len(top.Tags)-1]; got != "release:v1.2.0" {
		t.Errorf("release tag = %q", got)
	}
	if top.Fingerprint != types.ContentFingerprint(top.Title, top.Summary) {
		t.Error("fingerprint not recomputed after enrichment")
	}
}

func TestEnrichToleratesPartialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/llm-toolkit/readme", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# llm-toolkit\nServing utilities."))
	})
	mux.HandleFunc("/repos/acme/llm-toolkit/commits", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"commit":{"message":"fix batching\n\ndetails"}},{"commit":{"message":"add docs"}}]`))
	})
	mux.HandleFunc("/repos/acme/llm-toolkit/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	a := newTestAdapter(t, mux)

	e := a.Enrich(context.Background(), "acme/llm-toolkit")
	if e.Readme == "" {
		t.Error("readme missing")
	}
	if len(e.RecentCommits) != 2 || e.RecentCommits[0] != "fix batching" {
		t.Errorf("commits = %v", e.RecentCommits)
	}
	if e.LatestRelease != "" {
		t.Errorf("release should be empty on 404, got %q", e.LatestRelease)
	}
}
