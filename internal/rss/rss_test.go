package rss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/aicybermon/internal/config"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Sec</title>
<item><title>Zero-day flaw found in X</title><link>https://sec.example.com/a?utm_source=rss</link>
<description>&lt;p&gt;Attackers exploit X&lt;/p&gt;</description><pubDate>Mon, 12 Oct 2026 09:00:00 GMT</pubDate></item>
<item><title>Old story</title><link>https://sec.example.com/old</link><pubDate>Mon, 01 Jan 2024 09:00:00 GMT</pubDate></item>
<item><title>Undated story</title><link>https://sec.example.com/undated</link></item>
</channel></rss>`

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>AI</title>
<entry><title>New model released</title><link href="https://ai.example.com/model"/>
<id>tag:ai.example.com,2026:1</id><updated>2026-10-12T08:00:00Z</updated><summary>A model</summary></entry>
</feed>`

const listingPage = `<html><body>
<article><a href="/news/first-announcement">First big announcement about agents</a></article>
<article><a href="/news/short">Short</a></article>
<h2><a href="https://www.example.org/news/second">Second post about evaluation suites</a></h2>
<h3><a href="/news/first-announcement">First big announcement about agents</a></h3>
</body></html>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFetcher() *Fetcher {
	f := NewFetcher(config.ScanConfig{
		Workers:              4,
		TimeoutSec:           2,
		MaxArticlesPerSource: 20,
		MaxAgeHours:          48,
		UserAgent:            "test-agent",
	}, quietLogger())
	f.Now = func() time.Time { return time.Date(2026, 10, 12, 12, 0, 0, 0, time.UTC) }
	return f
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			http.Error(w, "bad agent", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed)
	})
	mux.HandleFunc("/atom", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, atomFeed)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(3 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, listingPage)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAll_SoftFailuresAndOrder(t *testing.T) {
	srv := newServer(t)
	off := false
	sources := []config.Source{
		{Name: "Sec", RSSURL: srv.URL + "/rss", Category: "cyber", Method: config.MethodRSS},
		{Name: "Broken", RSSURL: srv.URL + "/broken", Category: "cyber", Method: config.MethodRSS},
		{Name: "Garbage", RSSURL: srv.URL + "/garbage", Category: "ai", Method: config.MethodRSS},
		{Name: "Disabled", RSSURL: srv.URL + "/rss", Category: "ai", Method: config.MethodRSS, Enabled: &off},
		{Name: "AI", RSSURL: srv.URL + "/atom", Category: "ai", Method: config.MethodRSS},
	}

	res := testFetcher().FetchAll(context.Background(), sources)
	if len(res.Sources) != 4 {
		t.Fatalf("got %d source results, want 4 (disabled skipped)", len(res.Sources))
	}

	wantNames := []string{"Sec", "Broken", "Garbage", "AI"}
	for i, sr := range res.Sources {
		if sr.Source.Name != wantNames[i] {
			t.Errorf("result %d is %q, want %q", i, sr.Source.Name, wantNames[i])
		}
	}

	failed := res.Failed()
	if len(failed) != 2 {
		t.Fatalf("got %d failures, want 2", len(failed))
	}
	for _, sr := range failed {
		if !errors.Is(sr.Err, ErrFetchFailure) {
			t.Errorf("%s: error %v is not a fetch failure", sr.Source.Name, sr.Err)
		}
		if len(sr.Items) != 0 {
			t.Errorf("%s: failed source contributed %d items", sr.Source.Name, len(sr.Items))
		}
	}

	items := res.Items()
	// the 2024 item is older than max age, the undated one is kept
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].Title != "Zero-day flaw found in X" || items[1].Title != "Undated story" {
		t.Errorf("feed order not preserved: %q, %q", items[0].Title, items[1].Title)
	}
	if items[0].Dialect != DialectRSS || items[0].Source.Category != "cyber" {
		t.Errorf("rss item tagged wrong: %+v", items[0])
	}
	if items[0].PublishedParsed == nil {
		t.Error("expected parsed pubDate")
	}
	if items[2].Dialect != DialectAtom || items[2].Link != "https://ai.example.com/model" {
		t.Errorf("atom item misread: %+v", items[2])
	}
	if items[2].PublishedParsed == nil {
		t.Error("atom <updated> should fill the published time")
	}
}

func TestFetchSource_Timeout(t *testing.T) {
	srv := newServer(t)
	f := testFetcher()
	f.Timeout = 100 * time.Millisecond

	sr := f.FetchSource(context.Background(), config.Source{
		Name: "Slow", RSSURL: srv.URL + "/slow", Category: "ai", Method: config.MethodRSS,
	})
	if !errors.Is(sr.Err, ErrFetchFailure) {
		t.Fatalf("expected fetch failure, got %v", sr.Err)
	}
	if sr.Duration > 2*time.Second {
		t.Errorf("timeout not honored, took %v", sr.Duration)
	}
}

func TestFetchSource_MaxItems(t *testing.T) {
	srv := newServer(t)
	f := testFetcher()
	f.MaxItems = 1
	f.MaxAge = 0

	sr := f.FetchSource(context.Background(), config.Source{
		Name: "Sec", RSSURL: srv.URL + "/rss", Category: "cyber", Method: config.MethodRSS,
	})
	if sr.Err != nil {
		t.Fatalf("unexpected error: %v", sr.Err)
	}
	if len(sr.Items) != 1 {
		t.Errorf("got %d items, want 1", len(sr.Items))
	}
}

func TestFetchSource_Scrape(t *testing.T) {
	srv := newServer(t)
	sr := testFetcher().FetchSource(context.Background(), config.Source{
		Name: "Lab", URL: srv.URL + "/listing", Category: "ai", Method: config.MethodScrape,
	})
	if sr.Err != nil {
		t.Fatalf("unexpected error: %v", sr.Err)
	}
	if len(sr.Items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(sr.Items), sr.Items)
	}
	first := sr.Items[0]
	if first.Dialect != DialectScrape {
		t.Errorf("dialect = %q", first.Dialect)
	}
	if !strings.HasPrefix(first.Link, srv.URL+"/news/first-announcement") {
		t.Errorf("relative link not resolved: %q", first.Link)
	}
	if sr.Items[1].Link != "https://www.example.org/news/second" {
		t.Errorf("absolute link changed: %q", sr.Items[1].Link)
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := error(&FetchError{Source: "A", URL: "https://a.example", Err: inner})
	if !errors.Is(err, ErrFetchFailure) || !errors.Is(err, inner) {
		t.Errorf("FetchError should match both sentinel and cause: %v", err)
	}
	if !strings.Contains(err.Error(), "A") {
		t.Errorf("message missing source name: %q", err.Error())
	}
}
