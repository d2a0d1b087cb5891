package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const homePage = `<html><head>
<link rel="alternate" type="application/atom+xml" title="Blog" href="atom.xml">
<link rel="alternate" type="application/json+oembed" href="/oembed">
<link rel="stylesheet" type="text/css" href="/style.css">
</head><body>Welcome</body></html>`

func discoverySite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(homePage))
	})
	mux.HandleFunc("/atom.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atomFeed))
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssFeed))
	})
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>not a feed</body></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscover_LinksThenCommonPaths(t *testing.T) {
	srv := discoverySite(t)
	f := testFetcher()

	found, err := f.Discover(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("found %d feeds, want 2: %+v", len(found), found)
	}

	first := found[0]
	if first.URL != srv.URL+"/atom.xml" || first.Via != ViaHTMLLink || first.Dialect != DialectAtom {
		t.Errorf("first = %+v", first)
	}
	if first.Title != "AI" || first.Items != 1 || first.Site != srv.URL {
		t.Errorf("first feed details = %+v", first)
	}
	if second := found[1]; second.URL != srv.URL+"/feed" || second.Via != ViaCommonPath || second.Dialect != DialectRSS {
		t.Errorf("second = %+v", second)
	}

	src := first.Source("Blog", "ai")
	if src.RSSURL != first.URL || src.URL != srv.URL || src.Method != "rss" || src.Category != "ai" {
		t.Errorf("source entry = %+v", src)
	}
}

func TestDiscover_NoFeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte("<html><body>plain</body></html>"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	found, err := testFetcher().Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Errorf("found %+v", found)
	}
}

func TestDiscover_InvalidURL(t *testing.T) {
	for _, site := range []string{"", "example.com", "ftp://example.com"} {
		if _, err := testFetcher().Discover(context.Background(), site); err == nil {
			t.Errorf("%q: expected error", site)
		}
	}
}
