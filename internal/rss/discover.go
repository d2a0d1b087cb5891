package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/aicybermon/internal/config"
)

const (
	ViaHTMLLink   = "html_link"
	ViaCommonPath = "common_path"
)

var commonFeedPaths = []string{
	"/feed",
	"/rss",
	"/feed.xml",
	"/rss.xml",
	"/atom.xml",
	"/blog/feed",
	"/blog/rss",
	"/blog/feed.xml",
	"/news/rss.xml",
	"/news/feed",
	"/feeds/posts/default",
	"/index.rss",
	"/feed/",
	"/rss/",
}

// Discovery is a feed found for a site.
type Discovery struct {
	Site    string
	URL     string
	Via     string
	Title   string
	Dialect Dialect
	Items   int
}

// Source turns the discovery into a sources.yaml entry.
func (d Discovery) Source(name, category string) config.Source {
	return config.Source{
		Name:     name,
		URL:      d.Site,
		RSSURL:   d.URL,
		Category: category,
		Method:   config.MethodRSS,
	}
}

// Discover looks for feeds of siteURL: first the alternate links of its
// home page, then the usual feed paths. A candidate only counts when it
// parses as RSS, Atom or JSON Feed.
func (f *Fetcher) Discover(ctx context.Context, siteURL string) ([]Discovery, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(siteURL), "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid site url %q", siteURL)
	}
	site := base.String()
	a := &feedAdapter{client: f.Client, userAgent: f.UserAgent}

	var found []Discovery
	seen := make(map[string]bool)
	try := func(candidate, via string) {
		if seen[candidate] || ctx.Err() != nil {
			return
		}
		seen[candidate] = true

		pctx, cancel := f.withTimeout(ctx)
		defer cancel()
		feed, err := a.get(pctx, candidate)
		if err != nil {
			f.Logger.Debug("not a feed", "url", candidate, "error", err)
			return
		}
		found = append(found, Discovery{
			Site:    site,
			URL:     candidate,
			Via:     via,
			Title:   strings.TrimSpace(feed.Title),
			Dialect: dialectOf(feed),
			Items:   len(feed.Items),
		})
		f.Logger.Info("feed found", "url", candidate, "via", via, "items", len(feed.Items))
	}

	links, err := f.alternateLinks(ctx, base)
	if err != nil {
		f.Logger.Warn("could not read site page", "url", site, "error", err)
	}
	for _, l := range links {
		try(l, ViaHTMLLink)
	}
	for _, p := range commonFeedPaths {
		try(site+p, ViaCommonPath)
	}
	return found, ctx.Err()
}

func (f *Fetcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.Timeout > 0 {
		return context.WithTimeout(ctx, f.Timeout)
	}
	return context.WithCancel(ctx)
}

// alternateLinks returns the feed hrefs a page advertises with
// <link rel="alternate">, resolved against the page.
func (f *Fetcher) alternateLinks(ctx context.Context, page *url.URL) ([]string, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.String(), nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	var links []string
	doc.Find(`link[rel~="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(s.AttrOr("type", ""))
		if !strings.Contains(typ, "rss") && !strings.Contains(typ, "atom") &&
			!strings.Contains(typ, "xml") && !strings.Contains(typ, "feed+json") {
			return
		}
		href, err := url.Parse(strings.TrimSpace(s.AttrOr("href", "")))
		if err != nil || href.String() == "" {
			return
		}
		links = append(links, page.ResolveReference(href).String())
	})
	return links, nil
}
