package rss

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/aicybermon/internal/config"
)

const acceptFeeds = "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml, */*"

// feedAdapter reads RSS, Atom and JSON Feed documents with gofeed.
type feedAdapter struct {
	client    *http.Client
	userAgent string
}

func (a *feedAdapter) fetch(ctx context.Context, src config.Source) ([]Item, error) {
	feed, err := a.get(ctx, src.FetchURL())
	if err != nil {
		return nil, err
	}
	return itemsFromFeed(feed, src), nil
}

func (a *feedAdapter) get(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	req.Header.Set("Accept", acceptFeeds)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func dialectOf(feed *gofeed.Feed) Dialect {
	switch strings.ToLower(feed.FeedType) {
	case "atom":
		return DialectAtom
	case "json":
		return DialectJSON
	default:
		return DialectRSS
	}
}

func itemsFromFeed(feed *gofeed.Feed, src config.Source) []Item {
	dialect := dialectOf(feed)
	items := make([]Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		if fi == nil {
			continue
		}
		it := Item{
			Title:       fi.Title,
			Link:        strings.TrimSpace(fi.Link),
			GUID:        strings.TrimSpace(fi.GUID),
			Description: fi.Description,
			Content:     fi.Content,
			Published:   fi.Published,
			Updated:     fi.Updated,
			Source:      src,
			Dialect:     dialect,
		}
		// Atom entries often only carry <updated>.
		switch {
		case fi.PublishedParsed != nil:
			t := *fi.PublishedParsed
			it.PublishedParsed = &t
		case fi.UpdatedParsed != nil:
			t := *fi.UpdatedParsed
			it.PublishedParsed = &t
		}
		if it.Link == "" && len(fi.Links) > 0 {
			it.Link = strings.TrimSpace(fi.Links[0])
		}
		items = append(items, it)
	}
	return items
}
