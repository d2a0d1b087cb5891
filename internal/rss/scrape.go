package rss

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/deusflow/aicybermon/internal/config"
)

// Link selectors tried on listing pages of sources without a feed.
var scrapeSelectors = []string{
	"article a[href]",
	"a.post-link",
	".blog-post a[href]",
	".card a[href]",
	"h2 a[href]",
	"h3 a[href]",
}

const minLinkText = 10

var errNoLinks = errors.New("no article links found")

// scrapeAdapter reads article links off an HTML listing page with colly.
type scrapeAdapter struct {
	userAgent string
	timeout   time.Duration
	maxItems  int
}

func (a *scrapeAdapter) fetch(ctx context.Context, src config.Source) ([]Item, error) {
	c := colly.NewCollector()
	if a.userAgent != "" {
		c.UserAgent = a.userAgent
	}
	if a.timeout > 0 {
		c.SetRequestTimeout(a.timeout)
	}

	var (
		items   []Item
		seen    = map[string]struct{}{}
		pageErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	for _, sel := range scrapeSelectors {
		c.OnHTML(sel, func(e *colly.HTMLElement) {
			if a.maxItems > 0 && len(items) >= a.maxItems {
				return
			}
			title := strings.Join(strings.Fields(e.Text), " ")
			if len(title) < minLinkText {
				return
			}
			link := e.Request.AbsoluteURL(e.Attr("href"))
			if link == "" || !strings.HasPrefix(link, "http") {
				return
			}
			if _, dup := seen[link]; dup {
				return
			}
			seen[link] = struct{}{}
			items = append(items, Item{
				Title:   title,
				Link:    link,
				Source:  src,
				Dialect: DialectScrape,
			})
		})
	}

	c.OnError(func(_ *colly.Response, err error) {
		pageErr = err
	})

	if err := c.Visit(src.FetchURL()); err != nil {
		return nil, err
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pageErr != nil {
		return nil, pageErr
	}
	if len(items) == 0 {
		return nil, errNoLinks
	}
	return items, nil
}
