package news

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/deusflow/aicybermon/internal/rss"
)

// ErrParseFailure marks a raw item that could not become an Article.
var ErrParseFailure = errors.New("parse failure")

type ParseError struct {
	Source string
	Link   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("drop item from %s (%s): %s", e.Source, e.Link, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrParseFailure
}

const DefaultMaxDescription = 1000

// Normalizer maps raw feed items onto Article candidates.
type Normalizer struct {
	MaxDescription int
	// Location is assumed for feed dates without a zone.
	Location *time.Location
}

func NewNormalizer() *Normalizer {
	return &Normalizer{MaxDescription: DefaultMaxDescription, Location: time.UTC}
}

// Normalize returns a single-source Article for it. Items without a title,
// or with a link that is not an absolute http(s) URL, fail with ErrParseFailure.
func (n *Normalizer) Normalize(it rss.Item, fetchedAt time.Time) (Article, error) {
	drop := func(reason string) (Article, error) {
		return Article{}, &ParseError{Source: it.Source.Name, Link: it.Link, Reason: reason}
	}

	title := StripHTML(it.Title)
	if title == "" {
		return drop("empty title")
	}

	category := Category(strings.ToLower(it.Source.Category))
	if !category.Valid() {
		return drop(fmt.Sprintf("source category %q", it.Source.Category))
	}

	link := strings.TrimSpace(it.Link)
	if link == "" && isHTTP(it.GUID) {
		link = strings.TrimSpace(it.GUID)
	}
	normalized := ""
	if link != "" {
		u, err := NormalizeURL(link)
		if err != nil {
			return drop("malformed link")
		}
		normalized = u
	}

	published, estimated := n.published(it, fetchedAt)

	desc := StripHTML(it.Description)
	if desc == "" {
		desc = StripHTML(it.Content)
	}
	limit := n.MaxDescription
	if limit <= 0 {
		limit = DefaultMaxDescription
	}
	desc = TruncateRunes(desc, limit)

	return Article{
		ID:                 MakeID(normalized, title),
		TitleOriginal:      title,
		Description:        desc,
		Category:           category,
		Published:          published,
		PublishedEstimated: estimated,
		FetchedAt:          fetchedAt.UTC(),
		Sources:            []Source{{Name: it.Source.Name, URL: normalized}},
		DuplicateCount:     1,
		URL:                normalized,
	}, nil
}

// NormalizeAll keeps input order and returns the dropped items as errors.
func (n *Normalizer) NormalizeAll(items []rss.Item, fetchedAt time.Time) ([]Article, []error) {
	out := make([]Article, 0, len(items))
	var dropped []error
	for _, it := range items {
		a, err := n.Normalize(it, fetchedAt)
		if err != nil {
			dropped = append(dropped, err)
			continue
		}
		out = append(out, a)
	}
	return out, dropped
}

// published picks the feed's parsed time, then a tolerant parse of the raw
// strings, then the fetch time flagged as estimated.
func (n *Normalizer) published(it rss.Item, fetchedAt time.Time) (time.Time, bool) {
	if it.PublishedParsed != nil && !it.PublishedParsed.IsZero() {
		return it.PublishedParsed.UTC(), false
	}
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, raw := range []string{it.Published, it.Updated} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseIn(raw, loc); err == nil {
			return t.UTC(), false
		}
	}
	return fetchedAt.UTC(), true
}

func isHTTP(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
