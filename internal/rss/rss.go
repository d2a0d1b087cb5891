// Package rss fetches configured sources concurrently and turns every feed
// dialect into one RawItem shape.
package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/aicybermon/internal/config"
)

// ErrFetchFailure marks a source that contributed no items this run.
var ErrFetchFailure = errors.New("fetch failure")

// FetchError records which source failed and why.
type FetchError struct {
	Source string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailure, e.Err}
}

// Dialect tags the shape an item was read from.
type Dialect string

const (
	DialectRSS    Dialect = "rss"
	DialectAtom   Dialect = "atom"
	DialectJSON   Dialect = "json"
	DialectScrape Dialect = "scrape"
)

// Item is one entry as returned by a single source, before normalization.
type Item struct {
	Title           string
	Link            string
	GUID            string
	Description     string
	Content         string
	Published       string
	Updated         string
	PublishedParsed *time.Time

	Source  config.Source
	Dialect Dialect
}

// SourceResult holds one source's items in feed order, or the failure.
type SourceResult struct {
	Source   config.Source
	Items    []Item
	Err      error
	Duration time.Duration
}

// Result is the collected output of one FetchAll, in configuration order.
type Result struct {
	Sources   []SourceResult
	FetchedAt time.Time
}

// Items flattens all successful sources, keeping configuration then feed order.
func (r Result) Items() []Item {
	var out []Item
	for _, sr := range r.Sources {
		out = append(out, sr.Items...)
	}
	return out
}

func (r Result) Failed() []SourceResult {
	var out []SourceResult
	for _, sr := range r.Sources {
		if sr.Err != nil {
			out = append(out, sr)
		}
	}
	return out
}

// adapter reads one kind of source.
type adapter interface {
	fetch(ctx context.Context, src config.Source) ([]Item, error)
}

type Fetcher struct {
	Client    *http.Client
	Workers   int
	Timeout   time.Duration
	MaxItems  int
	MaxAge    time.Duration
	UserAgent string
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewFetcher(cfg config.ScanConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		Client:    &http.Client{},
		Workers:   cfg.Workers,
		Timeout:   time.Duration(cfg.TimeoutSec) * time.Second,
		MaxItems:  cfg.MaxArticlesPerSource,
		MaxAge:    time.Duration(cfg.MaxAgeHours) * time.Hour,
		UserAgent: cfg.UserAgent,
		Logger:    logger,
		Now:       time.Now,
	}
}

// FetchAll downloads every enabled source on a bounded pool. A failing
// source is reported in its SourceResult and never aborts the others.
func (f *Fetcher) FetchAll(ctx context.Context, sources []config.Source) Result {
	enabled := config.EnabledSources(sources)
	res := Result{
		Sources:   make([]SourceResult, len(enabled)),
		FetchedAt: f.now(),
	}

	workers := f.Workers
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, src := range enabled {
		g.Go(func() error {
			res.Sources[i] = f.FetchSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, sr := range res.Sources {
		if sr.Err == nil {
			ok++
		}
	}
	f.Logger.Info("processed sources", "ok", ok, "total", len(enabled))
	return res
}

// FetchSource fetches a single source under its own timeout.
func (f *Fetcher) FetchSource(ctx context.Context, src config.Source) SourceResult {
	start := time.Now()
	sr := SourceResult{Source: src}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	items, err := f.adapterFor(src).fetch(ctx, src)
	sr.Duration = time.Since(start)
	if err != nil {
		sr.Err = &FetchError{Source: src.Name, URL: src.FetchURL(), Err: err}
		f.Logger.Warn("source failed", "source", src.Name, "error", err)
		return sr
	}

	sr.Items = f.filter(items)
	f.Logger.Debug("loaded items", "source", src.Name, "items", len(sr.Items), "duration", sr.Duration)
	return sr
}

func (f *Fetcher) adapterFor(src config.Source) adapter {
	if src.IsScrape() {
		return &scrapeAdapter{userAgent: f.UserAgent, timeout: f.Timeout, maxItems: f.MaxItems}
	}
	return &feedAdapter{client: f.Client, userAgent: f.UserAgent}
}

// filter drops items older than MaxAge and caps the per-source count.
// Undated items are kept.
func (f *Fetcher) filter(items []Item) []Item {
	out := make([]Item, 0, len(items))
	cutoff := time.Time{}
	if f.MaxAge > 0 {
		cutoff = f.now().Add(-f.MaxAge)
	}
	for _, it := range items {
		if f.MaxItems > 0 && len(out) >= f.MaxItems {
			break
		}
		if it.PublishedParsed != nil && !cutoff.IsZero() && it.PublishedParsed.Before(cutoff) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (f *Fetcher) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}
