// Package enrich adds translated titles, summaries and structured details
// to stored articles through an LLM provider.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/deusflow/aicybermon/internal/cache"
	"github.com/deusflow/aicybermon/internal/news"
	"github.com/deusflow/aicybermon/internal/ratelimit"
	"github.com/deusflow/aicybermon/internal/retry"
	"github.com/deusflow/aicybermon/internal/scraper"
	"github.com/deusflow/aicybermon/internal/storage"
)

// ErrEnrichmentFailure marks an article the provider could not enrich.
// The article keeps its untranslated fields.
var ErrEnrichmentFailure = errors.New("enrichment failure")

// Summarizer is an LLM provider.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (Result, error)
	Name() string
}

// ContentFetcher returns the full text of an article page.
type ContentFetcher interface {
	ExtractFullArticle(ctx context.Context, url string) (*scraper.ArticleContent, error)
}

// TitleTranslator fills in a translated title when the provider left it out.
type TitleTranslator interface {
	TranslateTitle(ctx context.Context, title, language string) (string, error)
}

// EnrichError is the soft failure recorded for one article.
type EnrichError struct {
	ArticleID string
	Title     string
	Err       error
}

func (e *EnrichError) Error() string {
	return fmt.Sprintf("enrich %s (%q): %v", e.ArticleID, e.Title, e.Err)
}

func (e *EnrichError) Unwrap() []error {
	return []error{ErrEnrichmentFailure, e.Err}
}

// Report is the outcome of one Run.
type Report struct {
	Date      string
	Articles  int // articles stored for the day after the run
	Pending   int
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int // left for the next run, e.g. after the request budget ran out
	Failures  []error
}

type Enricher struct {
	Store      *storage.Store
	Summarizer Summarizer
	Fetcher    ContentFetcher // nil disables full article fetching
	Titles     TitleTranslator
	Limiter    *ratelimit.AIRateLimiter
	Retry      retry.RetryConfig
	Language   string
	Logger     *slog.Logger
	Now        func() time.Time

	results *cache.Cache[Result]
}

func New(store *storage.Store, s Summarizer, fetcher ContentFetcher, limiter *ratelimit.AIRateLimiter, language string, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		Store:      store,
		Summarizer: s,
		Fetcher:    fetcher,
		Limiter:    limiter,
		Retry:      retry.RetryConfig{MaxAttempts: 3, Delay: 5 * time.Second, Backoff: true, MaxDelay: time.Minute},
		Language:   language,
		Logger:     logger,
		Now:        time.Now,
		results:    cache.New[Result](24*time.Hour, time.Hour),
	}
}

// Close releases the result cache.
func (e *Enricher) Close() {
	e.results.Close()
}

// Run enriches the articles of date that have no summary yet. Results are
// written back with a single save at the end. Rerunning only touches
// articles still missing a summary.
func (e *Enricher) Run(ctx context.Context, date string) (Report, error) {
	report := Report{Date: date}

	articles, err := e.Store.Load(date)
	if err != nil {
		return report, err
	}

	report.Articles = len(articles)

	var pending []news.Article
	for _, a := range articles {
		if !a.IsEnriched() {
			pending = append(pending, a)
		}
	}
	report.Pending = len(pending)
	if len(pending) == 0 {
		e.Logger.Info("all articles already enriched", "date", date, "articles", len(articles))
		return report, nil
	}
	e.Logger.Info("enriching articles", "date", date, "pending", len(pending), "provider", e.Summarizer.Name())

	done := make(map[string]Result)
	for i := range pending {
		if err := ctx.Err(); err != nil {
			report.Skipped += len(pending) - i
			break
		}
		a := &pending[i]

		req := e.request(ctx, a)
		key := cache.GenerateKey(e.Summarizer.Name(), e.Language, req.Title, req.Content)
		if res, ok := e.results.Get(key); ok {
			if e.Limiter != nil {
				e.Limiter.RecordCacheHit()
			}
			done[a.ID] = res
			report.Succeeded++
			continue
		}

		if e.Limiter != nil {
			if err := e.Limiter.Wait(ctx); err != nil {
				if errors.Is(err, ratelimit.ErrBudgetExhausted) {
					e.Logger.Warn("llm request budget exhausted", "remaining_articles", len(pending)-i)
				}
				report.Skipped += len(pending) - i
				break
			}
		}

		report.Attempted++
		res, err := e.summarize(ctx, req)
		if err != nil {
			ee := &EnrichError{ArticleID: a.ID, Title: a.TitleOriginal, Err: err}
			report.Failed++
			report.Failures = append(report.Failures, ee)
			e.Logger.Warn("enrichment failed", "id", a.ID, "title", a.TitleOriginal, "error", err)
			continue
		}
		if res.TitleTranslated == "" && e.Titles != nil {
			if title, err := e.Titles.TranslateTitle(ctx, a.TitleOriginal, e.Language); err == nil {
				res.TitleTranslated = title
			} else {
				e.Logger.Debug("title translation failed", "id", a.ID, "error", err)
			}
		}
		e.results.Set(key, res)
		done[a.ID] = res
		report.Succeeded++
		e.Logger.Debug("article enriched", "id", a.ID, "progress", fmt.Sprintf("%d/%d", i+1, len(pending)))
	}

	if len(done) == 0 {
		return report, nil
	}

	// The scan may have merged new sources meanwhile; apply onto a fresh load.
	now := e.now()
	saved, err := e.Store.Update(date, func(current []news.Article) ([]news.Article, error) {
		for i := range current {
			res, ok := done[current[i].ID]
			if !ok || current[i].IsEnriched() {
				continue
			}
			apply(&current[i], res, now)
		}
		return current, nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to save enrichment for %s: %w", date, err)
	}
	report.Articles = len(saved)
	return report, nil
}

func (e *Enricher) request(ctx context.Context, a *news.Article) Request {
	content := a.Description
	if e.Fetcher != nil && a.URL != "" {
		full, err := e.Fetcher.ExtractFullArticle(ctx, a.URL)
		switch {
		case err != nil:
			e.Logger.Debug("full article unavailable, using description", "url", a.URL, "error", err)
		case utf8.RuneCountInString(full.Content) > utf8.RuneCountInString(content):
			content = full.Content
		}
	}
	return Request{
		Title:    a.TitleOriginal,
		Content:  content,
		Category: a.Category,
		Language: e.Language,
	}
}

func (e *Enricher) summarize(ctx context.Context, req Request) (Result, error) {
	var res Result
	err := retry.WithRetry(ctx, e.Retry, func() error {
		r, err := e.Summarizer.Summarize(ctx, req)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	return res, err
}

// apply copies a result onto the article. The category is never touched.
func apply(a *news.Article, res Result, now time.Time) {
	if res.TitleTranslated != "" {
		a.TitleTranslated = news.Ptr(res.TitleTranslated)
	}
	a.SummaryTranslated = news.Ptr(res.Summary)
	if res.Details != "" {
		a.DetailsTranslated = news.Ptr(res.Details)
	}
	t := now.UTC()
	a.EnrichedAt = &t
}

func (e *Enricher) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
