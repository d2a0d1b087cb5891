// Package app wires the pipeline stages into the commands run by the CLI
// and the scheduler.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/aicybermon/internal/config"
	"github.com/deusflow/aicybermon/internal/dedup"
	"github.com/deusflow/aicybermon/internal/digest"
	"github.com/deusflow/aicybermon/internal/enrich"
	"github.com/deusflow/aicybermon/internal/gemini"
	"github.com/deusflow/aicybermon/internal/logger"
	"github.com/deusflow/aicybermon/internal/metrics"
	"github.com/deusflow/aicybermon/internal/news"
	"github.com/deusflow/aicybermon/internal/notify"
	"github.com/deusflow/aicybermon/internal/ratelimit"
	"github.com/deusflow/aicybermon/internal/retry"
	"github.com/deusflow/aicybermon/internal/rss"
	"github.com/deusflow/aicybermon/internal/scraper"
	"github.com/deusflow/aicybermon/internal/storage"
	"github.com/deusflow/aicybermon/internal/telegram"
	"github.com/deusflow/aicybermon/internal/translate"
)

const sentLogTTL = 30 * 24 * time.Hour

// Notifier receives an event after each successful write of a day.
type Notifier interface {
	DayUpdated(ctx context.Context, ev notify.DayUpdated) error
}

type App struct {
	Config     *config.Config
	Sources    []config.Source
	Store      *storage.Store
	Fetcher    *rss.Fetcher
	Normalizer *news.Normalizer
	Dedup      *dedup.Deduplicator
	Enricher   *enrich.Enricher // nil when the provider has no credentials
	Digest     *digest.Builder
	Senders    []digest.Sender
	Sent       *storage.SentLog
	Notifier   Notifier
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time

	closers []func()
}

// New loads the sources and builds every component the configuration
// enables. Missing LLM, email or Telegram credentials disable those stages
// instead of failing.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	sources, err := config.LoadSources(cfg.Scan.SourcesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	a := NewWithSources(cfg, sources)

	if cfg.NATS.URL != "" {
		p, err := notify.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			a.Logger.Warn("notifications disabled", "error", err)
		} else {
			a.Notifier = p
			a.closers = append(a.closers, p.Close)
		}
	}

	if err := cfg.RequireLLM(); err != nil {
		a.Logger.Info("enrichment disabled", "reason", err)
	} else if err := a.setupEnricher(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Email.Enabled {
		if err := cfg.RequireEmail(); err != nil {
			a.Logger.Warn("email digest disabled", "reason", err)
		} else {
			a.Senders = append(a.Senders, digest.NewSMTPSender(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.Address, cfg.Email.Password))
		}
	}
	if cfg.Telegram.Enabled {
		if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "" {
			a.Logger.Warn("telegram digest disabled", "reason", "TELEGRAM_TOKEN and TELEGRAM_CHAT_ID are required")
		} else {
			a.Senders = append(a.Senders, &digest.TelegramSender{Client: telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.ChatID)})
		}
	}

	if err := a.Sent.Load(); err != nil {
		a.Logger.Warn("failed to load sent log, starting empty", "error", err)
	}
	return a, nil
}

// NewWithSources builds the scan, store and digest components without any
// external collaborators.
func NewWithSources(cfg *config.Config, sources []config.Source) *App {
	loc := cfg.Location()
	normalizer := news.NewNormalizer()
	normalizer.Location = loc

	return &App{
		Config:     cfg,
		Sources:    sources,
		Store:      storage.NewStore(cfg.Store.DataDir, loc),
		Fetcher:    rss.NewFetcher(cfg.Scan, logger.Logger),
		Normalizer: normalizer,
		Dedup:      dedup.New(cfg.Dedup.Threshold, cfg.Dedup.Index, config.SourceNames(sources)),
		Digest:     digest.NewBuilder(cfg.Email.SubjectPrefix, cfg.Email.DashboardURL, cfg.Email.TopN),
		Sent:       storage.NewSentLog(filepath.Join(cfg.Store.DataDir, "sent_digests.json"), sentLogTTL),
		Metrics:    metrics.Global,
		Logger:     logger.Logger,
		Now:        time.Now,
	}
}

func (a *App) setupEnricher(ctx context.Context) error {
	cfg := a.Config.LLM

	var s enrich.Summarizer
	switch cfg.Provider {
	case "openai":
		s = translate.NewOpenAI(cfg.OpenAIAPIKey, cfg.BaseURL, cfg.Model)
	default:
		g, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.Model)
		if err != nil {
			return fmt.Errorf("failed to create Gemini client: %w", err)
		}
		a.closers = append(a.closers, g.Close)
		s = g
	}

	var fetcher enrich.ContentFetcher
	if cfg.FetchFullArticles {
		x := scraper.NewExtractor(a.Config.FetchTimeout(), a.Config.Scan.UserAgent, cfg.MaxContentChars)
		a.closers = append(a.closers, x.Close)
		fetcher = x
	}

	limiter := ratelimit.NewAIRateLimiter(cfg.MaxRPM, cfg.MaxRequests)
	e := enrich.New(a.Store, s, fetcher, limiter, cfg.TargetLanguage, a.Logger)
	e.Titles = translate.NewGoogleTranslator()
	if cfg.RetryAttempts > 0 {
		e.Retry = retry.RetryConfig{
			MaxAttempts: cfg.RetryAttempts,
			Delay:       time.Duration(cfg.RetryDelaySec) * time.Second,
			Backoff:     true,
			MaxDelay:    time.Minute,
		}
	}
	a.closers = append(a.closers, e.Close)
	a.Enricher = e
	return nil
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Today is the current store date in the configured zone.
func (a *App) Today() string {
	return a.Store.DateOf(a.now())
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// newRunLogger tags every line of one command with a fresh run id.
func (a *App) newRunLogger(stage, date string) (string, *slog.Logger) {
	id := uuid.NewString()
	return id, a.Logger.With("run_id", id, "stage", stage, "date", date)
}

func (a *App) notify(ctx context.Context, l *slog.Logger, ev notify.DayUpdated) {
	if a.Notifier == nil {
		return
	}
	if err := a.Notifier.DayUpdated(ctx, ev); err != nil {
		l.Warn("failed to publish day update", "error", err)
	}
}
