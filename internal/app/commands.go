package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/deusflow/aicybermon/internal/digest"
	"github.com/deusflow/aicybermon/internal/metrics"
	"github.com/deusflow/aicybermon/internal/notify"
	"github.com/deusflow/aicybermon/internal/rank"
)

var ErrEnrichmentDisabled = errors.New("enrichment is not configured")

// RunEnrich enriches the articles of date that have no summary yet.
// Per-article failures are logged and counted, not returned.
func (a *App) RunEnrich(ctx context.Context, date string) (metrics.RunSummary, error) {
	if a.Enricher == nil {
		if err := a.Config.RequireLLM(); err != nil {
			return metrics.RunSummary{}, fmt.Errorf("%w: %v", ErrEnrichmentDisabled, err)
		}
		return metrics.RunSummary{}, ErrEnrichmentDisabled
	}
	id, l := a.newRunLogger("enrich", date)
	start := time.Now()

	report, err := a.Enricher.Run(ctx, date)
	summary := metrics.RunSummary{
		RunID:           id,
		Stage:           "enrich",
		Date:            date,
		EnrichAttempted: report.Attempted,
		EnrichSucceeded: report.Succeeded,
		EnrichFailed:    report.Failed,
		Duration:        time.Since(start),
	}
	if err != nil {
		summary.Err = err.Error()
	}
	if report.Skipped > 0 {
		l.Warn("articles left for the next run", "skipped", report.Skipped)
	}
	if a.Enricher.Limiter != nil {
		l.Debug("llm usage", "stats", a.Enricher.Limiter.GetStats())
	}
	summary.Log(l)
	a.Metrics.Record(summary)

	if err == nil && report.Succeeded > 0 {
		a.notify(ctx, l, notify.DayUpdated{
			Date:     date,
			RunID:    id,
			Stage:    "enrich",
			Articles: report.Articles,
		})
	}
	return summary, err
}

// RunDigest sends the top articles of date over every configured channel.
// Channels that already delivered this date are skipped unless force is set.
func (a *App) RunDigest(ctx context.Context, date string, force bool) error {
	_, l := a.newRunLogger("digest", date)
	if len(a.Senders) == 0 {
		l.Warn("no digest channel configured")
		return nil
	}

	articles, err := a.Store.Load(date)
	if err != nil {
		return err
	}
	d, err := a.Digest.Build(date, articles)
	if errors.Is(err, digest.ErrEmptyDigest) {
		l.Info("no articles to send")
		return nil
	}
	if err != nil {
		return err
	}

	recipients, err := digest.LoadRecipients(a.Config.Email.RecipientsPath, a.Config.Email.Address)
	if err != nil {
		l.Warn("could not load extra recipients", "error", err)
	}

	var errs []error
	for _, s := range a.Senders {
		ch := s.Channel()
		if !force && a.Sent.IsAlreadySent(ch, date) {
			l.Info("digest already sent", "channel", ch)
			continue
		}
		if err := s.Send(ctx, d, recipients); err != nil {
			l.Error("digest failed", "channel", ch, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
			continue
		}
		a.Sent.MarkAsSent(ch, date, d.Subject, len(d.Articles))
		a.Metrics.IncrementDigestsSent()
		l.Info("digest sent", "channel", ch, "articles", len(d.Articles), "stats", d.Stats.String())
	}

	a.Sent.Cleanup()
	if err := a.Sent.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save sent log: %w", err))
	}
	return errors.Join(errs...)
}

const topTitleWidth = 64

// Top writes the n best ranked articles of date as a table.
func (a *App) Top(w io.Writer, date string, n int) error {
	articles, err := a.Store.Load(date)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s  %d articles\n", date, len(articles))
	header := fmt.Sprintf("%3s  %5s  %3s  %-5s  %s", "#", "SCORE", "SRC", "CAT", "TITLE")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)+topTitleWidth-5))
	for i, s := range rank.Top(articles, n) {
		title := runewidth.Truncate(s.Article.DisplayTitle(), topTitleWidth, "…")
		fmt.Fprintf(w, "%3d  %5d  %3d  %-5s  %s\n", i+1, s.Score, len(s.Article.Sources), s.Article.Category, title)
	}
	return nil
}
