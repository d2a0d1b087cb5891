package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/aicybermon/internal/dedup"
	"github.com/deusflow/aicybermon/internal/metrics"
	"github.com/deusflow/aicybermon/internal/news"
	"github.com/deusflow/aicybermon/internal/notify"
	"github.com/deusflow/aicybermon/internal/rss"
	"github.com/deusflow/aicybermon/internal/storage"
)

// Run is the state one scan threads through its stages.
type Run struct {
	ID      string
	Date    string
	Started time.Time
	Logger  *slog.Logger

	Fetched    rss.Result
	Candidates []news.Article
	Dropped    []error
	Stats      dedup.MergeStats
	Stored     []news.Article

	Summary metrics.RunSummary
}

// RunScan fetches every source, normalizes and deduplicates the items and
// merges them into the stored articles of date. Rerunning with the same
// feed content leaves the file unchanged.
func (a *App) RunScan(ctx context.Context, date string) (metrics.RunSummary, error) {
	if _, err := storage.ParseDate(date); err != nil {
		return metrics.RunSummary{}, err
	}
	id, l := a.newRunLogger("scan", date)
	r := &Run{
		ID:      id,
		Date:    date,
		Started: time.Now(),
		Logger:  l,
		Summary: metrics.RunSummary{RunID: id, Stage: "scan", Date: date},
	}
	l.Info("scan started", "sources", len(a.Sources))

	a.fetch(ctx, r)
	a.normalize(r)
	err := a.merge(r)
	if err == nil {
		a.notify(ctx, l, notify.DayUpdated{
			Date:        date,
			RunID:       id,
			Stage:       "scan",
			Articles:    len(r.Stored),
			NewArticles: r.Stats.New,
			Merged:      r.Stats.DuplicatesCollapsed(),
		})
	}
	return a.finish(r, err)
}

func (a *App) fetch(ctx context.Context, r *Run) {
	r.Fetched = a.Fetcher.FetchAll(ctx, a.Sources)
	failed := r.Fetched.Failed()

	r.Summary.SourcesTotal = len(r.Fetched.Sources)
	r.Summary.SourcesFailed = len(failed)
	r.Summary.SourcesFetched = len(r.Fetched.Sources) - len(failed)
	for _, sr := range failed {
		r.Logger.Warn("source skipped", "source", sr.Source.Name, "error", sr.Err)
	}
}

func (a *App) normalize(r *Run) {
	items := r.Fetched.Items()
	r.Summary.ItemsFetched = len(items)

	fetchedAt := r.Fetched.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = a.now()
	}
	r.Candidates, r.Dropped = a.Normalizer.NormalizeAll(items, fetchedAt)
	r.Summary.ItemsDropped = len(r.Dropped)
	r.Summary.Candidates = len(r.Candidates)
	for _, err := range r.Dropped {
		r.Logger.Debug("item dropped", "error", err)
	}
}

// merge folds the candidates into the stored day with one atomic write.
func (a *App) merge(r *Run) error {
	if len(r.Candidates) == 0 {
		stored, err := a.Store.Load(r.Date)
		if err != nil {
			return err
		}
		r.Stored = stored
		r.Logger.Info("no candidates, store left untouched")
		return nil
	}

	stored, err := a.Store.Update(r.Date, func(existing []news.Article) ([]news.Article, error) {
		merged, stats := a.Dedup.Merge(existing, r.Candidates)
		r.Stats = stats
		return merged, nil
	})
	if err != nil {
		return fmt.Errorf("failed to merge into %s: %w", r.Date, err)
	}
	r.Stored = stored

	r.Summary.NewArticles = r.Stats.New
	r.Summary.MergedIntoExisting = r.Stats.Merged
	r.Summary.DuplicatesCollapsed = r.Stats.DuplicatesCollapsed()
	r.Logger.Debug("merge stats",
		"existing", r.Stats.Existing,
		"repeats", r.Stats.Repeats,
		"consolidated", r.Stats.Consolidated,
	)
	return nil
}

func (a *App) finish(r *Run, err error) (metrics.RunSummary, error) {
	if err == nil && r.Summary.SourcesTotal > 0 && r.Summary.SourcesFetched == 0 {
		err = fmt.Errorf("all %d sources failed: %w", r.Summary.SourcesTotal, rss.ErrFetchFailure)
	}

	r.Summary.ArticlesStored = len(r.Stored)
	r.Summary.Duration = time.Since(r.Started)
	if err != nil {
		r.Summary.Err = err.Error()
	}
	r.Summary.Log(r.Logger)
	a.Metrics.Record(r.Summary)

	if errors.Is(err, storage.ErrStoreCorruption) {
		r.Logger.Error("daily file is corrupt, fix or remove it before rerunning", "dir", a.Store.Dir())
	}
	return r.Summary, err
}
