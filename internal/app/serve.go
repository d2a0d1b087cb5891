package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/deusflow/aicybermon/internal/api"
	"github.com/deusflow/aicybermon/internal/scheduler"
)

// Serve runs the dashboard API and the scheduled jobs until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config

	sched := scheduler.New(ctx, a.Store.Location(), a.Logger)
	if err := sched.Add("scan", cfg.Schedule.Scan, a.scanJob); err != nil {
		return err
	}
	if err := sched.Add("digest", cfg.Schedule.Digest, func(ctx context.Context) error {
		return a.RunDigest(ctx, a.Today(), false)
	}); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Dashboard.Port,
		Handler:           api.NewServer(a.Store, a.Metrics, cfg.Dashboard.RetentionDays, cfg.Dashboard.TopN, a.Logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("dashboard listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	sched.Start()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("http shutdown", "error", err)
	}
	sched.Stop()
	return serveErr
}

// scanJob scans today and enriches what it stored.
func (a *App) scanJob(ctx context.Context) error {
	date := a.Today()
	if _, err := a.RunScan(ctx, date); err != nil {
		return err
	}
	if a.Enricher == nil {
		return nil
	}
	_, err := a.RunEnrich(ctx, date)
	return err
}
