package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/deusflow/aicybermon/internal/app"
	"github.com/deusflow/aicybermon/internal/config"
	"github.com/deusflow/aicybermon/internal/logger"
	"github.com/deusflow/aicybermon/internal/storage"
)

const usage = `Usage: aicybermon <command> [flags]

Commands:
  scan     fetch, normalize and deduplicate today's articles into the store
  enrich   add translated titles and summaries to stored articles
  digest   send the daily digest by email and Telegram
  top      print the ranked articles of a day
  serve    run the dashboard API and the scheduled jobs
  discover find the feeds of a site and print sources.yaml entries
           aicybermon discover [-name N] [-category ai|cyber] <site-url>

Flags:
  -config  path to config.yaml (default configs/config.yaml)
  -date    store date YYYY-MM-DD (default today)
  -n       rows for top (default 20)
  -force   resend a digest that was already delivered
  -name    source name for discover (default the site host)
  -category  source category for discover (default cyber)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := fs.String("config", "configs/config.yaml", "path to config.yaml")
	date := fs.String("date", "", "store date YYYY-MM-DD")
	n := fs.Int("n", 20, "rows for top")
	force := fs.Bool("force", false, "resend a delivered digest")
	name := fs.String("name", "", "source name for discover")
	category := fs.String("category", "cyber", "source category for discover")
	fs.Parse(os.Args[2:])

	logger.Init()

	if cmd == "discover" {
		if err := discover(*configPath, fs.Arg(0), *name, *category); err != nil {
			logger.Error("command failed", "command", cmd, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cmd, *configPath, *date, *n, *force); err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

// discover logs to stderr so stdout stays pasteable YAML.
func discover(configPath, site, name, category string) error {
	if site == "" {
		return errors.New("discover needs a site url")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := logger.ParseLevel(os.Getenv("LOG_LEVEL"), slog.LevelInfo)
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return app.Discover(ctx, cfg, l, os.Stdout, site, name, category)
}

func run(cmd, configPath, date string, n int, force bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if date != "" {
		if _, err := storage.ParseDate(date); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if date == "" {
		date = a.Today()
	}

	switch cmd {
	case "scan":
		_, err = a.RunScan(ctx, date)
	case "enrich":
		_, err = a.RunEnrich(ctx, date)
	case "digest":
		err = a.RunDigest(ctx, date, force)
	case "top":
		err = a.Top(os.Stdout, date, n)
	case "serve":
		err = a.Serve(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return errors.New("unknown command " + cmd)
	}
	return err
}
