package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/aicybermon/internal/config"
	"github.com/deusflow/aicybermon/internal/rss"
)

// Discover writes sources.yaml entries for the feeds found on site. The
// first feed is enabled and the others are listed disabled. A site without
// feeds gets a scrape entry for its front page.
func Discover(ctx context.Context, cfg *config.Config, logger *slog.Logger, w io.Writer, site, name, category string) error {
	if name == "" {
		name = siteName(site)
	}
	f := rss.NewFetcher(cfg.Scan, logger)

	found, err := f.Discover(ctx, site)
	if err != nil {
		return err
	}

	var sources []config.Source
	if len(found) == 0 {
		logger.Warn("no feed found, use the scrape method", "site", site)
		sources = append(sources, config.Source{
			Name:     name,
			URL:      strings.TrimRight(site, "/"),
			Category: category,
			Method:   config.MethodScrape,
		})
	}
	for i, d := range found {
		s := d.Source(name, category)
		if i > 0 {
			off := false
			s.Name = fmt.Sprintf("%s %d", name, i+1)
			s.Enabled = &off
		}
		sources = append(sources, s)
	}
	if err := config.ValidateSources(sources); err != nil {
		return err
	}

	fmt.Fprintf(w, "# %s: %d feed(s) found\n", site, len(found))
	for _, d := range found {
		fmt.Fprintf(w, "#   [%s] %s %s, %d items\n", d.Via, d.URL, d.Dialect, d.Items)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(struct {
		Sources []config.Source `yaml:"sources"`
	}{sources}); err != nil {
		return err
	}
	return enc.Close()
}

func siteName(site string) string {
	u, err := url.Parse(site)
	if err != nil || u.Host == "" {
		return site
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
