package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source validation errors.
var (
	ErrNoSources          = errors.New("at least one source is required")
	ErrNoEnabledSources   = errors.New("at least one source must be enabled")
	ErrSourceMissingName  = errors.New("name is required")
	ErrSourceMissingURL   = errors.New("rss_url (or url for scrape sources) is required")
	ErrSourceInvalidURL   = errors.New("source URL must be absolute http(s)")
	ErrSourceBadCategory  = errors.New("category must be 'ai' or 'cyber'")
	ErrSourceBadMethod    = errors.New("method must be 'rss' or 'scrape'")
	ErrSourceDuplicateKey = errors.New("source name must be unique")
)

const (
	MethodRSS    = "rss"
	MethodScrape = "scrape"
)

// SourcesFile is the YAML layout of sources.yaml:
//
//	sources:
//	  - name: BleepingComputer
//	    url: https://www.bleepingcomputer.com
//	    rss_url: https://www.bleepingcomputer.com/feed/
//	    category: cyber
type SourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// Source is one configured feed. Category is copied onto every article it reports.
type Source struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	RSSURL   string `yaml:"rss_url,omitempty"`
	Category string `yaml:"category"`
	Method   string `yaml:"method"`
	Enabled  *bool  `yaml:"enabled,omitempty"`
}

func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

func (s Source) IsScrape() bool {
	return s.Method == MethodScrape
}

// FetchURL is the address the fetcher requests: the feed for rss sources,
// the listing page for scrape sources.
func (s Source) FetchURL() string {
	if s.IsScrape() {
		if s.URL != "" {
			return s.URL
		}
		return s.RSSURL
	}
	return s.RSSURL
}

// LoadSources reads and validates the source list.
func LoadSources(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var file SourcesFile
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse sources %s: %w", path, err)
	}

	for i := range file.Sources {
		if file.Sources[i].Method == "" {
			file.Sources[i].Method = MethodRSS
		}
		file.Sources[i].Category = strings.ToLower(strings.TrimSpace(file.Sources[i].Category))
	}

	if err := ValidateSources(file.Sources); err != nil {
		return nil, err
	}
	return file.Sources, nil
}

func ValidateSources(sources []Source) error {
	if len(sources) == 0 {
		return ErrNoSources
	}

	seen := make(map[string]struct{}, len(sources))
	enabled := 0
	for i, s := range sources {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: source[%d]", ErrSourceMissingName, i)
		}
		key := strings.ToLower(s.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %q", ErrSourceDuplicateKey, s.Name)
		}
		seen[key] = struct{}{}

		if s.Category != "ai" && s.Category != "cyber" {
			return fmt.Errorf("%w: source %q has %q", ErrSourceBadCategory, s.Name, s.Category)
		}
		if s.Method != MethodRSS && s.Method != MethodScrape {
			return fmt.Errorf("%w: source %q has %q", ErrSourceBadMethod, s.Name, s.Method)
		}

		target := s.FetchURL()
		if target == "" {
			return fmt.Errorf("%w: source %q", ErrSourceMissingURL, s.Name)
		}
		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: source %q has %q", ErrSourceInvalidURL, s.Name, target)
		}

		if s.IsEnabled() {
			enabled++
		}
	}

	if enabled == 0 {
		return ErrNoEnabledSources
	}
	return nil
}

// EnabledSources filters out disabled entries, keeping configuration order.
func EnabledSources(sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

// SourceNames lists every configured name; the deduplicator strips them
// from the end of titles.
func SourceNames(sources []Source) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name)
	}
	return names
}
