// Package storage keeps one JSON file of articles per calendar day.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/deusflow/aicybermon/internal/news"
)

// DateLayout is the file name and API format of a store date.
const DateLayout = "2006-01-02"

// ErrStoreCorruption means a day file exists but cannot be trusted. The
// day is not processed further.
var ErrStoreCorruption = errors.New("store corruption")

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrNotFound    = errors.New("article not found")
)

// Store reads and writes <dir>/articles/YYYY-MM-DD.json.
type Store struct {
	dir string
	loc *time.Location

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore roots the store at dataDir. loc decides which calendar day an
// instant belongs to; nil means UTC.
func NewStore(dataDir string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		dir:   filepath.Join(dataDir, "articles"),
		loc:   loc,
		locks: make(map[string]*sync.Mutex),
	}
}

// Dir returns the directory holding the day files.
func (s *Store) Dir() string { return s.dir }

// Location returns the zone used for calendar days.
func (s *Store) Location() *time.Location { return s.loc }

// DateOf returns the store date of t.
func (s *Store) DateOf(t time.Time) string {
	return DateOf(t, s.loc)
}

// DateOf formats t as a store date in loc.
func DateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD string.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

func (s *Store) path(date string) string {
	return filepath.Join(s.dir, date+".json")
}

func (s *Store) lock(date string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[date]
	if !ok {
		l = &sync.Mutex{}
		s.locks[date] = l
	}
	return l
}

// Load returns the articles of date in stored order. A missing or empty
// file is an empty day.
func (s *Store) Load(date string) ([]news.Article, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(date))
	if errors.Is(err, os.ErrNotExist) {
		return []news.Article{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreCorruption, date, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []news.Article{}, nil
	}

	var articles []news.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrStoreCorruption, date, err)
	}
	for i := range articles {
		if err := articles[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s record %d: %v", ErrStoreCorruption, date, i, err)
		}
	}
	if articles == nil {
		articles = []news.Article{}
	}
	return articles, nil
}

// Save replaces the file of date. The new content is written to a temp file
// in the same directory, synced and renamed over the old one, so readers
// see either the old or the new day, never a partial one.
func (s *Store) Save(date string, articles []news.Article) error {
	if _, err := ParseDate(date); err != nil {
		return err
	}
	if articles == nil {
		articles = []news.Article{}
	}
	for i := range articles {
		articles[i].DuplicateCount = len(articles[i].Sources)
		if err := articles[i].Validate(); err != nil {
			return fmt.Errorf("refusing to save %s: %w", date, err)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(articles); err != nil {
		return fmt.Errorf("failed to encode %s: %w", date, err)
	}

	return writeFileAtomic(s.path(date), buf.Bytes(), 0o644)
}

// Update loads date, hands the articles to fn and saves what fn returns.
// Calls for the same date are serialized within the process and, through
// an advisory lock on <date>.json.lock, across processes sharing the data
// directory. If fn returns an error nothing is written.
func (s *Store) Update(date string, fn func([]news.Article) ([]news.Article, error)) ([]news.Article, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	l := s.lock(date)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	fl := flock.New(s.path(date) + ".lock")
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", date, err)
	}
	defer fl.Unlock()

	current, err := s.Load(date)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := s.Save(date, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Dates lists the stored days, newest first.
func (s *Store) Dates() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list store: %w", err)
	}
	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		date := strings.TrimSuffix(name, ".json")
		if _, err := ParseDate(date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// LoadRange returns the stored days between from and to inclusive, keyed
// by date. Days that fail to load are reported in the error but do not
// hide the others.
func (s *Store) LoadRange(from, to string) (map[string][]news.Article, error) {
	dates, err := s.Dates()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]news.Article)
	var errs []error
	for _, d := range dates {
		if d < from || d > to {
			continue
		}
		articles, err := s.Load(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[d] = articles
	}
	return out, errors.Join(errs...)
}

// Find returns the article with id on date.
func (s *Store) Find(date, id string) (news.Article, error) {
	articles, err := s.Load(date)
	if err != nil {
		return news.Article{}, err
	}
	for _, a := range articles {
		if a.ID == id {
			return a, nil
		}
	}
	return news.Article{}, fmt.Errorf("%w: %s/%s", ErrNotFound, date, id)
}
