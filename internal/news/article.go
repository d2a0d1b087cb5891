package news

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Category is assigned by source configuration, never inferred.
type Category string

const (
	CategoryAI    Category = "ai"
	CategoryCyber Category = "cyber"
)

func (c Category) Valid() bool {
	return c == CategoryAI || c == CategoryCyber
}

// Source is one feed that reported a story.
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Article is the merged record of one story for one day. Its JSON form is
// the daily store file contract read by the dashboard and digest.
type Article struct {
	ID                 string     `json:"id"`
	TitleOriginal      string     `json:"title_original"`
	TitleTranslated    *string    `json:"title_translated"`
	Description        string     `json:"description"`
	SummaryTranslated  *string    `json:"summary_translated"`
	DetailsTranslated  *string    `json:"details_translated"`
	Category           Category   `json:"category"`
	Published          time.Time  `json:"published"`
	PublishedEstimated bool       `json:"published_estimated,omitempty"`
	FetchedAt          time.Time  `json:"fetched_at"`
	Sources            []Source   `json:"sources"`
	DuplicateCount     int        `json:"duplicate_count"`
	URL                string     `json:"url"`
	EnrichedAt         *time.Time `json:"enriched_at"`
}

// Invariant violations reported by Validate.
var (
	ErrNoSources      = errors.New("article has no sources")
	ErrCountMismatch  = errors.New("duplicate_count does not match sources")
	ErrBadCategory    = errors.New("article category is not ai or cyber")
	ErrMissingTitle   = errors.New("article has no title")
	ErrMissingArticle = errors.New("article has no id")
)

func (a *Article) Validate() error {
	switch {
	case a.ID == "":
		return ErrMissingArticle
	case a.TitleOriginal == "":
		return fmt.Errorf("%w: %s", ErrMissingTitle, a.ID)
	case len(a.Sources) == 0:
		return fmt.Errorf("%w: %s", ErrNoSources, a.ID)
	case a.DuplicateCount != len(a.Sources):
		return fmt.Errorf("%w: %s has %d vs %d", ErrCountMismatch, a.ID, a.DuplicateCount, len(a.Sources))
	case !a.Category.Valid():
		return fmt.Errorf("%w: %s has %q", ErrBadCategory, a.ID, a.Category)
	}
	return nil
}

func (a *Article) IsEnriched() bool {
	return a.SummaryTranslated != nil && *a.SummaryTranslated != ""
}

// HasSource reports whether the exact (name, url) pair is already recorded.
func (a *Article) HasSource(s Source) bool {
	for _, existing := range a.Sources {
		if existing.Name == s.Name && existing.URL == s.URL {
			return true
		}
	}
	return false
}

// AddSource appends s unless already present and keeps DuplicateCount in sync.
func (a *Article) AddSource(s Source) bool {
	if a.HasSource(s) {
		return false
	}
	a.Sources = append(a.Sources, s)
	a.DuplicateCount = len(a.Sources)
	return true
}

// DisplayTitle prefers the translated title once enrichment has run.
func (a *Article) DisplayTitle() string {
	if a.TitleTranslated != nil && *a.TitleTranslated != "" {
		return *a.TitleTranslated
	}
	return a.TitleOriginal
}

// MakeID derives a stable id from the normalized URL, or from the
// normalized title when the URL is absent.
func MakeID(normalizedURL, title string) string {
	key := "url:" + normalizedURL
	if normalizedURL == "" {
		key = "title:" + titleFingerprint(title)
	}
	h := sha1.New()
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Ptr is a small helper for the nullable string fields.
func Ptr(s string) *string {
	return &s
}
