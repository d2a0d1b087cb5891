// Package dedup collapses Articles that report the same story into one
// Article carrying every reporting source.
package dedup

import (
	"sort"
	"unicode/utf8"

	"github.com/deusflow/aicybermon/internal/news"
)

const DefaultThreshold = 0.82

type Deduplicator struct {
	Threshold float64
	IndexKind string
	keyer     *TitleKeyer
}

// New builds a deduplicator. sourceNames are stripped from title endings.
func New(threshold float64, indexKind string, sourceNames []string) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Deduplicator{
		Threshold: threshold,
		IndexKind: indexKind,
		keyer:     NewTitleKeyer(sourceNames),
	}
}

// MergeStats counts what one Merge did.
type MergeStats struct {
	Existing     int // articles loaded from the store
	Candidates   int // normalized articles from this run
	New          int // candidates that became new articles
	Merged       int // candidates folded into an article as a new source
	Repeats      int // candidates whose source was already recorded
	Consolidated int // articles folded into an earlier article after merging
}

// DuplicatesCollapsed counts records newly folded into another article.
// Repeats from a rerun are not counted again.
func (s MergeStats) DuplicatesCollapsed() int {
	return s.Merged + s.Consolidated
}

// Key exposes the comparable title form.
func (d *Deduplicator) Key(title string) string {
	return d.keyer.Key(title)
}

// IsDuplicate evaluates the duplicate predicate: any shared normalized
// source URL, otherwise title similarity at or above the threshold.
func (d *Deduplicator) IsDuplicate(a, b *news.Article) bool {
	ua := urlSet(a)
	for u := range urlSet(b) {
		if _, ok := ua[u]; ok {
			return true
		}
	}
	return Similarity(d.keyer.Key(a.TitleOriginal), d.keyer.Key(b.TitleOriginal)) >= d.Threshold
}

// Merge deduplicates candidates, in fetch order, against the stored
// articles of the day and against each other. Stored articles keep their
// position; new stories are appended. The result holds no pair of
// duplicates, and merging the same candidates again changes nothing.
func (d *Deduplicator) Merge(existing, candidates []news.Article) ([]news.Article, MergeStats) {
	st := d.newState()
	stats := MergeStats{Existing: len(existing), Candidates: len(candidates)}

	for i := range existing {
		st.add(cloneArticle(existing[i]))
	}

	for i := range candidates {
		c := cloneArticle(candidates[i])
		key := d.keyer.Key(c.TitleOriginal)
		target := st.find(&c, key)
		if target < 0 {
			st.add(c)
			stats.New++
			continue
		}
		if st.absorb(target, &c) > 0 {
			stats.Merged++
		} else {
			stats.Repeats++
		}
	}

	stats.Consolidated = st.consolidate()
	return st.result(), stats
}

type record struct {
	key  string
	urls map[string]struct{}
}

// state is the accumulator threaded through one Merge.
type state struct {
	d        *Deduplicator
	articles []news.Article
	recs     []record
	dead     []bool
	byURL    map[string]int
	index    Index
}

func (d *Deduplicator) newState() *state {
	return &state{
		d:     d,
		byURL: make(map[string]int),
		index: NewIndex(d.IndexKind),
	}
}

func (st *state) add(a news.Article) int {
	id := len(st.articles)
	a.DuplicateCount = len(a.Sources)
	rec := record{key: st.d.keyer.Key(a.TitleOriginal), urls: urlSet(&a)}
	st.articles = append(st.articles, a)
	st.recs = append(st.recs, rec)
	st.dead = append(st.dead, false)
	for u := range rec.urls {
		if _, ok := st.byURL[u]; !ok {
			st.byURL[u] = id
		}
	}
	st.index.Add(id, rec.key)
	return id
}

// find returns the first live article matching by URL, else the first in
// insertion order whose title passes the threshold, else -1.
func (st *state) find(a *news.Article, key string) int {
	for _, s := range a.Sources {
		if s.URL == "" {
			continue
		}
		if id, ok := st.byURL[s.URL]; ok && !st.dead[id] {
			return id
		}
	}
	for _, id := range st.index.Candidates(key) {
		if st.dead[id] {
			continue
		}
		if Similarity(key, st.recs[id].key) >= st.d.Threshold {
			return id
		}
	}
	return -1
}

// absorb folds c into article id and returns how many sources were new.
func (st *state) absorb(id int, c *news.Article) int {
	t := &st.articles[id]
	rec := &st.recs[id]

	added := 0
	for _, s := range c.Sources {
		if !t.AddSource(s) {
			continue
		}
		added++
		if s.URL != "" {
			rec.urls[s.URL] = struct{}{}
			if owner, ok := st.byURL[s.URL]; !ok || st.dead[owner] {
				st.byURL[s.URL] = id
			}
		}
	}

	if !t.IsEnriched() && c.IsEnriched() {
		t.TitleOriginal = c.TitleOriginal
		t.TitleTranslated = c.TitleTranslated
		t.SummaryTranslated = c.SummaryTranslated
		t.DetailsTranslated = c.DetailsTranslated
		t.EnrichedAt = c.EnrichedAt
		st.rekey(id)
	} else if !t.IsEnriched() && utf8.RuneCountInString(c.TitleOriginal) > utf8.RuneCountInString(t.TitleOriginal) {
		// longer titles are usually less truncated; ties keep the earlier one
		t.TitleOriginal = c.TitleOriginal
		st.rekey(id)
	}

	if utf8.RuneCountInString(c.Description) > utf8.RuneCountInString(t.Description) {
		t.Description = c.Description
	}
	if t.PublishedEstimated && !c.PublishedEstimated && !c.Published.IsZero() {
		t.Published = c.Published
		t.PublishedEstimated = false
	}
	if !c.FetchedAt.IsZero() && (t.FetchedAt.IsZero() || c.FetchedAt.Before(t.FetchedAt)) {
		t.FetchedAt = c.FetchedAt
	}
	if t.URL == "" && len(t.Sources) > 0 {
		t.URL = firstURL(t.Sources)
	}
	return added
}

func (st *state) rekey(id int) {
	st.recs[id].key = st.d.keyer.Key(st.articles[id].TitleOriginal)
	st.index.Add(id, st.recs[id].key)
}

func (st *state) matches(x, y int) bool {
	for u := range st.recs[x].urls {
		if _, ok := st.recs[y].urls[u]; ok {
			return true
		}
	}
	return Similarity(st.recs[x].key, st.recs[y].key) >= st.d.Threshold
}

// partner returns the lowest live record other than x that matches x.
// Index candidates and URL owners are tried first; when none matches, every
// remaining live record is checked so the result never depends on the index.
func (st *state) partner(x int) int {
	ids := st.index.Candidates(st.recs[x].key)
	for u := range st.recs[x].urls {
		if id, ok := st.byURL[u]; ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	checked := make(map[int]bool, len(ids))
	for _, y := range ids {
		if y == x || st.dead[y] || checked[y] {
			continue
		}
		checked[y] = true
		if st.matches(x, y) {
			return y
		}
	}
	if _, linear := st.index.(*LinearIndex); linear {
		return -1
	}
	for y := range st.articles {
		if y == x || st.dead[y] || checked[y] {
			continue
		}
		if st.matches(x, y) {
			return y
		}
	}
	return -1
}

// consolidate merges pairs that match after titles and URL sets have grown,
// the earlier article absorbing the later, until no pair matches.
func (st *state) consolidate() int {
	pending := make([]bool, len(st.articles))
	for i := range pending {
		pending[i] = !st.dead[i]
	}

	folded := 0
	for x := 0; x < len(pending); {
		if !pending[x] || st.dead[x] {
			x++
			continue
		}
		y := st.partner(x)
		if y < 0 {
			pending[x] = false
			x++
			continue
		}
		keep, drop := x, y
		if y < x {
			keep, drop = y, x
		}
		st.fold(keep, drop)
		folded++
		pending[keep] = true
		if keep < x {
			x = keep
		}
	}
	return folded
}

func (st *state) fold(keep, drop int) {
	c := cloneArticle(st.articles[drop])
	st.dead[drop] = true
	for u := range st.recs[drop].urls {
		if st.byURL[u] == drop {
			st.byURL[u] = keep
		}
		st.recs[keep].urls[u] = struct{}{}
	}
	st.absorb(keep, &c)
}

func (st *state) result() []news.Article {
	out := make([]news.Article, 0, len(st.articles))
	for i, a := range st.articles {
		if st.dead[i] {
			continue
		}
		a.DuplicateCount = len(a.Sources)
		out = append(out, a)
	}
	return out
}

func urlSet(a *news.Article) map[string]struct{} {
	set := make(map[string]struct{}, len(a.Sources)+1)
	for _, s := range a.Sources {
		if s.URL != "" {
			set[s.URL] = struct{}{}
		}
	}
	return set
}

func firstURL(sources []news.Source) string {
	for _, s := range sources {
		if s.URL != "" {
			return s.URL
		}
	}
	return ""
}

func cloneArticle(a news.Article) news.Article {
	a.Sources = append([]news.Source(nil), a.Sources...)
	return a
}
