package dedup

import (
	"sort"
	"strings"
)

// Index narrows which stored records a candidate title is compared with.
// Candidates must return ids in ascending (insertion) order so the first
// match stays deterministic.
type Index interface {
	Add(id int, key string)
	Candidates(key string) []int
	Reset()
}

// NewIndex returns the index named by the dedup.index setting.
func NewIndex(kind string) Index {
	if kind == "token" {
		return NewTokenIndex()
	}
	return &LinearIndex{}
}

// LinearIndex compares every candidate with every record: O(n²) per run,
// fine for a few hundred articles a day.
type LinearIndex struct {
	n int
}

func (l *LinearIndex) Add(id int, _ string) {
	if id+1 > l.n {
		l.n = id + 1
	}
}

func (l *LinearIndex) Candidates(string) []int {
	ids := make([]int, l.n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func (l *LinearIndex) Reset() { l.n = 0 }

// TokenIndex blocks records by the leading runes of their significant title
// tokens, so "attack" and "attacks" land in the same block. It only narrows
// the first lookup for a candidate; consolidation still checks every record.
type TokenIndex struct {
	postings map[string][]int
}

func NewTokenIndex() *TokenIndex {
	return &TokenIndex{postings: make(map[string][]int)}
}

func (t *TokenIndex) Add(id int, key string) {
	for _, tok := range blockingTokens(key) {
		ids := t.postings[tok]
		if n := len(ids); n > 0 && ids[n-1] == id {
			continue
		}
		t.postings[tok] = append(ids, id)
	}
}

func (t *TokenIndex) Candidates(key string) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, tok := range blockingTokens(key) {
		for _, id := range t.postings[tok] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

func (t *TokenIndex) Reset() {
	t.postings = make(map[string][]int)
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"into": true, "that": true, "this": true, "are": true, "was": true,
	"has": true, "have": true, "its": true, "new": true, "how": true,
	"why": true, "what": true, "after": true, "over": true, "about": true,
}

func blockingTokens(key string) []string {
	fields := strings.Fields(key)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 || stopWords[f] {
			continue
		}
		out = append(out, blockPrefix(f))
	}
	if len(out) == 0 {
		for _, f := range fields {
			out = append(out, blockPrefix(f))
		}
	}
	return out
}

const blockRunes = 5

func blockPrefix(tok string) string {
	r := []rune(tok)
	if len(r) > blockRunes {
		return string(r[:blockRunes])
	}
	return tok
}
