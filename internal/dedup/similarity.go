package dedup

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/adrg/strutil/metrics"
)

// The token-set score only counts when the titles share at least
// minSharedTokens tokens and those cover half of the longer title.
const minSharedTokens = 3

// Levenshtein with substitution costing a delete plus an insert gives the
// indel distance, so 1 - d/(|a|+|b|) is the classic normalized ratio.
var indel = &metrics.Levenshtein{
	CaseSensitive: true,
	InsertCost:    1,
	DeleteCost:    1,
	ReplaceCost:   2,
}

// Similarity scores two title keys in [0, 1]: the larger of the plain
// indel ratio and the token-set ratio.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	r := ratio(a, b)
	if ts := tokenSetRatio(a, b); ts > r {
		r = ts
	}
	return r
}

func ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	return 1 - float64(indel.Distance(a, b))/float64(total)
}

// tokenSetRatio compares the shared tokens against each side's full token
// set, which tolerates truncation and reordering.
func tokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)

	var inter, onlyA, onlyB []string
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter = append(inter, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tb {
		if _, ok := ta[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	longest := len(ta)
	if len(tb) > longest {
		longest = len(tb)
	}
	if len(inter) < minSharedTokens || 2*len(inter) < longest {
		return 0
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	t0 := strings.Join(inter, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(onlyA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(onlyB, " "))

	best := ratio(t0, t1)
	if r := ratio(t0, t2); r > best {
		best = r
	}
	if r := ratio(t1, t2); r > best {
		best = r
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
