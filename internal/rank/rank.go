// Package rank orders articles by how widely and how urgently they were reported.
package rank

import (
	"sort"

	"github.com/deusflow/aicybermon/internal/news"
)

const (
	duplicateWeight = 10
	sourceWeight    = 5
	threatWeight    = 8
)

// Score = duplicate_count*10 + sources*5 + 8 per threat keyword in the title.
func Score(a *news.Article) int {
	hits := news.CountKeywords(a.TitleOriginal, news.ThreatKeywords)
	return a.DuplicateCount*duplicateWeight + len(a.Sources)*sourceWeight + hits*threatWeight
}

// Scored pairs an article with its score.
type Scored struct {
	Article news.Article
	Score   int
}

// Rank returns the articles sorted by score, highest first. Ties keep the
// input order.
func Rank(articles []news.Article) []Scored {
	out := make([]Scored, len(articles))
	for i := range articles {
		out[i] = Scored{Article: articles[i], Score: Score(&articles[i])}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Top ranks the articles and keeps the first n. n <= 0 keeps everything.
func Top(articles []news.Article, n int) []Scored {
	ranked := Rank(articles)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Articles strips the scores.
func Articles(scored []Scored) []news.Article {
	out := make([]news.Article, len(scored))
	for i, s := range scored {
		out[i] = s.Article
	}
	return out
}
