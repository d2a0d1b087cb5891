package dedup

import (
	"strings"

	"github.com/deusflow/aicybermon/internal/news"
)

var titlePrefixes = []string{
	"breaking:",
	"breaking news:",
	"update:",
	"updated:",
	"exclusive:",
	"report:",
	"analysis:",
}

// Separators feeds use to append their own name to a title.
var suffixSeparators = []string{" - ", " | ", " — ", " – ", " :: "}

const (
	maxSuffixWords = 5
	minHeadWords   = 3
)

// TitleKeyer reduces titles to the comparable form used by the similarity check.
type TitleKeyer struct {
	sourceNames []string
}

func NewTitleKeyer(sourceNames []string) *TitleKeyer {
	names := make([]string, 0, len(sourceNames))
	for _, n := range sourceNames {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			names = append(names, n)
		}
	}
	return &TitleKeyer{sourceNames: names}
}

// Key lower-cases the title, strips known prefixes and a trailing
// source-name segment, then folds punctuation into single spaces.
func (k *TitleKeyer) Key(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = stripPrefixes(t)
	t = k.stripSuffix(t)
	return news.FoldText(t)
}

func stripPrefixes(t string) string {
	for {
		stripped := false
		for _, p := range titlePrefixes {
			if strings.HasPrefix(t, p) {
				t = strings.TrimSpace(t[len(p):])
				stripped = true
			}
		}
		if !stripped {
			return t
		}
	}
}

func (k *TitleKeyer) stripSuffix(t string) string {
	// configured source names first, they may be longer than maxSuffixWords
	for _, name := range k.sourceNames {
		for _, sep := range suffixSeparators {
			if strings.HasSuffix(t, sep+name) {
				return strings.TrimSpace(t[:len(t)-len(sep+name)])
			}
		}
	}

	cut, sepLen := -1, 0
	for _, sep := range suffixSeparators {
		if i := strings.LastIndex(t, sep); i > cut {
			cut, sepLen = i, len(sep)
		}
	}
	if cut < 0 {
		return t
	}
	head, tail := t[:cut], t[cut+sepLen:]
	tailWords := len(strings.Fields(tail))
	if tailWords == 0 || tailWords > maxSuffixWords {
		return t
	}
	if len(strings.Fields(head)) < minHeadWords {
		return t
	}
	return strings.TrimSpace(head)
}
