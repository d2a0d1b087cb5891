package news

import (
	"regexp"
	"strings"
	"sync"
)

// ThreatKeywords boost an article's rank when they appear in its title.
var ThreatKeywords = []string{
	"ransomware",
	"zero-day",
	"0-day",
	"exploit",
	"vulnerability",
	"breach",
	"malware",
	"backdoor",
	"phishing",
	"botnet",
	"ddos",
	"spyware",
	"data leak",
	"supply chain",
	"rce",
	"cve",
	"apt",
	"trojan",
	"wiper",
	"hacked",
}

var (
	wordRegexpMu sync.Mutex
	wordRegexps  = map[string]*regexp.Regexp{}
)

func wordRegexp(k string) *regexp.Regexp {
	wordRegexpMu.Lock()
	defer wordRegexpMu.Unlock()
	re, ok := wordRegexps[k]
	if !ok {
		re = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
		wordRegexps[k] = re
	}
	return re
}

// matchKeyword distinguishes phrases and short words (avoids "apt" matching "chapter").
func matchKeyword(text, k string) bool {
	// phrases and hyphenated terms -> substring match
	if strings.ContainsAny(k, " -") {
		return strings.Contains(text, k)
	}
	// short tokens (<=3) -> whole word match
	if len(k) <= 3 {
		return wordRegexp(k).MatchString(text)
	}
	return strings.Contains(text, k)
}

// CountKeywords returns how many distinct keywords occur in text, case-insensitive.
func CountKeywords(text string, keywords []string) int {
	text = strings.ToLower(text)
	seen := make(map[string]struct{}, len(keywords))
	n := 0
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if matchKeyword(text, k) {
			n++
		}
	}
	return n
}

// ContainsAny reports whether any keyword occurs in text.
func ContainsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && matchKeyword(text, k) {
			return true
		}
	}
	return false
}
