package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/aicybermon/internal/news"
)

// MaxPromptContent caps the article text sent to the model.
const MaxPromptContent = 6000

var ErrMalformedResponse = errors.New("malformed model response")

// Request is one article handed to a Summarizer.
type Request struct {
	Title    string
	Content  string
	Category news.Category
	Language string
}

// Result is what a Summarizer produced. TitleTranslated may be empty.
type Result struct {
	TitleTranslated string
	Summary         string
	Details         string
}

const promptTemplate = `You are a cybersecurity and AI news analyst. Analyze the following article thoroughly.
Category: [%s].

The "summary" and "details" fields MUST contain different content. The summary is a brief overview. The details field is a structured analysis with much more information.

Write "summary", "details" and "title_translated" in %s. Keep product, company and CVE names as they are.

Respond with this JSON object only:
{
  "summary": "2-3 sentences: what happened, who is involved, why it matters. Do not repeat the title.",
  "details": "%s",
  "category": "%s",
  "title_translated": "the title translated to %s"
}

Title: %s
Content:
%s`

const cyberSections = `Labeled sections, each header on its own line followed by a colon, using the relevant ones of: The Vulnerability, Active Exploitation, Attacker Techniques, Impact, Official Response, Recommendations. 2-4 sentences each with specific facts from the article.`

const aiSections = `Labeled sections, each header on its own line followed by a colon, using the relevant ones of: Key Innovation, Technical Details, Industry Impact, Expert Reactions, Practical Implications. 2-4 sentences each with specific facts from the article.`

// BuildPrompt renders the analysis prompt for req.
func BuildPrompt(req Request) string {
	sections := aiSections
	if req.Category == news.CategoryCyber {
		sections = cyberSections
	}
	lang := req.Language
	if lang == "" {
		lang = "English"
	}
	return fmt.Sprintf(promptTemplate,
		req.Category, lang, sections, req.Category, lang,
		req.Title, PrepareContent(req.Content, MaxPromptContent))
}

// PrepareContent collapses whitespace and cuts content to maxChars runes,
// preferring to end on a sentence.
func PrepareContent(content string, maxChars int) string {
	content = strings.ReplaceAll(content, "\r", "")
	paragraphs := strings.Split(strings.TrimSpace(content), "\n\n")
	for i, p := range paragraphs {
		paragraphs[i] = strings.Join(strings.Fields(p), " ")
	}
	content = strings.Join(paragraphs, "\n\n")
	if maxChars <= 0 || utf8.RuneCountInString(content) <= maxChars {
		return content
	}
	trimmed := string([]rune(content)[:maxChars])
	if idx := strings.LastIndex(trimmed, ". "); idx > len(trimmed)/5 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed + "\n[TRUNCATED]"
}

type response struct {
	Summary         string `json:"summary"`
	Details         string `json:"details"`
	Category        string `json:"category"`
	TitleTranslated string `json:"title_translated"`
}

var fence = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ParseResponse decodes the model's JSON answer. Markdown code fences and
// text around the object are tolerated. The category in the answer is
// ignored.
func ParseResponse(text string) (Result, error) {
	body := strings.TrimSpace(text)
	if m := fence.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var r response
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out := Result{
		TitleTranslated: SanitizeAIText(r.TitleTranslated),
		Summary:         SanitizeAIText(r.Summary),
		Details:         SanitizeAIText(r.Details),
	}
	if out.Summary == "" {
		return Result{}, fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}
	return out, nil
}

var (
	inlineDisclaimer = regexp.MustCompile(`(?i)\s*[\(\[]\s*(note|disclaimer)\s*:[^\)\]]*[\)\]]\s*`)
	lineDisclaimer   = regexp.MustCompile(`(?i)^\s*(note|disclaimer)\s*:`)
)

// SanitizeAIText removes the "Note: this is a machine translation" style
// remarks models like to add, inline or on their own line.
func SanitizeAIText(s string) string {
	s = inlineDisclaimer.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if lineDisclaimer.MatchString(line) {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	s = strings.Join(kept, "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}
