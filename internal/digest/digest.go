// Package digest renders the daily top stories for email and Telegram.
package digest

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"html/template"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/deusflow/aicybermon/internal/news"
	"github.com/deusflow/aicybermon/internal/rank"
)

const (
	DefaultTopN         = 15
	DefaultSummaryChars = 160
	textWidth           = 76
)

var ErrEmptyDigest = errors.New("no articles for digest")

// Stats is the "N articles | X AI | Y Cyber" line.
type Stats struct {
	Total int
	AI    int
	Cyber int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d articles | %d AI | %d Cyber", s.Total, s.AI, s.Cyber)
}

// Digest is one rendered day, ready for any sender.
type Digest struct {
	Date     string
	Subject  string
	HTML     string
	Text     string
	Telegram string
	Stats    Stats
	Articles []rank.Scored
}

type Builder struct {
	SubjectPrefix string
	DashboardURL  string
	TopN          int
	SummaryChars  int
}

func NewBuilder(subjectPrefix, dashboardURL string, topN int) *Builder {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Builder{
		SubjectPrefix: subjectPrefix,
		DashboardURL:  dashboardURL,
		TopN:          topN,
		SummaryChars:  DefaultSummaryChars,
	}
}

// Select returns the top n articles by rank.
func Select(articles []news.Article, n int) []rank.Scored {
	return rank.Top(articles, n)
}

type item struct {
	Rank    int
	Title   string
	URL     string
	Summary string
	Sources int
	Score   int
}

type section struct {
	Label string
	Color template.CSS
	Items []item
}

type page struct {
	Subject      string
	Date         string
	Stats        string
	DashboardURL string
	Sections     []section
}

// Build ranks the articles of date and renders every body format.
func (b *Builder) Build(date string, articles []news.Article) (*Digest, error) {
	if len(articles) == 0 {
		return nil, ErrEmptyDigest
	}
	top := Select(articles, b.TopN)

	p := page{
		Subject:      b.Subject(date),
		Date:         date,
		DashboardURL: b.DashboardURL,
	}
	ai := section{Label: "🤖 AI", Color: "#8b5cf6"}
	cyber := section{Label: "🔒 Cyber", Color: "#059669"}
	var stats Stats
	for i, s := range top {
		it := item{
			Rank:    i + 1,
			Title:   s.Article.DisplayTitle(),
			URL:     s.Article.URL,
			Summary: TruncateSummary(summaryOf(&s.Article), b.summaryChars()),
			Sources: len(s.Article.Sources),
			Score:   s.Score,
		}
		stats.Total++
		if s.Article.Category == news.CategoryAI {
			stats.AI++
			ai.Items = append(ai.Items, it)
		} else {
			stats.Cyber++
			cyber.Items = append(cyber.Items, it)
		}
	}
	for _, sec := range []section{ai, cyber} {
		if len(sec.Items) > 0 {
			p.Sections = append(p.Sections, sec)
		}
	}
	p.Stats = stats.String()

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render html digest: %w", err)
	}

	return &Digest{
		Date:     date,
		Subject:  p.Subject,
		HTML:     buf.String(),
		Text:     renderText(p),
		Telegram: renderTelegram(p),
		Stats:    stats,
		Articles: top,
	}, nil
}

func (b *Builder) Subject(date string) string {
	prefix := b.SubjectPrefix
	if prefix == "" {
		prefix = "AI & Cyber Daily"
	}
	return prefix + " — " + date
}

func (b *Builder) summaryChars() int {
	if b.SummaryChars <= 0 {
		return DefaultSummaryChars
	}
	return b.SummaryChars
}

// summaryOf falls back to the feed description until the article is enriched.
func summaryOf(a *news.Article) string {
	if a.IsEnriched() {
		return *a.SummaryTranslated
	}
	return a.Description
}

// TruncateSummary cuts s to at most max runes on a word boundary and adds "...".
func TruncateSummary(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	cut := string([]rune(s)[:max])
	if i := strings.LastIndexAny(cut, " \n\t"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-") + "..."
}

func renderText(p page) string {
	var sb strings.Builder
	sb.WriteString(p.Subject + "\n")
	sb.WriteString(strings.Repeat("=", min(runewidth.StringWidth(p.Subject), textWidth)) + "\n")
	sb.WriteString(p.Stats + "\n")

	for _, sec := range p.Sections {
		sb.WriteString("\n" + sec.Label + "\n")
		for _, it := range sec.Items {
			prefix := fmt.Sprintf("%2d. ", it.Rank)
			indent := strings.Repeat(" ", len(prefix))
			sb.WriteString(prefix + runewidth.Truncate(it.Title, textWidth-len(prefix), "…") + "\n")
			for _, line := range wrap(it.Summary, textWidth-len(indent)) {
				sb.WriteString(indent + line + "\n")
			}
			fmt.Fprintf(&sb, "%sSources: %d | %s\n", indent, it.Sources, it.URL)
		}
	}
	if p.DashboardURL != "" {
		sb.WriteString("\nView all updates on Dashboard: " + p.DashboardURL + "\n")
	}
	sb.WriteString("\n-- \nAutomated by AI & Cyber Daily Monitor\n")
	return sb.String()
}

// wrap breaks s into lines no wider than width display cells.
func wrap(s string, width int) []string {
	var lines []string
	var line string
	for _, word := range strings.Fields(s) {
		switch {
		case line == "":
			line = word
		case runewidth.StringWidth(line)+1+runewidth.StringWidth(word) <= width:
			line += " " + word
		default:
			lines = append(lines, line)
			line = word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

// renderTelegram uses the small HTML subset the Bot API accepts.
func renderTelegram(p page) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n<i>%s</i>\n", html.EscapeString(p.Subject), html.EscapeString(p.Stats))
	for _, sec := range p.Sections {
		fmt.Fprintf(&sb, "\n<b>%s</b>\n", html.EscapeString(sec.Label))
		for _, it := range sec.Items {
			if it.URL != "" {
				fmt.Fprintf(&sb, "\n%d. <a href=\"%s\">%s</a>", it.Rank, html.EscapeString(it.URL), html.EscapeString(it.Title))
			} else {
				fmt.Fprintf(&sb, "\n%d. %s", it.Rank, html.EscapeString(it.Title))
			}
			if it.Sources > 1 {
				fmt.Fprintf(&sb, " (%d sources)", it.Sources)
			}
			sb.WriteString("\n")
			if it.Summary != "" {
				sb.WriteString(html.EscapeString(it.Summary) + "\n")
			}
		}
	}
	if p.DashboardURL != "" {
		fmt.Fprintf(&sb, "\n<a href=\"%s\">View all updates on Dashboard</a>\n", html.EscapeString(p.DashboardURL))
	}
	return sb.String()
}

var htmlTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="margin:0;padding:0;background:#f3f4f6;font-family:Arial,Helvetica,sans-serif;">
<div style="max-width:640px;margin:0 auto;background:#ffffff;">
  <div style="background:#111827;color:#ffffff;padding:24px;">
    <h1 style="margin:0;font-size:22px;">AI &amp; Cyber Daily</h1>
    <p style="margin:6px 0 0;color:#9ca3af;">{{.Date}}</p>
    <p style="margin:6px 0 0;color:#d1d5db;font-size:13px;">{{.Stats}}</p>
  </div>
{{- range .Sections}}
  <div style="padding:16px 24px;">
    <h2 style="font-size:16px;color:{{.Color}};margin:8px 0;">{{.Label}}</h2>
  {{- $color := .Color}}
  {{- $label := .Label}}
  {{- range .Items}}
    <div style="border-bottom:1px solid #e5e7eb;padding:12px 0;">
      <span style="background:{{$color}};color:#ffffff;border-radius:4px;padding:2px 6px;font-size:11px;">{{$label}}</span>
      <a href="{{.URL}}" style="color:#111827;font-weight:bold;text-decoration:none;">{{.Title}}</a>
      {{- if .Summary}}
      <p style="margin:6px 0;color:#4b5563;font-size:14px;">{{.Summary}}</p>
      {{- end}}
      <p style="margin:0;color:#9ca3af;font-size:12px;">{{.Sources}} source{{if ne .Sources 1}}s{{end}}</p>
    </div>
  {{- end}}
  </div>
{{- end}}
{{- if .DashboardURL}}
  <div style="padding:24px;text-align:center;">
    <a href="{{.DashboardURL}}" style="background:#2563eb;color:#ffffff;padding:12px 20px;border-radius:6px;text-decoration:none;">View all updates on Dashboard</a>
  </div>
{{- end}}
  <div style="padding:16px;text-align:center;color:#9ca3af;font-size:12px;">Automated by AI &amp; Cyber Daily Monitor</div>
</div>
</body>
</html>
`))
