// Package scraper fetches the full text of an article page for enrichment.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/deusflow/aicybermon/internal/cache"
	"github.com/deusflow/aicybermon/internal/logger"
)

const (
	DefaultMaxChars = 8000
	maxBodyBytes    = 5 << 20
	cacheTTL        = 6 * time.Hour
)

var ErrNoContent = errors.New("no article content found")

// ArticleContent is full article content
type ArticleContent struct {
	Title   string
	Content string
	URL     string
	Method  string // readability | selectors
}

// Extractor downloads article pages and keeps the extracted text per URL.
type Extractor struct {
	Client    *http.Client
	UserAgent string
	MaxChars  int

	cache *cache.Cache[*ArticleContent]
}

func NewExtractor(timeout time.Duration, userAgent string, maxChars int) *Extractor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Extractor{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		MaxChars:  maxChars,
		cache:     cache.New[*ArticleContent](cacheTTL, time.Hour),
	}
}

// Close releases the cache cleanup goroutine.
func (e *Extractor) Close() {
	e.cache.Close()
}

// ExtractFullArticle gets full text of article by URL
func (e *Extractor) ExtractFullArticle(ctx context.Context, pageURL string) (*ArticleContent, error) {
	if c, ok := e.cache.Get(pageURL); ok {
		return c, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bad article url: %w", err)
	}
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading page: %w", err)
	}

	article, err := ExtractFromHTML(string(body), pageURL, e.MaxChars)
	if err != nil {
		return nil, err
	}
	e.cache.Set(pageURL, article)
	logger.Debug("extracted article", "url", pageURL, "method", article.Method, "chars", utf8.RuneCountInString(article.Content))
	return article, nil
}

// ExtractFromHTML runs readability over the page and falls back to CSS
// selectors when it finds too little text.
func ExtractFromHTML(rawHTML, pageURL string, maxChars int) (*ArticleContent, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("bad article url: %w", err)
	}

	var title, content, method string
	if article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL); err == nil {
		title = strings.TrimSpace(article.Title)
		content = cleanContent(paragraphsFromHTML(article.Content))
		method = "readability"
	}

	if utf8.RuneCountInString(content) < minReadableChars {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
		if err != nil {
			return nil, fmt.Errorf("error parsing HTML: %w", err)
		}
		if fallback := cleanContent(extractContentBySource(doc, parsedURL.Hostname())); utf8.RuneCountInString(fallback) > utf8.RuneCountInString(content) {
			content = fallback
			method = "selectors"
		}
		if title == "" {
			title = extractTitle(doc)
		}
	}

	if content == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, pageURL)
	}
	return &ArticleContent{
		Title:   title,
		Content: limitParagraphs(content, maxChars),
		URL:     pageURL,
		Method:  method,
	}, nil
}

// Readability output shorter than this is treated as a miss.
const minReadableChars = 200

func paragraphsFromHTML(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	var paragraphs []string
	doc.Find("p, li, h2, h3, blockquote").Each(func(i int, s *goquery.Selection) {
		if s.ParentsFiltered("p, li, blockquote").Length() > 0 {
			return
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.Join(paragraphs, "\n\n")
}

// Article body selectors of sources with markup readability struggles with.
var siteSelectors = map[string][]string{
	"bleepingcomputer.com": {".articleBody p"},
	"thehackernews.com":    {".articlebody p", "#articlebody p"},
	"krebsonsecurity.com":  {".entry-content p"},
	"therecord.media":      {".article__content p", "article p"},
	"securityweek.com":     {".zox-post-body p", ".entry-content p"},
	"darkreading.com":      {".ArticleBase-BodyContent p"},
	"venturebeat.com":      {".article-content p"},
	"techcrunch.com":       {".wp-block-post-content p", ".article-content p"},
}

// Generic selectors, most specific first.
var genericSelectors = []string{
	"article p",
	".article p",
	".article-body p",
	".post-content p",
	".entry-content p",
	".content p",
	"main p",
	"#content p",
	"p",
}

// extractContentBySource gets content by news site
func extractContentBySource(doc *goquery.Document, host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if selectors, ok := siteSelectors[host]; ok {
		if content := collectParagraphs(doc, selectors, 10, 1); content != "" {
			return content
		}
	}
	return collectParagraphs(doc, genericSelectors, 20, 3)
}

func collectParagraphs(doc *goquery.Document, selectors []string, minLen, enough int) string {
	var paragraphs []string
	for _, selector := range selectors {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > minLen {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) >= enough {
			break
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// extractTitle gets article title
func extractTitle(doc *goquery.Document) string {
	selectors := []string{
		"h1",
		"meta[property='og:title']",
		"title",
		".article-title",
		".entry-title",
	}

	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		title := sel.Text()
		if v, ok := sel.Attr("content"); ok {
			title = v
		}
		if title = strings.TrimSpace(title); title != "" {
			return title
		}
	}
	return ""
}

var junkIndicators = []string{
	"subscribe to our newsletter",
	"sign up for our",
	"accept cookies",
	"cookie policy",
	"all rights reserved",
	"share this article",
	"click here to",
	"follow us on",
	"advertisement",
	"related articles",
	"read more:",
}

// cleanContent drops boilerplate paragraphs and normalizes whitespace.
func cleanContent(content string) string {
	if content == "" {
		return ""
	}

	var cleanLines []string
	for _, paragraph := range strings.Split(content, "\n\n") {
		paragraph = strings.Join(strings.Fields(paragraph), " ")
		if utf8.RuneCountInString(paragraph) < 30 {
			continue
		}
		lower := strings.ToLower(paragraph)
		isJunk := false
		for _, indicator := range junkIndicators {
			if strings.Contains(lower, indicator) {
				isJunk = true
				break
			}
		}
		if isJunk {
			continue
		}
		cleanLines = append(cleanLines, paragraph)
	}
	return strings.Join(cleanLines, "\n\n")
}

// limitParagraphs keeps whole paragraphs up to maxChars runes; a first
// paragraph longer than that is cut.
func limitParagraphs(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	var selected []string
	total := 0
	for _, paragraph := range strings.Split(text, "\n\n") {
		n := utf8.RuneCountInString(paragraph)
		if len(selected) > 0 {
			n += 2
		}
		if total+n > maxChars {
			break
		}
		selected = append(selected, paragraph)
		total += n
	}
	if len(selected) == 0 {
		return string([]rune(text)[:maxChars])
	}
	return strings.Join(selected, "\n\n")
}
