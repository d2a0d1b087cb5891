package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/deusflow/aicybermon/internal/news"
	"github.com/deusflow/aicybermon/internal/retry"
	"github.com/deusflow/aicybermon/internal/telegram"
)

func article(id, title string, cat news.Category, sources int) news.Article {
	a := news.Article{
		ID:            id,
		TitleOriginal: title,
		Description:   "Description of " + title,
		Category:      cat,
		URL:           "https://example.com/" + id,
	}
	for i := 0; i < sources; i++ {
		a.AddSource(news.Source{Name: string(rune('A' + i)), URL: a.URL})
	}
	return a
}

func sample() []news.Article {
	enriched := article("ai1", "New model released", news.CategoryAI, 1)
	enriched.TitleTranslated = news.Ptr("מודל חדש שוחרר")
	enriched.SummaryTranslated = news.Ptr("סיכום קצר של הכתבה")
	return []news.Article{
		enriched,
		article("cy1", "Bank breach <script> at AT&T", news.CategoryCyber, 3),
		article("cy2", "Patch notes", news.CategoryCyber, 2),
	}
}

func TestBuild(t *testing.T) {
	b := NewBuilder("Daily", "https://dash.example.com", 15)
	d, err := b.Build("2024-05-01", sample())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if d.Subject != "Daily — 2024-05-01" {
		t.Errorf("subject = %q", d.Subject)
	}
	if want := (Stats{Total: 3, AI: 1, Cyber: 2}); d.Stats != want {
		t.Errorf("stats = %+v", d.Stats)
	}
	if d.Articles[0].Article.ID != "cy1" {
		t.Errorf("top article = %s, want cy1", d.Articles[0].Article.ID)
	}

	for _, want := range []string{
		"מודל חדש שוחרר",
		"סיכום קצר של הכתבה",
		"3 articles | 1 AI | 2 Cyber",
		"&lt;script&gt;",
		"https://dash.example.com",
		"View all updates on Dashboard",
		"3 sources",
		"1 source<",
	} {
		if !strings.Contains(d.HTML, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(d.HTML, "New model released") {
		t.Error("html should prefer the translated title")
	}
	if strings.Contains(d.HTML, "<script>") {
		t.Error("html not escaped")
	}
	if ai, cyber := strings.Index(d.HTML, "🤖 AI"), strings.Index(d.HTML, "🔒 Cyber"); ai < 0 || cyber < 0 || ai > cyber {
		t.Errorf("sections out of order: ai=%d cyber=%d", ai, cyber)
	}
}

func TestBuild_TopN(t *testing.T) {
	d, err := NewBuilder("", "", 2).Build("2024-05-01", sample())
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Articles) != 2 || d.Stats.Total != 2 {
		t.Errorf("got %d articles", len(d.Articles))
	}
	if d.Subject != "AI & Cyber Daily — 2024-05-01" {
		t.Errorf("subject = %q", d.Subject)
	}
	if strings.Contains(d.HTML, "View all updates") {
		t.Error("dashboard link rendered without url")
	}
}

func TestBuild_Empty(t *testing.T) {
	if _, err := NewBuilder("", "", 0).Build("2024-05-01", nil); !errors.Is(err, ErrEmptyDigest) {
		t.Errorf("got %v", err)
	}
}

func TestText(t *testing.T) {
	a := article("cy3", strings.Repeat("Very long headline about ransomware ", 5), news.CategoryCyber, 1)
	a.Description = strings.Repeat("word ", 40)
	b := NewBuilder("Daily", "", 15)
	b.SummaryChars = 1000
	d, err := b.Build("2024-05-01", []news.Article{a})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(d.Text, "1 articles | 0 AI | 1 Cyber") {
		t.Errorf("text missing stats:\n%s", d.Text)
	}
	for _, line := range strings.Split(d.Text, "\n") {
		if w := runewidth.StringWidth(line); w > textWidth && !strings.Contains(line, "https://") {
			t.Errorf("line too wide (%d): %q", w, line)
		}
	}
}

func TestTelegram(t *testing.T) {
	d, err := NewBuilder("Daily", "", 15).Build("2024-05-01", sample())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(d.Telegram, "AT&amp;T") || strings.Contains(d.Telegram, "<script>") {
		t.Errorf("telegram not escaped:\n%s", d.Telegram)
	}
	if !strings.Contains(d.Telegram, `<a href="https://example.com/cy1">`) {
		t.Errorf("telegram missing link:\n%s", d.Telegram)
	}
}

func TestTruncateSummary(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 160, "short"},
		{"the quick brown fox jumps", 12, "the quick..."},
		{"nospaceshere", 5, "nospa..."},
		{"שלום עולם יפה", 10, "שלום עולם..."},
	}
	for _, tt := range tests {
		if got := TruncateSummary(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateSummary(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestLoadRecipients(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipients.yaml")
	data := `recipients:
  - email: Me@Example.com
    name: Me again
  - email: team@example.com
    name: Team
    enabled: true
  - email: off@example.com
    enabled: false
  - email: ops@example.com
  - name: no address
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadRecipients(path, "me@example.com")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"me@example.com", "team@example.com", "ops@example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	got, err = LoadRecipients(filepath.Join(t.TempDir(), "missing.yaml"), "me@example.com")
	if err != nil || !reflect.DeepEqual(got, []string{"me@example.com"}) {
		t.Errorf("missing file: %v %v", got, err)
	}
}

func TestSMTPSender_Message(t *testing.T) {
	d, err := NewBuilder("Daily", "", 15).Build("2024-05-01", sample())
	if err != nil {
		t.Fatal(err)
	}
	s := NewSMTPSender("", 0, "monitor@example.com", "secret")
	if s.Host != "smtp.gmail.com" || s.Port != 465 || s.Channel() != "email" {
		t.Errorf("defaults = %+v", s)
	}

	m, err := s.Message(d, []string{"a@example.com", "b@example.com"})
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	raw := buf.String()
	for _, want := range []string{"multipart/alternative", "text/html", "text/plain", "a@example.com", "b@example.com", "monitor@example.com"} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q", want)
		}
	}

	if _, err := s.Message(d, nil); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("got %v, want ErrNoRecipients", err)
	}
}

func TestTelegramSender(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		got = payload.Text
	}))
	defer srv.Close()

	c := telegram.NewClient("TOKEN", "42")
	c.BaseURL = srv.URL
	c.Retry = retry.RetryConfig{MaxAttempts: 1, Delay: time.Millisecond}
	s := &TelegramSender{Client: c}

	d, err := NewBuilder("Daily", "", 15).Build("2024-05-01", sample())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), d, nil); err != nil {
		t.Fatal(err)
	}
	if got != d.Telegram {
		t.Errorf("sent %q", got)
	}
}
