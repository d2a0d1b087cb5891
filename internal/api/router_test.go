package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/aicybermon/internal/metrics"
	"github.com/deusflow/aicybermon/internal/news"
	"github.com/deusflow/aicybermon/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func article(id, title string, cat news.Category, sources int) news.Article {
	a := news.Article{
		ID:            id,
		TitleOriginal: title,
		Description:   "about " + title,
		Category:      cat,
		URL:           "https://example.com/" + id,
	}
	for i := 0; i < sources; i++ {
		a.AddSource(news.Source{Name: string(rune('A' + i)), URL: a.URL})
	}
	return a
}

func newTestServer(t *testing.T) (*Server, *metrics.Metrics) {
	t.Helper()
	store := storage.NewStore(t.TempDir(), time.UTC)
	save := func(date string, articles ...news.Article) {
		if err := store.Save(date, articles); err != nil {
			t.Fatal(err)
		}
	}
	save("2024-05-10",
		article("a1", "LLM agents everywhere", news.CategoryAI, 1),
		article("c1", "Ransomware hits hospital", news.CategoryCyber, 3),
		article("c2", "Router firmware update", news.CategoryCyber, 2),
	)
	save("2024-05-09", article("a2", "Yesterday story", news.CategoryAI, 1))
	save("2024-03-01", article("old", "Old story", news.CategoryAI, 1))

	m := &metrics.Metrics{IsHealthy: true}
	s := NewServer(store, m, 7, 20, nil)
	s.now = func() time.Time { return now }
	return s, m
}

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type listData struct {
	Date     string `json:"date"`
	Total    int    `json:"total"`
	Articles []struct {
		ID       string `json:"id"`
		Category string `json:"category"`
		Score    int    `json:"score"`
	} `json:"articles"`
}

func get(t *testing.T, h http.Handler, url string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s: bad body %q: %v", url, rec.Body.String(), err)
	}
	return rec.Code, env
}

func list(t *testing.T, h http.Handler, url string) listData {
	t.Helper()
	code, env := get(t, h, url)
	if code != http.StatusOK || env.Code != "ok" {
		t.Fatalf("%s: status %d code %q", url, code, env.Code)
	}
	var d listData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatal(err)
	}
	return d
}

func ids(d listData) []string {
	var out []string
	for _, a := range d.Articles {
		out = append(out, a.ID)
	}
	return out
}

func TestListArticles(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	d := list(t, h, "/api/v1/articles")
	if d.Date != "2024-05-10" || d.Total != 3 {
		t.Errorf("date=%s total=%d", d.Date, d.Total)
	}
	if got := ids(d); len(got) != 3 || got[0] != "c1" || got[1] != "c2" || got[2] != "a1" {
		t.Errorf("order = %v", got)
	}
	if d.Articles[2].Score != 15 {
		t.Errorf("a1 score = %d", d.Articles[2].Score)
	}

	if got := ids(list(t, h, "/api/v1/articles?category=ai")); len(got) != 1 || got[0] != "a1" {
		t.Errorf("category filter = %v", got)
	}
	if got := ids(list(t, h, "/api/v1/articles?q=FIRMWARE")); len(got) != 1 || got[0] != "c2" {
		t.Errorf("query filter = %v", got)
	}
	if got := ids(list(t, h, "/api/v1/articles?limit=1")); len(got) != 1 || got[0] != "c1" {
		t.Errorf("limit = %v", got)
	}
	if got := ids(list(t, h, "/api/v1/articles?date=2024-05-09")); len(got) != 1 || got[0] != "a2" {
		t.Errorf("other date = %v", got)
	}
	if d := list(t, h, "/api/v1/articles?date=2024-05-08"); len(d.Articles) != 0 {
		t.Errorf("empty day = %v", ids(d))
	}
}

func TestListArticles_BadRequests(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		url    string
		status int
		code   string
	}{
		{"/api/v1/articles?date=yesterday", http.StatusBadRequest, "invalid_date"},
		{"/api/v1/articles?date=2024-03-01", http.StatusNotFound, "out_of_range"},
		{"/api/v1/articles?date=2024-05-11", http.StatusNotFound, "out_of_range"},
		{"/api/v1/articles?category=crypto", http.StatusBadRequest, "invalid_category"},
		{"/api/v1/articles/2024-05-10/missing", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		code, env := get(t, h, tt.url)
		if code != tt.status || env.Code != tt.code {
			t.Errorf("%s: got %d %q, want %d %q", tt.url, code, env.Code, tt.status, tt.code)
		}
	}
}

func TestGetArticle(t *testing.T) {
	s, _ := newTestServer(t)
	code, env := get(t, s.Handler(), "/api/v1/articles/2024-05-10/c1")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	var a struct {
		ID             string        `json:"id"`
		DuplicateCount int           `json:"duplicate_count"`
		Sources        []news.Source `json:"sources"`
		Score          int           `json:"score"`
	}
	if err := json.Unmarshal(env.Data, &a); err != nil {
		t.Fatal(err)
	}
	if a.ID != "c1" || a.DuplicateCount != 3 || len(a.Sources) != 3 || a.Score < 45 {
		t.Errorf("article = %+v", a)
	}
}

func TestListDates(t *testing.T) {
	s, _ := newTestServer(t)
	_, env := get(t, s.Handler(), "/api/v1/dates")
	var dates []string
	if err := json.Unmarshal(env.Data, &dates); err != nil {
		t.Fatal(err)
	}
	if len(dates) != 2 || dates[0] != "2024-05-10" || dates[1] != "2024-05-09" {
		t.Errorf("dates = %v", dates)
	}
}

func TestHealth(t *testing.T) {
	s, m := newTestServer(t)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d", rec.Code)
	}

	m.SetError("store corrupted")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var stats map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats["last_error"] != "store corrupted" {
		t.Errorf("stats = %v", stats)
	}
}
