package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deusflow/aicybermon/internal/news"
)

func sample(id, title string) news.Article {
	return news.Article{
		ID:             id,
		TitleOriginal:  title,
		Description:    "<b>kept as text</b> & more",
		Category:       news.CategoryAI,
		Published:      time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC),
		FetchedAt:      time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC),
		Sources:        []news.Source{{Name: "Lab", URL: "https://lab.example/" + id}},
		DuplicateCount: 1,
		URL:            "https://lab.example/" + id,
	}
}

func TestLoad_MissingAndEmpty(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	got, err := s.Load("2026-10-12")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("missing file: got %v, %v", got, err)
	}

	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "2026-10-12.json"), []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = s.Load("2026-10-12")
	if err != nil || len(got) != 0 {
		t.Fatalf("empty file: got %v, %v", got, err)
	}
}

func TestLoad_Corruption(t *testing.T) {
	tests := map[string]string{
		"invalid json":   `[{"id": `,
		"count mismatch": `[{"id":"x","title_original":"t","category":"ai","sources":[{"name":"a","url":"u"}],"duplicate_count":2}]`,
		"no sources":     `[{"id":"x","title_original":"t","category":"ai","sources":[],"duplicate_count":0}]`,
		"bad category":   `[{"id":"x","title_original":"t","category":"sports","sources":[{"name":"a","url":"u"}],"duplicate_count":1}]`,
		"not an array":   `{"id":"x"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			s := NewStore(t.TempDir(), nil)
			os.MkdirAll(s.Dir(), 0o755)
			if err := os.WriteFile(filepath.Join(s.Dir(), "2026-10-12.json"), []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := s.Load("2026-10-12")
			if !errors.Is(err, ErrStoreCorruption) {
				t.Errorf("got %v, want ErrStoreCorruption", err)
			}
		})
	}
}

func TestSaveLoad_RoundTripAndFormat(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	in := []news.Article{sample("b", "Second"), sample("a", "First")}
	in[0].SummaryTranslated = news.Ptr("סיכום")

	if err := s.Save("2026-10-12", in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := s.Load("2026-10-12")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n%+v\n%+v", in, out)
	}

	raw, err := os.ReadFile(filepath.Join(s.Dir(), "2026-10-12.json"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	if !strings.Contains(text, "<b>kept as text</b> & more") {
		t.Error("html escaped in stored file")
	}
	if !strings.Contains(text, "סיכום") {
		t.Error("non-ascii text not stored as utf-8")
	}
	if !strings.Contains(text, `"title_translated": null`) {
		t.Error("nullable field should be stored as null")
	}
	if !strings.HasPrefix(text, "[\n  {") {
		t.Errorf("file is not an indented array: %.20q", text)
	}

	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestSave_RejectsInvalid(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	bad := sample("x", "")
	if err := s.Save("2026-10-12", []news.Article{bad}); err == nil {
		t.Fatal("expected error for missing title")
	}
	if err := s.Save("12-10-2026", nil); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("got %v, want ErrInvalidDate", err)
	}
}

func TestUpdate_Serialized(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update("2026-10-12", func(cur []news.Article) ([]news.Article, error) {
				return append(cur, sample(string(rune('a'+i)), "Story")), nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Load("2026-10-12")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Errorf("lost updates: %d articles, want 20", len(got))
	}
}

func TestUpdate_SerializedAcrossStores(t *testing.T) {
	dir := t.TempDir()
	stores := []*Store{NewStore(dir, nil), NewStore(dir, nil)}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := stores[i%2].Update("2026-10-12", func(cur []news.Article) ([]news.Article, error) {
				return append(cur, sample(string(rune('a'+i)), "Story")), nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := stores[0].Load("2026-10-12")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Errorf("lost updates: %d articles, want 20", len(got))
	}
	dates, err := stores[1].Dates()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dates, []string{"2026-10-12"}) {
		t.Errorf("dates = %v", dates)
	}
}

func TestUpdate_ErrorLeavesFile(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	if err := s.Save("2026-10-12", []news.Article{sample("a", "First")}); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	_, err := s.Update("2026-10-12", func([]news.Article) ([]news.Article, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	got, _ := s.Load("2026-10-12")
	if len(got) != 1 {
		t.Errorf("file changed after failed update")
	}
}

func TestDatesAndRange(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	for _, d := range []string{"2026-10-10", "2026-10-12", "2026-10-11"} {
		if err := s.Save(d, []news.Article{sample(d, "Story "+d)}); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644)

	dates, err := s.Dates()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"2026-10-12", "2026-10-11", "2026-10-10"}; !reflect.DeepEqual(dates, want) {
		t.Errorf("Dates = %v, want %v", dates, want)
	}

	days, err := s.LoadRange("2026-10-11", "2026-10-12")
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 2 || days["2026-10-10"] != nil {
		t.Errorf("range returned %d days", len(days))
	}

	a, err := s.Find("2026-10-11", "2026-10-11")
	if err != nil || a.TitleOriginal != "Story 2026-10-11" {
		t.Errorf("Find = %+v, %v", a, err)
	}
	if _, err := s.Find("2026-10-11", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestDateOf(t *testing.T) {
	instant := time.Date(2026, 10, 12, 23, 30, 0, 0, time.UTC)
	if got := DateOf(instant, nil); got != "2026-10-12" {
		t.Errorf("UTC date = %s", got)
	}
	loc := time.FixedZone("IDT", 3*3600)
	if got := NewStore(t.TempDir(), loc).DateOf(instant); got != "2026-10-13" {
		t.Errorf("zoned date = %s", got)
	}
}

func TestSentLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "sent.json")
	now := time.Date(2026, 10, 12, 6, 0, 0, 0, time.UTC)

	l := NewSentLog(path, 48*time.Hour)
	l.now = func() time.Time { return now }
	if err := l.Load(); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	l.MarkAsSent("email", "2026-10-12", "AI & Cyber Daily", 15)
	if !l.IsAlreadySent("email", "2026-10-12") || l.IsAlreadySent("telegram", "2026-10-12") {
		t.Fatal("sent state wrong")
	}
	if err := l.Save(); err != nil {
		t.Fatal(err)
	}

	reloaded := NewSentLog(path, 48*time.Hour)
	reloaded.now = func() time.Time { return now.Add(time.Hour) }
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if !reloaded.IsAlreadySent("email", "2026-10-12") {
		t.Error("entry not persisted")
	}

	reloaded.now = func() time.Time { return now.Add(72 * time.Hour) }
	reloaded.Cleanup()
	if reloaded.GetStats()["total_items"] != 0 {
		t.Error("expired entry kept")
	}
}

func TestSentLog_SaveReplacesWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sent.json")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 4096)), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewSentLog(path, 0)
	l.MarkAsSent("telegram", "2026-10-12", "AI & Cyber Daily", 3)
	if err := l.Save(); err != nil {
		t.Fatal(err)
	}

	reloaded := NewSentLog(path, 0)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if !reloaded.IsAlreadySent("telegram", "2026-10-12") {
		t.Error("entry not persisted")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}
