package metrics

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRecord(t *testing.T) {
	m := &Metrics{IsHealthy: true}
	m.Record(RunSummary{RunID: "r1", Stage: "scan", NewArticles: 3, DuplicatesCollapsed: 2, ArticlesStored: 5, Duration: 2 * time.Second})
	m.Record(RunSummary{RunID: "r2", Stage: "enrich", EnrichSucceeded: 4, EnrichFailed: 1, Duration: 4 * time.Second})

	stats := m.GetStats()
	if stats["runs"] != int64(2) || stats["new_articles"] != int64(3) || stats["articles_stored"] != int64(5) {
		t.Errorf("counters = %v", stats)
	}
	if stats["average_processing_time_ms"] != int64(3000) {
		t.Errorf("average = %v", stats["average_processing_time_ms"])
	}
	if stats["last_run_id"] != "r2" || !m.Healthy() {
		t.Errorf("status = %v", stats)
	}

	m.Record(RunSummary{RunID: "r3", Stage: "scan", Err: "store corruption"})
	if m.Healthy() || m.GetStats()["last_error"] != "store corruption" {
		t.Error("failed run not recorded")
	}
	m.Record(RunSummary{RunID: "r4", Stage: "scan"})
	if !m.Healthy() {
		t.Error("successful run should restore health")
	}
}

func TestRunSummaryLog(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	RunSummary{Stage: "scan", Date: "2026-10-12", SourcesTotal: 4, SourcesFailed: 1, NewArticles: 7}.Log(l)
	out := buf.String()
	for _, want := range []string{"run summary", "sources_total=4", "sources_failed=1", "new_articles=7", "date=2026-10-12"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}

	buf.Reset()
	RunSummary{Stage: "enrich", Err: "boom"}.Log(l)
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "error=boom") {
		t.Errorf("error summary = %q", buf.String())
	}
}
