package metrics

import (
	"log/slog"
	"sync"
	"time"
)

// RunSummary is what one pipeline run reports when it finishes.
type RunSummary struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
	Date  string `json:"date"`

	SourcesTotal   int `json:"sources_total"`
	SourcesFetched int `json:"sources_fetched"`
	SourcesFailed  int `json:"sources_failed"`
	ItemsFetched   int `json:"items_fetched"`
	ItemsDropped   int `json:"items_dropped"`

	Candidates          int `json:"candidates"`
	NewArticles         int `json:"new_articles"`
	MergedIntoExisting  int `json:"merged_into_existing"`
	DuplicatesCollapsed int `json:"duplicates_collapsed"`
	ArticlesStored      int `json:"articles_stored"`

	EnrichAttempted int `json:"enrich_attempted"`
	EnrichSucceeded int `json:"enrich_succeeded"`
	EnrichFailed    int `json:"enrich_failed"`

	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Log writes the summary as one structured line.
func (s RunSummary) Log(l *slog.Logger) {
	attrs := []any{
		"stage", s.Stage,
		"date", s.Date,
		"duration", s.Duration.Round(time.Millisecond),
	}
	switch s.Stage {
	case "scan":
		attrs = append(attrs,
			"sources_total", s.SourcesTotal,
			"sources_fetched", s.SourcesFetched,
			"sources_failed", s.SourcesFailed,
			"items_fetched", s.ItemsFetched,
			"items_dropped", s.ItemsDropped,
			"candidates", s.Candidates,
			"new_articles", s.NewArticles,
			"merged_into_existing", s.MergedIntoExisting,
			"duplicates_collapsed", s.DuplicatesCollapsed,
			"articles_stored", s.ArticlesStored,
		)
	case "enrich":
		attrs = append(attrs,
			"enrich_attempted", s.EnrichAttempted,
			"enrich_succeeded", s.EnrichSucceeded,
			"enrich_failed", s.EnrichFailed,
		)
	default:
		attrs = append(attrs, "articles_stored", s.ArticlesStored)
	}
	if s.Err != "" {
		l.Error("run failed", append(attrs, "error", s.Err)...)
		return
	}
	l.Info("run summary", attrs...)
}

type Metrics struct {
	mu sync.RWMutex

	// Counters
	Runs                int64
	ArticlesStored      int64
	NewArticles         int64
	DuplicatesCollapsed int64
	SourcesFailed       int64
	EnrichSucceeded     int64
	EnrichFailed        int64
	DigestsSent         int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastRunID     string
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

// Record folds a finished run into the process-wide counters.
func (m *Metrics) Record(s RunSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Runs++
	m.NewArticles += int64(s.NewArticles)
	m.DuplicatesCollapsed += int64(s.DuplicatesCollapsed)
	m.SourcesFailed += int64(s.SourcesFailed)
	m.EnrichSucceeded += int64(s.EnrichSucceeded)
	m.EnrichFailed += int64(s.EnrichFailed)
	if s.Stage == "scan" {
		m.ArticlesStored = int64(s.ArticlesStored)
	}

	m.LastProcessingTime = s.Duration
	m.TotalProcessingTime += s.Duration
	m.ProcessingCount++
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)

	m.LastRunID = s.RunID
	if s.Err != "" {
		m.LastError = s.Err
		m.LastErrorTime = time.Now()
		m.IsHealthy = false
		return
	}
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) IncrementDigestsSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DigestsSent++
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"runs":                       m.Runs,
		"articles_stored":            m.ArticlesStored,
		"new_articles":               m.NewArticles,
		"duplicates_collapsed":       m.DuplicatesCollapsed,
		"sources_failed":             m.SourcesFailed,
		"enrich_succeeded":           m.EnrichSucceeded,
		"enrich_failed":              m.EnrichFailed,
		"digests_sent":               m.DigestsSent,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_run_id":                m.LastRunID,
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
