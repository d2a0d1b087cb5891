package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// SentDigest records one delivered digest.
type SentDigest struct {
	Key      string    `json:"key"`
	Date     string    `json:"date"`
	Channel  string    `json:"channel"`
	Subject  string    `json:"subject"`
	Articles int       `json:"articles"`
	SentAt   time.Time `json:"sent_at"`
}

// SentLog remembers which digests went out so a rerun for the same day
// does not mail everyone twice.
type SentLog struct {
	filePath string
	ttl      time.Duration
	items    map[string]SentDigest
	mu       sync.RWMutex
	now      func() time.Time
}

// NewSentLog keeps entries for ttl; zero keeps them forever.
func NewSentLog(filePath string, ttl time.Duration) *SentLog {
	return &SentLog{
		filePath: filePath,
		ttl:      ttl,
		items:    make(map[string]SentDigest),
		now:      time.Now,
	}
}

// SentKey identifies a digest by channel and date.
func SentKey(channel, date string) string {
	return channel + "/" + date
}

// Load reads the log; a missing or empty file is an empty log.
func (l *SentLog) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read sent log: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var items []SentDigest
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to unmarshal sent log: %w", err)
	}
	for _, item := range items {
		if !l.expired(item) {
			l.items[item.Key] = item
		}
	}
	return nil
}

// Save writes the log sorted by key.
func (l *SentLog) Save() error {
	l.mu.RLock()
	items := make([]SentDigest, 0, len(l.items))
	for _, item := range l.items {
		items = append(items, item)
	}
	l.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sent log: %w", err)
	}
	if err := writeFileAtomic(l.filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to save sent log: %w", err)
	}
	return nil
}

// IsAlreadySent reports whether the digest for channel and date went out.
func (l *SentLog) IsAlreadySent(channel, date string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	item, ok := l.items[SentKey(channel, date)]
	return ok && !l.expired(item)
}

// MarkAsSent records a delivered digest.
func (l *SentLog) MarkAsSent(channel, date, subject string, articles int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := SentKey(channel, date)
	l.items[key] = SentDigest{
		Key:      key,
		Date:     date,
		Channel:  channel,
		Subject:  subject,
		Articles: articles,
		SentAt:   l.now(),
	}
}

// Cleanup drops expired entries from memory.
func (l *SentLog) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, item := range l.items {
		if l.expired(item) {
			delete(l.items, key)
		}
	}
}

// GetStats returns log statistics.
func (l *SentLog) GetStats() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return map[string]int{
		"total_items": len(l.items),
	}
}

func (l *SentLog) expired(item SentDigest) bool {
	return l.ttl > 0 && item.SentAt.Before(l.now().Add(-l.ttl))
}
