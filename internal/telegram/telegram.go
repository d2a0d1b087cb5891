package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/aicybermon/internal/logger"
	"github.com/deusflow/aicybermon/internal/retry"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	// Telegram rejects messages longer than this.
	MaxMessageRunes = 4096
)

// Client posts HTML messages to one chat through the Bot API.
type Client struct {
	Token   string
	ChatID  string
	BaseURL string
	HTTP    *http.Client
	Retry   retry.RetryConfig
}

func NewClient(token, chatID string) *Client {
	return &Client{
		Token:   token,
		ChatID:  chatID,
		BaseURL: DefaultBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		// 2s, 4s between tries
		Retry: retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
	}
}

// SendMessage sends text to the chat, split into several messages when it
// is too long, retrying each part.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	for i, part := range SplitMessage(text, MaxMessageRunes) {
		attempt := 0
		err := retry.WithRetry(ctx, c.Retry, func() error {
			attempt++
			err := c.sendMessageOnce(ctx, part)
			if err != nil {
				logger.Warn("telegram send failed", "part", i+1, "attempt", attempt, "error", err)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("can't send message part %d: %w", i+1, err)
		}
		logger.Debug("message sent to Telegram", "part", i+1, "attempt", attempt)
	}
	return nil
}

// sendMessageOnce does one try to send message
func (c *Client) sendMessageOnce(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(c.BaseURL, "/"), c.Token)

	payload := map[string]interface{}{
		"chat_id":                  c.ChatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("error make JSON: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}
	return nil
}

// SplitMessage cuts text into chunks of at most limit runes, preferring
// blank lines, then line breaks.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		head := string([]rune(text)[:limit])
		cut := strings.LastIndex(head, "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(head, "\n")
		}
		if cut <= 0 {
			cut = len(head)
		}
		parts = append(parts, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
