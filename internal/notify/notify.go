// Package notify publishes store events to NATS with trace context in the
// message headers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

const DefaultSubject = "monitor.day.updated"

// DayUpdated is published after every successful write of a day.
type DayUpdated struct {
	Date        string    `json:"date"`
	RunID       string    `json:"run_id,omitempty"`
	Stage       string    `json:"stage"`
	Articles    int       `json:"articles"`
	NewArticles int       `json:"new_articles"`
	Merged      int       `json:"merged"`
	At          time.Time `json:"at"`
}

// headerCarrier adapts nats.Msg headers for the OTel propagator.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publish serializes v as JSON and publishes it on subject.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return nc.PublishMsg(msg)
}

// Extract returns a context carrying the trace of a received message.
func Extract(msg *nats.Msg) context.Context {
	return otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
}

type Publisher struct {
	nc      *nats.Conn
	subject string
	owned   bool
}

// Connect dials url and returns a publisher that closes the connection.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("aicybermon"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	p := NewPublisher(nc, subject)
	p.owned = true
	return p, nil
}

func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

func (p *Publisher) Subject() string { return p.subject }

// DayUpdated publishes ev and waits for the server to acknowledge the flush.
func (p *Publisher) DayUpdated(ctx context.Context, ev DayUpdated) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := Publish(ctx, p.nc, p.subject, ev); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if err := p.nc.FlushTimeout(2 * time.Second); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.owned {
		p.nc.Close()
	}
}
