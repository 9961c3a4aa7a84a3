// Package forward provides best-effort webhook delivery of normalized
// messages. Delivery is fire-and-forget: failures are logged and dropped,
// never retried, and never reach the ingestion path.
package forward

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/sakurairo/danmaku-relay/internal/event"
)

// DefaultMaxInFlight bounds concurrent deliveries. Messages arriving while
// all slots are busy are dropped, keeping a slow webhook from piling up
// goroutines.
const DefaultMaxInFlight = 8

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// Payload is the flattened projection POSTed to the webhook.
type Payload struct {
	UName     string       `json:"uname"`
	Msg       string       `json:"msg"`
	UID       event.UserID `json:"uid"`
	RoomID    int64        `json:"room_id"`
	Timestamp int64        `json:"timestamp"`
	Type      string       `json:"type"`
}

// BuildPayload flattens a message for webhook delivery. Kinds without a
// natural text field get a synthesized description.
func BuildPayload(m event.Message) Payload {
	msg := m.Text()
	if msg == "" {
		switch m.Type {
		case event.TypeGift:
			msg = "received gift: " + m.GiftName
		case event.TypeGuard:
			msg = "received guard: " + m.GuardName
		default:
			msg = "received " + m.Type
		}
	}
	return Payload{
		UName:     m.UName,
		Msg:       msg,
		UID:       m.UID,
		RoomID:    m.RoomID,
		Timestamp: m.Timestamp,
		Type:      m.Type,
	}
}

// Forwarder POSTs messages to a webhook endpoint. Safe for concurrent use.
// The zero endpoint disables forwarding entirely.
type Forwarder struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	logger   *slog.Logger

	slots chan struct{}
	wg    sync.WaitGroup
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Forwarder) { f.client = client }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) { f.logger = logger }
}

// WithMaxInFlight sets the concurrent delivery bound.
func WithMaxInFlight(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.slots = make(chan struct{}, n)
		}
	}
}

// WithTimeout sets the per-delivery timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// New creates a Forwarder for the given endpoint. An empty endpoint yields a
// no-op forwarder.
func New(endpoint string, opts ...Option) *Forwarder {
	f := &Forwarder{
		endpoint: endpoint,
		client:   &http.Client{},
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		slots:    make(chan struct{}, DefaultMaxInFlight),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Enabled reports whether an endpoint is configured.
func (f *Forwarder) Enabled() bool {
	return f.endpoint != ""
}

// Send delivers m to the webhook in a detached goroutine. It never blocks:
// when all delivery slots are busy the message is dropped with a warning.
func (f *Forwarder) Send(m event.Message) {
	if !f.Enabled() {
		return
	}

	select {
	case f.slots <- struct{}{}:
	default:
		f.logger.Warn("webhook delivery slots busy, message dropped", "type", m.Type)
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() { <-f.slots }()
		f.deliver(m)
	}()
}

// Close waits for in-flight deliveries to finish, bounded by ctx.
func (f *Forwarder) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Forwarder) deliver(m event.Message) {
	body, err := json.Marshal(BuildPayload(m))
	if err != nil {
		f.logger.Error("marshal webhook payload", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		f.logger.Error("build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("webhook request failed", "type", m.Type, "error", err)
		return
	}
	defer resp.Body.Close()

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("webhook rejected message", "type", m.Type, "status", resp.StatusCode)
		return
	}

	f.logger.Debug("webhook delivered", "type", m.Type, "status", resp.StatusCode)
}
