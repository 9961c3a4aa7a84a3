package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakurairo/danmaku-relay/internal/buffer"
	"github.com/sakurairo/danmaku-relay/internal/event"
)

// Forwarder receives every normalized message for best-effort delivery.
// Send must not block; forwarding failures never reach the manager.
type Forwarder interface {
	Send(m event.Message)
}

// Status is the manager state reported by /status.
type Status struct {
	Running      bool `json:"running"`
	MessageCount int  `json:"message_count"`
}

// DefaultStopTimeout bounds session teardown when the caller's context
// carries no deadline of its own.
const DefaultStopTimeout = 10 * time.Second

// Manager owns at most one live upstream session. Configure replaces the
// current session with a new one, stopping the old one completely first so
// two sessions can never emit into the same ring. The ring and forwarder are
// process-lifetime singletons shared across sessions.
type Manager struct {
	dialer    Dialer
	ring      *buffer.Ring
	forwarder Forwarder
	logger    *slog.Logger

	// opMu serializes Configure and Stop so a new session can only start
	// once the previous one is fully torn down. mu guards current and is
	// never held across a dial or teardown wait, so Status stays prompt
	// while either is in flight.
	opMu    sync.Mutex
	mu      sync.Mutex
	current *run // nil when idle
}

// run tracks one live session from dial to teardown.
type run struct {
	sess   Session
	cancel context.CancelFunc
	done   chan struct{} // closed when the receive loop has exited
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger for the Manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithForwarder sets the webhook forwarder. Without one, messages are only
// buffered.
func WithForwarder(f Forwarder) ManagerOption {
	return func(m *Manager) { m.forwarder = f }
}

// NewManager creates a Manager over the given dialer and ring.
func NewManager(dialer Dialer, ring *buffer.Ring, opts ...ManagerOption) *Manager {
	m := &Manager{
		dialer: dialer,
		ring:   ring,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configure validates creds, stops any running session, and starts a new
// one. It returns *CredentialError for incomplete credentials and
// *StartError when the upstream refuses the connection; in both cases any
// previously running session is already stopped and the manager is idle.
func (m *Manager) Configure(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.currentRun() != nil {
		// Full stop of the prior session is a hard precondition for
		// starting the next one.
		if err := m.teardown(ctx); err != nil {
			return err
		}
	}

	sess, err := m.dialer.Dial(ctx, creds)
	if err != nil {
		return &StartError{Err: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{sess: sess, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.current = r
	m.mu.Unlock()

	go m.receive(runCtx, r)

	m.logger.Info("session started", "app_id", creds.AppID)
	return nil
}

// Stop tears down the running session, bounded by ctx. It returns
// ErrNotRunning when idle. Concurrent callers are safe: the second observes
// idle or waits on the same teardown, and the session is never closed twice.
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.currentRun() == nil {
		return ErrNotRunning
	}
	return m.teardown(ctx)
}

func (m *Manager) currentRun() *run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// teardown performs the stop. Caller holds m.opMu.
func (m *Manager) teardown(ctx context.Context) error {
	r := m.currentRun()
	if r == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultStopTimeout)
		defer cancel()
	}

	r.cancel()
	if err := r.sess.Close(ctx); err != nil {
		m.logger.Warn("session close", "error", err)
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		// The receive loop did not exit in time. The session is cancelled
		// and closed, so it can no longer emit; report the timeout.
		m.clear(r)
		m.logger.Error("session teardown timed out", "error", ctx.Err())
		return ctx.Err()
	}

	m.clear(r)
	m.logger.Info("session stopped")
	return nil
}

// clear drops r as the current run if it still is.
func (m *Manager) clear(r *run) {
	m.mu.Lock()
	if m.current == r {
		m.current = nil
	}
	m.mu.Unlock()
}

// Status reports whether a session is running and the buffered message
// count. Non-blocking with respect to ingestion.
func (m *Manager) Status() Status {
	m.mu.Lock()
	running := m.current != nil
	m.mu.Unlock()

	return Status{Running: running, MessageCount: m.ring.Len()}
}

// Messages returns an oldest-first snapshot of the buffered messages.
func (m *Manager) Messages() []event.Message {
	return m.ring.Snapshot()
}

// receive is the session's receive loop: normalize each raw event, then fan
// out to the ring and the forwarder. Malformed events are dropped and
// logged; the loop continues. When the events channel closes (teardown or a
// connection-fatal error) the manager returns to idle.
func (m *Manager) receive(ctx context.Context, r *run) {
	for {
		select {
		case raw, ok := <-r.sess.Events():
			if !ok {
				// done closes first so a teardown waiting on it is
				// released the moment the loop exits.
				close(r.done)
				m.finish(r)
				return
			}
			m.handle(raw)
		case <-ctx.Done():
			// teardown drives the shutdown; nothing further to drain.
			close(r.done)
			return
		}
	}
}

// handle normalizes one raw event and fans it out. The forwarder send is
// fire-and-forget and never delays the next append.
func (m *Manager) handle(raw RawEvent) {
	msg, err := Normalize(raw.Kind, raw.Payload)
	if err != nil {
		m.logger.Warn("event dropped", "kind", raw.Kind, "error", err)
		return
	}

	m.ring.Append(msg)
	if m.forwarder != nil {
		m.forwarder.Send(msg)
	}

	m.logger.Debug("event buffered",
		"type", msg.Type,
		"uname", msg.UName,
		"room_id", msg.RoomID,
	)
}

// finish records a session that ended on its own (upstream close or fatal
// error) and clears it if it is still the current one.
func (m *Manager) finish(r *run) {
	if err := r.sess.Err(); err != nil {
		m.logger.Error("session ended", "error", err)
	} else {
		m.logger.Info("session ended")
	}

	m.clear(r)
}
