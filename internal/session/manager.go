// Package session owns the connect/disconnect lifecycle of the engine
// session backing one tool invocation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sensebridge/sensebridge/internal/observe"
	"github.com/sensebridge/sensebridge/internal/qix"
	"github.com/sensebridge/sensebridge/internal/retry"
)

// State is the manager's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Dialer establishes one engine session.
type Dialer func(ctx context.Context) (qix.Session, error)

// ManagerConfig holds the dependencies for a [Manager].
type ManagerConfig struct {
	// Dial opens the websocket session. Required.
	Dial Dialer

	// DefaultAppID is used when a call does not name an application.
	DefaultAppID string

	// Retry wraps the dial and document-open calls.
	Retry retry.Policy

	// Metrics is optional; when nil no instruments are recorded.
	Metrics *observe.Metrics
}

// Manager owns at most one engine session at a time. Connect rejects when a
// session is already open — it never silently re-opens and leaks the prior
// one. All exported methods are safe for concurrent use; [Manager.WithSession]
// additionally serializes whole invocations against each other.
type Manager struct {
	dial         Dialer
	defaultAppID string
	retry        retry.Policy
	metrics      *observe.Metrics

	mu      sync.Mutex
	state   State
	session qix.Session
	id      string
}

// NewManager creates a [Manager] in the Disconnected state.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		dial:         cfg.Dial,
		defaultAppID: cfg.DefaultAppID,
		retry:        cfg.Retry,
		metrics:      cfg.Metrics,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens a session and the document for appID (or the configured
// default when appID is empty). Both remote calls are retried per the
// manager's policy. Returns an error when the manager is not Disconnected.
func (m *Manager) Connect(ctx context.Context, appID string) (qix.Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx, appID)
}

// Disconnect closes the open session. It is a no-op when no session is open.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

// WithSession runs fn with a connected document, guaranteeing disconnect on
// every exit path including panics. The manager's mutex is held for the whole
// connect/use/disconnect span, so concurrent invocations execute one at a
// time.
func (m *Manager) WithSession(ctx context.Context, appID string, fn func(ctx context.Context, doc qix.Doc) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.connectLocked(ctx, appID)
	if err != nil {
		return err
	}
	defer m.disconnectLocked()

	return fn(ctx, doc)
}

// connectLocked performs the Disconnected → Connecting → Connected
// transition. Must be called with m.mu held.
func (m *Manager) connectLocked(ctx context.Context, appID string) (qix.Doc, error) {
	if m.state != Disconnected {
		return nil, fmt.Errorf("session: connect while %s (id=%s)", m.state, m.id)
	}
	if appID == "" {
		appID = m.defaultAppID
	}
	if appID == "" {
		return nil, fmt.Errorf("session: no app id given and no default configured")
	}

	m.state = Connecting
	m.id = uuid.NewString()

	sess, err := retry.Do(ctx, m.retry, "Dial", func(ctx context.Context) (qix.Session, error) {
		return m.dial(ctx)
	})
	if err != nil {
		m.state = Disconnected
		m.id = ""
		return nil, fmt.Errorf("session: open engine session: %w", err)
	}

	doc, err := retry.Do(ctx, m.retry, "OpenDoc", func(ctx context.Context) (qix.Doc, error) {
		return sess.OpenDoc(ctx, appID)
	})
	if err != nil {
		if cerr := sess.Close(); cerr != nil {
			slog.Warn("session: close after failed open", "session_id", m.id, "error", cerr)
		}
		m.state = Disconnected
		m.id = ""
		return nil, fmt.Errorf("session: open app %q: %w", appID, err)
	}

	m.state = Connected
	m.session = sess
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(ctx, 1)
	}
	slog.Debug("session connected", "session_id", m.id, "app_id", appID)
	return doc, nil
}

// disconnectLocked performs the Connected → Disconnected transition. A
// cleanup failure is logged, not returned — it must not mask the original
// error on failure paths. Must be called with m.mu held.
func (m *Manager) disconnectLocked() {
	if m.state != Connected {
		return
	}
	if err := m.session.Close(); err != nil {
		slog.Warn("session: close failed", "session_id", m.id, "error", err)
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	slog.Debug("session disconnected", "session_id", m.id)
	m.state = Disconnected
	m.session = nil
	m.id = ""
}
