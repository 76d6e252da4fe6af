package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"devtools-bridge/internal/domain"
)

// Conn is a Commander that owns a connection.
type Conn interface {
	Commander
	io.Closer
}

// Dialer connects to a remote-debugging endpoint.
type Dialer func(ctx context.Context, endpoint string) (Conn, error)

// Archiver persists a session's network log when the session closes.
type Archiver interface {
	SaveTraffic(ctx context.Context, sessionID string, entries []domain.NetworkEntry) error
}

// SessionInfo describes an open session.
type SessionInfo struct {
	ID       string
	Endpoint string
	Opened   time.Time
}

type managedSession struct {
	info    SessionInfo
	conn    Conn
	session *Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithArchive stores each session's traffic on Close.
func WithArchive(a Archiver) ManagerOption {
	return func(m *Manager) { m.archive = a }
}

// WithSessionOptions applies opts to every session the manager opens.
func WithSessionOptions(opts ...Option) ManagerOption {
	return func(m *Manager) { m.sessionOpts = append(m.sessionOpts, opts...) }
}

// WithManagerLogger sets the logger. The default discards output.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// Manager keeps bridged sessions addressable by ULID.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*managedSession
	entropy     io.Reader
	dial        Dialer
	archive     Archiver
	sessionOpts []Option
	logger      *slog.Logger
}

// NewManager returns a Manager that opens connections with dial.
func NewManager(dial Dialer, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*managedSession),
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		dial:     dial,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), m.entropy).String()
}

// Open dials endpoint and registers a new session under a fresh id.
func (m *Manager) Open(ctx context.Context, endpoint string) (string, *Session, error) {
	if endpoint == "" {
		return "", nil, domain.NewDomainError("Manager.Open", domain.ErrInvalidInput, "empty endpoint")
	}
	conn, err := m.dial(ctx, endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("open session: %w", err)
	}

	now := time.Now()
	m.mu.Lock()
	id := m.newID(now)
	sess := NewSession(conn, append([]Option{WithLogger(m.logger.With("session", id))}, m.sessionOpts...)...)
	m.sessions[id] = &managedSession{
		info:    SessionInfo{ID: id, Endpoint: endpoint, Opened: now},
		conn:    conn,
		session: sess,
	}
	m.mu.Unlock()

	m.logger.Info("session opened", "session", id, "endpoint", endpoint)
	return id, sess, nil
}

// Get returns the session registered under id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return nil, domain.NewDomainError("Manager.Get", domain.ErrSessionNotFound, id)
	}
	return ms.session, nil
}

// List returns the open sessions ordered by id, which is also opening
// order.
func (m *Manager) List() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, ms := range m.sessions {
		out = append(out, ms.info)
	}
	slices.SortFunc(out, func(a, b SessionInfo) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Close archives the session's traffic, when an archive is configured, and
// closes its connection. The session is unregistered even if either step
// fails.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return domain.NewDomainError("Manager.Close", domain.ErrSessionNotFound, id)
	}

	var archiveErr error
	if m.archive != nil {
		if entries := ms.session.NetworkTraffic(); len(entries) > 0 {
			archiveErr = m.archive.SaveTraffic(ctx, id, entries)
			if archiveErr != nil {
				m.logger.Warn("archive traffic failed", "session", id, "error", archiveErr)
			}
		}
	}
	closeErr := ms.conn.Close()
	if domain.IsTransportError(closeErr) {
		// The peer already dropped the connection.
		m.logger.Debug("connection was already closed", "session", id, "error", closeErr)
		closeErr = nil
	}
	m.logger.Info("session closed", "session", id)
	return errors.Join(archiveErr, closeErr)
}

// CloseAll closes every open session.
func (m *Manager) CloseAll(ctx context.Context) error {
	var errs []error
	for _, info := range m.List() {
		if err := m.Close(ctx, info.ID); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", info.ID, err))
		}
	}
	return errors.Join(errs...)
}
