package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionManager holds at most one active provider session, associated with at
// most one credential at a time. Setting a credential discards the current
// session and re-establishes asynchronously; a failed attempt leaves the
// manager without a session and without automatic retry, so readiness is
// equivalent to "a session exists".
type SessionManager struct {
	provider Provider
	timeout  time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	credential string
	session    Session
	generation uint64
}

// NewSessionManager creates a session manager over the given provider.
func NewSessionManager(provider Provider, connectTimeout time.Duration, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		provider: provider,
		timeout:  connectTimeout,
		logger:   logger.With("component", "payment_session"),
	}
}

// SetCredential stores the credential, discards any existing session and
// begins establishing a new one. Each call restarts establishment, so rapid
// repeated calls should be debounced by the caller if connection churn is
// undesirable.
func (m *SessionManager) SetCredential(key string) {
	m.mu.Lock()
	m.credential = key
	m.session = nil
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	go m.establish(gen, key)
}

// Current returns the ready session, or false while establishment is pending
// or has failed.
func (m *SessionManager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.session != nil
}

// Credential returns the stored credential, whether or not a session is ready.
// It allows a manual retry via SetCredential after a failed establishment.
func (m *SessionManager) Credential() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credential
}

func (m *SessionManager) establish(gen uint64, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	session, err := m.provider.CreateSession(ctx, key)
	if err != nil {
		m.logger.Warn("Failed to establish payment provider session", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// A newer credential arrived while this attempt was in flight.
	if gen != m.generation {
		return
	}
	m.session = session
	m.logger.Info("Payment provider session established")
}
