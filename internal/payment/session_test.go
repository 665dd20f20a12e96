package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSession is a no-op Session used to observe which session the manager holds.
type stubSession struct {
	name string
}

func (s *stubSession) ProbeWallet(context.Context, int64, string) (bool, error) { return false, nil }
func (s *stubSession) TokenizeCard(context.Context, CardInput) (Token, error)   { return Token{}, nil }
func (s *stubSession) CompleteWalletPayment(WalletEvent)                        {}

// stubProvider delegates session establishment to a per-test function.
type stubProvider struct {
	mu        sync.Mutex
	calls     []string
	establish func(credential string) (Session, error)
}

func (p *stubProvider) CreateSession(_ context.Context, credential string) (Session, error) {
	p.mu.Lock()
	p.calls = append(p.calls, credential)
	p.mu.Unlock()
	return p.establish(credential)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func Test_SessionManager_StartsWithoutSession(t *testing.T) {
	// given
	provider := &stubProvider{establish: func(string) (Session, error) {
		return &stubSession{}, nil
	}}
	manager := NewSessionManager(provider, time.Second, testLogger())

	// then - no credential has been set, so no session and no establishment attempt
	_, ok := manager.Current()
	assert.False(t, ok)
	assert.Empty(t, manager.Credential())
	assert.Empty(t, provider.calls)
}

func Test_SessionManager_SetCredential_Establishes(t *testing.T) {
	// given
	session := &stubSession{name: "first"}
	provider := &stubProvider{establish: func(string) (Session, error) {
		return session, nil
	}}
	manager := NewSessionManager(provider, time.Second, testLogger())

	// when
	manager.SetCredential("pk_test_abc123")

	// then - establishment is asynchronous, readiness follows
	require.Eventually(t, func() bool {
		_, ok := manager.Current()
		return ok
	}, time.Second, 5*time.Millisecond)

	current, ok := manager.Current()
	require.True(t, ok)
	assert.Same(t, session, current)
	assert.Equal(t, "pk_test_abc123", manager.Credential())
}

func Test_SessionManager_FailedEstablishment(t *testing.T) {
	// given
	provider := &stubProvider{establish: func(string) (Session, error) {
		return nil, fmt.Errorf("invalid publishable key")
	}}
	manager := NewSessionManager(provider, time.Second, testLogger())

	// when
	manager.SetCredential("bad_key")

	// then - the attempt completes, the manager stays without a session
	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return len(provider.calls) == 1
	}, time.Second, 5*time.Millisecond)

	_, ok := manager.Current()
	assert.False(t, ok)
	// the credential is retained so the operator can see what was entered
	assert.Equal(t, "bad_key", manager.Credential())
}

func Test_SessionManager_ReplacementDiscardsSession(t *testing.T) {
	// given - an established session
	first := &stubSession{name: "first"}
	second := &stubSession{name: "second"}
	provider := &stubProvider{establish: func(credential string) (Session, error) {
		if credential == "pk_first" {
			return first, nil
		}
		return second, nil
	}}
	manager := NewSessionManager(provider, time.Second, testLogger())
	manager.SetCredential("pk_first")
	require.Eventually(t, func() bool {
		_, ok := manager.Current()
		return ok
	}, time.Second, 5*time.Millisecond)

	// when - a new credential replaces it
	manager.SetCredential("pk_second")

	// then - the old session is gone immediately, the new one follows
	require.Eventually(t, func() bool {
		current, ok := manager.Current()
		return ok && current == Session(second)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "pk_second", manager.Credential())
}

func Test_SessionManager_StaleEstablishmentIsDropped(t *testing.T) {
	// given - the first establishment blocks until released
	firstStarted := make(chan struct{})
	release := make(chan struct{})
	slow := &stubSession{name: "slow"}
	fast := &stubSession{name: "fast"}
	provider := &stubProvider{establish: func(credential string) (Session, error) {
		if credential == "pk_slow" {
			close(firstStarted)
			<-release
			return slow, nil
		}
		return fast, nil
	}}
	manager := NewSessionManager(provider, 5*time.Second, testLogger())

	// when - a second credential arrives while the first attempt is in flight
	manager.SetCredential("pk_slow")
	<-firstStarted
	manager.SetCredential("pk_fast")
	require.Eventually(t, func() bool {
		current, ok := manager.Current()
		return ok && current == Session(fast)
	}, time.Second, 5*time.Millisecond)

	// then - the late result of the first attempt must not overwrite the session
	close(release)
	assert.Never(t, func() bool {
		current, _ := manager.Current()
		return current == Session(slow)
	}, 100*time.Millisecond, 5*time.Millisecond)
}
