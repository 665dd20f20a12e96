package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	apperrors "github.com/popuplink/popuplink/internal/errors"
	"github.com/popuplink/popuplink/internal/payment"
	"github.com/popuplink/popuplink/internal/service"
	"github.com/popuplink/popuplink/pkg/messaging"
	"github.com/popuplink/popuplink/pkg/messaging/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService serves storefront DTOs from a map.
type fakeService struct {
	storefronts map[string]service.StorefrontDto
}

func (f *fakeService) FindByID(_ context.Context, id string) (*service.StorefrontDto, error) {
	dto, ok := f.storefronts[id]
	if !ok {
		return nil, fmt.Errorf("lookup failed: %w", apperrors.ErrStorefrontNotFound)
	}
	return &dto, nil
}

func (f *fakeService) FindAll(context.Context) ([]service.StorefrontDto, error) { return nil, nil }
func (f *fakeService) Create(context.Context, service.StorefrontCreateDto) (*service.StorefrontDto, error) {
	return nil, nil
}
func (f *fakeService) Update(context.Context, string, service.StorefrontUpdateDto) (*service.StorefrontDto, error) {
	return nil, nil
}
func (f *fakeService) Lock(context.Context, string) (*service.StorefrontDto, error) {
	return nil, nil
}
func (f *fakeService) Unlock(context.Context, string) (*service.StorefrontDto, error) {
	return nil, nil
}
func (f *fakeService) DeleteByID(context.Context, string) error { return nil }

// fakeSession records provider calls and serves scripted outcomes.
type fakeSession struct {
	mu             sync.Mutex
	probeCalls     int
	probeResult    bool
	probeErr       error
	tokenizeCalls  int
	tokenizeErr    error
	walletComplete int
}

func (s *fakeSession) ProbeWallet(_ context.Context, _ int64, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeCalls++
	return s.probeResult, s.probeErr
}

func (s *fakeSession) TokenizeCard(_ context.Context, _ payment.CardInput) (payment.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenizeCalls++
	if s.tokenizeErr != nil {
		return payment.Token{}, s.tokenizeErr
	}
	return payment.Token{ID: "pm_test"}, nil
}

func (s *fakeSession) CompleteWalletPayment(_ payment.WalletEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walletComplete++
}

func (s *fakeSession) probes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeCalls
}

// fakeProvider hands the session manager a scripted session.
type fakeProvider struct {
	session payment.Session
}

func (p *fakeProvider) CreateSession(_ context.Context, credential string) (payment.Session, error) {
	if credential == "" {
		return nil, fmt.Errorf("missing credential")
	}
	return p.session, nil
}

// capturePublisher collects published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []messaging.Event
}

func (p *capturePublisher) Publish(_ context.Context, event messaging.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) published() []messaging.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messaging.Event(nil), p.events...)
}

const testStorefrontID = "a3bb189e-8bf9-3888-9912-ace4e6543002"

type testHarness struct {
	manager   *Manager
	publisher *capturePublisher
}

// newHarness wires a manager over a single storefront and a ready provider
// session. ready=false leaves the session manager without a session.
func newHarness(t *testing.T, dto service.StorefrontDto, session payment.Session, ready bool) *testHarness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	sessions := payment.NewSessionManager(&fakeProvider{session: session}, time.Second, logger)
	if ready {
		sessions.SetCredential("pk_test_abc123")
		require.Eventually(t, func() bool {
			_, ok := sessions.Current()
			return ok
		}, time.Second, 5*time.Millisecond)
	}
	publisher := &capturePublisher{}
	svc := &fakeService{storefronts: map[string]service.StorefrontDto{dto.ID: dto}}
	manager := NewManager(svc, sessions, publisher, Config{
		Currency:      "usd",
		TTL:           time.Hour,
		SweepInterval: time.Minute,
	}, logger)
	return &testHarness{manager: manager, publisher: publisher}
}

func validCard() payment.CardInput {
	return payment.CardInput{Number: "4242424242424242", ExpMonth: 12, ExpYear: time.Now().Year() + 1, CVC: "123"}
}

func Test_Manager_Open(t *testing.T) {
	dto := service.StorefrontDto{ID: testStorefrontID, Name: "Mug", Price: 9.99}

	t.Run("Success - wallet available", func(t *testing.T) {
		// given
		h := newHarness(t, dto, &fakeSession{probeResult: true}, true)
		// when
		view, err := h.manager.Open(context.Background(), dto.ID)
		// then
		require.NoError(t, err)
		assert.NotEmpty(t, view.ID)
		assert.Equal(t, dto.ID, view.StorefrontID)
		assert.Equal(t, StateWalletReady, view.State)
		assert.Equal(t, WalletAvailable, view.Wallet)
		assert.Equal(t, int64(999), view.AmountMinor)
		assert.Equal(t, "usd", view.Currency)
	})

	t.Run("Success - wallet not supported", func(t *testing.T) {
		// given
		h := newHarness(t, dto, &fakeSession{probeResult: false}, true)
		// when
		view, err := h.manager.Open(context.Background(), dto.ID)
		// then
		require.NoError(t, err)
		assert.Equal(t, StateWalletUnavailable, view.State)
		assert.Equal(t, WalletUnavailable, view.Wallet)
	})

	t.Run("Success - probe failure falls back to card", func(t *testing.T) {
		// given - an operational probe failure must not fail the checkout
		h := newHarness(t, dto, &fakeSession{probeErr: fmt.Errorf("no enrolled wallet")}, true)
		// when
		view, err := h.manager.Open(context.Background(), dto.ID)
		// then
		require.NoError(t, err)
		assert.Equal(t, StateWalletUnavailable, view.State)

		// the card path stays open
		view, err = h.manager.SubmitCard(context.Background(), view.ID, validCard())
		require.NoError(t, err)
		assert.Equal(t, StateSuccess, view.State)
	})

	t.Run("Success - zero price skips the probe", func(t *testing.T) {
		// given
		free := service.StorefrontDto{ID: testStorefrontID, Name: "Sticker", Price: 0}
		session := &fakeSession{probeResult: true}
		h := newHarness(t, free, session, true)
		// when
		view, err := h.manager.Open(context.Background(), free.ID)
		// then
		require.NoError(t, err)
		assert.Equal(t, StateWalletUnavailable, view.State)
		assert.Zero(t, session.probes())
	})

	t.Run("Success - locked storefront opens sold out without touching the provider", func(t *testing.T) {
		// given
		locked := service.StorefrontDto{ID: testStorefrontID, Name: "Mug", Price: 9.99, Locked: true}
		session := &fakeSession{probeResult: true}
		h := newHarness(t, locked, session, true)
		// when
		view, err := h.manager.Open(context.Background(), locked.ID)
		// then
		require.NoError(t, err)
		assert.Equal(t, StateSoldOut, view.State)
		assert.Zero(t, session.probes())
	})

	t.Run("Success - locked storefront does not require a provider session", func(t *testing.T) {
		// given - lock takes precedence over provider readiness
		locked := service.StorefrontDto{ID: testStorefrontID, Name: "Mug", Price: 9.99, Locked: true}
		h := newHarness(t, locked, &fakeSession{}, false)
		// when
		view, err := h.manager.Open(context.Background(), locked.ID)
		// then
		require.NoError(t, err)
		assert.Equal(t, StateSoldOut, view.State)
	})

	t.Run("Error - storefront not found", func(t *testing.T) {
		// given
		h := newHarness(t, dto, &fakeSession{}, true)
		// when
		_, err := h.manager.Open(context.Background(), "00000000-0000-0000-0000-000000000000")
		// then
		assert.ErrorIs(t, err, apperrors.ErrStorefrontNotFound)
	})

	t.Run("Error - provider session not ready", func(t *testing.T) {
		// given
		h := newHarness(t, dto, &fakeSession{}, false)
		// when
		_, err := h.manager.Open(context.Background(), dto.ID)
		// then
		assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
	})
}

func Test_Manager_SubmitCard(t *testing.T) {
	dto := service.StorefrontDto{ID: testStorefrontID, Name: "Mug", Price: 9.99}

	t.Run("Success - token issued and completion published", func(t *testing.T) {
		// given
		h := newHarness(t, dto, &fakeSession{probeResult: true}, true)
		opened, err := h.manager.Open(context.Background(), dto.ID)
		require.NoError(t, err)
		// when
		view, err := h.manager.SubmitCard(context.Background(), opened.ID, validCard())
		// then
		require.NoError(t, err)
		assert.Equal(t, StateSuccess, view.State)
		assert.False(t, view.Processing)
		assert.Empty(t, view.LastError)

		published := h.publisher.published()
		require.Len(t, published, 1)
		event, ok := published[0].(events.CheckoutCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, dto.ID, event.StorefrontID)
		assert.Equal(t, MethodCard, event.Method)
		assert.Equal(t, int64(999), event.AmountMinor)
		assert.Equal(t, "pm_test", event.Token)
	})

	t.Run("Success - decline is recorded, not raised", func(t *testing.T) {
		// given
		session := &fakeSession{
			probeResult: true,
			tokenizeErr: &payment.Error{Code: "card_declined", Message: "Your card was declined."},
		}
		h := newHarness(t, dto, session, true)
		opened, err := h.manager.Open(context.Background(), dto.ID)
		require.NoError(t, err)
		// when
		view, err := h.manager.SubmitCard(context.Background(), opened.ID, validCard())
		// then - the rejection is state, not an error
		require.NoError(t, err)
		assert.Equal(t, StateFailed, view.State)
		assert.Equal(t, "card_declined", view.LastError)
		assert.False(t, view.Processing)
		assert.Empty(t, h.publisher.published())

		// the customer may retry and succeed
		session.mu.Lock()
		session.tokenizeErr = nil
		session.mu.Unlock()
		view, err = h.manager.SubmitCard(context.Background(), opened.ID, validCard())
		require.NoError(t, err)
		assert.Equal(t, StateSuccess, view.State)
		assert.Empty(t, view.LastError)
	})

	t.Run("Success - unexpected provider failure maps to provider_error", func(t *testing.T) {
		// given
		session := &fakeSession{probeResult: true, tokenizeErr: fmt.Errorf("connection reset")}
		h := newHarness(t, dto, session, true)
		opened, err := h.manager.Open(context.Background(), dto.ID)
		require.NoError(t, err)
		// when
		view, err := h.manager.SubmitCard(context.Background(), opened.ID, validCard())
		// then
		require.NoError(t, err)
		assert.Equal(t, StateFailed, view.State)
		assert.Equal(t, "provider_error", view.LastError)
	})

	t.Run("Error - checkout not found", func(t *testing.T) {
		// given
		h := newHarness(t, dto, &fakeSession{probeResult: true}, true)
		// when
		_, err := h.manager.SubmitCard(context.Background(), "unknown", validCard())
		// then
		assert.ErrorIs(t, err, apperrors.ErrCheckoutNotFound)
	})

	t.Run("Error - sold out checkout rejects submission", func(t *testing.T) {
		// given
		locked := service.StorefrontDto{ID: testStorefrontID, Name: "Mug", Price: 9.99, Locked: true}
		h := newHarness(t, locked, &fakeSession{}, false)
		opened, err := h.manager.Open(context.Background(), locked.ID)
		require.NoError(t, err)
		// when
		view, err := h.manager.SubmitCard(context.Background(), opened.ID, validCard())
		// then
		assert.ErrorIs(t, err, apperrors.ErrCheckoutClosed)
		assert.Equal(t, StateSoldOut, view.State)
	})
}

func Test_Manager_SubmitCard_SingleSubmission(t *testing.T) {
	// given - tokenization blocks until released, holding the flow in Submitting
	dto := service.StorefrontDto{ID: testStorefrontID, Name: "Mug", Price: 9.99}
	release := make(chan struct{})
	started := make(chan struct{})
	session := &blockingSession{fakeSession: fakeSession{probeResult: true}, started: started, release: release}
	h := newHarness(t, dto, session, true)
	opened, err := h.manager.Open(context.Background(), dto.ID)
	require.NoError(t, err)

	done := make(chan View, 1)
	go func() {
		view, _ := h.manager.SubmitCard(context.Background(), opened.ID, validCard())
		done <- view
	}()
	<-started

	// when - a second submission arrives while the first is in flight
	view, err := h.manager.SubmitCard(context.Background(), opened.ID, validCard())

	// then
	assert.ErrorIs(t, err, apperrors.ErrSubmissionInFlight)
	assert.True(t, view.Processing)
	assert.Equal(t, StateSubmitting, view.State)

	// the first submission completes normally
	close(release)
	first := <-done
	assert.Equal(t, StateSuccess, first.State)
}

// blockingSession holds TokenizeCard until released.
type blockingSession struct {
	fakeSession
	started chan struct{}
	release chan struct{}
}

func (s *blockingSession) TokenizeCard(ctx context.Context, card payment.CardInput) (payment.Token, error) {
	close(s.started)
	<-s.release
	return s.fakeSession.TokenizeCard(ctx, card)
}

func Test_Manager_CompleteWallet(t *testing.T) {
	dto := service.StorefrontDto{ID: testStorefrontID, Name: "Mug", Price: 9.99}

	t.Run("Success - wallet completion is acknowledged and published", func(t *testing.T) {
		// given
		session := &fakeSession{probeResult: true}
		h := newHarness(t, dto, session, true)
		opened, err := h.manager.Open(context.Background(), dto.ID)
		require.NoError(t, err)
		require.Equal(t, StateWalletReady, opened.State)
		// when
		view, err := h.manager.CompleteWallet(context.Background(), opened.ID, payment.WalletEvent{PayerName: "Ada"})
		// then
		require.NoError(t, err)
		assert.Equal(t, StateSuccess, view.State)
		assert.Equal(t, 1, session.walletComplete)

		published := h.publisher.published()
		require.Len(t, published, 1)
		event, ok := published[0].(events.CheckoutCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, MethodWallet, event.Method)
		assert.Empty(t, event.Token)
	})

	t.Run("Error - sold out checkout rejects completion", func(t *testing.T) {
		// given
		locked := service.StorefrontDto{ID: testStorefrontID, Name: "Mug", Price: 9.99, Locked: true}
		h := newHarness(t, locked, &fakeSession{}, false)
		opened, err := h.manager.Open(context.Background(), locked.ID)
		require.NoError(t, err)
		// when
		_, err = h.manager.CompleteWallet(context.Background(), opened.ID, payment.WalletEvent{})
		// then
		assert.ErrorIs(t, err, apperrors.ErrCheckoutClosed)
	})
}

func Test_Manager_GetAndClose(t *testing.T) {
	// given
	dto := service.StorefrontDto{ID: testStorefrontID, Name: "Mug", Price: 9.99}
	h := newHarness(t, dto, &fakeSession{probeResult: true}, true)
	opened, err := h.manager.Open(context.Background(), dto.ID)
	require.NoError(t, err)

	// a snapshot of an open flow is available
	view, err := h.manager.Get(opened.ID)
	require.NoError(t, err)
	assert.Equal(t, opened.ID, view.ID)

	// when
	h.manager.Close(opened.ID)

	// then - the flow and its state are gone
	_, err = h.manager.Get(opened.ID)
	assert.ErrorIs(t, err, apperrors.ErrCheckoutNotFound)

	// closing again is not an error
	h.manager.Close(opened.ID)
}

func Test_Manager_SweepIdle(t *testing.T) {
	// given - a TTL in the past so any settled flow counts as idle
	dto := service.StorefrontDto{ID: testStorefrontID, Name: "Mug", Price: 9.99}
	h := newHarness(t, dto, &fakeSession{probeResult: true}, true)
	h.manager.ttl = -time.Second
	opened, err := h.manager.Open(context.Background(), dto.ID)
	require.NoError(t, err)

	// when
	h.manager.sweepIdle()

	// then
	_, err = h.manager.Get(opened.ID)
	assert.ErrorIs(t, err, apperrors.ErrCheckoutNotFound)
}
