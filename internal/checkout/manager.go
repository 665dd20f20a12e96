package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/popuplink/popuplink/internal/errors"
	"github.com/popuplink/popuplink/internal/payment"
	"github.com/popuplink/popuplink/internal/service"
	"github.com/popuplink/popuplink/pkg/messaging"
)

// Manager owns the registry of ephemeral checkout flows, one per presentation
// of a storefront to a customer. Flows live in memory only and are discarded
// on teardown or after sitting idle past the TTL.
type Manager struct {
	service   service.StorefrontService
	sessions  *payment.SessionManager
	publisher messaging.Publisher
	currency  string
	ttl       time.Duration
	sweep     time.Duration
	logger    *slog.Logger

	mu    sync.Mutex
	flows map[string]*Flow
}

// Config carries the manager's tunables.
type Config struct {
	Currency      string
	TTL           time.Duration
	SweepInterval time.Duration
}

// NewManager creates a checkout manager over the given storefront service and
// payment session manager.
func NewManager(svc service.StorefrontService, sessions *payment.SessionManager,
	publisher messaging.Publisher, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		service:   svc,
		sessions:  sessions,
		publisher: publisher,
		currency:  cfg.Currency,
		ttl:       cfg.TTL,
		sweep:     cfg.SweepInterval,
		logger:    logger.With("component", "checkout_manager"),
		flows:     make(map[string]*Flow),
	}
}

// Open starts a checkout session for a storefront. An absent record
// short-circuits with ErrStorefrontNotFound before the state machine is
// entered. A locked record opens the flow directly in SoldOut, taking
// precedence over provider readiness; otherwise a ready provider session is
// required.
func (m *Manager) Open(ctx context.Context, storefrontID string) (View, error) {
	dto, err := m.service.FindByID(ctx, storefrontID)
	if err != nil {
		return View{}, fmt.Errorf("failed to open checkout: %w", err)
	}

	var session payment.Session
	if !dto.Locked {
		var ok bool
		session, ok = m.sessions.Current()
		if !ok {
			return View{}, apperrors.ErrProviderUnavailable
		}
	}

	flow := newFlow(uuid.NewString(), *dto, session, m.currency, m.publisher, m.logger)
	flow.begin(ctx)

	m.mu.Lock()
	m.flows[flow.id] = flow
	m.mu.Unlock()

	checkoutOpenedTotal.Inc()
	return flow.View(), nil
}

// Get returns a snapshot of an open checkout session.
func (m *Manager) Get(id string) (View, error) {
	flow, err := m.find(id)
	if err != nil {
		return View{}, err
	}
	return flow.View(), nil
}

// SubmitCard submits card details on an open checkout session.
func (m *Manager) SubmitCard(ctx context.Context, id string, card payment.CardInput) (View, error) {
	flow, err := m.find(id)
	if err != nil {
		return View{}, err
	}
	return flow.SubmitCard(ctx, card)
}

// CompleteWallet completes a wallet payment on an open checkout session.
func (m *Manager) CompleteWallet(ctx context.Context, id string, event payment.WalletEvent) (View, error) {
	flow, err := m.find(id)
	if err != nil {
		return View{}, err
	}
	return flow.CompleteWallet(ctx, event)
}

// Close tears the checkout session down, discarding any pending result.
// Closing an unknown id is not an error.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, id)
}

// Run sweeps idle flows until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	cutoff := time.Now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, flow := range m.flows {
		flow.mu.Lock()
		idle := flow.lastActive.Before(cutoff) && !flow.processing
		flow.mu.Unlock()
		if idle {
			delete(m.flows, id)
			m.logger.Debug("Swept idle checkout session", "checkout_id", id)
		}
	}
}

func (m *Manager) find(id string) (*Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.flows[id]
	if !ok {
		return nil, apperrors.ErrCheckoutNotFound
	}
	return flow, nil
}
