// Package checkout implements the per-storefront payment state machine.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/popuplink/popuplink/internal/errors"
	"github.com/popuplink/popuplink/internal/payment"
	"github.com/popuplink/popuplink/internal/service"
	"github.com/popuplink/popuplink/pkg/messaging"
	"github.com/popuplink/popuplink/pkg/messaging/events"
)

// State is the position of a checkout session in its state machine.
type State string

const (
	StateIdle              State = "idle"
	StateWalletProbe       State = "wallet_probe"
	StateWalletReady       State = "wallet_ready"
	StateWalletUnavailable State = "wallet_unavailable"
	StateSubmitting        State = "submitting"
	StateSuccess           State = "success"
	StateFailed            State = "failed"
	// StateSoldOut is terminal for the session: a locked record short-circuits
	// all payment setup.
	StateSoldOut State = "sold_out"
)

// WalletAvailability is the tri-state outcome of the wallet probe.
type WalletAvailability string

const (
	WalletUnknown     WalletAvailability = "unknown"
	WalletUnavailable WalletAvailability = "unavailable"
	WalletAvailable   WalletAvailability = "available"
)

// Payment methods reported on completion events.
const (
	MethodCard   = "card"
	MethodWallet = "wallet"
)

// Flow is one ephemeral checkout session: a storefront snapshot, a provider
// session and the machine state. It is never persisted.
type Flow struct {
	id        string
	record    service.StorefrontDto
	session   payment.Session
	currency  string
	logger    *slog.Logger
	publisher messaging.Publisher

	mu         sync.Mutex
	state      State
	wallet     WalletAvailability
	processing bool
	lastError  string
	lastActive time.Time
}

func newFlow(id string, record service.StorefrontDto, session payment.Session,
	currency string, publisher messaging.Publisher, logger *slog.Logger) *Flow {
	return &Flow{
		id:         id,
		record:     record,
		session:    session,
		currency:   currency,
		publisher:  publisher,
		logger:     logger.With("component", "checkout", "checkout_id", id, "storefront_id", record.ID),
		state:      StateIdle,
		wallet:     WalletUnknown,
		lastActive: time.Now(),
	}
}

// begin runs the entry transitions. The lock check takes precedence over all
// payment setup; only then is wallet availability probed for the exact charge
// amount.
func (f *Flow) begin(ctx context.Context) {
	f.mu.Lock()
	if f.record.Locked {
		f.state = StateSoldOut
		f.mu.Unlock()
		return
	}
	amount := f.record.AmountMinor()
	if amount <= 0 {
		// Zero-price storefronts are valid but have nothing to put on a wallet
		// sheet; the card path stays open.
		f.state = StateWalletUnavailable
		f.wallet = WalletUnavailable
		f.mu.Unlock()
		return
	}
	f.state = StateWalletProbe
	f.mu.Unlock()

	supported, err := f.session.ProbeWallet(ctx, amount, f.currency)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil || !supported {
		// An operational probe failure is not a checkout error; card payment
		// remains selectable.
		if err != nil {
			f.logger.Warn("Wallet probe failed", "error", err)
		}
		f.state = StateWalletUnavailable
		f.wallet = WalletUnavailable
		walletProbeTotal.WithLabelValues("unavailable").Inc()
		return
	}
	f.state = StateWalletReady
	f.wallet = WalletAvailable
	walletProbeTotal.WithLabelValues("available").Inc()
}

// SubmitCard requests a payment-method token for the entered card. A provider
// rejection moves the flow to Failed with the rejection recorded as lastError;
// the customer may resubmit. A token moves the flow to Success.
func (f *Flow) SubmitCard(ctx context.Context, card payment.CardInput) (View, error) {
	f.mu.Lock()
	if f.state == StateSoldOut {
		v := f.view()
		f.mu.Unlock()
		return v, apperrors.ErrCheckoutClosed
	}
	if f.processing {
		v := f.view()
		f.mu.Unlock()
		return v, apperrors.ErrSubmissionInFlight
	}
	f.processing = true
	f.state = StateSubmitting
	f.lastActive = time.Now()
	f.mu.Unlock()

	token, err := f.session.TokenizeCard(ctx, card)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.processing = false
	if err != nil {
		var perr *payment.Error
		if errors.As(err, &perr) {
			f.lastError = perr.Code
		} else {
			f.logger.Error("Card tokenization failed", "error", err)
			f.lastError = "provider_error"
		}
		f.state = StateFailed
		checkoutFailedTotal.WithLabelValues(f.lastError).Inc()
		return f.view(), nil
	}

	f.state = StateSuccess
	f.lastError = ""
	checkoutSuccessTotal.WithLabelValues(MethodCard).Inc()
	f.publishCompleted(ctx, MethodCard, token.ID)
	return f.view(), nil
}

// CompleteWallet handles the customer completing the wallet sheet. The payment
// method is acknowledged to the provider immediately and the flow moves to
// Success; no server-side capture confirmation happens here.
func (f *Flow) CompleteWallet(ctx context.Context, event payment.WalletEvent) (View, error) {
	f.mu.Lock()
	if f.state == StateSoldOut {
		v := f.view()
		f.mu.Unlock()
		return v, apperrors.ErrCheckoutClosed
	}
	if f.processing {
		v := f.view()
		f.mu.Unlock()
		return v, apperrors.ErrSubmissionInFlight
	}
	f.processing = true
	f.state = StateSubmitting
	f.lastActive = time.Now()
	f.mu.Unlock()

	f.session.CompleteWalletPayment(event)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.processing = false
	f.state = StateSuccess
	f.lastError = ""
	checkoutSuccessTotal.WithLabelValues(MethodWallet).Inc()
	f.publishCompleted(ctx, MethodWallet, "")
	return f.view(), nil
}

// publishCompleted reports the payment outcome. Failures to publish are logged
// and do not affect the checkout result. Callers hold f.mu.
func (f *Flow) publishCompleted(ctx context.Context, method, token string) {
	event := events.CheckoutCompletedEvent{
		StorefrontID: f.record.ID,
		CheckoutID:   f.id,
		Method:       method,
		AmountMinor:  f.record.AmountMinor(),
		Currency:     f.currency,
		Token:        token,
		CompletedAt:  time.Now(),
	}
	if err := f.publisher.Publish(ctx, event); err != nil {
		f.logger.Error("Failed to publish checkout completed event", "error", err)
	}
}

// View is an immutable snapshot of the flow for presentation.
type View struct {
	ID           string             `json:"checkout_id"`
	StorefrontID string             `json:"storefront_id"`
	State        State              `json:"state"`
	Wallet       WalletAvailability `json:"wallet"`
	Processing   bool               `json:"processing"`
	LastError    string             `json:"last_error,omitempty"`
	AmountMinor  int64              `json:"amount_minor"`
	Currency     string             `json:"currency"`
}

// View returns a snapshot of the flow.
func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view()
}

// view builds the snapshot. Callers hold f.mu.
func (f *Flow) view() View {
	return View{
		ID:           f.id,
		StorefrontID: f.record.ID,
		State:        f.state,
		Wallet:       f.wallet,
		Processing:   f.processing,
		LastError:    f.lastError,
		AmountMinor:  f.record.AmountMinor(),
		Currency:     f.currency,
	}
}
