// Package payment owns the connection to the payment provider and the
// abstractions the checkout flow consumes.
package payment

import (
	"context"
	"fmt"
)

// CardInput carries raw card details entered by the customer. It is exchanged
// for an opaque token and never persisted.
type CardInput struct {
	Number   string `json:"number"    validate:"required"`
	ExpMonth int    `json:"exp_month" validate:"required,min=1,max=12"`
	ExpYear  int    `json:"exp_year"  validate:"required,min=2000"`
	CVC      string `json:"cvc"       validate:"required,min=3,max=4"`
}

// Token is a provider-issued payment-method reference.
type Token struct {
	ID string `json:"id"`
}

// WalletEvent is the completion payload of a wallet payment sheet.
type WalletEvent struct {
	PayerName  string `json:"payer_name,omitempty"`
	PayerEmail string `json:"payer_email,omitempty"`
}

// Error is a provider-side rejection of a payment attempt. It is data the
// checkout flow exposes for display, not a fatal error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Session is an established connection to the payment provider.
type Session interface {
	// ProbeWallet reports whether a wallet payment can be completed for the
	// exact amount in minor units and currency. An operational failure
	// (unsupported device, no enrolled wallet) is reported through the error;
	// callers treat it as "unavailable", not as a checkout failure.
	ProbeWallet(ctx context.Context, amountMinor int64, currency string) (bool, error)

	// TokenizeCard exchanges raw card input for a payment-method token.
	// Provider rejections are returned as *Error.
	TokenizeCard(ctx context.Context, card CardInput) (Token, error)

	// CompleteWalletPayment acknowledges a completed wallet payment sheet.
	// The acknowledgment is synchronous and optimistic: no server-side capture
	// confirmation happens here.
	CompleteWalletPayment(event WalletEvent)
}

// Provider establishes sessions from an operator-supplied credential.
type Provider interface {
	CreateSession(ctx context.Context, credential string) (Session, error)
}
