package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Card numbers with fixed outcomes, matching the test numbers card providers
// publish for integration testing.
const (
	cardDeclined          = "4000000000000002"
	cardInsufficientFunds = "4000000000009995"
)

// SimProvider is a deterministic stand-in for a real payment provider. It
// validates credentials and card input locally and never performs network I/O,
// which makes the checkout flow fully exercisable in development and tests.
type SimProvider struct {
	walletSupported bool
}

// NewSimProvider creates a simulated provider. walletSupported controls the
// outcome of wallet probes on every session it creates.
func NewSimProvider(walletSupported bool) *SimProvider {
	return &SimProvider{walletSupported: walletSupported}
}

// CreateSession validates the credential and returns a ready session.
// Credentials must look like a publishable key; anything else fails
// establishment, leaving the session manager in its absent state.
func (p *SimProvider) CreateSession(_ context.Context, credential string) (Session, error) {
	if !strings.HasPrefix(credential, "pk_") {
		return nil, fmt.Errorf("invalid publishable key")
	}
	return &simSession{walletSupported: p.walletSupported}, nil
}

type simSession struct {
	walletSupported bool
}

// ProbeWallet reports wallet availability for the configured environment.
func (s *simSession) ProbeWallet(_ context.Context, amountMinor int64, currency string) (bool, error) {
	if amountMinor <= 0 {
		return false, nil
	}
	if currency == "" {
		return false, fmt.Errorf("currency is required")
	}
	return s.walletSupported, nil
}

// TokenizeCard exchanges card input for a token, rejecting invalid and
// blacklisted cards the way a real provider would.
func (s *simSession) TokenizeCard(_ context.Context, card CardInput) (Token, error) {
	number := strings.ReplaceAll(card.Number, " ", "")
	switch {
	case !luhnValid(number):
		return Token{}, &Error{Code: "incorrect_number", Message: "Your card number is incorrect."}
	case number == cardDeclined:
		return Token{}, &Error{Code: "card_declined", Message: "Your card was declined."}
	case number == cardInsufficientFunds:
		return Token{}, &Error{Code: "insufficient_funds", Message: "Your card has insufficient funds."}
	case expired(card.ExpYear, card.ExpMonth):
		return Token{}, &Error{Code: "expired_card", Message: "Your card has expired."}
	case len(card.CVC) < 3 || len(card.CVC) > 4:
		return Token{}, &Error{Code: "incorrect_cvc", Message: "Your card's security code is incorrect."}
	}
	return Token{ID: "pm_" + uuid.NewString()}, nil
}

// CompleteWalletPayment acknowledges the wallet sheet. Nothing to do in the
// simulated provider.
func (s *simSession) CompleteWalletPayment(_ WalletEvent) {}

// luhnValid reports whether the number passes the Luhn checksum.
func luhnValid(number string) bool {
	if len(number) < 12 {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// expired reports whether the expiry lies strictly before the current month.
func expired(year, month int) bool {
	now := time.Now()
	if year != now.Year() {
		return year < now.Year()
	}
	return time.Month(month) < now.Month()
}
