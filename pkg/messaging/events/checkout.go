package events

import (
	"encoding/json"
	"time"

	"github.com/popuplink/popuplink/pkg/messaging"
)

type CheckoutCompletedEvent struct {
	StorefrontID string    `json:"storefront_id"`
	CheckoutID   string    `json:"checkout_id"`
	Method       string    `json:"method"`
	AmountMinor  int64     `json:"amount_minor"`
	Currency     string    `json:"currency"`
	Token        string    `json:"token,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

func (e CheckoutCompletedEvent) Subject() string {
	return messaging.CheckoutCompletedSubject
}

func (e CheckoutCompletedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
