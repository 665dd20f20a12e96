package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/popuplink/popuplink/internal/errors"
	"github.com/popuplink/popuplink/internal/payment"
	"github.com/popuplink/popuplink/pkg/web"
)

// OpenCheckout starts a checkout session for a storefront. A locked record
// opens the session in its sold-out state; an absent record is a 404 and a
// missing provider session a 503 before any state machine is entered.
func (h *Handler) OpenCheckout(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	view, err := h.checkouts.Open(r.Context(), id.String())
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrStorefrontNotFound):
			mLogger.WarnContext(r.Context(), "Storefront not found for checkout", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Storefront with ID %s not found", id))
		case errors.Is(err, apperrors.ErrProviderUnavailable):
			mLogger.WarnContext(r.Context(), "Payment provider not ready for checkout", "ID", id)
			web.RespondError(w, mLogger, http.StatusServiceUnavailable, "Payment provider is not available")
		case errors.Is(err, apperrors.ErrCorruptRecord):
			mLogger.ErrorContext(r.Context(), "Corrupt storefront record", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Storefront record %s is corrupt", id))
		default:
			mLogger.ErrorContext(r.Context(), "Error opening checkout", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to open checkout")
		}
		return
	}
	mLogger.InfoContext(r.Context(), "Checkout opened", "checkout_id", view.ID, "state", view.State)
	web.RespondJSON(w, mLogger, http.StatusCreated, view)
}

// GetCheckout returns the current state of a checkout session.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	view, err := h.checkouts.Get(id.String())
	if err != nil {
		h.respondCheckoutError(w, r, id.String(), err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

// SubmitCard submits card details for a checkout session. A provider decline
// is not an HTTP error: the flow lands in its failed state and the snapshot
// carries the reason, so the customer can retry.
func (h *Handler) SubmitCard(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var card payment.CardInput
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validateStruct(w, r, mLogger, card) {
		return
	}

	view, err := h.checkouts.SubmitCard(r.Context(), id.String(), card)
	if err != nil {
		h.respondCheckoutError(w, r, id.String(), err)
		return
	}
	mLogger.InfoContext(r.Context(), "Card submission resolved", "checkout_id", id, "state", view.State)
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

// CompleteWallet completes a wallet payment for a checkout session.
func (h *Handler) CompleteWallet(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var event payment.WalletEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.checkouts.CompleteWallet(r.Context(), id.String(), event)
	if err != nil {
		h.respondCheckoutError(w, r, id.String(), err)
		return
	}
	mLogger.InfoContext(r.Context(), "Wallet payment resolved", "checkout_id", id, "state", view.State)
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

// CloseCheckout tears a checkout session down.
func (h *Handler) CloseCheckout(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	h.checkouts.Close(id.String())
	mLogger.DebugContext(r.Context(), "Checkout closed", "checkout_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondCheckoutError(w http.ResponseWriter, r *http.Request, id string, err error) {
	mLogger := h.loggerWithReqID(r)
	switch {
	case errors.Is(err, apperrors.ErrCheckoutNotFound):
		mLogger.WarnContext(r.Context(), "Checkout session not found", "checkout_id", id)
		web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Checkout session %s not found", id))
	case errors.Is(err, apperrors.ErrSubmissionInFlight):
		mLogger.WarnContext(r.Context(), "Submission already in flight", "checkout_id", id)
		web.RespondError(w, mLogger, http.StatusConflict, "A payment submission is already in flight")
	case errors.Is(err, apperrors.ErrCheckoutClosed):
		mLogger.WarnContext(r.Context(), "Payment attempted on closed checkout", "checkout_id", id)
		web.RespondError(w, mLogger, http.StatusConflict, "Checkout is closed")
	default:
		mLogger.ErrorContext(r.Context(), "Checkout operation failed", "checkout_id", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Checkout operation failed")
	}
}
