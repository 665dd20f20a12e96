// Package rest provides HTTP handlers for storefront and checkout operations.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/popuplink/popuplink/internal/checkout"
	apperrors "github.com/popuplink/popuplink/internal/errors"
	"github.com/popuplink/popuplink/internal/payment"
	"github.com/popuplink/popuplink/internal/service"
	"github.com/popuplink/popuplink/internal/store"
	"github.com/popuplink/popuplink/pkg/web"
)

type Handler struct {
	service   service.StorefrontService
	checkouts *checkout.Manager
	sessions  *payment.SessionManager
	store     store.StorefrontStore
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewHandler creates a new instance of the storefront API with the provided dependencies.
func NewHandler(svc service.StorefrontService, checkouts *checkout.Manager,
	sessions *payment.SessionManager, st store.StorefrontStore, logger *slog.Logger) *Handler {
	return &Handler{
		service:   svc,
		checkouts: checkouts,
		sessions:  sessions,
		store:     st,
		validate:  validator.New(),
		logger:    logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the storefront service.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	// Operator surface.
	r.Route("/api/v1/storefronts", func(r chi.Router) {
		r.Get("/", h.FindAll)
		r.Post("/", h.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.FindByID)
			r.Put("/", h.Update)
			r.Delete("/", h.DeleteByID)
			r.Post("/lock", h.Lock)
			r.Post("/unlock", h.Unlock)
			r.Post("/checkout", h.OpenCheckout)
		})
	})

	// Customer surface: the shareable link resolves to the same record
	// through a distinct route.
	r.Get("/api/v1/store/{id}", h.FindByID)

	r.Route("/api/v1/checkouts/{id}", func(r chi.Router) {
		r.Get("/", h.GetCheckout)
		r.Delete("/", h.CloseCheckout)
		r.Post("/card", h.SubmitCard)
		r.Post("/wallet", h.CompleteWallet)
	})

	r.Route("/api/v1/settings/payment-key", func(r chi.Router) {
		r.Get("/", h.GetPaymentKey)
		r.Put("/", h.SetPaymentKey)
	})

	r.Get("/healthz", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
}

// FindByID retrieves a storefront by its ID.
func (h *Handler) FindByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to find storefront by ID", "ID", id)
	found, err := h.service.FindByID(r.Context(), id.String())
	if err != nil {
		if errors.Is(err, apperrors.ErrStorefrontNotFound) {
			mLogger.WarnContext(r.Context(), "Storefront not found", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Storefront with ID %s not found", id))
			return
		}
		if errors.Is(err, apperrors.ErrCorruptRecord) {
			mLogger.ErrorContext(r.Context(), "Corrupt storefront record", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Storefront record %s is corrupt", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error retrieving storefront", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve storefront with ID %s", id))
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// FindAll retrieves all storefronts for management views.
func (h *Handler) FindAll(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	mLogger.DebugContext(r.Context(), "Received request to find all storefronts")
	list, err := h.service.FindAll(r.Context())
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving storefront list", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch storefronts")
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully retrieved storefront list", "count", len(list))
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// Create handles the creation of a new storefront.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var createDto service.StorefrontCreateDto
	if err := json.NewDecoder(r.Body).Decode(&createDto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validateStruct(w, r, mLogger, createDto) {
		return
	}

	newStorefront, err := h.service.Create(r.Context(), createDto)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			mLogger.WarnContext(r.Context(), "Invalid storefront fields", "error", err)
			web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
			return
		}
		mLogger.ErrorContext(r.Context(), "Error creating storefront", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to create storefront")
		return
	}
	mLogger.InfoContext(r.Context(), "Storefront created successfully", "ID", newStorefront.ID, "Name", newStorefront.Name)
	web.RespondJSON(w, mLogger, http.StatusCreated, newStorefront)
}

// Update replaces the mutable fields of an existing storefront.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var updateDto service.StorefrontUpdateDto
	if err := json.NewDecoder(r.Body).Decode(&updateDto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validateStruct(w, r, mLogger, updateDto) {
		return
	}

	updated, err := h.service.Update(r.Context(), id.String(), updateDto)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrStorefrontNotFound):
			mLogger.WarnContext(r.Context(), "Storefront not found for update", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Storefront with ID %s not found", id))
		case errors.Is(err, apperrors.ErrValidation):
			mLogger.WarnContext(r.Context(), "Invalid storefront fields", "error", err)
			web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
		default:
			mLogger.ErrorContext(r.Context(), "Error updating storefront", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to update storefront with ID %s", id))
		}
		return
	}
	mLogger.InfoContext(r.Context(), "Storefront updated successfully", "ID", updated.ID, "Name", updated.Name)
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// Lock disables customer checkout for a storefront.
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, true)
}

// Unlock re-enables customer checkout for a storefront.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, false)
}

func (h *Handler) setLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	op := h.service.Unlock
	if locked {
		op = h.service.Lock
	}
	updated, err := op(r.Context(), id.String())
	if err != nil {
		if errors.Is(err, apperrors.ErrStorefrontNotFound) {
			mLogger.WarnContext(r.Context(), "Storefront not found for lock change", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Storefront with ID %s not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error changing storefront lock state", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to change lock state for storefront with ID %s", id))
		return
	}
	mLogger.InfoContext(r.Context(), "Storefront lock state changed", "ID", updated.ID, "Locked", updated.Locked)
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// DeleteByID deletes a storefront by its ID. Deleting an absent id succeeds.
func (h *Handler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to delete storefront", "ID", id)
	if err := h.service.DeleteByID(r.Context(), id.String()); err != nil {
		mLogger.ErrorContext(r.Context(), "Error deleting storefront", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to delete storefront with ID %s", id))
		return
	}
	mLogger.InfoContext(r.Context(), "Storefront deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// GetPaymentKey returns the stored provider credential, masked for display.
func (h *Handler) GetPaymentKey(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	credential, err := h.store.FindCredential(r.Context())
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving payment key", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to retrieve payment key")
		return
	}
	_, ready := h.sessions.Current()
	web.RespondJSON(w, mLogger, http.StatusOK, map[string]any{
		"key":   maskKey(credential),
		"ready": ready,
	})
}

type paymentKeyDto struct {
	Key string `json:"key" validate:"required"`
}

// SetPaymentKey stores the provider credential and restarts session establishment.
func (h *Handler) SetPaymentKey(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var dto paymentKeyDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validateStruct(w, r, mLogger, dto) {
		return
	}
	if err := h.store.SaveCredential(r.Context(), dto.Key); err != nil {
		mLogger.ErrorContext(r.Context(), "Error saving payment key", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to save payment key")
		return
	}
	h.sessions.SetCredential(dto.Key)
	mLogger.InfoContext(r.Context(), "Payment key saved")
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// validateStruct runs struct validation and writes the error response on
// failure. Returns true when the payload is valid.
func (h *Handler) validateStruct(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, payload any) bool {
	if err := h.validate.Struct(payload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorResponse := make(map[string]string)
			for _, fieldErr := range validationErrors {
				errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
			web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
			return false
		}
		mLogger.ErrorContext(r.Context(), "Error validating request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// maskKey hides all but the last four characters of a credential.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID, _ := web.GetRequestID(r.Context())
	return h.logger.With("request_id", reqID)
}
