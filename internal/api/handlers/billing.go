package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hugh/estateflow/internal/api/dto"
	"github.com/hugh/estateflow/internal/api/middleware"
	"github.com/hugh/estateflow/internal/billing"
)

const maxWebhookBody = 64 << 10

type BillingHandler struct {
	billing *billing.Service
	logger  *slog.Logger
}

func NewBillingHandler(billingService *billing.Service, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{billing: billingService, logger: logger}
}

func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckoutRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.billing.Checkout(r.Context(), middleware.GetRequestContext(r.Context()), req.Plan)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to create checkout session")
		return
	}
	writeJSON(w, http.StatusOK, dto.URLResponse{URL: session.URL})
}

func (h *BillingHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	info, err := h.billing.Subscription(r.Context(), middleware.GetRequestContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load subscription")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	session, err := h.billing.Portal(r.Context(), middleware.GetRequestContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to create portal session")
		return
	}
	writeJSON(w, http.StatusOK, dto.URLResponse{URL: session.URL})
}

func (h *BillingHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.billing.Sync(r.Context(), middleware.GetRequestContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to sync subscription")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Webhook receives Stripe events. Only verification and parse failures are
// 400s; a failure applying a valid event is a 500 so Stripe retries it.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid payload"})
		return
	}

	err = h.billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, billing.ErrInvalidSignature), errors.Is(err, billing.ErrInvalidPayload):
		h.logger.Warn("webhook rejected", "error", err)
		writeServiceError(w, h.logger, err, "")
	default:
		writeServiceError(w, h.logger, err, "Webhook handler failed")
	}
}
