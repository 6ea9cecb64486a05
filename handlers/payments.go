package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"eventpass-backend/gateway/paystack"
	"eventpass-backend/models"
	"eventpass-backend/services"

	"github.com/go-chi/chi/v5"
)

type checkoutService interface {
	Initialize(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutResponse, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, reference string, trigger services.Trigger) (*services.ReconcileResult, error)
	ReconcileWebhook(ctx context.Context, reference string, payload []byte) (*services.ReconcileResult, error)
	Cancel(ctx context.Context, reference string) (*services.ReconcileResult, error)
}

// webhookReconcileTimeout caps the synchronous reconcile in Webhook. A run
// cut short leaves the payment where it was and is finished by the buyer's
// verify call or the gateway's redelivery.
const webhookReconcileTimeout = 15 * time.Second

type signatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

type PaymentHandler struct {
	checkout   checkoutService
	reconciler reconciler
	verifier   signatureVerifier
	logger     *slog.Logger
}

func NewPaymentHandler(checkout checkoutService, reconciler reconciler, verifier signatureVerifier, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		checkout:   checkout,
		reconciler: reconciler,
		verifier:   verifier,
		logger:     logger,
	}
}

// Checkout handles POST /api/checkout
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := decode(w, r, &req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}

	resp, err := h.checkout.Initialize(r.Context(), &req)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusCreated, resp)
}

// Verify handles GET /api/payments/verify?reference=
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		BadRequest(w, "reference query parameter is required")
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), reference, services.TriggerVerify)
	h.writeResult(w, result, err)
}

// Cancel handles POST /api/payments/{reference}/cancel
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.Cancel(r.Context(), chi.URLParam(r, "reference"))
	h.writeResult(w, result, err)
}

// writeResult reports a reconciliation outcome to the buyer. Success is only
// claimed when tickets exist.
func (h *PaymentHandler) writeResult(w http.ResponseWriter, result *services.ReconcileResult, err error) {
	switch {
	case err == nil:
	case errors.Is(err, services.ErrGatewayUnavailable) && result != nil:
		resp := verifyResponse(result)
		resp.Message = "Payment not yet confirmed. Please retry shortly."
		JSON(w, http.StatusServiceUnavailable, resp)
		return
	case errors.Is(err, services.ErrIssuanceFailed), errors.Is(err, services.ErrAmountMismatch),
		errors.Is(err, services.ErrPaymentClosed):
		if result == nil {
			ServiceError(w, h.logger, err)
			return
		}
		h.logger.Error("payment needs attention", "reference", result.Reference, "error", err)
		resp := verifyResponse(result)
		resp.Message = "Your payment was received but your tickets are not ready yet. Our team has been notified."
		JSON(w, http.StatusAccepted, resp)
		return
	default:
		ServiceError(w, h.logger, err)
		return
	}

	resp := verifyResponse(result)
	if !resp.Success {
		resp.Message = "Payment not completed."
	}
	JSON(w, http.StatusOK, resp)
}

func verifyResponse(result *services.ReconcileResult) *models.VerifyResponse {
	resp := &models.VerifyResponse{
		Success:         result.Success(),
		Status:          string(result.State),
		Reference:       result.Reference,
		ConfirmationIDs: result.ConfirmationIDs(),
	}
	if result.Event != nil {
		resp.EventTitle = result.Event.Title
	}
	if result.Payment != nil {
		resp.Amount = services.FormatAmount(result.Payment.Amount)
		resp.Currency = result.Payment.Currency
	}
	return resp
}

// Webhook handles POST /api/webhooks/paystack. Once the signature checks
// out the gateway always gets a 200, whatever reconciliation decided.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		BadRequest(w, "Unreadable body")
		return
	}

	if !h.verifier.VerifySignature(body, r.Header.Get(paystack.SignatureHeader)) {
		Unauthorized(w, "Invalid signature")
		return
	}

	event, err := paystack.ParseWebhook(body)
	if err != nil {
		h.logger.Warn("ignoring malformed webhook", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if event.Event != paystack.EventChargeSuccess {
		h.logger.Debug("ignoring webhook event", "event", event.Event, "reference", event.Reference)
		w.WriteHeader(http.StatusOK)
		return
	}

	// Reconciling before the 200 holds the gateway's connection for one
	// verify call and one issuance transaction at most.
	ctx, cancel := context.WithTimeout(r.Context(), webhookReconcileTimeout)
	defer cancel()

	if _, err := h.reconciler.ReconcileWebhook(ctx, event.Reference, event.Raw); err != nil {
		h.logger.Warn("webhook reconciliation incomplete", "reference", event.Reference, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}
