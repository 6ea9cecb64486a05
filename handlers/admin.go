package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"eventpass-backend/models"
	"eventpass-backend/repositories"
	"eventpass-backend/services"

	"github.com/go-chi/chi/v5"
)

type reconciliationTools interface {
	ListAnomalies(ctx context.Context, limit int) ([]*models.Payment, error)
	Retry(ctx context.Context, reference string) (*services.ReconcileResult, error)
}

type inventoryTools interface {
	SetCapacity(ctx context.Context, ticketTypeID string, capacity *int64) error
	Audit(ctx context.Context) ([]*repositories.CounterDrift, error)
}

type AdminHandler struct {
	reconciliation reconciliationTools
	inventory      inventoryTools
	logger         *slog.Logger
}

func NewAdminHandler(reconciliation reconciliationTools, inventory inventoryTools, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		reconciliation: reconciliation,
		inventory:      inventory,
		logger:         logger,
	}
}

// Anomalies handles GET /api/admin/reconciliation/anomalies?limit=
func (h *AdminHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			BadRequest(w, "limit must be a number")
			return
		}
		limit = n
	}

	payments, err := h.reconciliation.ListAnomalies(r.Context(), limit)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}
	if payments == nil {
		payments = []*models.Payment{}
	}

	JSON(w, http.StatusOK, payments)
}

// Retry handles POST /api/admin/reconciliation/{reference}/retry
func (h *AdminHandler) Retry(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciliation.Retry(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusOK, verifyResponse(result))
}

type capacityRequest struct {
	Capacity *int64 `json:"capacity"`
}

// SetCapacity handles PUT /api/admin/ticket-types/{id}/capacity
func (h *AdminHandler) SetCapacity(w http.ResponseWriter, r *http.Request) {
	var req capacityRequest
	if err := decode(w, r, &req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}

	if err := h.inventory.SetCapacity(r.Context(), chi.URLParam(r, "id"), req.Capacity); err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Audit handles GET /api/admin/inventory/audit
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	drift, err := h.inventory.Audit(r.Context())
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}
	if drift == nil {
		drift = []*repositories.CounterDrift{}
	}

	JSON(w, http.StatusOK, drift)
}
