package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"eventpass-backend/middleware"
	"eventpass-backend/models"
	"eventpass-backend/services"

	"github.com/go-chi/chi/v5"
)

type payoutService interface {
	Available(ctx context.Context, organizerID string) (int64, error)
	Request(ctx context.Context, organizerID string, amount int64) (*models.Payout, error)
	Transition(ctx context.Context, payoutID, action string, note *string) (*models.Payout, error)
	List(ctx context.Context, organizerID string) ([]*models.Payout, error)
}

type PayoutHandler struct {
	payouts payoutService
	logger  *slog.Logger
}

func NewPayoutHandler(payouts payoutService, logger *slog.Logger) *PayoutHandler {
	return &PayoutHandler{
		payouts: payouts,
		logger:  logger,
	}
}

// Balance handles GET /api/organizer/payouts/balance
func (h *PayoutHandler) Balance(w http.ResponseWriter, r *http.Request) {
	organizerID := middleware.PrincipalFrom(r.Context()).Subject
	available, err := h.payouts.Available(r.Context(), organizerID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusOK, &models.BalanceResponse{
		OrganizerID: organizerID,
		Available:   available,
		Display:     services.FormatAmount(available),
	})
}

// List handles GET /api/organizer/payouts
func (h *PayoutHandler) List(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.payouts.List(r.Context(), middleware.PrincipalFrom(r.Context()).Subject)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}
	if payouts == nil {
		payouts = []*models.Payout{}
	}

	JSON(w, http.StatusOK, payouts)
}

// Request handles POST /api/organizer/payouts
func (h *PayoutHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req models.PayoutRequest
	if err := decode(w, r, &req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}

	payout, err := h.payouts.Request(r.Context(), middleware.PrincipalFrom(r.Context()).Subject, req.Amount)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusCreated, payout)
}

// Transition handles POST /api/admin/payouts/{id}/{action}
func (h *PayoutHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req models.PayoutActionRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			BadRequest(w, "Invalid request body")
			return
		}
	}

	payout, err := h.payouts.Transition(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "action"), req.Note)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusOK, payout)
}
