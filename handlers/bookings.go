package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"eventpass-backend/middleware"
	"eventpass-backend/models"

	"github.com/go-chi/chi/v5"
)

type freeBooker interface {
	BookFree(ctx context.Context, req *models.FreeBookingRequest) ([]*models.Ticket, error)
}

type ticketService interface {
	Get(ctx context.Context, organizerID, code string) (*models.Ticket, error)
	CheckIn(ctx context.Context, organizerID, code string) (*models.Ticket, error)
	Cancel(ctx context.Context, organizerID, code string) (*models.Ticket, error)
}

type BookingHandler struct {
	bookings freeBooker
	tickets  ticketService
	logger   *slog.Logger
}

func NewBookingHandler(bookings freeBooker, tickets ticketService, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		tickets:  tickets,
		logger:   logger,
	}
}

// BookFree handles POST /api/bookings/free
func (h *BookingHandler) BookFree(w http.ResponseWriter, r *http.Request) {
	var req models.FreeBookingRequest
	if err := decode(w, r, &req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}

	tickets, err := h.bookings.BookFree(r.Context(), &req)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ConfirmationCode)
	}
	JSON(w, http.StatusCreated, &models.FreeBookingResponse{
		Success:         true,
		ConfirmationIDs: ids,
		TicketCount:     len(tickets),
	})
}

// GetTicket handles GET /api/tickets/{code}
func (h *BookingHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFrom(r.Context())
	ticket, err := h.tickets.Get(r.Context(), principal.OrganizerScope(), chi.URLParam(r, "code"))
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusOK, ticket)
}

// CheckIn handles POST /api/tickets/{code}/check-in
func (h *BookingHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFrom(r.Context())
	ticket, err := h.tickets.CheckIn(r.Context(), principal.OrganizerScope(), chi.URLParam(r, "code"))
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusOK, ticket)
}

// CancelTicket handles POST /api/tickets/{code}/cancel
func (h *BookingHandler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFrom(r.Context())
	ticket, err := h.tickets.Cancel(r.Context(), principal.OrganizerScope(), chi.URLParam(r, "code"))
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusOK, ticket)
}
