package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"eventpass-backend/models"

	"github.com/go-chi/chi/v5"
)

type eventService interface {
	ListActive(ctx context.Context) ([]*models.Event, error)
	GetWithAvailability(ctx context.Context, eventID string) (*models.EventResponse, error)
}

type EventHandler struct {
	events eventService
	logger *slog.Logger
}

func NewEventHandler(events eventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger,
	}
}

// GetEvents handles GET /api/events
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListActive(r.Context())
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}
	if events == nil {
		events = []*models.Event{}
	}

	JSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	resp, err := h.events.GetWithAvailability(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}
