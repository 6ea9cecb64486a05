package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eventpass-backend/models"
	"eventpass-backend/repositories"
)

type EventService struct {
	events       *repositories.EventRepository
	ticketTypes  *repositories.TicketTypeRepository
	availability *repositories.AvailabilityRepository
}

func NewEventService(events *repositories.EventRepository, ticketTypes *repositories.TicketTypeRepository, availability *repositories.AvailabilityRepository) *EventService {
	return &EventService{events: events, ticketTypes: ticketTypes, availability: availability}
}

func (s *EventService) ListActive(ctx context.Context) ([]*models.Event, error) {
	return s.events.GetActiveEvents(ctx)
}

// GetWithAvailability returns a public event with remaining capacity per
// ticket type. Draft events are not public.
func (s *EventService) GetWithAvailability(ctx context.Context, eventID string) (*models.EventResponse, error) {
	event, err := s.events.GetEventByID(ctx, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	if event.Status == models.EventDraft {
		return nil, ErrEventNotFound
	}

	ticketTypes, err := s.availability.GetEventAvailability(ctx, eventID)
	if err != nil {
		return nil, err
	}

	resp := &models.EventResponse{Event: event, TicketTypes: make([]*models.TicketTypeAvailability, 0, len(ticketTypes))}
	for _, tt := range ticketTypes {
		resp.TicketTypes = append(resp.TicketTypes, &models.TicketTypeAvailability{
			ID:        tt.ID,
			Name:      tt.Name,
			Price:     FormatAmount(tt.Price),
			Free:      tt.Price == 0,
			Remaining: tt.Remaining(),
		})
	}
	return resp, nil
}

// SetCapacity changes a ticket type's capacity. A finite capacity below the
// number already sold is rejected.
func (s *EventService) SetCapacity(ctx context.Context, ticketTypeID string, capacity *int64) error {
	if capacity != nil && *capacity < 0 {
		return invalid("capacity", "must not be negative")
	}
	rows, err := s.ticketTypes.UpdateCapacity(ctx, ticketTypeID, capacity)
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	if _, err := s.ticketTypes.GetTicketTypeByID(ctx, ticketTypeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTicketTypeNotFound
		}
		return err
	}
	if capacity == nil {
		return fmt.Errorf("update capacity of %s: no rows affected", ticketTypeID)
	}
	return invalid("capacity", fmt.Sprintf("cannot be lower than tickets already sold (%d requested)", *capacity))
}

// Audit lists ticket types whose sold counter disagrees with their tickets.
func (s *EventService) Audit(ctx context.Context) ([]*repositories.CounterDrift, error) {
	return s.availability.FindCounterDrift(ctx)
}
