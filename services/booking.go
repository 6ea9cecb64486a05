package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"eventpass-backend/models"
	"eventpass-backend/monitoring"
	"eventpass-backend/notify"
	"eventpass-backend/repositories"
)

// BookingService handles free events. There is no gateway reference, so the
// one-ticket-per-email-per-event rule is what makes a repeated booking safe.
type BookingService struct {
	events      *repositories.EventRepository
	ticketTypes *repositories.TicketTypeRepository
	issuer      *TicketIssuer
	notifier    Notifier
	logger      *slog.Logger
}

func NewBookingService(
	events *repositories.EventRepository,
	ticketTypes *repositories.TicketTypeRepository,
	issuer *TicketIssuer,
	notifier Notifier,
	logger *slog.Logger,
) *BookingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingService{
		events:      events,
		ticketTypes: ticketTypes,
		issuer:      issuer,
		notifier:    notifier,
		logger:      logger,
	}
}

// BookFree issues one ticket per attendee, all or nothing.
func (s *BookingService) BookFree(ctx context.Context, req *models.FreeBookingRequest) ([]*models.Ticket, error) {
	v := &ValidationError{}
	if req.EventID == "" {
		v.Add("eventId", "is required")
	}
	if len(req.Tickets) == 0 {
		v.Add("tickets", "at least one ticket is required")
	}
	emails := make(map[string]int)
	for idx, line := range req.Tickets {
		if line == nil {
			continue
		}
		if line.Quantity != 1 {
			v.Add(fmt.Sprintf("tickets[%d].quantity", idx), "free events allow one ticket per attendee")
		}
		email := normalizeEmail(line.AttendeeEmail)
		if prev, dup := emails[email]; dup && email != "" {
			v.Add(fmt.Sprintf("tickets[%d].attendeeEmail", idx), fmt.Sprintf("same attendee as tickets[%d]", prev))
		} else {
			emails[email] = idx
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	event, err := s.events.GetEventByID(ctx, req.EventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventActive {
		return nil, ErrEventNotActive
	}

	lines := make([]*models.OrderLine, 0, len(req.Tickets))
	for _, line := range req.Tickets {
		if line == nil {
			lines = append(lines, nil)
			continue
		}
		lines = append(lines, &models.OrderLine{
			TicketTypeID:  line.TicketTypeID,
			Quantity:      line.Quantity,
			UnitPrice:     0,
			AttendeeName:  line.AttendeeName,
			AttendeeEmail: line.AttendeeEmail,
			AttendeePhone: line.AttendeePhone,
		})
	}

	tickets, err := s.issuer.Issue(ctx, &IssueRequest{
		EventID:  event.ID,
		Lines:    lines,
		FreeOnly: true,
	})
	if err != nil {
		return nil, err
	}

	monitoring.RecordTicketsIssued("free", len(tickets))
	s.logger.Info("free booking issued", "event_id", event.ID, "tickets", len(tickets))

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notify.Group(event, tickets, ticketTypeNames(ctx, s.ticketTypes, tickets)))
	}

	return tickets, nil
}

// ticketTypeNames looks up display names for confirmation emails. Lookup
// failures fall back to the ID inside notify.Group.
func ticketTypeNames(ctx context.Context, repo *repositories.TicketTypeRepository, tickets []*models.Ticket) map[string]string {
	names := make(map[string]string)
	for _, t := range tickets {
		if _, ok := names[t.TicketTypeID]; ok {
			continue
		}
		if tt, err := repo.GetTicketTypeByID(ctx, t.TicketTypeID); err == nil {
			names[t.TicketTypeID] = tt.Name
		}
	}
	return names
}
