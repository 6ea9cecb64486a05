package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"eventpass-backend/db"
	"eventpass-backend/models"
	"eventpass-backend/repositories"
)

// TicketService covers what happens to a ticket after issuance.
type TicketService struct {
	db        *db.DB
	tickets   *repositories.TicketRepository
	events    *repositories.EventRepository
	inventory *repositories.InventoryRepository
	ledger    *InventoryLedger
	now       func() time.Time
}

func NewTicketService(
	database *db.DB,
	tickets *repositories.TicketRepository,
	events *repositories.EventRepository,
	inventory *repositories.InventoryRepository,
	ledger *InventoryLedger,
) *TicketService {
	return &TicketService{
		db:        database,
		tickets:   tickets,
		events:    events,
		inventory: inventory,
		ledger:    ledger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetByCode looks a ticket up by its confirmation code.
func (s *TicketService) GetByCode(ctx context.Context, code string) (*models.Ticket, error) {
	ticket, err := s.tickets.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return ticket, err
}

// Get returns a ticket the organizer may see; pass "" for admins.
func (s *TicketService) Get(ctx context.Context, organizerID, code string) (*models.Ticket, error) {
	return s.authorized(ctx, organizerID, code)
}

// CheckIn marks an ACTIVE ticket USED. organizerID limits the operation to
// the event's organizer; pass "" for admins.
func (s *TicketService) CheckIn(ctx context.Context, organizerID, code string) (*models.Ticket, error) {
	ticket, err := s.authorized(ctx, organizerID, code)
	if err != nil {
		return nil, err
	}

	usedAt := s.now()
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.tickets.TransitionStatusTx(ctx, tx, ticket.ID, models.TicketActive, models.TicketUsed, &usedAt)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: ticket is %s", ErrInvalidTransition, ticket.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ticket.Status = models.TicketUsed
	ticket.UsedAt = &usedAt
	return ticket, nil
}

// Cancel voids an ACTIVE ticket, returns its capacity to the ledger and
// frees the attendee's slot for the event.
func (s *TicketService) Cancel(ctx context.Context, organizerID, code string) (*models.Ticket, error) {
	ticket, err := s.authorized(ctx, organizerID, code)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.tickets.TransitionStatusTx(ctx, tx, ticket.ID, models.TicketActive, models.TicketCancelled, nil)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: ticket is %s", ErrInvalidTransition, ticket.Status)
		}
		if err := s.ledger.ReleaseTx(ctx, tx, ticket.TicketTypeID, 1); err != nil {
			return err
		}
		return s.inventory.UnregisterAttendeeTx(ctx, tx, ticket.EventID, ticket.AttendeeEmail, ticket.ID)
	})
	if err != nil {
		return nil, err
	}

	ticket.Status = models.TicketCancelled
	return ticket, nil
}

func (s *TicketService) authorized(ctx context.Context, organizerID, code string) (*models.Ticket, error) {
	ticket, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if organizerID == "" {
		return ticket, nil
	}

	event, err := s.events.GetEventByID(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		return nil, ErrForbidden
	}
	return ticket, nil
}
