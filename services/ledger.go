package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"eventpass-backend/db"
	"eventpass-backend/models"
	"eventpass-backend/repositories"
)

// InventoryLedger answers capacity questions for ticket types. Only ReserveTx
// is authoritative; HasCapacity is advisory and may be stale by the time the
// order is issued.
type InventoryLedger struct {
	inventory *repositories.InventoryRepository
}

func NewInventoryLedger(inventory *repositories.InventoryRepository) *InventoryLedger {
	return &InventoryLedger{inventory: inventory}
}

// HasCapacity reports whether quantity more tickets of the type would fit.
func (l *InventoryLedger) HasCapacity(ctx context.Context, ticketTypeID string, quantity int) (bool, error) {
	capacity, sold, err := l.inventory.GetCapacityAndSold(ctx, ticketTypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrTicketTypeNotFound
		}
		return false, err
	}
	if capacity == nil {
		return true, nil
	}
	return sold+int64(quantity) <= *capacity, nil
}

// ReserveTx takes quantity units of capacity inside tx or fails with
// ErrSoldOut. The conditional update holds the row lock until tx ends, so
// two buyers of the last ticket cannot both succeed.
func (l *InventoryLedger) ReserveTx(ctx context.Context, tx *sqlx.Tx, tt *models.TicketType, quantity int) error {
	rows, err := l.inventory.ReserveTx(ctx, tx, tt.ID, quantity)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: not enough %q tickets left (requested %d)", ErrSoldOut, tt.Name, quantity)
	}
	return nil
}

// ReleaseTx returns capacity held by cancelled or refunded tickets.
func (l *InventoryLedger) ReleaseTx(ctx context.Context, tx *sqlx.Tx, ticketTypeID string, quantity int) error {
	rows, err := l.inventory.ReleaseTx(ctx, tx, ticketTypeID, quantity)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("release %d from ticket type %s: sold count would go negative", quantity, ticketTypeID)
	}
	return nil
}

// ClaimAttendeeTx enforces one live ticket per attendee email per event.
func (l *InventoryLedger) ClaimAttendeeTx(ctx context.Context, tx *sqlx.Tx, eventID, email, ticketID string) error {
	existing, err := l.inventory.CountAttendeeTicketsTx(ctx, tx, eventID, email)
	if err != nil {
		return err
	}
	if existing > 0 {
		return fmt.Errorf("%w: %s already has a ticket for this event", ErrDuplicateAttendee, email)
	}

	if err := l.inventory.RegisterAttendeeTx(ctx, tx, eventID, email, ticketID); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s already has a ticket for this event", ErrDuplicateAttendee, email)
		}
		return err
	}
	return nil
}

// IssuedCount counts ACTIVE and USED tickets of a type directly from the
// tickets table.
func (l *InventoryLedger) IssuedCount(ctx context.Context, ticketTypeID string) (int64, error) {
	return l.inventory.CountIssued(ctx, ticketTypeID)
}
