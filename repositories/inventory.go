package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"eventpass-backend/db"
)

type InventoryRepository struct {
	db *db.DB
}

func NewInventoryRepository(db *db.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// ReserveTx atomically adds quantity to a ticket type's sold count.
// Returns the number of rows affected (1 if successful, 0 if the capacity
// would be exceeded or the ticket type does not exist).
func (r *InventoryRepository) ReserveTx(ctx context.Context, tx *sqlx.Tx, ticketTypeID string, quantity int) (int64, error) {
	query := `
		UPDATE ticket_types
		SET sold_count = sold_count + ?, updated_at = ?
		WHERE id = ?
		  AND (capacity IS NULL OR sold_count + ? <= capacity)
	`

	result, err := tx.ExecContext(ctx, tx.Rebind(query), quantity, time.Now().UTC(), ticketTypeID, quantity)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ReleaseTx gives capacity back when tickets are cancelled or refunded.
func (r *InventoryRepository) ReleaseTx(ctx context.Context, tx *sqlx.Tx, ticketTypeID string, quantity int) (int64, error) {
	query := `
		UPDATE ticket_types
		SET sold_count = sold_count - ?, updated_at = ?
		WHERE id = ? AND sold_count >= ?
	`

	result, err := tx.ExecContext(ctx, tx.Rebind(query), quantity, time.Now().UTC(), ticketTypeID, quantity)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetCapacityAndSold reads the current ledger position for a ticket type.
// capacity is nil for unlimited ticket types.
func (r *InventoryRepository) GetCapacityAndSold(ctx context.Context, ticketTypeID string) (*int64, int64, error) {
	query := `SELECT capacity, sold_count FROM ticket_types WHERE id = ?`

	var row struct {
		Capacity  *int64 `db:"capacity"`
		SoldCount int64  `db:"sold_count"`
	}
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), ticketTypeID); err != nil {
		return nil, 0, err
	}
	return row.Capacity, row.SoldCount, nil
}

// CountIssued counts tickets of a type that hold capacity (ACTIVE or USED).
func (r *InventoryRepository) CountIssued(ctx context.Context, ticketTypeID string) (int64, error) {
	query := `SELECT COUNT(*) FROM tickets WHERE ticket_type_id = ? AND status IN ('ACTIVE', 'USED')`

	var count int64
	err := r.db.GetContext(ctx, &count, r.db.Rebind(query), ticketTypeID)
	return count, err
}

// CountAttendeeTicketsTx counts an attendee's live tickets for an event.
func (r *InventoryRepository) CountAttendeeTicketsTx(ctx context.Context, tx *sqlx.Tx, eventID, email string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM tickets
		WHERE event_id = ? AND attendee_email = ? AND status IN ('ACTIVE', 'USED')
	`

	var count int64
	err := tx.GetContext(ctx, &count, tx.Rebind(query), eventID, email)
	return count, err
}

// RegisterAttendeeTx claims the (event, email) slot for a free booking. The
// primary key makes a second claim fail with a unique violation.
func (r *InventoryRepository) RegisterAttendeeTx(ctx context.Context, tx *sqlx.Tx, eventID, email, ticketID string) error {
	query := `INSERT INTO attendee_registrations (event_id, attendee_email, ticket_id) VALUES (?, ?, ?)`
	_, err := tx.ExecContext(ctx, tx.Rebind(query), eventID, email, ticketID)
	return err
}

// UnregisterAttendeeTx frees the slot held by ticketID, if any.
func (r *InventoryRepository) UnregisterAttendeeTx(ctx context.Context, tx *sqlx.Tx, eventID, email, ticketID string) error {
	query := `DELETE FROM attendee_registrations WHERE event_id = ? AND attendee_email = ? AND ticket_id = ?`
	_, err := tx.ExecContext(ctx, tx.Rebind(query), eventID, email, ticketID)
	return err
}
