package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lucsky/cuid"

	"eventpass-backend/db"
	"eventpass-backend/models"
)

const ticketColumns = `id, event_id, ticket_type_id, payment_id, user_id, attendee_name, attendee_email,
	attendee_phone, confirmation_code, price, status, used_at, created_at`

type TicketRepository struct {
	db *db.DB
}

func NewTicketRepository(db *db.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// CreateTicketTx inserts a single ticket row inside tx.
func (r *TicketRepository) CreateTicketTx(ctx context.Context, tx *sqlx.Tx, t *models.Ticket) error {
	if t.ID == "" {
		t.ID = cuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tickets (id, event_id, ticket_type_id, payment_id, user_id, attendee_name, attendee_email,
			attendee_phone, confirmation_code, price, status, used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, tx.Rebind(query),
		t.ID, t.EventID, t.TicketTypeID, t.PaymentID, t.UserID, t.AttendeeName, t.AttendeeEmail,
		t.AttendeePhone, t.ConfirmationCode, t.Price, t.Status, t.UsedAt, t.CreatedAt)
	return err
}

// CodeExistsTx reports whether a confirmation code is already taken.
func (r *TicketRepository) CodeExistsTx(ctx context.Context, tx *sqlx.Tx, code string) (bool, error) {
	var count int
	err := tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM tickets WHERE confirmation_code = ?`), code)
	return count > 0, err
}

// ListByPaymentID returns the tickets issued for a payment in issue order.
func (r *TicketRepository) ListByPaymentID(ctx context.Context, paymentID string) ([]*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE payment_id = ? ORDER BY created_at, id`

	tickets := []*models.Ticket{}
	if err := r.db.SelectContext(ctx, &tickets, r.db.Rebind(query), paymentID); err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetByCode fetches a ticket by confirmation code.
func (r *TicketRepository) GetByCode(ctx context.Context, code string) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE confirmation_code = ?`

	var ticket models.Ticket
	if err := r.db.GetContext(ctx, &ticket, r.db.Rebind(query), code); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetByCodeTx fetches a ticket by confirmation code inside tx.
func (r *TicketRepository) GetByCodeTx(ctx context.Context, tx *sqlx.Tx, code string) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE confirmation_code = ?`

	var ticket models.Ticket
	if err := tx.GetContext(ctx, &ticket, tx.Rebind(query), code); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// TransitionStatusTx moves a ticket from one status to another. 0 rows
// affected means the ticket was no longer in the expected status.
func (r *TicketRepository) TransitionStatusTx(ctx context.Context, tx *sqlx.Tx, id string, from, to models.TicketStatus, usedAt *time.Time) (int64, error) {
	query := `UPDATE tickets SET status = ?, used_at = COALESCE(?, used_at) WHERE id = ? AND status = ?`

	result, err := tx.ExecContext(ctx, tx.Rebind(query), to, usedAt, id, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
