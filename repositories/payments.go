package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lucsky/cuid"

	"eventpass-backend/db"
	"eventpass-backend/models"
)

const paymentColumns = `id, reference, event_id, user_id, email, amount, currency, status, platform_fee,
	organizer_amount, metadata, webhook_data, tickets_issued, issue_attempts, last_issue_error, paid_at,
	created_at, updated_at`

type PaymentRepository struct {
	db *db.DB
}

func NewPaymentRepository(db *db.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreatePayment inserts a PENDING payment. The reference must be unique.
func (r *PaymentRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = cuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Status = models.PaymentPending
	p.TicketsIssued = false

	query := `
		INSERT INTO payments (id, reference, event_id, user_id, email, amount, currency, status, platform_fee,
			organizer_amount, metadata, tickets_issued, issue_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		p.ID, p.Reference, p.EventID, p.UserID, p.Email, p.Amount, p.Currency, p.Status, p.PlatformFee,
		p.OrganizerAmount, p.Metadata, p.CreatedAt, p.UpdatedAt)
	return err
}

// GetByReference fetches a payment by gateway reference. Returns
// sql.ErrNoRows when missing.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = ?`

	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, r.db.Rebind(query), reference); err != nil {
		return nil, err
	}
	return &payment, nil
}

// RecordGatewayPayload overwrites webhook_data with the latest gateway
// payload, whatever the payment's status.
func (r *PaymentRepository) RecordGatewayPayload(ctx context.Context, reference string, payload string) error {
	query := `UPDATE payments SET webhook_data = ?, updated_at = ? WHERE reference = ?`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), payload, time.Now().UTC(), reference)
	return err
}

// MarkCompleted is the PENDING -> COMPLETED compare-and-swap. Exactly one
// caller observes 1 row affected.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, reference string, paidAt time.Time, webhookData string) (int64, error) {
	query := `
		UPDATE payments
		SET status = 'COMPLETED', paid_at = ?, webhook_data = COALESCE(?, webhook_data), updated_at = ?
		WHERE reference = ? AND status = 'PENDING'
	`

	var data any
	if webhookData != "" {
		data = webhookData
	}
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), paidAt, data, time.Now().UTC(), reference)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MarkClosed moves a PENDING payment to a terminal non-success status.
func (r *PaymentRepository) MarkClosed(ctx context.Context, reference string, status models.PaymentStatus) (int64, error) {
	query := `UPDATE payments SET status = ?, updated_at = ? WHERE reference = ? AND status = 'PENDING'`

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), status, time.Now().UTC(), reference)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ClaimIssuanceTx is the exactly-once gate for ticket creation: it flips
// tickets_issued from 0 to 1 on a COMPLETED payment. Run it in the same
// transaction as the ticket inserts so a failed issuance releases the claim.
func (r *PaymentRepository) ClaimIssuanceTx(ctx context.Context, tx *sqlx.Tx, paymentID string) (int64, error) {
	query := `
		UPDATE payments
		SET tickets_issued = 1, issue_attempts = issue_attempts + 1, last_issue_error = NULL, updated_at = ?
		WHERE id = ? AND status = 'COMPLETED' AND tickets_issued = 0
	`

	result, err := tx.ExecContext(ctx, tx.Rebind(query), time.Now().UTC(), paymentID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RecordIssueFailure notes a failed issuance attempt on a payment that still
// has no tickets.
func (r *PaymentRepository) RecordIssueFailure(ctx context.Context, paymentID, reason string) error {
	query := `
		UPDATE payments
		SET issue_attempts = issue_attempts + 1, last_issue_error = ?, updated_at = ?
		WHERE id = ? AND tickets_issued = 0
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), reason, time.Now().UTC(), paymentID)
	return err
}

// ListAnomalies returns paid payments that have no tickets, oldest first.
func (r *PaymentRepository) ListAnomalies(ctx context.Context, limit int) ([]*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'COMPLETED' AND tickets_issued = 0
		ORDER BY paid_at, id
		LIMIT ?
	`

	payments := []*models.Payment{}
	if err := r.db.SelectContext(ctx, &payments, r.db.Rebind(query), limit); err != nil {
		return nil, err
	}
	return payments, nil
}
