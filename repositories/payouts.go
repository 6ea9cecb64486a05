package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lucsky/cuid"

	"eventpass-backend/db"
	"eventpass-backend/models"
)

const payoutColumns = `id, organizer_id, amount, status, note, requested_at, processed_at`

type PayoutRepository struct {
	db *db.DB
}

func NewPayoutRepository(db *db.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// LockOrganizerTx bumps the organizer's payout version, taking a row lock
// that serializes concurrent payout requests for the same organizer.
func (r *PayoutRepository) LockOrganizerTx(ctx context.Context, tx *sqlx.Tx, organizerID string) (int64, error) {
	query := `UPDATE organizers SET payout_version = payout_version + 1 WHERE id = ?`

	result, err := tx.ExecContext(ctx, tx.Rebind(query), organizerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// EarningsTx sums the organizer share of every completed payment that
// produced tickets for the organizer's events.
func (r *PayoutRepository) EarningsTx(ctx context.Context, tx sqlx.QueryerContext, organizerID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(p.organizer_amount), 0)
		FROM payments p
		INNER JOIN events e ON e.id = p.event_id
		WHERE e.organizer_id = ? AND p.status = 'COMPLETED' AND p.tickets_issued = 1
	`

	var total int64
	err := sqlx.GetContext(ctx, tx, &total, rebind(tx, query), organizerID)
	return total, err
}

// CommittedTx sums payouts that are requested, in flight or paid out.
func (r *PayoutRepository) CommittedTx(ctx context.Context, tx sqlx.QueryerContext, organizerID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM payouts
		WHERE organizer_id = ? AND status NOT IN ('FAILED', 'CANCELLED')
	`

	var total int64
	err := sqlx.GetContext(ctx, tx, &total, rebind(tx, query), organizerID)
	return total, err
}

// CreatePayoutTx inserts a PENDING payout request.
func (r *PayoutRepository) CreatePayoutTx(ctx context.Context, tx *sqlx.Tx, p *models.Payout) error {
	if p.ID == "" {
		p.ID = cuid.New()
	}
	p.Status = models.PayoutPending
	p.RequestedAt = time.Now().UTC()

	query := `INSERT INTO payouts (id, organizer_id, amount, status, requested_at) VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, tx.Rebind(query), p.ID, p.OrganizerID, p.Amount, p.Status, p.RequestedAt)
	return err
}

// GetPayoutByID fetches a payout. Returns sql.ErrNoRows when missing.
func (r *PayoutRepository) GetPayoutByID(ctx context.Context, id string) (*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = ?`

	var payout models.Payout
	if err := r.db.GetContext(ctx, &payout, r.db.Rebind(query), id); err != nil {
		return nil, err
	}
	return &payout, nil
}

// ListByOrganizer returns an organizer's payouts, newest first.
func (r *PayoutRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE organizer_id = ? ORDER BY requested_at DESC, id DESC`

	payouts := []*models.Payout{}
	if err := r.db.SelectContext(ctx, &payouts, r.db.Rebind(query), organizerID); err != nil {
		return nil, err
	}
	return payouts, nil
}

// TransitionStatus moves a payout between statuses. processedAt is only
// written when non-nil.
func (r *PayoutRepository) TransitionStatus(ctx context.Context, id string, from, to models.PayoutStatus, note *string, processedAt *time.Time) (int64, error) {
	query := `
		UPDATE payouts
		SET status = ?, note = COALESCE(?, note), processed_at = COALESCE(?, processed_at)
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), to, note, processedAt, id, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DB returns the underlying handle for read-only balance queries.
func (r *PayoutRepository) DB() *db.DB {
	return r.db
}

func rebind(q sqlx.QueryerContext, query string) string {
	if b, ok := q.(interface{ Rebind(string) string }); ok {
		return b.Rebind(query)
	}
	return query
}
