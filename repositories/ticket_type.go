package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lucsky/cuid"

	"eventpass-backend/db"
	"eventpass-backend/models"
)

const ticketTypeColumns = `id, event_id, name, price, capacity, sold_count, created_at, updated_at`

type TicketTypeRepository struct {
	db *db.DB
}

func NewTicketTypeRepository(db *db.DB) *TicketTypeRepository {
	return &TicketTypeRepository{db: db}
}

// CreateTicketType inserts a ticket type with no tickets sold.
func (r *TicketTypeRepository) CreateTicketType(ctx context.Context, tt *models.TicketType) error {
	if tt.ID == "" {
		tt.ID = cuid.New()
	}
	now := time.Now().UTC()
	tt.CreatedAt, tt.UpdatedAt, tt.SoldCount = now, now, 0

	query := `
		INSERT INTO ticket_types (id, event_id, name, price, capacity, sold_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		tt.ID, tt.EventID, tt.Name, tt.Price, tt.Capacity, tt.CreatedAt, tt.UpdatedAt)
	return err
}

// GetTicketTypeByID fetches a ticket type by ID
func (r *TicketTypeRepository) GetTicketTypeByID(ctx context.Context, id string) (*models.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE id = ?`

	var ticketType models.TicketType
	if err := r.db.GetContext(ctx, &ticketType, r.db.Rebind(query), id); err != nil {
		return nil, err
	}
	return &ticketType, nil
}

// GetTicketTypesTx loads the given ticket types inside tx, keyed by ID.
// Missing IDs are simply absent from the result.
func (r *TicketTypeRepository) GetTicketTypesTx(ctx context.Context, tx *sqlx.Tx, ids []string) (map[string]*models.TicketType, error) {
	result := make(map[string]*models.TicketType, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var rows []*models.TicketType
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, tt := range rows {
		result[tt.ID] = tt
	}
	return result, nil
}

// UpdatePrice changes the price for future purchases. Issued tickets keep
// the price they were sold at.
func (r *TicketTypeRepository) UpdatePrice(ctx context.Context, id string, price int64) (int64, error) {
	query := `UPDATE ticket_types SET price = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), price, time.Now().UTC(), id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateCapacity sets a new capacity. A finite capacity is only applied when
// it is not below the number of tickets already sold; 0 rows affected means
// the guard rejected it (or the ticket type does not exist).
func (r *TicketTypeRepository) UpdateCapacity(ctx context.Context, id string, capacity *int64) (int64, error) {
	now := time.Now().UTC()

	var (
		query string
		args  []interface{}
	)
	if capacity == nil {
		query = `UPDATE ticket_types SET capacity = NULL, updated_at = ? WHERE id = ?`
		args = []interface{}{now, id}
	} else {
		query = `UPDATE ticket_types SET capacity = ?, updated_at = ? WHERE id = ? AND sold_count <= ?`
		args = []interface{}{*capacity, now, id, *capacity}
	}

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
