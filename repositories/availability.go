package repositories

import (
	"context"

	"eventpass-backend/db"
	"eventpass-backend/models"
)

type AvailabilityRepository struct {
	db *db.DB
}

func NewAvailabilityRepository(db *db.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// GetEventAvailability fetches an event's ticket types with their current
// sold counts.
func (r *AvailabilityRepository) GetEventAvailability(ctx context.Context, eventID string) ([]*models.TicketType, error) {
	query := `
		SELECT id, event_id, name, price, capacity, sold_count, created_at, updated_at
		FROM ticket_types
		WHERE event_id = ?
		ORDER BY price, name, id
	`

	ticketTypes := []*models.TicketType{}
	if err := r.db.SelectContext(ctx, &ticketTypes, r.db.Rebind(query), eventID); err != nil {
		return nil, err
	}
	return ticketTypes, nil
}

// CounterDrift is a ticket type whose sold_count disagrees with its live
// ticket rows.
type CounterDrift struct {
	TicketTypeID string `db:"ticket_type_id" json:"ticketTypeId"`
	SoldCount    int64  `db:"sold_count" json:"soldCount"`
	Issued       int64  `db:"issued" json:"issued"`
}

// FindCounterDrift audits the ledger counter against a COUNT of ACTIVE and
// USED tickets. An empty result means the ledger is consistent.
func (r *AvailabilityRepository) FindCounterDrift(ctx context.Context) ([]*CounterDrift, error) {
	query := `
		SELECT tt.id AS ticket_type_id, tt.sold_count, COUNT(t.id) AS issued
		FROM ticket_types tt
		LEFT JOIN tickets t ON t.ticket_type_id = tt.id AND t.status IN ('ACTIVE', 'USED')
		GROUP BY tt.id, tt.sold_count
		HAVING tt.sold_count <> COUNT(t.id)
		ORDER BY tt.id
	`

	drifts := []*CounterDrift{}
	if err := r.db.SelectContext(ctx, &drifts, query); err != nil {
		return nil, err
	}
	return drifts, nil
}
