package repositories

import (
	"context"
	"time"

	"github.com/lucsky/cuid"

	"eventpass-backend/db"
	"eventpass-backend/models"
)

type EventRepository struct {
	db *db.DB
}

func NewEventRepository(db *db.DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateOrganizer inserts an organizer, assigning an ID when none is set.
func (r *EventRepository) CreateOrganizer(ctx context.Context, o *models.Organizer) error {
	if o.ID == "" {
		o.ID = cuid.New()
	}
	query := `INSERT INTO organizers (id, name, email, payout_version) VALUES (?, ?, ?, 0)`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), o.ID, o.Name, o.Email)
	return err
}

// CreateEvent inserts an event, assigning an ID and creation time.
func (r *EventRepository) CreateEvent(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = cuid.New()
	}
	if e.Status == "" {
		e.Status = models.EventDraft
	}
	e.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO events (id, organizer_id, title, description, location, starts_at, ends_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		e.ID, e.OrganizerID, e.Title, e.Description, e.Location, e.StartsAt, e.EndsAt, e.Status, e.CreatedAt)
	return err
}

// GetEventByID fetches a single event. Returns sql.ErrNoRows when missing.
func (r *EventRepository) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	query := `
		SELECT id, organizer_id, title, description, location, starts_at, ends_at, status, created_at
		FROM events
		WHERE id = ?
	`

	var event models.Event
	if err := r.db.GetContext(ctx, &event, r.db.Rebind(query), id); err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateStatus sets an event's visibility status.
func (r *EventRepository) UpdateStatus(ctx context.Context, id string, status models.EventStatus) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE events SET status = ? WHERE id = ?`), status, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetOrganizerByID fetches an organizer. Returns sql.ErrNoRows when missing.
func (r *EventRepository) GetOrganizerByID(ctx context.Context, id string) (*models.Organizer, error) {
	query := `SELECT id, name, email, payout_version FROM organizers WHERE id = ?`

	var organizer models.Organizer
	if err := r.db.GetContext(ctx, &organizer, r.db.Rebind(query), id); err != nil {
		return nil, err
	}
	return &organizer, nil
}

// GetActiveEvents returns published events ordered by start time.
func (r *EventRepository) GetActiveEvents(ctx context.Context) ([]*models.Event, error) {
	query := `
		SELECT id, organizer_id, title, description, location, starts_at, ends_at, status, created_at
		FROM events
		WHERE status = 'active'
		ORDER BY starts_at, id
	`

	events := []*models.Event{}
	if err := r.db.SelectContext(ctx, &events, query); err != nil {
		return nil, err
	}
	return events, nil
}
