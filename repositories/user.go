package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lucsky/cuid"

	"eventpass-backend/db"
	"eventpass-backend/models"
)

type UserRepository struct {
	db *db.DB
}

func NewUserRepository(db *db.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a registered buyer. Emails are stored lower-cased.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = cuid.New()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	query := `INSERT INTO users (id, email, name) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), user.ID, user.Email, user.Name)
	return err
}

// GetUserByEmail fetches a user by email.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, email, name FROM users WHERE email = ?`

	var user models.User
	if err := r.db.GetContext(ctx, &user, r.db.Rebind(query), strings.ToLower(strings.TrimSpace(email))); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindIDByEmailTx returns the id of the user registered under email, or nil
// when the attendee is a guest.
func (r *UserRepository) FindIDByEmailTx(ctx context.Context, tx *sqlx.Tx, email string) (*string, error) {
	query := `SELECT id FROM users WHERE email = ?`

	var id string
	err := tx.GetContext(ctx, &id, tx.Rebind(query), strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}
