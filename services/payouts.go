package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"eventpass-backend/db"
	"eventpass-backend/models"
	"eventpass-backend/repositories"
)

type payoutTransition struct {
	from models.PayoutStatus
	to   models.PayoutStatus
}

var payoutActions = map[string]payoutTransition{
	"approve":  {models.PayoutPending, models.PayoutProcessing},
	"complete": {models.PayoutProcessing, models.PayoutCompleted},
	"fail":     {models.PayoutProcessing, models.PayoutFailed},
	"cancel":   {models.PayoutPending, models.PayoutCancelled},
}

// PayoutService manages organizer withdrawals against their earnings.
type PayoutService struct {
	db      *db.DB
	payouts *repositories.PayoutRepository
	events  *repositories.EventRepository
	logger  *slog.Logger
	now     func() time.Time
}

func NewPayoutService(database *db.DB, payouts *repositories.PayoutRepository, events *repositories.EventRepository, logger *slog.Logger) *PayoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayoutService{
		db:      database,
		payouts: payouts,
		events:  events,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Available is the organizer share of ticketed payments minus every payout
// that is not FAILED or CANCELLED.
func (s *PayoutService) Available(ctx context.Context, organizerID string) (int64, error) {
	if _, err := s.events.GetOrganizerByID(ctx, organizerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrOrganizerNotFound
		}
		return 0, err
	}
	return s.available(ctx, s.db, organizerID)
}

func (s *PayoutService) available(ctx context.Context, q sqlx.QueryerContext, organizerID string) (int64, error) {
	earned, err := s.payouts.EarningsTx(ctx, q, organizerID)
	if err != nil {
		return 0, err
	}
	committed, err := s.payouts.CommittedTx(ctx, q, organizerID)
	if err != nil {
		return 0, err
	}
	return earned - committed, nil
}

// Request creates a PENDING payout. Requests for one organizer are
// serialized by the payout_version bump, so two concurrent requests cannot
// both spend the same balance.
func (s *PayoutService) Request(ctx context.Context, organizerID string, amount int64) (*models.Payout, error) {
	if amount <= 0 {
		return nil, invalid("amount", "must be positive")
	}

	payout := &models.Payout{OrganizerID: organizerID, Amount: amount}
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.payouts.LockOrganizerTx(ctx, tx, organizerID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrOrganizerNotFound
		}

		available, err := s.available(ctx, tx, organizerID)
		if err != nil {
			return err
		}
		if amount > available {
			return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientBalance, FormatAmount(amount), FormatAmount(available))
		}
		return s.payouts.CreatePayoutTx(ctx, tx, payout)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payout requested", "payout_id", payout.ID, "organizer_id", organizerID, "amount", amount)
	return payout, nil
}

// Transition applies an admin action: approve, complete, fail or cancel.
func (s *PayoutService) Transition(ctx context.Context, payoutID, action string, note *string) (*models.Payout, error) {
	step, ok := payoutActions[action]
	if !ok {
		return nil, invalid("action", "must be one of approve, complete, fail, cancel")
	}

	payout, err := s.payouts.GetPayoutByID(ctx, payoutID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	if payout.Status != step.from {
		return nil, fmt.Errorf("%w: cannot %s a %s payout", ErrInvalidTransition, action, payout.Status)
	}

	var processedAt *time.Time
	if step.to != models.PayoutProcessing {
		now := s.now()
		processedAt = &now
	}

	rows, err := s.payouts.TransitionStatus(ctx, payoutID, step.from, step.to, note, processedAt)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: payout changed concurrently", ErrInvalidTransition)
	}

	s.logger.Info("payout transitioned", "payout_id", payoutID, "from", step.from, "to", step.to)
	return s.payouts.GetPayoutByID(ctx, payoutID)
}

func (s *PayoutService) List(ctx context.Context, organizerID string) ([]*models.Payout, error) {
	return s.payouts.ListByOrganizer(ctx, organizerID)
}
