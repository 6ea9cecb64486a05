package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"eventpass-backend/db"
	"eventpass-backend/gateway"
	"eventpass-backend/models"
	"eventpass-backend/monitoring"
	"eventpass-backend/notify"
	"eventpass-backend/repositories"
)

// Gateway is the payment provider as seen by checkout and reconciliation.
type Gateway interface {
	Verify(ctx context.Context, reference string) (*gateway.Transaction, error)
	Initialize(ctx context.Context, req *gateway.InitializeRequest) (*gateway.InitializeResult, error)
}

// Notifier receives confirmations after tickets are committed.
type Notifier interface {
	Dispatch(ctx context.Context, confirmations []*notify.Confirmation)
}

type Trigger string

const (
	TriggerWebhook Trigger = "webhook"
	TriggerVerify  Trigger = "verify"
	TriggerRetry   Trigger = "retry"
	TriggerCancel  Trigger = "cancel"
)

// State is the reconciliation view of a payment.
type State string

const (
	StatePending              State = "PENDING"
	StateCompletedNoTickets   State = "COMPLETED_NO_TICKETS"
	StateCompletedWithTickets State = "COMPLETED_WITH_TICKETS"
	StateFailed               State = "FAILED"
	StateCancelled            State = "CANCELLED"
	StateRefunded             State = "REFUNDED"
)

const (
	AnomalyPaymentNotFound     = "payment_not_found"
	AnomalyCompletedNoTickets  = "completed_no_tickets"
	AnomalyAmountMismatch      = "amount_mismatch"
	AnomalyPaidAfterClose      = "paid_after_close"
	AnomalyInvalidOrderPayload = "invalid_order_snapshot"
)

// StateOf derives the reconciliation state from a stored payment.
func StateOf(p *models.Payment) State {
	switch p.Status {
	case models.PaymentCompleted:
		if p.TicketsIssued {
			return StateCompletedWithTickets
		}
		return StateCompletedNoTickets
	case models.PaymentFailed:
		return StateFailed
	case models.PaymentCancelled:
		return StateCancelled
	case models.PaymentRefunded:
		return StateRefunded
	default:
		return StatePending
	}
}

// ReconcileResult is what a caller may show the buyer. Tickets is only
// non-empty when State is COMPLETED_WITH_TICKETS.
type ReconcileResult struct {
	Reference     string
	State         State
	GatewayStatus string
	Payment       *models.Payment
	Event         *models.Event
	Tickets       []*models.Ticket
}

func (r *ReconcileResult) Success() bool {
	return r.State == StateCompletedWithTickets && len(r.Tickets) > 0
}

func (r *ReconcileResult) ConfirmationIDs() []string {
	ids := make([]string, 0, len(r.Tickets))
	for _, t := range r.Tickets {
		ids = append(ids, t.ConfirmationCode)
	}
	return ids
}

// Reconciler confirms payments with the gateway and issues their tickets
// exactly once. Webhooks, client verification and operator retries all go
// through Reconcile.
type Reconciler struct {
	db          *db.DB
	payments    *repositories.PaymentRepository
	tickets     *repositories.TicketRepository
	events      *repositories.EventRepository
	ticketTypes *repositories.TicketTypeRepository
	issuer      *TicketIssuer
	gateway     Gateway
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time
}

func NewReconciler(
	database *db.DB,
	payments *repositories.PaymentRepository,
	tickets *repositories.TicketRepository,
	events *repositories.EventRepository,
	ticketTypes *repositories.TicketTypeRepository,
	issuer *TicketIssuer,
	gw Gateway,
	notifier Notifier,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		db:          database,
		payments:    payments,
		tickets:     tickets,
		events:      events,
		ticketTypes: ticketTypes,
		issuer:      issuer,
		gateway:     gw,
		notifier:    notifier,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile is safe to call any number of times, concurrently, for the same
// reference. The gateway is the only source of truth for whether money
// moved; any failure to reach it fails closed with ErrGatewayUnavailable.
func (r *Reconciler) Reconcile(ctx context.Context, reference string, trigger Trigger) (*ReconcileResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, invalid("reference", "is required")
	}

	result, outcome, err := r.reconcile(ctx, reference, trigger, nil)
	monitoring.RecordReconcile(string(trigger), outcome)
	return result, err
}

// ReconcileWebhook is Reconcile for a charge.success callback. The callback
// body becomes the payment's stored gateway payload, even when the gateway
// cannot be reached to confirm it.
func (r *Reconciler) ReconcileWebhook(ctx context.Context, reference string, payload []byte) (*ReconcileResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, invalid("reference", "is required")
	}

	result, outcome, err := r.reconcile(ctx, reference, TriggerWebhook, payload)
	monitoring.RecordReconcile(string(TriggerWebhook), outcome)
	return result, err
}

// reconcile runs one pass. pushed is a payload the gateway sent us; when
// empty, the verification response is what gets stored.
func (r *Reconciler) reconcile(ctx context.Context, reference string, trigger Trigger, pushed []byte) (*ReconcileResult, string, error) {
	log := r.logger.With("reference", reference, "trigger", string(trigger))

	payment, err := r.payments.GetByReference(ctx, reference)
	if errors.Is(err, sql.ErrNoRows) {
		r.reportMissingPayment(ctx, log, reference)
		return nil, "payment_not_found", fmt.Errorf("%w: %s", ErrPaymentNotFound, reference)
	}
	if err != nil {
		return nil, "error", err
	}

	// Tickets exist, so money was confirmed by an earlier run.
	if payment.TicketsIssued {
		result, err := r.issuedResult(ctx, payment, "")
		return result, "already_issued", err
	}

	if len(pushed) > 0 {
		r.recordPayload(ctx, log, payment, pushed)
	}

	txn, err := r.verify(ctx, reference)
	if err != nil {
		log.Warn("gateway verification failed", "error", err)
		return r.currentResult(ctx, payment, ""), "gateway_unavailable", err
	}

	payload := pushed
	if len(payload) == 0 {
		payload = txn.Raw
		r.recordPayload(ctx, log, payment, payload)
	}
	return r.apply(ctx, log, payment, txn, payload, trigger)
}

// apply moves a payment forward given a verified gateway transaction.
// payload is the gateway answer already stored for this pass.
func (r *Reconciler) apply(ctx context.Context, log *slog.Logger, payment *models.Payment, txn *gateway.Transaction, payload []byte, trigger Trigger) (*ReconcileResult, string, error) {
	if !txn.Succeeded() {
		log.Info("gateway reports payment not successful", "gateway_status", txn.Status)
		return r.currentResult(ctx, payment, txn.Status), "not_successful", nil
	}

	if txn.Amount != payment.Amount || (txn.Currency != "" && !strings.EqualFold(txn.Currency, payment.Currency)) {
		r.anomaly(ctx, log, AnomalyAmountMismatch,
			"expected_amount", payment.Amount, "expected_currency", payment.Currency,
			"gateway_amount", txn.Amount, "gateway_currency", txn.Currency)
		return r.currentResult(ctx, payment, txn.Status), AnomalyAmountMismatch,
			fmt.Errorf("%w: gateway reported %d %s, payment is %d %s",
				ErrAmountMismatch, txn.Amount, txn.Currency, payment.Amount, payment.Currency)
	}

	if payment.Status == models.PaymentPending {
		paidAt := r.now()
		if txn.PaidAt != nil {
			paidAt = txn.PaidAt.UTC()
		}
		// 0 rows means another caller completed or closed it first; the
		// reload below shows which.
		if _, err := r.payments.MarkCompleted(ctx, payment.Reference, paidAt, string(payload)); err != nil {
			return nil, "error", err
		}
		reloaded, err := r.payments.GetByReference(ctx, payment.Reference)
		if err != nil {
			return nil, "error", err
		}
		payment = reloaded
	}

	if payment.Status != models.PaymentCompleted {
		r.anomaly(ctx, log, AnomalyPaidAfterClose, "status", string(payment.Status))
		return r.currentResult(ctx, payment, txn.Status), AnomalyPaidAfterClose,
			fmt.Errorf("%w: payment is %s but gateway reports success", ErrPaymentClosed, payment.Status)
	}

	return r.issue(ctx, log, payment, txn.Status, trigger)
}

func (r *Reconciler) issue(ctx context.Context, log *slog.Logger, payment *models.Payment, gatewayStatus string, trigger Trigger) (*ReconcileResult, string, error) {
	snapshot, err := models.DecodeOrderSnapshot(payment.Metadata)
	if err != nil {
		r.recordIssueFailure(ctx, log, payment, AnomalyInvalidOrderPayload, err)
		return r.currentResult(ctx, payment, gatewayStatus), AnomalyCompletedNoTickets,
			fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
	}

	if snapshot.EventID != payment.EventID {
		err := fmt.Errorf("order snapshot is for event %s, payment is for event %s", snapshot.EventID, payment.EventID)
		r.recordIssueFailure(ctx, log, payment, AnomalyInvalidOrderPayload, err)
		return r.currentResult(ctx, payment, gatewayStatus), AnomalyCompletedNoTickets,
			fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
	}

	var (
		issued  []*models.Ticket
		claimed bool
	)
	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := r.payments.ClaimIssuanceTx(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		claimed = true

		paymentID := payment.ID
		issued, err = r.issuer.IssueTx(ctx, tx, &IssueRequest{
			EventID:    snapshot.EventID,
			Lines:      snapshot.Lines,
			PaymentID:  &paymentID,
			CheckPrice: true,
		})
		return err
	})
	if err != nil {
		r.recordIssueFailure(ctx, log, payment, AnomalyCompletedNoTickets, err)
		return r.currentResult(ctx, payment, gatewayStatus), AnomalyCompletedNoTickets,
			fmt.Errorf("%w: %w", ErrIssuanceFailed, err)
	}

	if !claimed {
		// Another caller issued between our read and our claim.
		reloaded, err := r.payments.GetByReference(ctx, payment.Reference)
		if err != nil {
			return nil, "error", err
		}
		result, err := r.issuedResult(ctx, reloaded, gatewayStatus)
		return result, "already_issued", err
	}

	payment.TicketsIssued = true
	log.Info("tickets issued", "payment_id", payment.ID, "tickets", len(issued))
	monitoring.RecordTicketsIssued("paid", len(issued))

	event, err := r.events.GetEventByID(ctx, payment.EventID)
	if err != nil {
		log.Warn("load event for confirmation", "error", err)
	}
	r.notify(ctx, event, issued)

	return &ReconcileResult{
		Reference:     payment.Reference,
		State:         StateCompletedWithTickets,
		GatewayStatus: gatewayStatus,
		Payment:       payment,
		Event:         event,
		Tickets:       issued,
	}, "issued", nil
}

// Cancel closes a checkout the buyer walked away from. The gateway is asked
// first; a payment it reports as paid is reconciled instead.
func (r *Reconciler) Cancel(ctx context.Context, reference string) (*ReconcileResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, invalid("reference", "is required")
	}
	log := r.logger.With("reference", reference, "trigger", string(TriggerCancel))

	payment, err := r.payments.GetByReference(ctx, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, reference)
	}
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentPending {
		return r.currentResult(ctx, payment, ""), nil
	}

	txn, err := r.verify(ctx, reference)
	if err != nil {
		monitoring.RecordReconcile(string(TriggerCancel), "gateway_unavailable")
		return r.currentResult(ctx, payment, ""), err
	}
	r.recordPayload(ctx, log, payment, txn.Raw)
	if txn.Succeeded() {
		result, outcome, err := r.apply(ctx, log, payment, txn, txn.Raw, TriggerCancel)
		monitoring.RecordReconcile(string(TriggerCancel), outcome)
		return result, err
	}

	if _, err := r.payments.MarkClosed(ctx, reference, models.PaymentCancelled); err != nil {
		return nil, err
	}
	reloaded, err := r.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	monitoring.RecordReconcile(string(TriggerCancel), "cancelled")
	log.Info("checkout cancelled", "gateway_status", txn.Status)
	return r.currentResult(ctx, reloaded, txn.Status), nil
}

// Retry re-runs reconciliation for an operator, typically on a payment
// listed by ListAnomalies.
func (r *Reconciler) Retry(ctx context.Context, reference string) (*ReconcileResult, error) {
	return r.Reconcile(ctx, reference, TriggerRetry)
}

// ListAnomalies returns paid payments that still have no tickets.
func (r *Reconciler) ListAnomalies(ctx context.Context, limit int) ([]*models.Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.payments.ListAnomalies(ctx, limit)
}

func (r *Reconciler) verify(ctx context.Context, reference string) (*gateway.Transaction, error) {
	txn, err := r.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if txn == nil {
		return nil, fmt.Errorf("%w: empty verification response", ErrGatewayUnavailable)
	}
	return txn, nil
}

// reportMissingPayment only raises an anomaly when the gateway confirms
// money moved for a reference we have no record of.
func (r *Reconciler) reportMissingPayment(ctx context.Context, log *slog.Logger, reference string) {
	txn, err := r.verify(ctx, reference)
	if err != nil {
		log.Warn("payment not found and gateway unreachable", "error", err)
		return
	}
	if txn.Succeeded() {
		r.anomaly(ctx, log, AnomalyPaymentNotFound, "gateway_amount", txn.Amount, "gateway_currency", txn.Currency)
		return
	}
	log.Info("verification for unknown reference", "gateway_status", txn.Status)
}

// recordPayload keeps the latest gateway answer on the payment. A failed
// write is logged and does not stop reconciliation.
func (r *Reconciler) recordPayload(ctx context.Context, log *slog.Logger, payment *models.Payment, payload []byte) {
	if len(payload) == 0 {
		return
	}
	if !json.Valid(payload) {
		log.Warn("gateway payload is not JSON, not stored", "bytes", len(payload))
		return
	}
	if err := r.payments.RecordGatewayPayload(ctx, payment.Reference, string(payload)); err != nil {
		log.Error("record gateway payload", "error", err)
		return
	}
	stored := string(payload)
	payment.WebhookData = &stored
}

func (r *Reconciler) recordIssueFailure(ctx context.Context, log *slog.Logger, payment *models.Payment, kind string, cause error) {
	if err := r.payments.RecordIssueFailure(ctx, payment.ID, cause.Error()); err != nil {
		log.Error("record issuance failure", "error", err)
	}
	r.anomaly(ctx, log, kind, "payment_id", payment.ID, "error", cause)
}

func (r *Reconciler) anomaly(ctx context.Context, log *slog.Logger, kind string, args ...any) {
	monitoring.RecordAnomaly(kind)
	log.ErrorContext(ctx, "reconciliation anomaly", append([]any{"anomaly", kind}, args...)...)
}

func (r *Reconciler) issuedResult(ctx context.Context, payment *models.Payment, gatewayStatus string) (*ReconcileResult, error) {
	tickets, err := r.tickets.ListByPaymentID(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	event, err := r.events.GetEventByID(ctx, payment.EventID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return &ReconcileResult{
		Reference:     payment.Reference,
		State:         StateOf(payment),
		GatewayStatus: gatewayStatus,
		Payment:       payment,
		Event:         event,
		Tickets:       tickets,
	}, nil
}

func (r *Reconciler) currentResult(ctx context.Context, payment *models.Payment, gatewayStatus string) *ReconcileResult {
	result := &ReconcileResult{
		Reference:     payment.Reference,
		State:         StateOf(payment),
		GatewayStatus: gatewayStatus,
		Payment:       payment,
	}
	if event, err := r.events.GetEventByID(ctx, payment.EventID); err == nil {
		result.Event = event
	}
	return result
}

func (r *Reconciler) notify(ctx context.Context, event *models.Event, tickets []*models.Ticket) {
	if r.notifier == nil || len(tickets) == 0 {
		return
	}
	r.notifier.Dispatch(ctx, notify.Group(event, tickets, ticketTypeNames(ctx, r.ticketTypes, tickets)))
}
