package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lucsky/cuid"
	"github.com/shopspring/decimal"

	"eventpass-backend/gateway"
	"eventpass-backend/models"
	"eventpass-backend/repositories"
)

const maxTicketsPerLine = 10

type CheckoutConfig struct {
	Currency        string
	PlatformFeeRate decimal.Decimal
	CallbackURL     string
}

// CheckoutService opens paid checkouts. It records the order snapshot that
// reconciliation later replays; it never issues tickets itself.
type CheckoutService struct {
	events      *repositories.EventRepository
	ticketTypes *repositories.TicketTypeRepository
	payments    *repositories.PaymentRepository
	ledger      *InventoryLedger
	gateway     Gateway
	cfg         CheckoutConfig
	logger      *slog.Logger
}

func NewCheckoutService(
	events *repositories.EventRepository,
	ticketTypes *repositories.TicketTypeRepository,
	payments *repositories.PaymentRepository,
	ledger *InventoryLedger,
	gw Gateway,
	cfg CheckoutConfig,
	logger *slog.Logger,
) *CheckoutService {
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{
		events:      events,
		ticketTypes: ticketTypes,
		payments:    payments,
		ledger:      ledger,
		gateway:     gw,
		cfg:         cfg,
		logger:      logger,
	}
}

// Initialize validates the order, stores a PENDING payment and returns the
// gateway's hosted checkout URL.
func (s *CheckoutService) Initialize(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	v := &ValidationError{}
	if !validEmail(req.Email) {
		v.Add("email", "must be a valid email")
	}
	if strings.TrimSpace(req.EventID) == "" {
		v.Add("eventId", "is required")
	}
	if len(req.Tickets) == 0 {
		v.Add("tickets", "at least one ticket is required")
	}
	for idx, line := range req.Tickets {
		field := fmt.Sprintf("tickets[%d]", idx)
		if line == nil {
			v.Add(field, "is empty")
			continue
		}
		if line.TicketTypeID == "" {
			v.Add(field+".ticketTypeId", "is required")
		}
		if line.Quantity < 1 || line.Quantity > maxTicketsPerLine {
			v.Add(field+".quantity", fmt.Sprintf("must be between 1 and %d", maxTicketsPerLine))
		}
		if strings.TrimSpace(line.AttendeeName) == "" {
			v.Add(field+".attendeeName", "is required")
		}
		if !validEmail(line.AttendeeEmail) {
			v.Add(field+".attendeeEmail", "must be a valid email")
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	event, err := s.events.GetEventByID(ctx, req.EventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventActive {
		return nil, ErrEventNotActive
	}

	snapshot := &models.OrderSnapshot{EventID: event.ID}
	requested := make(map[string]int)
	var amount int64

	for idx, line := range req.Tickets {
		tt, err := s.ticketTypes.GetTicketTypeByID(ctx, line.TicketTypeID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && tt.EventID != event.ID) {
			return nil, fmt.Errorf("%w: %s", ErrTicketTypeNotFound, line.TicketTypeID)
		}
		if err != nil {
			return nil, err
		}
		if tt.Price == 0 {
			return nil, invalid(fmt.Sprintf("tickets[%d].ticketTypeId", idx), "free ticket types are booked without checkout")
		}

		requested[tt.ID] += line.Quantity
		amount += tt.Price * int64(line.Quantity)
		snapshot.Lines = append(snapshot.Lines, &models.OrderLine{
			TicketTypeID:  tt.ID,
			Quantity:      line.Quantity,
			UnitPrice:     tt.Price,
			AttendeeName:  strings.TrimSpace(line.AttendeeName),
			AttendeeEmail: normalizeEmail(line.AttendeeEmail),
			AttendeePhone: line.AttendeePhone,
		})
	}

	for id, qty := range requested {
		ok, err := s.ledger.HasCapacity(ctx, id, qty)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: ticket type %s", ErrSoldOut, id)
		}
	}

	metadata, err := snapshot.Encode()
	if err != nil {
		return nil, err
	}

	fee, organizerAmount := SplitFee(amount, s.cfg.PlatformFeeRate)
	payment := &models.Payment{
		Reference:       "evp_" + cuid.New(),
		EventID:         event.ID,
		UserID:          req.UserID,
		Email:           normalizeEmail(req.Email),
		Amount:          amount,
		Currency:        s.cfg.Currency,
		PlatformFee:     fee,
		OrganizerAmount: organizerAmount,
		Metadata:        metadata,
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	init, err := s.gateway.Initialize(ctx, &gateway.InitializeRequest{
		Reference:   payment.Reference,
		Email:       payment.Email,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		CallbackURL: s.cfg.CallbackURL,
		Metadata:    map[string]string{"eventId": event.ID, "paymentId": payment.ID},
	})
	if err != nil {
		s.logger.Warn("gateway initialize failed", "reference", payment.Reference, "error", err)
		if _, closeErr := s.payments.MarkClosed(ctx, payment.Reference, models.PaymentFailed); closeErr != nil {
			s.logger.Error("close payment after initialize failure", "reference", payment.Reference, "error", closeErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	s.logger.Info("checkout initialized",
		"reference", payment.Reference,
		"event_id", event.ID,
		"amount", payment.Amount,
		"platform_fee", fee)

	return &models.CheckoutResponse{
		Reference:        payment.Reference,
		AuthorizationURL: init.AuthorizationURL,
		Amount:           FormatAmount(payment.Amount),
		Currency:         payment.Currency,
	}, nil
}
