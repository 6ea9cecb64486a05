package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventpass-backend/gateway"
	"eventpass-backend/models"
)

func checkoutRequest(eventID string, lines ...*models.TicketLineRequest) *models.CheckoutRequest {
	return &models.CheckoutRequest{EventID: eventID, Email: "Buyer@Example.com", Tickets: lines}
}

func paidLine(tt *models.TicketType, qty int, email string) *models.TicketLineRequest {
	return &models.TicketLineRequest{TicketTypeID: tt.ID, Quantity: qty, AttendeeName: "Ada", AttendeeEmail: email}
}

func TestInitialize_StoresPendingPaymentWithSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vip := env.ticketType(t, "VIP", 15050, capacity(10))
	regular := env.ticketType(t, "Regular", 5000, nil)

	resp, err := env.checkout.Initialize(ctx, checkoutRequest(env.event.ID,
		paidLine(vip, 1, "ada@example.com"),
		paidLine(regular, 2, "bola@example.com")))
	require.NoError(t, err)
	assert.Equal(t, "250.50", resp.Amount)
	assert.Equal(t, "NGN", resp.Currency)
	assert.Equal(t, "https://checkout.test/"+resp.Reference, resp.AuthorizationURL)

	payment := env.payment(t, resp.Reference)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, int64(25050), payment.Amount)
	assert.Equal(t, int64(1253), payment.PlatformFee)
	assert.Equal(t, int64(23797), payment.OrganizerAmount)
	assert.Equal(t, "buyer@example.com", payment.Email)

	snapshot, err := models.DecodeOrderSnapshot(payment.Metadata)
	require.NoError(t, err)
	assert.Equal(t, models.OrderSnapshotVersion, snapshot.Version)
	require.Len(t, snapshot.Lines, 2)
	assert.Equal(t, int64(15050), snapshot.Lines[0].UnitPrice)
	assert.Equal(t, 2, snapshot.Lines[1].Quantity)

	require.Len(t, env.gateway.initialized, 1)
	assert.Equal(t, resp.Reference, env.gateway.initialized[0].Reference)
	assert.Equal(t, "https://app.test/verify", env.gateway.initialized[0].CallbackURL)
}

func TestInitialize_ThenReconcile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	regular := env.ticketType(t, "Regular", 5000, capacity(5))

	resp, err := env.checkout.Initialize(ctx, checkoutRequest(env.event.ID, paidLine(regular, 2, "ada@example.com")))
	require.NoError(t, err)

	env.gateway.set(resp.Reference, gateway.StatusSuccess, 10000)
	result, err := env.reconciler.Reconcile(ctx, resp.Reference, TriggerVerify)
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Len(t, result.ConfirmationIDs(), 2)
}

func TestInitialize_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	free := env.ticketType(t, "General", 0, nil)
	full := env.ticketType(t, "VIP", 15000, capacity(1))
	regular := env.ticketType(t, "Regular", 5000, nil)

	_, err := env.checkout.Initialize(ctx, checkoutRequest(env.event.ID, paidLine(free, 1, "ada@example.com")))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = env.checkout.Initialize(ctx, checkoutRequest(env.event.ID, paidLine(full, 2, "ada@example.com")))
	assert.ErrorIs(t, err, ErrSoldOut)

	_, err = env.checkout.Initialize(ctx, checkoutRequest(env.event.ID, paidLine(regular, 11, "ada@example.com")))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = env.checkout.Initialize(ctx, checkoutRequest(env.event.ID,
		&models.TicketLineRequest{TicketTypeID: "missing", Quantity: 1, AttendeeName: "Ada", AttendeeEmail: "ada@example.com"}))
	assert.ErrorIs(t, err, ErrTicketTypeNotFound)

	_, err = env.checkout.Initialize(ctx, checkoutRequest("missing", paidLine(regular, 1, "ada@example.com")))
	assert.ErrorIs(t, err, ErrEventNotFound)

	req := checkoutRequest(env.event.ID, paidLine(regular, 1, "ada@example.com"))
	req.Email = "nope"
	_, err = env.checkout.Initialize(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestInitialize_GatewayFailureClosesPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	regular := env.ticketType(t, "Regular", 5000, nil)
	env.gateway.initErr = errors.New("503 from gateway")

	_, err := env.checkout.Initialize(ctx, checkoutRequest(env.event.ID, paidLine(regular, 1, "ada@example.com")))
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	var statuses []string
	require.NoError(t, env.db.Select(&statuses, `SELECT status FROM payments`))
	assert.Equal(t, []string{"FAILED"}, statuses)
}

func TestSplitFee(t *testing.T) {
	rate := decimal.RequireFromString("0.05")

	fee, rest := SplitFee(10000, rate)
	assert.Equal(t, int64(500), fee)
	assert.Equal(t, int64(9500), rest)

	fee, rest = SplitFee(250, rate)
	assert.Equal(t, int64(13), fee)
	assert.Equal(t, int64(237), rest)

	fee, rest = SplitFee(0, rate)
	assert.Equal(t, int64(0), fee)
	assert.Equal(t, int64(0), rest)

	fee, _ = SplitFee(100, decimal.RequireFromString("1.5"))
	assert.Equal(t, int64(100), fee)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.00", FormatAmount(0))
	assert.Equal(t, "50.00", FormatAmount(5000))
	assert.Equal(t, "250.50", FormatAmount(25050))
	assert.Equal(t, "0.07", FormatAmount(7))
}
