package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"eventpass-backend/db"
	"eventpass-backend/db/dbtest"
	"eventpass-backend/gateway"
	"eventpass-backend/models"
	"eventpass-backend/notify"
	"eventpass-backend/repositories"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeGateway answers Verify from a per-reference table.
type fakeGateway struct {
	mu          sync.Mutex
	txns        map[string]*gateway.Transaction
	verifyErr   error
	initErr     error
	verifyCalls map[string]int
	initialized []*gateway.InitializeRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		txns:        make(map[string]*gateway.Transaction),
		verifyCalls: make(map[string]int),
	}
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*gateway.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls[reference]++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if txn, ok := g.txns[reference]; ok {
		copied := *txn
		return &copied, nil
	}
	return &gateway.Transaction{Reference: reference, Status: "not_found"}, nil
}

func (g *fakeGateway) Initialize(ctx context.Context, req *gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.initialized = append(g.initialized, req)
	return &gateway.InitializeResult{
		Reference:        req.Reference,
		AuthorizationURL: "https://checkout.test/" + req.Reference,
	}, nil
}

func (g *fakeGateway) set(reference, status string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	paidAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	g.txns[reference] = &gateway.Transaction{
		Reference: reference,
		Status:    status,
		Amount:    amount,
		Currency:  "NGN",
		PaidAt:    &paidAt,
		Raw:       []byte(`{"reference":"` + reference + `","status":"` + status + `"}`),
	}
}

// setPayload replaces the raw body returned for an already configured reference.
func (g *fakeGateway) setPayload(reference, raw string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txns[reference].Raw = []byte(raw)
}

func (g *fakeGateway) setError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyErr = err
}

func (g *fakeGateway) calls(reference string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls[reference]
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]*notify.Confirmation
}

func (n *recordingNotifier) Dispatch(ctx context.Context, confirmations []*notify.Confirmation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, confirmations)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.batches)
}

type testEnv struct {
	db          *db.DB
	events      *repositories.EventRepository
	ticketTypes *repositories.TicketTypeRepository
	tickets     *repositories.TicketRepository
	payments    *repositories.PaymentRepository
	payouts     *repositories.PayoutRepository
	users       *repositories.UserRepository
	inventory   *repositories.InventoryRepository

	ledger     *InventoryLedger
	issuer     *TicketIssuer
	reconciler *Reconciler
	checkout   *CheckoutService
	booking    *BookingService
	ticketSvc  *TicketService
	payoutSvc  *PayoutService
	eventSvc   *EventService

	gateway  *fakeGateway
	notifier *recordingNotifier

	organizer *models.Organizer
	event     *models.Event
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database := dbtest.Open(t)

	env := &testEnv{
		db:          database,
		events:      repositories.NewEventRepository(database),
		ticketTypes: repositories.NewTicketTypeRepository(database),
		tickets:     repositories.NewTicketRepository(database),
		payments:    repositories.NewPaymentRepository(database),
		payouts:     repositories.NewPayoutRepository(database),
		users:       repositories.NewUserRepository(database),
		inventory:   repositories.NewInventoryRepository(database),
		gateway:     newFakeGateway(),
		notifier:    &recordingNotifier{},
	}

	env.ledger = NewInventoryLedger(env.inventory)
	env.issuer = NewTicketIssuer(database, env.tickets, env.ticketTypes, env.users, env.ledger)
	env.reconciler = NewReconciler(database, env.payments, env.tickets, env.events, env.ticketTypes,
		env.issuer, env.gateway, env.notifier, testLogger)
	env.checkout = NewCheckoutService(env.events, env.ticketTypes, env.payments, env.ledger, env.gateway,
		CheckoutConfig{Currency: "NGN", PlatformFeeRate: decimal.RequireFromString("0.05"), CallbackURL: "https://app.test/verify"},
		testLogger)
	env.booking = NewBookingService(env.events, env.ticketTypes, env.issuer, env.notifier, testLogger)
	env.ticketSvc = NewTicketService(database, env.tickets, env.events, env.inventory, env.ledger)
	env.payoutSvc = NewPayoutService(database, env.payouts, env.events, testLogger)
	env.eventSvc = NewEventService(env.events, env.ticketTypes, repositories.NewAvailabilityRepository(database))

	ctx := context.Background()
	env.organizer = &models.Organizer{Name: "Afrobeats Live", Email: "org@example.com"}
	require.NoError(t, env.events.CreateOrganizer(ctx, env.organizer))

	startsAt := time.Date(2026, 12, 5, 19, 0, 0, 0, time.UTC)
	env.event = &models.Event{
		OrganizerID: env.organizer.ID,
		Title:       "Lagos Jazz Night",
		Location:    "Eko Hotel",
		StartsAt:    &startsAt,
		Status:      models.EventActive,
	}
	require.NoError(t, env.events.CreateEvent(ctx, env.event))
	return env
}

func capacity(n int64) *int64 {
	return &n
}

func (env *testEnv) ticketType(t *testing.T, name string, price int64, limit *int64) *models.TicketType {
	t.Helper()
	return env.ticketTypeFor(t, env.event.ID, name, price, limit)
}

func (env *testEnv) ticketTypeFor(t *testing.T, eventID, name string, price int64, limit *int64) *models.TicketType {
	t.Helper()
	tt := &models.TicketType{EventID: eventID, Name: name, Price: price, Capacity: limit}
	require.NoError(t, env.ticketTypes.CreateTicketType(context.Background(), tt))
	return tt
}

// pendingPayment stores a PENDING payment the way checkout does.
func (env *testEnv) pendingPayment(t *testing.T, reference string, lines ...*models.OrderLine) *models.Payment {
	t.Helper()
	snapshot := &models.OrderSnapshot{EventID: env.event.ID, Lines: lines}
	metadata, err := snapshot.Encode()
	require.NoError(t, err)

	var amount int64
	for _, l := range lines {
		amount += l.UnitPrice * int64(l.Quantity)
	}
	fee, organizerAmount := SplitFee(amount, decimal.RequireFromString("0.05"))

	payment := &models.Payment{
		Reference:       reference,
		EventID:         env.event.ID,
		Email:           "buyer@example.com",
		Amount:          amount,
		Currency:        "NGN",
		PlatformFee:     fee,
		OrganizerAmount: organizerAmount,
		Metadata:        metadata,
	}
	require.NoError(t, env.payments.CreatePayment(context.Background(), payment))
	return payment
}

func line(tt *models.TicketType, qty int, email string) *models.OrderLine {
	return &models.OrderLine{
		TicketTypeID:  tt.ID,
		Quantity:      qty,
		UnitPrice:     tt.Price,
		AttendeeName:  "Attendee " + email,
		AttendeeEmail: email,
	}
}

func (env *testEnv) countTickets(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, env.db.Get(&n, `SELECT COUNT(*) FROM tickets`))
	return n
}

func (env *testEnv) payment(t *testing.T, reference string) *models.Payment {
	t.Helper()
	p, err := env.payments.GetByReference(context.Background(), reference)
	require.NoError(t, err)
	return p
}
