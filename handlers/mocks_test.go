package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"eventpass-backend/models"
	"eventpass-backend/repositories"
	"eventpass-backend/services"
)

type MockCheckout struct {
	mock.Mock
}

func (m *MockCheckout) Initialize(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*models.CheckoutResponse)
	return resp, args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, reference string, trigger services.Trigger) (*services.ReconcileResult, error) {
	args := m.Called(ctx, reference, trigger)
	result, _ := args.Get(0).(*services.ReconcileResult)
	return result, args.Error(1)
}

func (m *MockReconciler) ReconcileWebhook(ctx context.Context, reference string, payload []byte) (*services.ReconcileResult, error) {
	args := m.Called(ctx, reference, payload)
	result, _ := args.Get(0).(*services.ReconcileResult)
	return result, args.Error(1)
}

func (m *MockReconciler) Cancel(ctx context.Context, reference string) (*services.ReconcileResult, error) {
	args := m.Called(ctx, reference)
	result, _ := args.Get(0).(*services.ReconcileResult)
	return result, args.Error(1)
}

func (m *MockReconciler) Retry(ctx context.Context, reference string) (*services.ReconcileResult, error) {
	args := m.Called(ctx, reference)
	result, _ := args.Get(0).(*services.ReconcileResult)
	return result, args.Error(1)
}

func (m *MockReconciler) ListAnomalies(ctx context.Context, limit int) ([]*models.Payment, error) {
	args := m.Called(ctx, limit)
	payments, _ := args.Get(0).([]*models.Payment)
	return payments, args.Error(1)
}

type stubVerifier struct {
	valid bool
}

func (s stubVerifier) VerifySignature(body []byte, signature string) bool {
	return s.valid && signature != ""
}

type MockBookings struct {
	mock.Mock
}

func (m *MockBookings) BookFree(ctx context.Context, req *models.FreeBookingRequest) ([]*models.Ticket, error) {
	args := m.Called(ctx, req)
	tickets, _ := args.Get(0).([]*models.Ticket)
	return tickets, args.Error(1)
}

type MockTickets struct {
	mock.Mock
}

func (m *MockTickets) Get(ctx context.Context, organizerID, code string) (*models.Ticket, error) {
	args := m.Called(ctx, organizerID, code)
	ticket, _ := args.Get(0).(*models.Ticket)
	return ticket, args.Error(1)
}

func (m *MockTickets) CheckIn(ctx context.Context, organizerID, code string) (*models.Ticket, error) {
	args := m.Called(ctx, organizerID, code)
	ticket, _ := args.Get(0).(*models.Ticket)
	return ticket, args.Error(1)
}

func (m *MockTickets) Cancel(ctx context.Context, organizerID, code string) (*models.Ticket, error) {
	args := m.Called(ctx, organizerID, code)
	ticket, _ := args.Get(0).(*models.Ticket)
	return ticket, args.Error(1)
}

type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) ListActive(ctx context.Context) ([]*models.Event, error) {
	args := m.Called(ctx)
	events, _ := args.Get(0).([]*models.Event)
	return events, args.Error(1)
}

func (m *MockEvents) GetWithAvailability(ctx context.Context, eventID string) (*models.EventResponse, error) {
	args := m.Called(ctx, eventID)
	resp, _ := args.Get(0).(*models.EventResponse)
	return resp, args.Error(1)
}

func (m *MockEvents) SetCapacity(ctx context.Context, ticketTypeID string, capacity *int64) error {
	args := m.Called(ctx, ticketTypeID, capacity)
	return args.Error(0)
}

func (m *MockEvents) Audit(ctx context.Context) ([]*repositories.CounterDrift, error) {
	args := m.Called(ctx)
	drift, _ := args.Get(0).([]*repositories.CounterDrift)
	return drift, args.Error(1)
}

type MockPayouts struct {
	mock.Mock
}

func (m *MockPayouts) Available(ctx context.Context, organizerID string) (int64, error) {
	args := m.Called(ctx, organizerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPayouts) Request(ctx context.Context, organizerID string, amount int64) (*models.Payout, error) {
	args := m.Called(ctx, organizerID, amount)
	payout, _ := args.Get(0).(*models.Payout)
	return payout, args.Error(1)
}

func (m *MockPayouts) Transition(ctx context.Context, payoutID, action string, note *string) (*models.Payout, error) {
	args := m.Called(ctx, payoutID, action, note)
	payout, _ := args.Get(0).(*models.Payout)
	return payout, args.Error(1)
}

func (m *MockPayouts) List(ctx context.Context, organizerID string) ([]*models.Payout, error) {
	args := m.Called(ctx, organizerID)
	payouts, _ := args.Get(0).([]*models.Payout)
	return payouts, args.Error(1)
}
