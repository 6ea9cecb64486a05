package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventpass-backend/models"
)

func freeRequest(eventID string, lines ...*models.TicketLineRequest) *models.FreeBookingRequest {
	return &models.FreeBookingRequest{EventID: eventID, Tickets: lines}
}

func freeLine(tt *models.TicketType, email string) *models.TicketLineRequest {
	return &models.TicketLineRequest{
		TicketTypeID:  tt.ID,
		Quantity:      1,
		AttendeeName:  "Guest",
		AttendeeEmail: email,
	}
}

func TestBookFree_IssuesOnePerAttendee(t *testing.T) {
	env := newTestEnv(t)
	general := env.ticketType(t, "General", 0, capacity(100))

	tickets, err := env.booking.BookFree(context.Background(),
		freeRequest(env.event.ID, freeLine(general, "ada@example.com"), freeLine(general, "bola@example.com")))
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Nil(t, tickets[0].PaymentID)
	assert.Equal(t, int64(0), tickets[0].Price)
	assert.Equal(t, 1, env.notifier.count())
}

func TestBookFree_DuplicateAttendeeAcrossTicketTypes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	general := env.ticketType(t, "General", 0, nil)
	student := env.ticketType(t, "Student", 0, nil)

	_, err := env.booking.BookFree(ctx, freeRequest(env.event.ID, freeLine(general, "ada@example.com")))
	require.NoError(t, err)

	_, err = env.booking.BookFree(ctx, freeRequest(env.event.ID, freeLine(student, "ADA@example.com ")))
	assert.ErrorIs(t, err, ErrDuplicateAttendee)
	assert.Equal(t, 1, env.countTickets(t))
}

func TestBookFree_ConcurrentDuplicatesBookOnce(t *testing.T) {
	env := newTestEnv(t)
	general := env.ticketType(t, "General", 0, nil)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		dups int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.booking.BookFree(context.Background(), freeRequest(env.event.ID, freeLine(general, "ada@example.com")))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ErrDuplicateAttendee) {
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, dups)
	assert.Equal(t, 1, env.countTickets(t))
}

func TestBookFree_RejectsPaidTicketType(t *testing.T) {
	env := newTestEnv(t)
	paid := env.ticketType(t, "VIP", 15000, nil)

	_, err := env.booking.BookFree(context.Background(), freeRequest(env.event.ID, freeLine(paid, "ada@example.com")))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.Equal(t, 0, env.countTickets(t))
}

func TestBookFree_RejectsQuantityAboveOne(t *testing.T) {
	env := newTestEnv(t)
	general := env.ticketType(t, "General", 0, nil)
	l := freeLine(general, "ada@example.com")
	l.Quantity = 2

	_, err := env.booking.BookFree(context.Background(), freeRequest(env.event.ID, l))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tickets[0].quantity", verr.Fields[0].Field)
}

func TestBookFree_RejectsRepeatedEmailInRequest(t *testing.T) {
	env := newTestEnv(t)
	general := env.ticketType(t, "General", 0, nil)

	_, err := env.booking.BookFree(context.Background(),
		freeRequest(env.event.ID, freeLine(general, "ada@example.com"), freeLine(general, "Ada@example.com")))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.Equal(t, 0, env.countTickets(t))
}

func TestBookFree_SoldOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	general := env.ticketType(t, "General", 0, capacity(1))

	_, err := env.booking.BookFree(ctx, freeRequest(env.event.ID, freeLine(general, "ada@example.com")))
	require.NoError(t, err)

	_, err = env.booking.BookFree(ctx, freeRequest(env.event.ID, freeLine(general, "bola@example.com")))
	assert.ErrorIs(t, err, ErrSoldOut)
}

func TestBookFree_InactiveEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	general := env.ticketType(t, "General", 0, nil)
	_, err := env.events.UpdateStatus(ctx, env.event.ID, models.EventCancelled)
	require.NoError(t, err)

	_, err = env.booking.BookFree(ctx, freeRequest(env.event.ID, freeLine(general, "ada@example.com")))
	assert.ErrorIs(t, err, ErrEventNotActive)

	_, err = env.booking.BookFree(ctx, freeRequest("missing", freeLine(general, "ada@example.com")))
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestBookFree_CancelledTicketFreesSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	general := env.ticketType(t, "General", 0, capacity(1))

	tickets, err := env.booking.BookFree(ctx, freeRequest(env.event.ID, freeLine(general, "ada@example.com")))
	require.NoError(t, err)

	_, err = env.ticketSvc.Cancel(ctx, env.organizer.ID, tickets[0].ConfirmationCode)
	require.NoError(t, err)

	rebooked, err := env.booking.BookFree(ctx, freeRequest(env.event.ID, freeLine(general, "ada@example.com")))
	require.NoError(t, err)
	assert.Len(t, rebooked, 1)
}
