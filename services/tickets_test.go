package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventpass-backend/models"
)

func issueOne(t *testing.T, env *testEnv, tt *models.TicketType) *models.Ticket {
	t.Helper()
	tickets, err := env.issuer.Issue(context.Background(), &IssueRequest{
		EventID: env.event.ID,
		Lines:   []*models.OrderLine{line(tt, 1, "ada@example.com")},
	})
	require.NoError(t, err)
	return tickets[0]
}

func TestCheckIn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := issueOne(t, env, env.ticketType(t, "Regular", 5000, nil))

	used, err := env.ticketSvc.CheckIn(ctx, env.organizer.ID, ticket.ConfirmationCode)
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, used.Status)
	require.NotNil(t, used.UsedAt)

	stored, err := env.ticketSvc.GetByCode(ctx, ticket.ConfirmationCode)
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, stored.Status)
	assert.NotNil(t, stored.UsedAt)

	_, err = env.ticketSvc.CheckIn(ctx, env.organizer.ID, ticket.ConfirmationCode)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCheckIn_CodeIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	ticket := issueOne(t, env, env.ticketType(t, "Regular", 5000, nil))

	found, err := env.ticketSvc.GetByCode(context.Background(), " "+strings.ToLower(ticket.ConfirmationCode)+" ")
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, found.ID)
}

func TestCheckIn_OtherOrganizerForbidden(t *testing.T) {
	env := newTestEnv(t)
	ticket := issueOne(t, env, env.ticketType(t, "Regular", 5000, nil))

	_, err := env.ticketSvc.CheckIn(context.Background(), "someone-else", ticket.ConfirmationCode)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.ticketSvc.Get(context.Background(), "someone-else", ticket.ConfirmationCode)
	assert.ErrorIs(t, err, ErrForbidden)

	own, err := env.ticketSvc.Get(context.Background(), env.organizer.ID, ticket.ConfirmationCode)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, own.ID)

	_, err = env.ticketSvc.CheckIn(context.Background(), "", ticket.ConfirmationCode)
	assert.NoError(t, err)
}

func TestCheckIn_UnknownCode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ticketSvc.CheckIn(context.Background(), "", "ZZZZZZZZ")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestCancelTicket_ReleasesCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vip := env.ticketType(t, "VIP", 15000, capacity(1))
	ticket := issueOne(t, env, vip)

	ok, err := env.ledger.HasCapacity(ctx, vip.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	cancelled, err := env.ticketSvc.Cancel(ctx, env.organizer.ID, ticket.ConfirmationCode)
	require.NoError(t, err)
	assert.Equal(t, models.TicketCancelled, cancelled.Status)

	ok, err = env.ledger.HasCapacity(ctx, vip.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = env.ticketSvc.Cancel(ctx, env.organizer.ID, ticket.ConfirmationCode)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	drift, err := env.eventSvc.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestCancelTicket_UsedTicketStaysUsed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := issueOne(t, env, env.ticketType(t, "Regular", 5000, nil))

	_, err := env.ticketSvc.CheckIn(ctx, "", ticket.ConfirmationCode)
	require.NoError(t, err)

	_, err = env.ticketSvc.Cancel(ctx, "", ticket.ConfirmationCode)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSetCapacity_GuardsSoldCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vip := env.ticketType(t, "VIP", 15000, capacity(5))
	issueOne(t, env, vip)
	issueOne(t, env, vip)

	assert.ErrorIs(t, env.eventSvc.SetCapacity(ctx, vip.ID, capacity(1)), ErrInvalidOrder)
	assert.NoError(t, env.eventSvc.SetCapacity(ctx, vip.ID, capacity(2)))
	assert.NoError(t, env.eventSvc.SetCapacity(ctx, vip.ID, nil))
	assert.ErrorIs(t, env.eventSvc.SetCapacity(ctx, "missing", capacity(3)), ErrTicketTypeNotFound)
}

func TestGetWithAvailability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vip := env.ticketType(t, "VIP", 15000, capacity(3))
	env.ticketType(t, "General", 0, nil)
	issueOne(t, env, vip)

	resp, err := env.eventSvc.GetWithAvailability(ctx, env.event.ID)
	require.NoError(t, err)
	require.Len(t, resp.TicketTypes, 2)

	general, vipAvail := resp.TicketTypes[0], resp.TicketTypes[1]
	assert.True(t, general.Free)
	assert.Nil(t, general.Remaining)
	assert.Equal(t, "150.00", vipAvail.Price)
	require.NotNil(t, vipAvail.Remaining)
	assert.Equal(t, int64(2), *vipAvail.Remaining)

	draft := &models.Event{OrganizerID: env.organizer.ID, Title: "Secret"}
	require.NoError(t, env.events.CreateEvent(ctx, draft))
	_, err = env.eventSvc.GetWithAvailability(ctx, draft.ID)
	assert.ErrorIs(t, err, ErrEventNotFound)
}
