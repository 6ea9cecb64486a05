// Package notify delivers ticket confirmations outside the request path.
package notify

import (
	"fmt"
	"strings"
	"time"

	"eventpass-backend/models"
)

type ConfirmationTicket struct {
	ConfirmationID string `json:"confirmationId"`
	TicketType     string `json:"ticketType"`
}

// Confirmation is everything one attendee needs to know about the tickets
// issued to them in a single booking.
type Confirmation struct {
	AttendeeEmail string                `json:"attendeeEmail"`
	AttendeeName  string                `json:"attendeeName"`
	EventTitle    string                `json:"eventTitle"`
	EventDate     *time.Time            `json:"eventDate,omitempty"`
	EventLocation string                `json:"eventLocation"`
	Tickets       []*ConfirmationTicket `json:"tickets"`
}

// Group collects tickets by attendee email, keeping the order in which
// attendees first appear.
func Group(event *models.Event, tickets []*models.Ticket, typeNames map[string]string) []*Confirmation {
	byEmail := make(map[string]*Confirmation)
	var out []*Confirmation

	for _, t := range tickets {
		key := strings.ToLower(t.AttendeeEmail)
		c, ok := byEmail[key]
		if !ok {
			c = &Confirmation{
				AttendeeEmail: t.AttendeeEmail,
				AttendeeName:  t.AttendeeName,
			}
			if event != nil {
				c.EventTitle = event.Title
				c.EventDate = event.StartsAt
				c.EventLocation = event.Location
			}
			byEmail[key] = c
			out = append(out, c)
		}

		name := typeNames[t.TicketTypeID]
		if name == "" {
			name = t.TicketTypeID
		}
		c.Tickets = append(c.Tickets, &ConfirmationTicket{ConfirmationID: t.ConfirmationCode, TicketType: name})
	}
	return out
}

func (c *Confirmation) Subject() string {
	return fmt.Sprintf("Your tickets for %s", c.EventTitle)
}

// PlainText is the body used by the mail senders.
func (c *Confirmation) PlainText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", c.AttendeeName)
	fmt.Fprintf(&b, "You're going to %s.\n", c.EventTitle)
	if c.EventDate != nil {
		fmt.Fprintf(&b, "When: %s\n", c.EventDate.Format("Mon 2 Jan 2006, 15:04 MST"))
	}
	if c.EventLocation != "" {
		fmt.Fprintf(&b, "Where: %s\n", c.EventLocation)
	}
	b.WriteString("\nTickets:\n")
	for _, t := range c.Tickets {
		fmt.Fprintf(&b, "  %s  %s\n", t.ConfirmationID, t.TicketType)
	}
	b.WriteString("\nShow the confirmation code at the entrance.\n")
	return b.String()
}
