package models

import "time"

// Database Models

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventActive    EventStatus = "active"
	EventCancelled EventStatus = "cancelled"
	EventCompleted EventStatus = "completed"
	EventSuspended EventStatus = "suspended"
)

type TicketStatus string

const (
	TicketActive    TicketStatus = "ACTIVE"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketUsed      TicketStatus = "USED"
	TicketRefunded  TicketStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "PENDING"
	PayoutProcessing PayoutStatus = "PROCESSING"
	PayoutCompleted  PayoutStatus = "COMPLETED"
	PayoutFailed     PayoutStatus = "FAILED"
	PayoutCancelled  PayoutStatus = "CANCELLED"
)

type Organizer struct {
	ID            string `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	Email         string `db:"email" json:"email"`
	PayoutVersion int64  `db:"payout_version" json:"-"`
}

type User struct {
	ID    string `db:"id" json:"id"`
	Email string `db:"email" json:"email"`
	Name  string `db:"name" json:"name"`
}

type Event struct {
	ID          string      `db:"id" json:"id"`
	OrganizerID string      `db:"organizer_id" json:"organizerId"`
	Title       string      `db:"title" json:"title"`
	Description string      `db:"description" json:"description"`
	Location    string      `db:"location" json:"location"`
	StartsAt    *time.Time  `db:"starts_at" json:"startsAt,omitempty"`
	EndsAt      *time.Time  `db:"ends_at" json:"endsAt,omitempty"`
	Status      EventStatus `db:"status" json:"status"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

// TicketType is a priced admission category. SoldCount mirrors the number
// of ACTIVE or USED tickets of this type and is only changed inside the
// transaction that issues, cancels or refunds tickets.
type TicketType struct {
	ID        string    `db:"id" json:"id"`
	EventID   string    `db:"event_id" json:"eventId"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Capacity  *int64    `db:"capacity" json:"capacity"`
	SoldCount int64     `db:"sold_count" json:"soldCount"`
	CreatedAt time.Time `db:"created_at" json:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}

// Remaining returns the unsold capacity, or nil when capacity is unlimited.
func (tt *TicketType) Remaining() *int64 {
	if tt.Capacity == nil {
		return nil
	}
	remaining := *tt.Capacity - tt.SoldCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

type Ticket struct {
	ID               string       `db:"id" json:"id"`
	EventID          string       `db:"event_id" json:"eventId"`
	TicketTypeID     string       `db:"ticket_type_id" json:"ticketTypeId"`
	PaymentID        *string      `db:"payment_id" json:"paymentId,omitempty"`
	UserID           *string      `db:"user_id" json:"userId,omitempty"`
	AttendeeName     string       `db:"attendee_name" json:"attendeeName"`
	AttendeeEmail    string       `db:"attendee_email" json:"attendeeEmail"`
	AttendeePhone    *string      `db:"attendee_phone" json:"attendeePhone,omitempty"`
	ConfirmationCode string       `db:"confirmation_code" json:"confirmationId"`
	Price            int64        `db:"price" json:"price"`
	Status           TicketStatus `db:"status" json:"status"`
	UsedAt           *time.Time   `db:"used_at" json:"usedAt,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"createdAt"`
}

// Payment is one gateway transaction attempt. Reference is the idempotency
// key. Metadata holds the JSON OrderSnapshot captured at checkout and
// WebhookData the last gateway payload seen by reconciliation.
type Payment struct {
	ID              string        `db:"id" json:"id"`
	Reference       string        `db:"reference" json:"reference"`
	EventID         string        `db:"event_id" json:"eventId"`
	UserID          *string       `db:"user_id" json:"userId,omitempty"`
	Email           string        `db:"email" json:"email"`
	Amount          int64         `db:"amount" json:"amount"`
	Currency        string        `db:"currency" json:"currency"`
	Status          PaymentStatus `db:"status" json:"status"`
	PlatformFee     int64         `db:"platform_fee" json:"platformFee"`
	OrganizerAmount int64         `db:"organizer_amount" json:"organizerAmount"`
	Metadata        string        `db:"metadata" json:"-"`
	WebhookData     *string       `db:"webhook_data" json:"-"`
	TicketsIssued   bool          `db:"tickets_issued" json:"ticketsIssued"`
	IssueAttempts   int           `db:"issue_attempts" json:"issueAttempts"`
	LastIssueError  *string       `db:"last_issue_error" json:"lastIssueError,omitempty"`
	PaidAt          *time.Time    `db:"paid_at" json:"paidAt,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

type Payout struct {
	ID          string       `db:"id" json:"id"`
	OrganizerID string       `db:"organizer_id" json:"organizerId"`
	Amount      int64        `db:"amount" json:"amount"`
	Status      PayoutStatus `db:"status" json:"status"`
	Note        *string      `db:"note" json:"note,omitempty"`
	RequestedAt time.Time    `db:"requested_at" json:"requestedAt"`
	ProcessedAt *time.Time   `db:"processed_at" json:"processedAt,omitempty"`
}

// API Request/Response DTOs

type TicketLineRequest struct {
	TicketTypeID  string  `json:"ticketTypeId"`
	Quantity      int     `json:"quantity"`
	AttendeeName  string  `json:"attendeeName"`
	AttendeeEmail string  `json:"attendeeEmail"`
	AttendeePhone *string `json:"attendeePhone,omitempty"`
}

type FreeBookingRequest struct {
	EventID string               `json:"eventId"`
	Tickets []*TicketLineRequest `json:"tickets"`
}

type FreeBookingResponse struct {
	Success         bool     `json:"success"`
	ConfirmationIDs []string `json:"confirmationIds"`
	TicketCount     int      `json:"ticketCount"`
}

type CheckoutRequest struct {
	EventID string               `json:"eventId"`
	Email   string               `json:"email"`
	UserID  *string              `json:"userId,omitempty"`
	Tickets []*TicketLineRequest `json:"tickets"`
}

type CheckoutResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
}

type VerifyResponse struct {
	Success         bool     `json:"success"`
	Status          string   `json:"status"`
	Reference       string   `json:"reference"`
	ConfirmationIDs []string `json:"confirmationIds"`
	EventTitle      string   `json:"eventTitle,omitempty"`
	Amount          string   `json:"amount,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	Message         string   `json:"message,omitempty"`
}

type TicketTypeAvailability struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Free      bool   `json:"free"`
	Remaining *int64 `json:"remaining"`
}

type EventResponse struct {
	Event       *Event                    `json:"event"`
	TicketTypes []*TicketTypeAvailability `json:"ticketTypes"`
}

type PayoutRequest struct {
	Amount int64 `json:"amount"`
}

type PayoutActionRequest struct {
	Note *string `json:"note,omitempty"`
}

type BalanceResponse struct {
	OrganizerID string `json:"organizerId"`
	Available   int64  `json:"available"`
	Display     string `json:"display"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Fields  []*FieldError `json:"fields,omitempty"`
}
