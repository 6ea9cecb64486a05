package services

import (
	"errors"
	"strings"

	"eventpass-backend/models"
)

var (
	ErrNotFound            = errors.New("NOT_FOUND")
	ErrEventNotFound       = errors.New("EVENT_NOT_FOUND")
	ErrEventNotActive      = errors.New("EVENT_NOT_ACTIVE")
	ErrTicketTypeNotFound  = errors.New("TICKET_TYPE_NOT_FOUND")
	ErrTicketNotFound      = errors.New("TICKET_NOT_FOUND")
	ErrSoldOut             = errors.New("SOLD_OUT")
	ErrDuplicateAttendee   = errors.New("DUPLICATE_ATTENDEE")
	ErrPriceMismatch       = errors.New("PRICE_MISMATCH")
	ErrInvalidOrder        = errors.New("INVALID_ORDER")
	ErrPaymentNotFound     = errors.New("PAYMENT_NOT_FOUND")
	ErrPaymentClosed       = errors.New("PAYMENT_CLOSED")
	ErrAmountMismatch      = errors.New("AMOUNT_MISMATCH")
	ErrGatewayUnavailable  = errors.New("GATEWAY_UNAVAILABLE")
	ErrIssuanceFailed      = errors.New("ISSUANCE_FAILED")
	ErrOrganizerNotFound   = errors.New("ORGANIZER_NOT_FOUND")
	ErrPayoutNotFound      = errors.New("PAYOUT_NOT_FOUND")
	ErrInsufficientBalance = errors.New("INSUFFICIENT_BALANCE")
	ErrInvalidTransition   = errors.New("INVALID_TRANSITION")
	ErrForbidden           = errors.New("FORBIDDEN")
)

// ValidationError lists every problem found in a request. It matches
// ErrInvalidOrder with errors.Is.
type ValidationError struct {
	Fields []*models.FieldError
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, &models.FieldError{Field: field, Message: message})
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "INVALID_ORDER: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidOrder
}

// OrNil returns nil when nothing was added.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, message string) error {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}
