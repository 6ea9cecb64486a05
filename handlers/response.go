package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"eventpass-backend/models"
	"eventpass-backend/services"
)

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error writes an error response
func Error(w http.ResponseWriter, status int, errorCode string, message string) {
	JSON(w, status, models.ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// NotFound writes a 404 response
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

// Conflict writes a 409 response
func Conflict(w http.ResponseWriter, errorCode string, message string) {
	Error(w, http.StatusConflict, errorCode, message)
}

// BadRequest writes a 400 response
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

// Unauthorized writes a 401 response
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// InternalServerError writes a 500 response
func InternalServerError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// ValidationFailed writes a 400 response listing every invalid field
func ValidationFailed(w http.ResponseWriter, v *services.ValidationError) {
	JSON(w, http.StatusBadRequest, models.ErrorResponse{
		Error:   "VALIDATION_FAILED",
		Message: "The request has invalid fields.",
		Fields:  v.Fields,
	})
}

type errorMapping struct {
	target  error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{services.ErrIssuanceFailed, http.StatusInternalServerError, "Payment received but tickets could not be issued yet."},
	{services.ErrAmountMismatch, http.StatusInternalServerError, "Payment amount could not be reconciled."},
	{services.ErrEventNotFound, http.StatusNotFound, "Event not found"},
	{services.ErrTicketNotFound, http.StatusNotFound, "Ticket not found"},
	{services.ErrPaymentNotFound, http.StatusNotFound, "Payment not found"},
	{services.ErrOrganizerNotFound, http.StatusNotFound, "Organizer not found"},
	{services.ErrPayoutNotFound, http.StatusNotFound, "Payout not found"},
	{services.ErrNotFound, http.StatusNotFound, "Not found"},
	{services.ErrTicketTypeNotFound, http.StatusBadRequest, "One or more ticket types do not exist for this event."},
	{services.ErrInvalidOrder, http.StatusBadRequest, "The order is invalid."},
	{services.ErrSoldOut, http.StatusConflict, "Not enough tickets left for one or more requested ticket types."},
	{services.ErrDuplicateAttendee, http.StatusConflict, "This attendee already has a ticket for this event."},
	{services.ErrPriceMismatch, http.StatusConflict, "Ticket prices changed since checkout started."},
	{services.ErrEventNotActive, http.StatusConflict, "This event is not open for bookings."},
	{services.ErrPaymentClosed, http.StatusConflict, "This payment is already closed."},
	{services.ErrInsufficientBalance, http.StatusConflict, "The requested amount exceeds the available balance."},
	{services.ErrInvalidTransition, http.StatusConflict, "That action is not allowed in the current state."},
	{services.ErrForbidden, http.StatusForbidden, "You do not have access to this resource."},
	{services.ErrGatewayUnavailable, http.StatusServiceUnavailable, "Payment provider unavailable. Please retry shortly."},
}

// ServiceError maps a service error onto the JSON error envelope. Unknown
// errors are logged and reported as 500. Issuance failures wrap their cause,
// so they are matched before validation and conflict errors.
func ServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var v *services.ValidationError
	if errors.As(err, &v) && !errors.Is(err, services.ErrIssuanceFailed) {
		ValidationFailed(w, v)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				logger.Error("request failed", "error", err)
			}
			Error(w, m.status, m.target.Error(), m.message)
			return
		}
	}

	logger.Error("unhandled error", "error", err)
	InternalServerError(w, "Something went wrong")
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(dst)
}
