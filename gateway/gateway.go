// Package gateway holds the provider-neutral view of a payment gateway.
package gateway

import (
	"encoding/json"
	"errors"
	"time"
)

// StatusSuccess is the only gateway status that means money moved.
const StatusSuccess = "success"

// ErrUnavailable covers timeouts, transport failures, 5xx responses and an
// open circuit breaker. Callers must treat it as "not yet confirmed".
var ErrUnavailable = errors.New("gateway unavailable")

// Transaction is the gateway's answer to a verification call.
type Transaction struct {
	Reference string
	Status    string
	Amount    int64
	Currency  string
	PaidAt    *time.Time
	Raw       json.RawMessage
}

func (t *Transaction) Succeeded() bool {
	return t != nil && t.Status == StatusSuccess
}

type InitializeRequest struct {
	Reference   string
	Email       string
	Amount      int64
	Currency    string
	CallbackURL string
	Metadata    map[string]string
}

type InitializeResult struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}
