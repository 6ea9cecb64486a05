package paystack

import (
	"encoding/json"
	"errors"
)

// EventChargeSuccess is the only webhook event that triggers reconciliation.
const EventChargeSuccess = "charge.success"

var ErrMalformedWebhook = errors.New("malformed webhook payload")

type WebhookEvent struct {
	Event     string
	Reference string
	Raw       json.RawMessage
}

// ParseWebhook extracts the event name and transaction reference from a
// webhook body whose signature has already been checked.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrMalformedWebhook
	}
	if payload.Event == "" {
		return nil, ErrMalformedWebhook
	}
	return &WebhookEvent{
		Event:     payload.Event,
		Reference: payload.Data.Reference,
		Raw:       body,
	}, nil
}
