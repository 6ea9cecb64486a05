package models

import (
	"encoding/json"
	"fmt"
)

// OrderSnapshotVersion is the current layout of Payment.metadata.
const OrderSnapshotVersion = 1

// OrderLine is one requested ticket type for one attendee. UnitPrice is the
// price the buyer was quoted at checkout, in minor currency units.
type OrderLine struct {
	TicketTypeID  string  `json:"ticketTypeId"`
	Quantity      int     `json:"quantity"`
	UnitPrice     int64   `json:"unitPrice"`
	AttendeeName  string  `json:"attendeeName"`
	AttendeeEmail string  `json:"attendeeEmail"`
	AttendeePhone *string `json:"attendeePhone,omitempty"`
}

// OrderSnapshot is the authoritative record of what a payment bought. It is
// written once at checkout and replayed by reconciliation.
type OrderSnapshot struct {
	Version int          `json:"version"`
	EventID string       `json:"eventId"`
	Lines   []*OrderLine `json:"lines"`
}

// Encode validates the snapshot and serializes it for storage.
func (s *OrderSnapshot) Encode() (string, error) {
	if s.Version == 0 {
		s.Version = OrderSnapshotVersion
	}
	if err := s.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Validate checks the structural rules every stored snapshot must satisfy.
func (s *OrderSnapshot) Validate() error {
	if s.Version != OrderSnapshotVersion {
		return fmt.Errorf("order snapshot: unsupported version %d", s.Version)
	}
	if s.EventID == "" {
		return fmt.Errorf("order snapshot: missing eventId")
	}
	if len(s.Lines) == 0 {
		return fmt.Errorf("order snapshot: no lines")
	}
	for i, line := range s.Lines {
		if line == nil {
			return fmt.Errorf("order snapshot: line %d is empty", i)
		}
		if line.TicketTypeID == "" {
			return fmt.Errorf("order snapshot: line %d missing ticketTypeId", i)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("order snapshot: line %d has quantity %d", i, line.Quantity)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("order snapshot: line %d has negative price", i)
		}
		if line.AttendeeEmail == "" {
			return fmt.Errorf("order snapshot: line %d missing attendeeEmail", i)
		}
	}
	return nil
}

// DecodeOrderSnapshot parses and validates a stored Payment.metadata value.
// Snapshots written before versioning (no version field) are read as v1.
func DecodeOrderSnapshot(raw string) (*OrderSnapshot, error) {
	var s OrderSnapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("order snapshot: %w", err)
	}
	if s.Version == 0 {
		s.Version = OrderSnapshotVersion
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
