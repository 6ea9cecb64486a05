package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lucsky/cuid"

	"eventpass-backend/db"
	"eventpass-backend/models"
	"eventpass-backend/repositories"
)

const (
	confirmationCodeLength   = 8
	confirmationCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts          = 5
)

// IssueRequest describes one all-or-nothing issuance.
type IssueRequest struct {
	EventID   string
	Lines     []*models.OrderLine
	PaymentID *string
	// CheckPrice rejects lines whose unit price no longer matches the
	// ticket type (paid flow).
	CheckPrice bool
	// FreeOnly rejects ticket types with a non-zero price and claims the
	// per-event attendee slot for every ticket.
	FreeOnly bool
}

// TicketIssuer turns validated order lines into ticket rows.
type TicketIssuer struct {
	db          *db.DB
	tickets     *repositories.TicketRepository
	ticketTypes *repositories.TicketTypeRepository
	users       *repositories.UserRepository
	ledger      *InventoryLedger
	codes       func() (string, error)
	now         func() time.Time
}

func NewTicketIssuer(
	database *db.DB,
	tickets *repositories.TicketRepository,
	ticketTypes *repositories.TicketTypeRepository,
	users *repositories.UserRepository,
	ledger *InventoryLedger,
) *TicketIssuer {
	return &TicketIssuer{
		db:          database,
		tickets:     tickets,
		ticketTypes: ticketTypes,
		users:       users,
		ledger:      ledger,
		codes:       GenerateConfirmationCode,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Issue runs IssueTx in its own transaction.
func (i *TicketIssuer) Issue(ctx context.Context, req *IssueRequest) ([]*models.Ticket, error) {
	var tickets []*models.Ticket
	err := i.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		tickets, err = i.IssueTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// IssueTx creates one ticket per unit of quantity inside tx. Any error leaves
// tx in a state the caller must roll back.
func (i *TicketIssuer) IssueTx(ctx context.Context, tx *sqlx.Tx, req *IssueRequest) ([]*models.Ticket, error) {
	if err := validateLines(req); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Lines))
	seen := make(map[string]bool)
	for _, line := range req.Lines {
		if !seen[line.TicketTypeID] {
			seen[line.TicketTypeID] = true
			ids = append(ids, line.TicketTypeID)
		}
	}

	ticketTypes, err := i.ticketTypes.GetTicketTypesTx(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	for idx, line := range req.Lines {
		tt, ok := ticketTypes[line.TicketTypeID]
		if !ok || tt.EventID != req.EventID {
			return nil, fmt.Errorf("%w: %s", ErrTicketTypeNotFound, line.TicketTypeID)
		}
		if req.FreeOnly && tt.Price != 0 {
			return nil, invalid(fmt.Sprintf("tickets[%d].ticketTypeId", idx), "ticket type is not free")
		}
		if req.CheckPrice && tt.Price != line.UnitPrice {
			return nil, fmt.Errorf("%w: %q is now %d, order recorded %d", ErrPriceMismatch, tt.Name, tt.Price, line.UnitPrice)
		}
	}

	for _, line := range req.Lines {
		if err := i.ledger.ReserveTx(ctx, tx, ticketTypes[line.TicketTypeID], line.Quantity); err != nil {
			return nil, err
		}
	}

	userIDs := make(map[string]*string)
	createdAt := i.now()
	var tickets []*models.Ticket

	for _, line := range req.Lines {
		email := normalizeEmail(line.AttendeeEmail)

		userID, cached := userIDs[email]
		if !cached {
			userID, err = i.users.FindIDByEmailTx(ctx, tx, email)
			if err != nil {
				return nil, err
			}
			userIDs[email] = userID
		}

		for n := 0; n < line.Quantity; n++ {
			code, err := i.uniqueCodeTx(ctx, tx)
			if err != nil {
				return nil, err
			}

			ticket := &models.Ticket{
				ID:               cuid.New(),
				EventID:          req.EventID,
				TicketTypeID:     line.TicketTypeID,
				PaymentID:        req.PaymentID,
				UserID:           userID,
				AttendeeName:     strings.TrimSpace(line.AttendeeName),
				AttendeeEmail:    email,
				AttendeePhone:    line.AttendeePhone,
				ConfirmationCode: code,
				Price:            line.UnitPrice,
				Status:           models.TicketActive,
				CreatedAt:        createdAt,
			}

			if req.FreeOnly {
				if err := i.ledger.ClaimAttendeeTx(ctx, tx, req.EventID, email, ticket.ID); err != nil {
					return nil, err
				}
			}
			if err := i.tickets.CreateTicketTx(ctx, tx, ticket); err != nil {
				return nil, err
			}
			tickets = append(tickets, ticket)
		}
	}

	return tickets, nil
}

func (i *TicketIssuer) uniqueCodeTx(ctx context.Context, tx *sqlx.Tx) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := i.codes()
		if err != nil {
			return "", err
		}
		exists, err := i.tickets.CodeExistsTx(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("no unused confirmation code after %d attempts", maxCodeAttempts)
}

// GenerateConfirmationCode returns 8 random characters from A-Z0-9.
func GenerateConfirmationCode() (string, error) {
	max := big.NewInt(int64(len(confirmationCodeAlphabet)))
	code := make([]byte, confirmationCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = confirmationCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

func validateLines(req *IssueRequest) error {
	v := &ValidationError{}
	if req.EventID == "" {
		v.Add("eventId", "is required")
	}
	if len(req.Lines) == 0 {
		v.Add("tickets", "at least one ticket is required")
	}
	for idx, line := range req.Lines {
		field := fmt.Sprintf("tickets[%d]", idx)
		if line == nil {
			v.Add(field, "is empty")
			continue
		}
		if line.TicketTypeID == "" {
			v.Add(field+".ticketTypeId", "is required")
		}
		if line.Quantity <= 0 {
			v.Add(field+".quantity", "must be positive")
		}
		if line.UnitPrice < 0 {
			v.Add(field+".unitPrice", "must not be negative")
		}
		if strings.TrimSpace(line.AttendeeName) == "" {
			v.Add(field+".attendeeName", "is required")
		}
		if !validEmail(line.AttendeeEmail) {
			v.Add(field+".attendeeEmail", "must be a valid email")
		}
	}
	return v.OrNil()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}
