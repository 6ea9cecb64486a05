package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"eventpass-backend/monitoring"
)

type Sender interface {
	Send(ctx context.Context, c *Confirmation) error
}

// Dispatcher sends confirmations on a detached goroutine. Failures are
// logged and counted, never returned to the caller.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, timeout: timeout, logger: logger}
}

// Dispatch returns immediately. ctx only contributes its values; its
// cancellation does not stop delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, confirmations []*Confirmation) {
	if len(confirmations) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, c := range confirmations {
			d.send(ctx, c)
		}
	}()
}

func (d *Dispatcher) send(ctx context.Context, c *Confirmation) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			monitoring.RecordNotification("failed")
			d.logger.Error("notification sender panicked", "attendee", c.AttendeeEmail, "panic", p)
		}
	}()

	if err := d.sender.Send(ctx, c); err != nil {
		monitoring.RecordNotification("failed")
		d.logger.Warn("notification failed",
			"attendee", c.AttendeeEmail,
			"event", c.EventTitle,
			"tickets", len(c.Tickets),
			"error", err)
		return
	}
	monitoring.RecordNotification("sent")
}

// Wait blocks until every dispatched batch has finished. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// LogSender writes confirmations to the log instead of delivering them.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, c *Confirmation) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	codes := make([]string, 0, len(c.Tickets))
	for _, t := range c.Tickets {
		codes = append(codes, t.ConfirmationID)
	}
	logger.InfoContext(ctx, "confirmation", "to", c.AttendeeEmail, "event", c.EventTitle, "codes", codes)
	return nil
}
