package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// Publisher is the subset of *amqp.Channel used for publishing.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// DeclareQueue declares the durable confirmation queue.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
}

// AMQPSender hands confirmations to the mailer worker through a queue.
type AMQPSender struct {
	mu    sync.Mutex
	pub   Publisher
	queue string
}

func NewAMQPSender(pub Publisher, queue string) *AMQPSender {
	return &AMQPSender{pub: pub, queue: queue}
}

func (s *AMQPSender) Send(ctx context.Context, c *Confirmation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.pub.Publish("", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish confirmation for %s: %w", c.AttendeeEmail, err)
	}
	return nil
}

// Consumer drains the confirmation queue into a Sender. A failed delivery is
// requeued once and dropped on its second failure.
type Consumer struct {
	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
}

func NewConsumer(sender Sender, timeout time.Duration, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{sender: sender, timeout: timeout, logger: logger}
}

// Run processes deliveries until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.Handle(ctx, d)
		}
	}
}

func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	var confirmation Confirmation
	if err := json.Unmarshal(d.Body, &confirmation); err != nil {
		c.logger.Error("dropping malformed confirmation", "error", err)
		d.Reject(false)
		return
	}

	sendCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.sender.Send(sendCtx, &confirmation); err != nil {
		requeue := !d.Redelivered
		c.logger.Warn("confirmation delivery failed",
			"attendee", confirmation.AttendeeEmail,
			"requeue", requeue,
			"error", err)
		d.Nack(false, requeue)
		return
	}
	d.Ack(false)
}
