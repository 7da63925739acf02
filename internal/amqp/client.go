// Package amqp carries reminder traffic between the API process and the
// reminder worker over RabbitMQ: schedule messages on one queue, cancel
// messages on another, both bound to a durable direct exchange.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
)

type Client struct {
	url           string
	conn          *amqp091.Connection
	channel       *amqp091.Channel
	exchangeName  string
	scheduleQueue string
	cancelQueue   string

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, scheduleQueue, cancelQueue string) (*Client, error) {
	client := &Client{
		url:           url,
		exchangeName:  exchangeName,
		scheduleQueue: scheduleQueue,
		cancelQueue:   cancelQueue,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel

	if err := c.setup(); err != nil {
		c.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}
	return nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.scheduleQueue, c.cancelQueue} {
		_, err = c.channel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// Routing key matches the queue name on a direct exchange.
		if err := c.channel.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

// Connected reports whether the underlying connection is usable.
func (c *Client) Connected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishSchedule publishes a reminder schedule message.
func (c *Client) PublishSchedule(ctx context.Context, msg *ReminderScheduleMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.scheduleQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published reminder schedule message",
		"handle", msg.Handle,
		"subscription_id", msg.SubscriptionID,
		"fire_at", msg.FireAt)
	return nil
}

// PublishCancel publishes a reminder cancel message.
func (c *Client) PublishCancel(ctx context.Context, msg *ReminderCancelMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.cancelQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published reminder cancel message",
		"handle", msg.Handle,
		"all", msg.All)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	return nil
}

// ConsumeSchedules delivers reminder schedule messages to handler until ctx
// is cancelled. Handler failures nack with requeue; unparseable messages are
// dropped.
func (c *Client) ConsumeSchedules(ctx context.Context, handler func(*ReminderScheduleMessage) error) error {
	return c.consume(ctx, c.scheduleQueue, func(body []byte) error {
		msg, err := ReminderScheduleMessageFromJSON(body)
		if err != nil {
			return errUnparseable{err}
		}
		return handler(msg)
	})
}

// ConsumeCancels delivers reminder cancel messages to handler until ctx is
// cancelled.
func (c *Client) ConsumeCancels(ctx context.Context, handler func(*ReminderCancelMessage) error) error {
	return c.consume(ctx, c.cancelQueue, func(body []byte) error {
		msg, err := ReminderCancelMessageFromJSON(body)
		if err != nil {
			return errUnparseable{err}
		}
		return handler(msg)
	})
}

type errUnparseable struct{ err error }

func (e errUnparseable) Error() string { return e.err.Error() }

func (c *Client) consume(ctx context.Context, queue string, handle func([]byte) error) error {
	msgs, err := c.channel.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "queue", queue, "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			if err := handle(delivery.Body); err != nil {
				if _, bad := err.(errUnparseable); bad {
					slog.ErrorContext(ctx, "Failed to unmarshal message", "queue", queue, "error", err)
					delivery.Nack(false, false) // reject and don't requeue
					continue
				}
				slog.ErrorContext(ctx, "Failed to handle message", "queue", queue, "error", err)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	if time.Since(c.lastFailure) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	count := atomic.AddInt64(&c.failureCount, 1)
	c.lastFailure = time.Now()
	if count >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns the delay before reconnect attempt n, doubling
// from one second and capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Reconnect re-dials with exponential backoff until it succeeds or ctx is
// cancelled. Callers use it after a consume loop exits with a connection
// error.
func (c *Client) Reconnect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(exponentialBackoff(attempt)):
		}

		if err := c.connect(); err != nil {
			slog.WarnContext(ctx, "Reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		slog.InfoContext(ctx, "Reconnected to AMQP broker", "attempt", attempt)
		c.recordSuccess()
		return nil
	}
}
