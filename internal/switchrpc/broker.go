package switchrpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker exchange names shared with the switch-side agents.
const (
	CommandsExchange = "TAP.Commands"
	EventsExchange   = "TAP.Events"
	FirewallExchange = "TAP.Firewall"
)

// defaultReplyTimeout bounds one Receive call unless overridden.
const defaultReplyTimeout = 3 * time.Second

// BrokerConfig configures the AMQP transport.
type BrokerConfig struct {
	URL          string
	Hosts        []string // switch node hostnames
	ReplyTimeout time.Duration
}

// BrokerRPC carries commands over the message broker. Each instance owns an
// exclusive auto-delete reply queue bound to the commands exchange.
type BrokerRPC struct {
	cfg    BrokerConfig
	logger *slog.Logger

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	replyQueue string
	deliveries <-chan amqp.Delivery
}

// NewBrokerRPC creates the broker-backed fabric transport.
func NewBrokerRPC(cfg BrokerConfig, logger *slog.Logger) *BrokerRPC {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = defaultReplyTimeout
	}
	return &BrokerRPC{cfg: cfg, logger: logger.With("subsystem", "broker")}
}

// Connect dials the broker, declares the exchanges and sets up the reply
// queue.
func (b *BrokerRPC) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && !b.conn.IsClosed() {
		return nil
	}

	conn, err := amqp.Dial(b.cfg.URL)
	if err != nil {
		return fmt.Errorf("%w: dialing broker: %v", ErrUnavailable, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: opening channel: %v", ErrUnavailable, err)
	}

	for _, exchange := range []string{CommandsExchange, EventsExchange, FirewallExchange} {
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("declaring exchange %s: %w", exchange, err)
		}
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("declaring reply queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, q.Name, CommandsExchange, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("binding reply queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("consuming reply queue: %w", err)
	}

	b.conn = conn
	b.ch = ch
	b.replyQueue = q.Name
	b.deliveries = deliveries
	b.logger.Info("broker connected", "reply_queue", q.Name)
	return nil
}

// Send publishes the command to one node, or to every configured node when
// host is empty. Reply routing travels in the x-fs-api-resp headers.
func (b *BrokerRPC) Send(ctx context.Context, payload, host string) error {
	b.mu.Lock()
	ch, replyQueue := b.ch, b.replyQueue
	b.mu.Unlock()
	if ch == nil {
		return ErrUnavailable
	}

	hosts := []string{host}
	if host == "" {
		hosts = b.cfg.Hosts
	}
	for _, h := range hosts {
		err := ch.PublishWithContext(ctx, CommandsExchange, h+"_command", false, false,
			amqp.Publishing{
				ContentType: "text/plain",
				Body:        []byte(payload),
				Headers: amqp.Table{
					"x-fs-api-resp-exchange": CommandsExchange,
					"x-fs-api-resp-key":      replyQueue,
				},
			})
		if err != nil {
			return fmt.Errorf("%w: publishing to %s: %v", ErrUnavailable, h, err)
		}
	}
	return nil
}

// Publish sends a one-way message to an exchange. Firewall announcements
// and event fan-out use this path; no reply is expected.
func (b *BrokerRPC) Publish(ctx context.Context, exchange, key, contentType string, body []byte) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	if ch == nil {
		return ErrUnavailable
	}
	err := ch.PublishWithContext(ctx, exchange, key, false, false,
		amqp.Publishing{ContentType: contentType, Body: body})
	if err != nil {
		return fmt.Errorf("%w: publishing to %s: %v", ErrUnavailable, exchange, err)
	}
	return nil
}

// ConsumeEvents binds a durable queue to the events exchange and feeds
// every delivery body to handle. Messages are acked one at a time after the
// handler returns, so a stalled consumer shows up as broker queue growth.
// The call blocks until the context ends.
func (b *BrokerRPC) ConsumeEvents(ctx context.Context, queue string, keys []string, handle func(context.Context, []byte)) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	if ch == nil {
		return ErrUnavailable
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declaring event queue %s: %w", queue, err)
	}
	for _, key := range keys {
		if err := ch.QueueBind(q.Name, key, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("binding %s to %s: %w", q.Name, key, err)
		}
	}
	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming %s: %w", q.Name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrUnavailable
			}
			handle(ctx, d.Body)
			if err := d.Ack(false); err != nil {
				b.logger.Error("acking event delivery", "err", err)
			}
		}
	}
}

// Receive collects up to n replies. It returns what arrived when the reply
// timeout lapses, and ErrTimeout only if nothing arrived at all. On context
// cancellation in-flight replies are drained and discarded.
func (b *BrokerRPC) Receive(ctx context.Context, n int) ([]Response, error) {
	b.mu.Lock()
	deliveries := b.deliveries
	b.mu.Unlock()
	if deliveries == nil {
		return nil, ErrUnavailable
	}

	timer := time.NewTimer(b.cfg.ReplyTimeout)
	defer timer.Stop()

	var out []Response
	for len(out) < n {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return out, ErrUnavailable
			}
			out = append(out, Response{
				Host:    headerString(d.Headers, "x-fs-hostname"),
				Headers: map[string]string{"Content-Type": d.ContentType},
				Body:    string(d.Body),
			})
		case <-timer.C:
			if len(out) == 0 {
				return nil, ErrTimeout
			}
			return out, nil
		case <-ctx.Done():
			b.drain(deliveries)
			return out, ctx.Err()
		}
	}
	return out, nil
}

// drain discards whatever is already buffered so late replies do not leak
// into the next call.
func (b *BrokerRPC) drain(deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-deliveries:
		default:
			return
		}
	}
}

// Close tears down the broker connection.
func (b *BrokerRPC) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	b.ch = nil
	b.deliveries = nil
	return err
}

func headerString(t amqp.Table, key string) string {
	if t == nil {
		return ""
	}
	if v, ok := t[key].(string); ok {
		return v
	}
	return ""
}
