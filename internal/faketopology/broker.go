// Package faketopology runs a minimal in-process request handler against a
// real broker connection, so client tests can exercise Send end to end
// without a purpose-built server implementation living in the public API
// (RestBus itself only ever plays the client role).
package faketopology

import (
	"context"
	"fmt"

	"github.com/autom8ter/machine/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Mode selects how the broker answers a request it receives.
type Mode int

const (
	// ModeEcho replies 200 OK with the request body echoed back.
	ModeEcho Mode = iota
	// ModeWithhold never replies, so callers observe a timeout.
	ModeWithhold
	// ModeBadResponse replies with bytes that do not parse as a response.
	ModeBadResponse
)

// Broker consumes requests published to one exchange/routing key and
// answers them on whatever reply-to queue the request carried.
type Broker struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	mode    Mode
	machine machine.Machine
	cancel  context.CancelFunc
}

// Dial connects to url, declares exchange/queue/binding matching the given
// routing key, and starts answering requests according to mode.
func Dial(url, exchange, exchangeType, routingKey string, mode Mode) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("faketopology: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("faketopology: channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, exchangeType, false, true, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("faketopology: declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("faketopology: declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("faketopology: bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("faketopology: consume: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{conn: conn, ch: ch, mode: mode, machine: machine.New(), cancel: cancel}
	b.machine.Go(ctx, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case d, ok := <-deliveries:
				if !ok {
					return nil
				}
				b.machine.Go(ctx, func(ctx context.Context) error {
					b.handle(ctx, d)
					return nil
				})
			}
		}
	})
	return b, nil
}

func (b *Broker) handle(ctx context.Context, d amqp.Delivery) {
	if d.ReplyTo == "" {
		return
	}
	switch b.mode {
	case ModeWithhold:
		return
	case ModeBadResponse:
		_ = b.ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
			CorrelationId: d.CorrelationId,
			Body:          []byte{0xff, 0xff, 0xff},
		})
	default: // ModeEcho
		_ = b.ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
			CorrelationId: d.CorrelationId,
			Body:          encodeEchoResponse(d.Body),
		})
	}
}

// Close stops the broker's delivery loop and closes its connection.
func (b *Broker) Close() {
	b.cancel()
	_ = b.machine.Wait()
	_ = b.conn.Close()
}
