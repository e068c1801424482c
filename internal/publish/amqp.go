package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"simscan/internal/sim"
)

// DefaultAMQPExchange is the fanout exchange snapshots go to by default.
const DefaultAMQPExchange = "simscan"

// AMQPSink publishes snapshots to a RabbitMQ fanout exchange, routed by
// scan mode.
type AMQPSink struct {
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
	mu       sync.Mutex
	closed   bool
}

// NewAMQPSink dials url and declares the exchange.
func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	if exchange == "" {
		exchange = DefaultAMQPExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	log.Printf("publish: amqp: connected, exchange %s", exchange)
	return &AMQPSink{exchange: exchange, conn: conn, channel: ch}, nil
}

func (a *AMQPSink) Name() string { return "amqp" }

func (a *AMQPSink) Publish(ctx context.Context, snap *sim.Snapshot) error {
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("amqp sink is closed")
	}

	err = a.channel.PublishWithContext(
		ctx,
		a.exchange,        // exchange
		string(snap.Mode), // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    snap.ID,
			Timestamp:    snap.FinishedAt,
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish to %s: %w", a.exchange, err)
	}
	return nil
}

// Close shuts the channel and the connection.
func (a *AMQPSink) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	if err := a.channel.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}
	if err := a.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	return errors.Join(errs...)
}
