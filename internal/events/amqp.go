package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes events to a topic exchange with the event type as routing
// key. Failures are logged and dropped.
type AMQP struct {
	ch       Channel
	exchange string
	timeout  time.Duration
	logger   *slog.Logger
}

var _ Publisher = (*AMQP)(nil)

// DialAMQP connects to url and declares a durable topic exchange.
func DialAMQP(url, exchange string, logger *slog.Logger) (*AMQP, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("opening channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declaring exchange %q: %w", exchange, err)
	}

	closeFn := func() error {
		ch.Close()
		return conn.Close()
	}
	return NewAMQP(ch, exchange, logger), closeFn, nil
}

func NewAMQP(ch Channel, exchange string, logger *slog.Logger) *AMQP {
	return &AMQP{ch: ch, exchange: exchange, timeout: 5 * time.Second, logger: logger}
}

func (p *AMQP) Publish(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("encoding event", "type", e.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		e.Type,     // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    e.At,
			AppId:        "storyline",
			Headers:      amqp.Table{"device": e.Device},
		},
	)
	if err != nil {
		p.logger.Warn("publishing event", "type", e.Type, "device", e.Device, "error", err)
	}
}
