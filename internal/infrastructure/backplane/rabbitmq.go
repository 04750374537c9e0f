package backplane

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/domain/hub/deps"
	"github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

var _ deps.Backplane = (*RabbitMQ)(nil)

// RabbitMQ relays envelopes through a fanout exchange.
// Each instance consumes from its own exclusive queue bound to the exchange.
type RabbitMQ struct {
	conn     *amqp091.Connection
	exchange string
	logger   zerolog.Logger

	// amqp channels are not safe for concurrent publishing
	mu  sync.Mutex
	pub *amqp091.Channel
}

// NewRabbitMQ dials the broker and declares the exchange
func NewRabbitMQ(cfg *config.RabbitMQConfig, logger zerolog.Logger) (*RabbitMQ, error) {
	if cfg.URL == "" {
		return nil, pkgerrors.NewConfigurationError("rabbitmq url is required")
	}
	if cfg.Exchange == "" {
		return nil, pkgerrors.NewConfigurationError("rabbitmq exchange is required")
	}

	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to rabbitmq: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("could not open rabbitmq channel: %w", err)
	}

	if err := pub.ExchangeDeclare(
		cfg.Exchange,
		amqp091.ExchangeFanout,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("could not declare exchange %s: %w", cfg.Exchange, err)
	}

	l := logger.With().Str("component", "rabbitmq_backplane").Logger()
	l.Info().Str("exchange", cfg.Exchange).Msg("RabbitMQ backplane initialized")

	return &RabbitMQ{
		conn:     conn,
		exchange: cfg.Exchange,
		logger:   l,
		pub:      pub,
	}, nil
}

// Name returns the driver name
func (r *RabbitMQ) Name() string {
	return config.BackplaneRabbitMQ
}

// Ping reports a dropped broker connection
func (r *RabbitMQ) Ping(_ context.Context) error {
	if r.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

// Publish sends an envelope to the exchange
func (r *RabbitMQ) Publish(ctx context.Context, env entities.Envelope) error {
	body, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.pub.PublishWithContext(ctx,
		r.exchange,
		"",    // routing key, ignored by fanout
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("could not publish to %s: %w", r.exchange, err)
	}
	return nil
}

// Run consumes this instance's queue until ctx ends
func (r *RabbitMQ) Run(ctx context.Context, deliver func(entities.Envelope)) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("could not open consumer channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("could not declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
		return fmt.Errorf("could not bind queue %s: %w", q.Name, err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("could not consume queue %s: %w", q.Name, err)
	}

	r.logger.Info().Str("queue", q.Name).Msg("Consuming broadcast queue")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("rabbitmq delivery channel closed")
			}

			env, err := decodeEnvelope(d.Body)
			if err != nil {
				r.logger.Warn().Err(err).Msg("Skipping undecodable broadcast message")
				continue
			}
			deliver(env)
		}
	}
}

// Close closes the connection and every channel on it
func (r *RabbitMQ) Close() error {
	if r.conn.IsClosed() {
		return nil
	}
	return r.conn.Close()
}
