package backplane

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/domain/hub/deps"
	"github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

var _ deps.Backplane = (*Redis)(nil)

// Redis relays envelopes over a pub/sub channel
type Redis struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedis creates a redis backplane
func NewRedis(cfg *config.RedisConfig, logger zerolog.Logger) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, pkgerrors.NewConfigurationError("redis address is required")
	}
	if cfg.Channel == "" {
		return nil, pkgerrors.NewConfigurationError("redis broadcast channel is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	return &Redis{
		client:  client,
		channel: cfg.Channel,
		logger:  logger.With().Str("component", "redis_backplane").Logger(),
	}, nil
}

// Name returns the driver name
func (r *Redis) Name() string {
	return config.BackplaneRedis
}

// Ping verifies redis connectivity
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Publish sends an envelope to the channel
func (r *Redis) Publish(ctx context.Context, env entities.Envelope) error {
	data, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// Run subscribes to the channel until ctx ends
func (r *Redis) Run(ctx context.Context, deliver func(entities.Envelope)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}

	r.logger.Info().Str("channel", r.channel).Msg("Subscribed to broadcast channel")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription %s closed", r.channel)
			}

			env, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn().Err(err).Msg("Skipping undecodable broadcast message")
				continue
			}
			deliver(env)
		}
	}
}

// Close closes the redis client
func (r *Redis) Close() error {
	return r.client.Close()
}
