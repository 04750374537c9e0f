package backplane

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/domain/hub/deps"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

// Module provides the configured hub backplane for fx DI
var Module = fx.Module("backplane",
	fx.Provide(NewBackplaneFx),
)

// Params are the settings of every supported driver
type Params struct {
	fx.In

	Broadcast *config.BroadcastConfig
	Kafka     *config.KafkaConfig
	Redis     *config.RedisConfig
	RabbitMQ  *config.RabbitMQConfig
	Logger    zerolog.Logger
}

// NewBackplaneFx builds the driver named in the broadcast config.
// The memory driver yields nil, which keeps the hub in-process.
func NewBackplaneFx(p Params) (deps.Backplane, error) {
	var (
		bp  deps.Backplane
		err error
	)

	switch p.Broadcast.Backplane {
	case "", config.BackplaneMemory:
		return nil, nil
	case config.BackplaneKafka:
		bp, err = NewKafka(p.Kafka, p.Logger)
	case config.BackplaneRedis:
		bp, err = NewRedis(p.Redis, p.Logger)
	case config.BackplaneRabbitMQ:
		bp, err = NewRabbitMQ(p.RabbitMQ, p.Logger)
	default:
		return nil, pkgerrors.NewConfigurationErrorf("unknown backplane %q", p.Broadcast.Backplane)
	}
	if err != nil {
		return nil, err
	}

	return bp, nil
}
