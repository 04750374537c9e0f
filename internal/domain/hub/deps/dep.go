package deps

import (
	"context"

	"github.com/alexander-mattos/baileys/internal/domain/hub/entities"
)

// Backplane relays envelopes between service instances
type Backplane interface {
	Name() string
	Publish(ctx context.Context, env entities.Envelope) error
	// Run delivers every received envelope, including this instance's own, until ctx ends
	Run(ctx context.Context, deliver func(entities.Envelope)) error
	Close() error
}
