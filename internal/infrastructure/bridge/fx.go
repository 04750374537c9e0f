package bridge

import (
	"go.uber.org/fx"

	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
)

// Module provides the bridge transport adapter
var Module = fx.Module("bridge",
	fx.Provide(
		NewClient,
		NewNotifier,
		func(c *Client) deps.Bridge { return c },
		func(n *Notifier) deps.StatusListener { return n },
	),
)
