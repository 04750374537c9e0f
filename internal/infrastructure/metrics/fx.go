package metrics

import "go.uber.org/fx"

// Module shares the process-wide collectors, so the bridge client, watchers
// and hub record into the same registry.
var Module = fx.Module("metrics",
	fx.Provide(GetDefaultMetrics),
)
