package auth

import "go.uber.org/fx"

// Module provides the auth gate verifier
var Module = fx.Module("auth",
	fx.Provide(NewVerifier),
)
