package middleware

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/infrastructure/auth"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
	"github.com/alexander-mattos/baileys/pkg/httputil"
)

const (
	tenantKey    = "tenant_id"
	requestIDKey = "request_id"

	headerRequestID = "X-Request-ID"
)

// publicPrefixes bypass the auth gate
var publicPrefixes = []string{"/webhook", "/health", "/metrics"}

// TenantFromCtx returns the tenant resolved by the auth gate
func TenantFromCtx(ctx *fasthttp.RequestCtx) string {
	tenant, _ := ctx.UserValue(tenantKey).(string)
	return tenant
}

// SetTenant stores the tenant of a request
func SetTenant(ctx *fasthttp.RequestCtx, tenant string) {
	ctx.SetUserValue(tenantKey, tenant)
}

// RequestIDFromCtx returns the request id assigned by RequestLogger
func RequestIDFromCtx(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue(requestIDKey).(string)
	return id
}

// RequestLogger logs every request with its latency and status
func RequestLogger(logger zerolog.Logger) httputil.Middleware {
	logger = logger.With().Str("component", "http").Logger()

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()

			requestID := string(ctx.Request.Header.Peek(headerRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ctx.SetUserValue(requestIDKey, requestID)
			ctx.Response.Header.Set(headerRequestID, requestID)

			next(ctx)

			event := logger.Debug()
			if ctx.Response.StatusCode() >= fasthttp.StatusInternalServerError {
				event = logger.Warn()
			}
			event.
				Str("request_id", requestID).
				Str("method", string(ctx.Method())).
				Str("path", string(ctx.Path())).
				Int("status", ctx.Response.StatusCode()).
				Dur("latency", time.Since(start)).
				Msg("request handled")
		}
	}
}

// CORS answers preflight requests and echoes allowed origins
func CORS(cfg *config.WebsocketConfig) httputil.Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			origin := string(ctx.Request.Header.Peek("Origin"))
			if origin != "" && cfg.AllowsOrigin(origin) {
				ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
				ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
				ctx.Response.Header.Set("Vary", "Origin")
			}

			if ctx.IsOptions() {
				ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Tenant-ID, X-Request-ID")
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}

			next(ctx)
		}
	}
}

// Auth resolves the caller tenant and rejects unauthenticated requests
func Auth(verifier *auth.Verifier, mapper *pkgerrors.Mapper) httputil.Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if isPublic(string(ctx.Path())) {
				next(ctx)
				return
			}

			tenant, err := verifier.Resolve(
				string(ctx.Request.Header.Peek("Authorization")),
				string(ctx.QueryArgs().Peek("token")),
				string(ctx.Request.Header.Peek("X-Tenant-ID")),
			)
			if err != nil {
				httputil.WriteMappedError(ctx, mapper, err)
				return
			}

			SetTenant(ctx, tenant)
			next(ctx)
		}
	}
}

func isPublic(path string) bool {
	for _, prefix := range publicPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
