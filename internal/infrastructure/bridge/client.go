package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
	"github.com/alexander-mattos/baileys/internal/infrastructure/metrics"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

const (
	headerAPIKey = "x-api-key"

	// bodyExcerptLimit bounds how much of an error body ends up in messages and logs
	bodyExcerptLimit = 512
)

var _ deps.Bridge = (*Client)(nil)

// Client is the transport adapter for the Baileys bridge REST API
type Client struct {
	http    *resty.Client
	stream  *resty.Client
	apiKey  string
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a bridge client. A missing base URL or API key is a
// configuration error and no client is built.
func NewClient(cfg *config.BridgeConfig, logger zerolog.Logger, m *metrics.Metrics) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader(headerAPIKey, cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.RequestTimeout)

	// the open is bounded until headers arrive; the body then lives as long as the watch context
	streamTransport := http.DefaultTransport.(*http.Transport).Clone()
	streamTransport.ResponseHeaderTimeout = cfg.RequestTimeout

	streamClient := resty.New().
		SetTransport(streamTransport).
		SetBaseURL(baseURL).
		SetHeader(headerAPIKey, cfg.APIKey).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache")

	logger = logger.With().Str("component", "bridge_client").Logger()
	logger.Info().
		Str("base_url", baseURL).
		Dur("timeout", cfg.RequestTimeout).
		Msg("Bridge client configured")

	return &Client{
		http:    httpClient,
		stream:  streamClient,
		apiKey:  cfg.APIKey,
		logger:  logger,
		metrics: m,
	}, nil
}

// endpoint returns the HTTP method and path of a command
func endpoint(cmd entities.Command, sessionID string) (string, string, error) {
	id := url.PathEscape(sessionID)

	if cmd != entities.CommandCreate && sessionID == "" {
		return "", "", pkgerrors.NewValidationErrorf("sessionId is required for %s", cmd)
	}

	switch cmd {
	case entities.CommandCreate:
		return http.MethodPost, "/sessions/add", nil
	case entities.CommandStatus:
		return http.MethodGet, "/sessions/" + id + "/status", nil
	case entities.CommandStart:
		return http.MethodPost, "/sessions/" + id + "/start", nil
	case entities.CommandRestart:
		return http.MethodPost, "/sessions/" + id + "/restart", nil
	case entities.CommandQR:
		return http.MethodGet, "/sessions/" + id + "/qr", nil
	case entities.CommandDisconnect:
		return http.MethodPost, "/sessions/" + id + "/logout", nil
	case entities.CommandDelete:
		return http.MethodDelete, "/sessions/" + id, nil
	case entities.CommandSend:
		return http.MethodPost, "/" + id + "/messages/send", nil
	case entities.CommandMessages:
		return http.MethodGet, "/sessions/" + id + "/messages", nil
	}

	return "", "", pkgerrors.NewValidationErrorf("unknown bridge command %q", cmd)
}

// IssueCommand sends one command to the bridge.
// Query parameters are passed as map[string]string, anything else is sent as a JSON body.
func (c *Client) IssueCommand(ctx context.Context, sessionID string, cmd entities.Command, payload interface{}) (*entities.BridgeReply, error) {
	method, path, err := endpoint(cmd, sessionID)
	if err != nil {
		return nil, err
	}

	req := c.http.R().SetContext(ctx)
	switch p := payload.(type) {
	case nil:
	case map[string]string:
		req.SetQueryParams(p)
	default:
		req.SetBody(p)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		c.metrics.RecordBridgeRequest(string(cmd), "transport_error", elapsed)
		c.logger.Warn().
			Err(err).
			Str("command", string(cmd)).
			Str("session_id", sessionID).
			Msg("Bridge request failed")
		return nil, pkgerrors.NewTransportError(0, fmt.Sprintf("bridge %s request failed: %v", cmd, err), err)
	}

	reply, err := decodeReply(resp.StatusCode(), resp.Body())
	if err != nil {
		outcome := "transport_error"
		if pkgerrors.IsNotFound(err) {
			outcome = "not_found"
		}
		c.metrics.RecordBridgeRequest(string(cmd), outcome, elapsed)
		c.logger.Warn().
			Err(err).
			Str("command", string(cmd)).
			Str("session_id", sessionID).
			Int("status_code", resp.StatusCode()).
			Msg("Bridge returned an error")
		return nil, err
	}

	c.metrics.RecordBridgeRequest(string(cmd), "success", elapsed)
	c.logger.Debug().
		Str("command", string(cmd)).
		Str("session_id", sessionID).
		Int("status_code", resp.StatusCode()).
		Msg("Bridge command completed")

	return reply, nil
}

type wireReply struct {
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	QRCode  string          `json:"qrcode"`
	Status  string          `json:"status"`
}

// decodeReply turns a bridge response into a reply or a typed error
func decodeReply(statusCode int, body []byte) (*entities.BridgeReply, error) {
	text := strings.TrimSpace(string(body))

	if statusCode == http.StatusNotFound {
		return nil, pkgerrors.NewNotFoundErrorf("bridge: %s", excerpt(text, "session not found"))
	}

	if statusCode >= http.StatusBadRequest {
		return nil, pkgerrors.NewTransportError(
			statusCode,
			fmt.Sprintf("bridge returned %d: %s", statusCode, excerpt(text, http.StatusText(statusCode))),
			nil,
		)
	}

	if text == "" {
		return &entities.BridgeReply{Success: true}, nil
	}

	var wire wireReply
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		// the add-sse handshake answers with a raw event instead of JSON
		if strings.HasPrefix(text, "data:") {
			return &entities.BridgeReply{
				Success: true,
				Message: "SSE connection established",
				Raw:     excerpt(text, ""),
			}, nil
		}
		return nil, pkgerrors.NewTransportError(statusCode, "failed to parse bridge response: "+excerpt(text, ""), err)
	}

	if wire.Success != nil && !*wire.Success {
		message := wire.Error
		if message == "" {
			message = wire.Message
		}
		if message == "" {
			message = "bridge reported failure"
		}
		return nil, pkgerrors.NewTransportError(statusCode, message, nil)
	}

	return &entities.BridgeReply{
		Success: true,
		Error:   wire.Error,
		Message: wire.Message,
		Data:    wire.Data,
		QRCode:  wire.QRCode,
		Status:  wire.Status,
	}, nil
}

func excerpt(text, fallback string) string {
	if text == "" {
		return fallback
	}
	if len(text) > bodyExcerptLimit {
		return text[:bodyExcerptLimit]
	}
	return text
}
