package bridge

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

var _ deps.StatusListener = (*Notifier)(nil)

// Notifier posts terminal session statuses to an external listener
type Notifier struct {
	http    *resty.Client
	enabled bool
	logger  zerolog.Logger
}

// NewNotifier creates a notifier; an empty listener URL disables it
func NewNotifier(cfg *config.BridgeConfig, logger zerolog.Logger) *Notifier {
	listenerURL := strings.TrimRight(cfg.StatusListenerURL, "/")

	return &Notifier{
		http: resty.New().
			SetBaseURL(listenerURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(cfg.RequestTimeout),
		enabled: listenerURL != "",
		logger:  logger.With().Str("component", "status_notifier").Logger(),
	}
}

// NotifyStatus posts {status} to {listener}/{sessionId}
func (n *Notifier) NotifyStatus(ctx context.Context, sessionID string, status entities.Status) error {
	if !n.enabled {
		return nil
	}

	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"status": string(status)}).
		Post("/" + url.PathEscape(sessionID))
	if err != nil {
		return pkgerrors.NewTransportError(0, fmt.Sprintf("status listener request failed: %v", err), err)
	}

	if resp.IsError() {
		return pkgerrors.NewTransportError(resp.StatusCode(), fmt.Sprintf("status listener returned %d", resp.StatusCode()), nil)
	}

	n.logger.Debug().
		Str("session_id", sessionID).
		Str("status", string(status)).
		Msg("Status listener notified")

	return nil
}
