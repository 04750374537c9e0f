package business

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"rsc.io/qr"

	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
	domainerrors "github.com/alexander-mattos/baileys/internal/domain/whatsappsession/errors"
	"github.com/alexander-mattos/baileys/internal/infrastructure/metrics"
)

const pngDataURLPrefix = "data:image/png;base64,"

type qrStep struct {
	strategy entities.QRStrategy
	command  entities.Command
}

// steps after the status read; each one makes the bridge emit a fresh QR
var qrFallbackSteps = []qrStep{
	{entities.QRStrategyRestart, entities.CommandRestart},
	{entities.QRStrategyStart, entities.CommandStart},
	{entities.QRStrategyLegacy, entities.CommandQR},
}

// QRAcquirer obtains a QR code from the bridge through an ordered fallback
type QRAcquirer struct {
	bridge  deps.Bridge
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewQRAcquirer creates a QR acquirer
func NewQRAcquirer(bridge deps.Bridge, logger zerolog.Logger, m *metrics.Metrics) *QRAcquirer {
	return &QRAcquirer{
		bridge:  bridge,
		logger:  logger.With().Str("component", "qr_acquirer").Logger(),
		metrics: m,
	}
}

// Acquire returns the QR attached to the current status when there is one,
// otherwise the first of restart, start and qr that the bridge accepts.
// A result without QRCode means the QR will arrive through the webhook or stream.
func (a *QRAcquirer) Acquire(ctx context.Context, sessionID string) (*entities.QRResult, error) {
	reply, err := a.bridge.IssueCommand(ctx, sessionID, entities.CommandStatus, nil)
	switch {
	case err != nil:
		a.failed(sessionID, entities.QRStrategyStatus, err)
	case reply.QR() != "":
		a.metrics.RecordQRAcquisition(string(entities.QRStrategyStatus), "success")
		return &entities.QRResult{
			Strategy: entities.QRStrategyStatus,
			QRCode:   reply.QR(),
			Reply:    reply,
		}, nil
	default:
		a.metrics.RecordQRAcquisition(string(entities.QRStrategyStatus), "no_qr")
	}

	for _, step := range qrFallbackSteps {
		reply, err := a.bridge.IssueCommand(ctx, sessionID, step.command, nil)
		if err != nil {
			a.failed(sessionID, step.strategy, err)
			continue
		}

		a.metrics.RecordQRAcquisition(string(step.strategy), "success")
		a.logger.Info().
			Str("session_id", sessionID).
			Str("strategy", string(step.strategy)).
			Bool("has_qr", reply.QR() != "").
			Msg("QR acquisition step succeeded")

		return &entities.QRResult{
			Strategy: step.strategy,
			QRCode:   reply.QR(),
			Reply:    reply,
		}, nil
	}

	a.logger.Error().Str("session_id", sessionID).Msg("All QR acquisition strategies failed")
	return nil, domainerrors.ErrQRExhausted
}

func (a *QRAcquirer) failed(sessionID string, strategy entities.QRStrategy, err error) {
	a.metrics.RecordQRAcquisition(string(strategy), "failure")
	a.logger.Warn().
		Err(err).
		Str("session_id", sessionID).
		Str("strategy", string(strategy)).
		Msg("QR acquisition step failed")
}

// RenderQRImage returns a PNG data URL for a QR payload.
// Payloads that already are image data URLs are returned as they are.
func RenderQRImage(payload string) (string, error) {
	if strings.HasPrefix(payload, "data:image/") {
		return payload, nil
	}

	code, err := qr.Encode(payload, qr.L)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}

	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(code.PNG()), nil
}
