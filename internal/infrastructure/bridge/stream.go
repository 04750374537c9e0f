package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

// maxEventSize bounds one SSE event; QR payloads are a few kilobytes
const maxEventSize = 1 << 20

// OpenEventStream opens the bridge push stream of a session.
// The stream stays open until ctx ends, Close is called or the bridge drops it.
func (c *Client) OpenEventStream(ctx context.Context, sessionID string) (deps.EventStream, error) {
	if sessionID == "" {
		return nil, pkgerrors.NewValidationError("sessionId is required for the event stream")
	}

	streamCtx, cancel := context.WithCancel(ctx)

	resp, err := c.stream.R().
		SetContext(streamCtx).
		SetDoNotParseResponse(true).
		SetQueryParam("api_key", c.apiKey).
		Get("/sessions/" + url.PathEscape(sessionID) + "/add-sse")
	if err != nil {
		cancel()
		return nil, pkgerrors.NewTransportError(0, fmt.Sprintf("failed to open event stream: %v", err), err)
	}

	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(body, bodyExcerptLimit))
		_ = body.Close()
		cancel()
		if resp.StatusCode() == http.StatusNotFound {
			return nil, pkgerrors.NewNotFoundErrorf("bridge: session %s not found", sessionID)
		}
		return nil, pkgerrors.NewTransportError(
			resp.StatusCode(),
			fmt.Sprintf("event stream returned %d: %s", resp.StatusCode(), excerpt(strings.TrimSpace(string(raw)), http.StatusText(resp.StatusCode()))),
			nil,
		)
	}

	c.logger.Debug().Str("session_id", sessionID).Msg("Event stream opened")

	return newEventStream(body, cancel), nil
}

type eventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func newEventStream(body io.ReadCloser, cancel context.CancelFunc) *eventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	return &eventStream{
		body:    body,
		scanner: scanner,
		cancel:  cancel,
	}
}

// Next reads until a complete event is dispatched
func (s *eventStream) Next() (*entities.StreamEvent, error) {
	var (
		name string
		data []string
	)

	for s.scanner.Scan() {
		line := s.scanner.Text()

		switch {
		case line == "":
			if len(data) == 0 {
				name = ""
				continue
			}
			return parseEvent(name, strings.Join(data, "\n")), nil
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if s.isClosed() {
		return nil, pkgerrors.NewTransportError(0, "event stream closed", io.EOF)
	}
	if err := s.scanner.Err(); err != nil {
		return nil, pkgerrors.NewTransportError(0, fmt.Sprintf("event stream failed: %v", err), err)
	}
	if len(data) > 0 {
		return parseEvent(name, strings.Join(data, "\n")), nil
	}
	return nil, pkgerrors.NewTransportError(0, "event stream ended by bridge", io.EOF)
}

func (s *eventStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels the request and releases the body; safe to call more than once
func (s *eventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		if closeErr := s.body.Close(); closeErr != nil && !errors.Is(closeErr, context.Canceled) {
			err = closeErr
		}
	})
	return err
}

type streamPayload struct {
	Status string `json:"status"`
	QRCode string `json:"qrcode"`
	QR     string `json:"qr"`
	Data   *struct {
		Status string `json:"status"`
		QRCode string `json:"qrcode"`
		QR     string `json:"qr"`
	} `json:"data"`
}

// parseEvent decodes an event body. Some bridge versions repeat the "data: "
// prefix inside the payload.
func parseEvent(name, data string) *entities.StreamEvent {
	data = strings.TrimPrefix(strings.TrimSpace(data), "data: ")

	if name == "" {
		name = "message"
	}

	event := &entities.StreamEvent{
		Type: name,
		Data: json.RawMessage(data),
	}

	var payload streamPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		event.Data = nil
		return event
	}

	event.Status = payload.Status
	event.QRCode = firstNonEmpty(payload.QRCode, payload.QR)
	if payload.Data != nil {
		if event.Status == "" {
			event.Status = payload.Data.Status
		}
		if event.QRCode == "" {
			event.QRCode = firstNonEmpty(payload.Data.QRCode, payload.Data.QR)
		}
	}

	return event
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
