package dto

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
)

// Webhook event names
const (
	EventQRCodeUpdated    = "qrcode.updated"
	EventConnectionUpdate = "connection.update"
)

// WebhookPayload accepts both the current ({event, sessionId, data}) and the
// legacy ({type, sessionId, qrcode|status}) bridge webhook shapes
type WebhookPayload struct {
	Event     string      `json:"event"`
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Data      WebhookData `json:"data"`
	QRCode    string      `json:"qrcode"`
	Status    string      `json:"status"`
}

// WebhookData is the nested data of a current-shape webhook
type WebhookData struct {
	QR     string `json:"qr"`
	QRCode string `json:"qrcode"`
	Status string `json:"status"`
}

// Normalize rewrites a legacy payload into the current shape
func (p *WebhookPayload) Normalize() {
	p.SessionID = strings.TrimSpace(p.SessionID)
	if p.Event != "" {
		return
	}

	switch strings.ToLower(p.Type) {
	case "qrcode":
		p.Event = EventQRCodeUpdated
	case "status":
		p.Event = EventConnectionUpdate
	default:
		p.Event = p.Type
	}

	if p.Data.QR == "" {
		p.Data.QR = p.QRCode
	}
	if p.Data.Status == "" {
		p.Data.Status = p.Status
	}
}

// QR returns the QR payload carried by the webhook
func (p *WebhookPayload) QR() string {
	if p.Data.QR != "" {
		return p.Data.QR
	}
	return p.Data.QRCode
}

// WebhookResponse is always sent with HTTP 200
type WebhookResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SessionView is the JSON form of a session sent to clients
type SessionView struct {
	ID        uint      `json:"id"`
	SessionID string    `json:"sessionId"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	QRCode    string    `json:"qrcode"`
	IsDefault bool      `json:"isDefault"`
	Retries   int       `json:"retries"`
	TenantID  string    `json:"companyId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSessionView converts a session entity
func NewSessionView(s *entities.Session) *SessionView {
	if s == nil {
		return nil
	}
	return &SessionView{
		ID:        s.ID,
		SessionID: s.SessionID,
		Name:      s.Name,
		Status:    string(s.Status),
		QRCode:    s.QRCode,
		IsDefault: s.IsDefault,
		Retries:   s.Retries,
		TenantID:  s.TenantID,
		UpdatedAt: s.UpdatedAt,
	}
}

// NewSessionViews converts a list of sessions
func NewSessionViews(sessions []*entities.Session) []*SessionView {
	views := make([]*SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, NewSessionView(s))
	}
	return views
}

// Broadcast actions
const (
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// SessionBroadcast is emitted on {tenant}-whatsappSession
type SessionBroadcast struct {
	Action  string       `json:"action"`
	Session *SessionView `json:"session"`
}

// WhatsappBroadcast is emitted on {tenant}-whatsapp
type WhatsappBroadcast struct {
	Action     string       `json:"action"`
	Whatsapp   *SessionView `json:"whatsapp"`
	WhatsappID uint         `json:"whatsappId,omitempty"`
}

// CreateSessionRequest is the body of createSession
type CreateSessionRequest struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}

// SendMessageRequest is the body of sendMessage
type SendMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// CommandResult wraps a raw bridge reply
type CommandResult struct {
	SessionID string          `json:"sessionId"`
	Message   string          `json:"message,omitempty"`
	Bridge    json.RawMessage `json:"bridge,omitempty"`
}

// QRCodeResponse is returned by requestNewQrCode
type QRCodeResponse struct {
	SessionID string `json:"sessionId"`
	Strategy  string `json:"strategy"`
	QRCode    string `json:"qrcode,omitempty"`
	// Image is a PNG data URL rendering of QRCode
	Image   string `json:"image,omitempty"`
	Pending bool   `json:"pending"`
}

// ConnectionStatus is returned by checkConnection
type ConnectionStatus struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	RawStatus string `json:"rawStatus,omitempty"`
}
