package entities

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the canonical connection state of a WhatsApp session
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusAwaitingQR   Status = "AWAITING_QR"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
	StatusConflict     Status = "CONFLICT"
	StatusError        Status = "ERROR"
)

// Valid reports whether s is one of the canonical values
func (s Status) Valid() bool {
	switch s {
	case StatusDisconnected, StatusAwaitingQR, StatusConnecting, StatusConnected, StatusConflict, StatusError:
		return true
	}
	return false
}

// Session is the persisted state of one WhatsApp connection slot
type Session struct {
	ID        uint
	TenantID  string
	SessionID string
	Name      string
	Status    Status
	QRCode    string
	IsDefault bool
	Retries   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Paired reports whether the last QR was consumed by a successful pairing
func (s *Session) Paired() bool {
	return s.Status == StatusConnected && s.QRCode == ""
}

// SessionPatch carries the fields an upsert should overwrite; nil fields are left untouched
type SessionPatch struct {
	Name      *string
	Status    *Status
	QRCode    *string
	IsDefault *bool
	Retries   *int
}

// Normalize keeps the QR code empty outside AWAITING_QR.
// A status change away from AWAITING_QR without an explicit QR clears it.
func (p SessionPatch) Normalize() SessionPatch {
	if p.Status == nil {
		return p
	}
	if *p.Status != StatusAwaitingQR {
		empty := ""
		p.QRCode = &empty
	}
	return p
}

// IsEmpty reports whether the patch sets no field
func (p SessionPatch) IsEmpty() bool {
	return p.Name == nil && p.Status == nil && p.QRCode == nil && p.IsDefault == nil && p.Retries == nil
}

// Command is an operation the bridge understands
type Command string

const (
	CommandCreate     Command = "create"
	CommandStatus     Command = "status"
	CommandStart      Command = "start"
	CommandRestart    Command = "restart"
	CommandQR         Command = "qr"
	CommandDisconnect Command = "disconnect"
	CommandDelete     Command = "delete"
	CommandSend       Command = "send"
	CommandMessages   Command = "messages"
)

// BridgeReply is a decoded bridge response
type BridgeReply struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	QRCode  string          `json:"qrcode,omitempty"`
	Status  string          `json:"status,omitempty"`
	Raw     string          `json:"-"`
}

type replyData struct {
	QRCode string `json:"qrcode"`
	QR     string `json:"qr"`
	Base64 string `json:"base64"`
	Status string `json:"status"`
}

func (r *BridgeReply) data() replyData {
	var d replyData
	if len(r.Data) > 0 && r.Data[0] == '{' {
		_ = json.Unmarshal(r.Data, &d)
	}
	return d
}

// QR returns the QR payload attached to the reply, if any
func (r *BridgeReply) QR() string {
	if r == nil {
		return ""
	}
	if r.QRCode != "" {
		return r.QRCode
	}
	d := r.data()
	for _, candidate := range []string{d.QRCode, d.QR, d.Base64} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// RawStatus returns the bridge status string carried by the reply
func (r *BridgeReply) RawStatus() string {
	if r == nil {
		return ""
	}
	if d := r.data(); d.Status != "" {
		return d.Status
	}
	return r.Status
}

// StreamEvent is one message read from the bridge push stream
type StreamEvent struct {
	Type   string // event name: status, qrcode or message
	Status string // raw bridge status, when present
	QRCode string
	Data   json.RawMessage
}

// QRStrategy names a step of the QR acquisition fallback
type QRStrategy string

const (
	QRStrategyStatus  QRStrategy = "status"
	QRStrategyRestart QRStrategy = "restart"
	QRStrategyStart   QRStrategy = "start"
	QRStrategyLegacy  QRStrategy = "qr"
)

// QRResult is the outcome of a successful QR acquisition
type QRResult struct {
	Strategy QRStrategy
	QRCode   string // empty when the bridge will deliver the QR asynchronously
	Reply    *BridgeReply
}

// Message is an outbound chat message
type Message struct {
	JID  string
	Text string
}
