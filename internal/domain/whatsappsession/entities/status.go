package entities

import "strings"

// rawStatuses maps lower-cased bridge status strings to canonical values
var rawStatuses = map[string]Status{
	"connected":    StatusConnected,
	"disconnected": StatusDisconnected,
	"qrcode":       StatusAwaitingQR,
	"scan_qr_code": StatusAwaitingQR,
	"conflict":     StatusConnecting,
	"pairing":      StatusConnecting,
	"connecting":   StatusConnecting,
	"timeout":      StatusConflict,
	"destroyed":    StatusDisconnected,
	"logout":       StatusDisconnected,
}

// NormalizeStatus maps a raw bridge status to its canonical value.
// Matching is case-insensitive; unknown values map to DISCONNECTED.
func NormalizeStatus(raw string) Status {
	if status, ok := rawStatuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return StatusDisconnected
}

// IsTerminalRawStatus reports whether a raw bridge status means the remote session is gone
func IsTerminalRawStatus(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "destroyed", "disconnected", "logout":
		return true
	}
	return false
}
