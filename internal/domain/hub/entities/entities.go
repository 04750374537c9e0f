package entities

import (
	"encoding/json"
	"time"
)

// Kind is the suffix of a tenant topic
type Kind string

const (
	KindWhatsappSession Kind = "whatsappSession"
	KindWhatsapp        Kind = "whatsapp"
	KindQueue           Kind = "queue"
	KindPrompt          Kind = "prompt"
)

// Valid reports whether k is a known topic kind
func (k Kind) Valid() bool {
	switch k {
	case KindWhatsappSession, KindWhatsapp, KindQueue, KindPrompt:
		return true
	}
	return false
}

// Topic returns the tenant scoped topic name, e.g. company-1-whatsappSession
func Topic(tenantID string, kind Kind) string {
	return tenantID + "-" + string(kind)
}

// Event is one broadcast request
type Event struct {
	TenantID string
	Kind     Kind
	Payload  interface{}

	// DedupKey and Fingerprint suppress a broadcast whose fingerprint equals
	// the last one emitted for the same key on the same topic. Empty key disables it.
	DedupKey    string
	Fingerprint string
}

// Topic returns the event topic
func (e Event) Topic() string {
	return Topic(e.TenantID, e.Kind)
}

// Message is what a subscriber receives
type Message struct {
	Topic   string          `json:"event"`
	Payload json.RawMessage `json:"data"`
	SentAt  time.Time       `json:"-"`
}

// Envelope is an event as carried over a backplane between instances
type Envelope struct {
	Origin      string          `json:"origin"`
	TenantID    string          `json:"tenantId"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	DedupKey    string          `json:"dedupKey,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
}
