package deps

import (
	"context"

	hubentities "github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/dto"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
)

// SessionRepository defines interface for session state storage
type SessionRepository interface {
	// Upsert merges patch into the (tenantID, sessionID) record, creating it with defaults when absent
	Upsert(ctx context.Context, tenantID, sessionID string, patch entities.SessionPatch) (*entities.Session, error)
	Get(ctx context.Context, tenantID, sessionID string) (*entities.Session, error)
	GetByID(ctx context.Context, tenantID string, id uint) (*entities.Session, error)
	// FindBySessionID looks the session up in any tenant
	FindBySessionID(ctx context.Context, sessionID string) (*entities.Session, error)
	List(ctx context.Context, tenantID string) ([]*entities.Session, error)
	ListAll(ctx context.Context) ([]*entities.Session, error)
	Delete(ctx context.Context, tenantID, sessionID string) error
}

// Bridge is the transport adapter to the external WhatsApp bridge
type Bridge interface {
	IssueCommand(ctx context.Context, sessionID string, cmd entities.Command, payload interface{}) (*entities.BridgeReply, error)
	OpenEventStream(ctx context.Context, sessionID string) (EventStream, error)
}

// EventStream is an open bridge push stream
type EventStream interface {
	// Next blocks until an event arrives, the stream fails or it is closed
	Next() (*entities.StreamEvent, error)
	Close() error
}

// Broadcaster fans events out to subscribers
type Broadcaster interface {
	Broadcast(ctx context.Context, event hubentities.Event)
	// ForgetDedup lets the next broadcast of key through even if it repeats the last one
	ForgetDedup(tenantID string, kind hubentities.Kind, key string)
}

// StatusListener is notified when a remote session reaches a terminal state
type StatusListener interface {
	NotifyStatus(ctx context.Context, sessionID string, status entities.Status) error
}

// TenantCache remembers which tenant owns a sessionId
type TenantCache interface {
	Get(sessionID string) (string, bool)
	Set(sessionID, tenantID string)
	Delete(sessionID string)
}

// CommandLimiter throttles commands per key
type CommandLimiter interface {
	Allow(key string) bool
}

// StreamSink consumes events read by the stream watcher
type StreamSink interface {
	// HandleStreamEvent applies an event and returns the canonical status it carried, if any
	HandleStreamEvent(ctx context.Context, tenantID, sessionID string, event *entities.StreamEvent) (entities.Status, error)
	// HandleConnected records the final CONNECTED state observed after a stream failure
	HandleConnected(ctx context.Context, tenantID, sessionID string) error
}

// Watcher supervises one bridge push stream per session
type Watcher interface {
	// Watch replaces any running watch of the session; the watch outlives the caller's request
	Watch(tenantID, sessionID string)
	Stop(tenantID, sessionID string)
}

// IngestionService applies bridge-originated state changes
type IngestionService interface {
	HandleWebhook(ctx context.Context, tenantHint string, payload *dto.WebhookPayload) error
	ApplyQRCode(ctx context.Context, tenantID, sessionID, qrCode string) (*entities.Session, error)
	ApplyStatus(ctx context.Context, tenantID, sessionID, rawStatus string) (*entities.Session, error)
}

// SessionService implements the command API
type SessionService interface {
	ListSessions(ctx context.Context, tenantID string) ([]*entities.Session, error)
	GetSession(ctx context.Context, tenantID, sessionID string) (*entities.Session, error)
	CreateSession(ctx context.Context, tenantID string, req *dto.CreateSessionRequest) (*entities.Session, error)
	StartSession(ctx context.Context, tenantID, sessionID string) (*dto.CommandResult, error)
	RequestNewQRCode(ctx context.Context, tenantID, sessionID string) (*dto.QRCodeResponse, error)
	DisconnectSession(ctx context.Context, tenantID string, whatsAppID uint) (*entities.Session, error)
	DeleteSession(ctx context.Context, tenantID, sessionID string) error
	SendMessage(ctx context.Context, tenantID, sessionID string, req *dto.SendMessageRequest) (*dto.CommandResult, error)
	ListMessages(ctx context.Context, tenantID, sessionID, number string) (*dto.CommandResult, error)
	CheckConnection(ctx context.Context, tenantID, sessionID string) (*dto.ConnectionStatus, error)
}
