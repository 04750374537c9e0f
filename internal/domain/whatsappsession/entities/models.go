package entities

import "time"

// SessionModel is a GORM model for whatsapp_sessions table
type SessionModel struct {
	ID        uint      `gorm:"primaryKey"`
	TenantID  string    `gorm:"not null;size:64;uniqueIndex:uq_tenant_session"`
	SessionID string    `gorm:"not null;size:255;uniqueIndex:uq_tenant_session;index"`
	Name      string    `gorm:"size:255;not null;default:''"`
	Status    string    `gorm:"size:32;not null;default:'DISCONNECTED'"`
	QRCode    string    `gorm:"column:qr_code;type:text;not null;default:''"`
	IsDefault bool      `gorm:"not null;default:false"`
	Retries   int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (SessionModel) TableName() string {
	return "whatsapp_sessions"
}

// ToEntity converts DB model to domain entity
func (m *SessionModel) ToEntity() *Session {
	return &Session{
		ID:        m.ID,
		TenantID:  m.TenantID,
		SessionID: m.SessionID,
		Name:      m.Name,
		Status:    Status(m.Status),
		QRCode:    m.QRCode,
		IsDefault: m.IsDefault,
		Retries:   m.Retries,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
