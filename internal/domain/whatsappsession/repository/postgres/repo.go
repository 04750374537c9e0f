package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
	sessionerrors "github.com/alexander-mattos/baileys/internal/domain/whatsappsession/errors"
)

var _ deps.SessionRepository = (*Repository)(nil)

// Repository implements deps.SessionRepository using PostgreSQL
type Repository struct {
	db  *gorm.DB
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewRepository creates a new PostgreSQL session repository
func NewRepository(db *gorm.DB) *Repository {
	return NewRepositoryWithClock(db, time.Now)
}

// NewRepositoryWithClock creates a repository with a custom time source
func NewRepositoryWithClock(db *gorm.DB, now func() time.Time) *Repository {
	return &Repository{db: db, now: now}
}

// timestamp returns a time strictly after every previous one, at database precision
func (r *Repository) timestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC().Truncate(time.Microsecond)
	if !now.After(r.last) {
		now = r.last.Add(time.Microsecond)
	}
	r.last = now
	return now
}

// Upsert inserts the session or merges the patch into the existing row in one statement
func (r *Repository) Upsert(ctx context.Context, tenantID, sessionID string, patch entities.SessionPatch) (*entities.Session, error) {
	patch = patch.Normalize()
	now := r.timestamp()

	model := &entities.SessionModel{
		TenantID:  tenantID,
		SessionID: sessionID,
		Status:    string(entities.StatusDisconnected),
		CreatedAt: now,
		UpdatedAt: now,
	}

	updates := []string{"updated_at"}
	if patch.Name != nil {
		model.Name = *patch.Name
		updates = append(updates, "name")
	}
	if patch.Status != nil {
		model.Status = string(*patch.Status)
		updates = append(updates, "status")
	}
	if patch.QRCode != nil {
		model.QRCode = *patch.QRCode
		updates = append(updates, "qr_code")
	}
	if patch.IsDefault != nil {
		model.IsDefault = *patch.IsDefault
		updates = append(updates, "is_default")
	}
	if patch.Retries != nil {
		model.Retries = *patch.Retries
		updates = append(updates, "retries")
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).
		Create(model)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", result.Error)
	}

	return r.Get(ctx, tenantID, sessionID)
}

// Get returns the session of a tenant
func (r *Repository) Get(ctx context.Context, tenantID, sessionID string) (*entities.Session, error) {
	var model entities.SessionModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		First(&model).Error
	if err != nil {
		return nil, wrapLookupError(err)
	}
	return model.ToEntity(), nil
}

// GetByID returns a session by its internal id within a tenant
func (r *Repository) GetByID(ctx context.Context, tenantID string, id uint) (*entities.Session, error) {
	var model entities.SessionModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if err != nil {
		return nil, wrapLookupError(err)
	}
	return model.ToEntity(), nil
}

// FindBySessionID returns the most recently updated session with this id in any tenant
func (r *Repository) FindBySessionID(ctx context.Context, sessionID string) (*entities.Session, error) {
	var model entities.SessionModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("updated_at DESC").
		First(&model).Error
	if err != nil {
		return nil, wrapLookupError(err)
	}
	return model.ToEntity(), nil
}

// List returns the sessions of a tenant, default session first
func (r *Repository) List(ctx context.Context, tenantID string) ([]*entities.Session, error) {
	var models []entities.SessionModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("is_default DESC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return toEntities(models), nil
}

// ListAll returns every session of every tenant
func (r *Repository) ListAll(ctx context.Context) ([]*entities.Session, error) {
	var models []entities.SessionModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list all sessions: %w", err)
	}
	return toEntities(models), nil
}

// Delete removes the session of a tenant
func (r *Repository) Delete(ctx context.Context, tenantID, sessionID string) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		Delete(&entities.SessionModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete session: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return sessionerrors.ErrSessionNotFound
	}

	return nil
}

func wrapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sessionerrors.ErrSessionNotFound
	}
	return fmt.Errorf("failed to get session: %w", err)
}

func toEntities(models []entities.SessionModel) []*entities.Session {
	sessions := make([]*entities.Session, 0, len(models))
	for i := range models {
		sessions = append(sessions, models[i].ToEntity())
	}
	return sessions
}
