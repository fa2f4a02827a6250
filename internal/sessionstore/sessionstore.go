// Package sessionstore is the queryable secondary index over sessions
// (§6 list/status operations at scale): a GORM-backed table kept in sync
// with sessionmanager's in-memory/artifact-store record, giving SQL
// filtering and pagination without making the database the source of
// truth. sessionmanager remains authoritative; this package only mirrors
// it, the same relationship the ancestor codebase's job repository has to
// its own in-process job table.
package sessionstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/docweave/internal/models"
	"github.com/jmylchreest/docweave/internal/session"
	"gorm.io/gorm"
)

// Record is the GORM-mapped projection of a Session, refreshed on every
// sessionmanager mutation. It carries only the fields needed for listing
// and filtering; the full record lives in the artifact store.
type Record struct {
	models.BaseModel
	Mode        string `gorm:"index"`
	Title       string
	Status      string `gorm:"index"`
	Progress    int
	LastUpdated time.Time `gorm:"index"`
}

// TableName pins the table name independent of Go naming conventions.
func (Record) TableName() string {
	return "sessions"
}

// Store mirrors Session state into a queryable table.
type Store struct {
	db *gorm.DB
}

// New wraps db, auto-migrating the Record schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrating session index: %w", err)
	}
	return &Store{db: db}, nil
}

// Upsert writes the current projection of s, creating the row on first
// sight of an id and otherwise updating it in place.
func (st *Store) Upsert(ctx context.Context, s *session.Session) error {
	record := Record{
		BaseModel:   models.BaseModel{ID: s.ID, CreatedAt: s.CreatedAt},
		Mode:        s.Mode,
		Title:       s.Title,
		Status:      string(s.Status),
		Progress:    s.Progress,
		LastUpdated: s.LastUpdated,
	}
	if err := st.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("upserting session index row: %w", err)
	}
	return nil
}

// GetByID retrieves the projection for id, or nil if absent.
func (st *Store) GetByID(ctx context.Context, id models.ULID) (*Record, error) {
	var record Record
	if err := st.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting session index row: %w", err)
	}
	return &record, nil
}

// List returns projections, optionally filtered by status, newest first.
func (st *Store) List(ctx context.Context, status string, offset, limit int) ([]*Record, int64, error) {
	query := st.db.WithContext(ctx).Model(&Record{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting session index rows: %w", err)
	}

	var records []*Record
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("listing session index rows: %w", err)
	}
	return records, total, nil
}

// DeleteBefore removes terminal rows whose last_updated predates before,
// the index-side half of the artifact-store retention sweep (§6
// retention_sec_disk).
func (st *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := st.db.WithContext(ctx).
		Where("status IN (?, ?, ?) AND last_updated < ?",
			string(session.StatusCompleted), string(session.StatusFailed), string(session.StatusCancelled), before).
		Delete(&Record{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting session index rows: %w", result.Error)
	}
	return result.RowsAffected, nil
}
