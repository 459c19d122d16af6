// Package audit defines the lifecycle-event sink consumed by the scheduling
// core. Recording is best-effort: the engine logs a failed write and moves on.
package audit

import (
	"context"

	"gorm.io/gorm"

	"github.com/vidahome/homecare-api/pkg/database"
)

// Event is one lifecycle transition worth recording.
type Event struct {
	Entity       string
	EntityID     string
	Action       string
	BeforeStatus string
	AfterStatus  string
	Actor        string
	Detail       string
}

// Sink receives lifecycle events. Implementations must not assume the caller
// retries: a returned error is logged by the caller and dropped.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// GormSink persists events to the audit_events table.
type GormSink struct {
	DB *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{DB: db}
}

func (s *GormSink) Record(ctx context.Context, ev Event) error {
	row := database.AuditEvent{
		Entity:       ev.Entity,
		EntityID:     ev.EntityID,
		Action:       ev.Action,
		BeforeStatus: ev.BeforeStatus,
		AfterStatus:  ev.AfterStatus,
		Actor:        ev.Actor,
		Detail:       ev.Detail,
	}
	return s.DB.WithContext(ctx).Create(&row).Error
}

// NopSink discards everything. Used in tests.
type NopSink struct{}

func (NopSink) Record(context.Context, Event) error { return nil }
