package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vidahome/homecare-api/pkg/audit"
	"github.com/vidahome/homecare-api/pkg/database"
	"github.com/vidahome/homecare-api/pkg/models"
	"github.com/vidahome/homecare-api/pkg/rotation"
)

// DefaultGrace is the window around a slot boundary inside which assignment
// and check-in are still accepted.
const DefaultGrace = 15 * time.Minute

// transitions enumerates every legal status change. Anything absent here is
// an InvalidTransition.
var transitions = map[models.ShiftStatus][]models.ShiftStatus{
	models.StatusOpen:       {models.StatusScheduled, models.StatusMissed, models.StatusCanceled},
	models.StatusScheduled:  {models.StatusInProgress, models.StatusMissed, models.StatusCanceled},
	models.StatusInProgress: {models.StatusCompleted},
}

func canTransition(from, to models.ShiftStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// TransitionContext carries the optional inputs of a generic transition
// request.
type TransitionContext struct {
	ProfessionalID uint
	At             time.Time
	Reason         string
	Actor          string
}

// Engine drives the shift slot state machine. Every successful transition
// emits an audit event; a failed audit write is logged, never propagated.
type Engine struct {
	DB    *gorm.DB
	Rules *rotation.Resolver
	Audit audit.Sink
	Log   zerolog.Logger
	Grace time.Duration
	Now   func() time.Time
}

// NewEngine wires the lifecycle engine with its collaborators.
func NewEngine(db *gorm.DB, rules *rotation.Resolver, sink audit.Sink, logger zerolog.Logger) *Engine {
	return &Engine{
		DB:    db,
		Rules: rules,
		Audit: sink,
		Log:   logger,
		Grace: DefaultGrace,
		Now:   time.Now,
	}
}

// Load fetches a slot and validates its stored status at the boundary.
func (e *Engine) Load(ctx context.Context, slotID string) (database.ShiftSlot, models.ShiftStatus, error) {
	var slot database.ShiftSlot
	err := e.DB.WithContext(ctx).Where("id = ?", slotID).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return slot, "", models.ErrSlotNotFound
	}
	if err != nil {
		return slot, "", fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	status, err := models.ParseShiftStatus(slot.Status)
	if err != nil {
		return slot, "", err
	}
	return slot, status, nil
}

// Assign claims an open vacancy for a professional. The write is a
// conditional update: it only succeeds if the slot is still open and
// unassigned at write time, so two racing assignments cannot both win.
func (e *Engine) Assign(ctx context.Context, slotID string, professionalID uint, actor string) error {
	slot, status, err := e.Load(ctx, slotID)
	if err != nil {
		return err
	}
	if status != models.StatusOpen {
		if status == models.StatusScheduled || status == models.StatusInProgress {
			return models.ErrSlotTaken
		}
		return &models.InvalidTransitionError{From: status, To: models.StatusScheduled}
	}
	if !slot.StartTime.After(e.Now().Add(-e.Grace)) {
		return &models.ValidationError{Field: "shift_id", Message: "slot start time has already passed"}
	}

	var pro database.Professional
	if err := e.DB.WithContext(ctx).First(&pro, professionalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.ValidationError{Field: "professional_id", Message: "unknown professional"}
		}
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if !pro.Active {
		return &models.ValidationError{Field: "professional_id", Message: "professional is inactive"}
	}
	rule, err := e.Rules.Resolve(ctx, slot.PatientID)
	if err != nil {
		return err
	}
	if pro.Role != rule.RequiredRole {
		return &models.ValidationError{
			Field:   "professional_id",
			Message: fmt.Sprintf("role %s does not meet required role %s", pro.Role, rule.RequiredRole),
		}
	}

	res := e.DB.WithContext(ctx).Model(&database.ShiftSlot{}).
		Where("id = ? AND status = ? AND professional_id IS NULL", slotID, models.StatusOpen).
		Updates(map[string]interface{}{
			"status":          string(models.StatusScheduled),
			"professional_id": professionalID,
			"candidate_count": gorm.Expr("candidate_count + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race between our read and the conditional write.
		if _, _, err := e.Load(ctx, slotID); err != nil {
			return err
		}
		return models.ErrSlotTaken
	}

	e.emit(ctx, slotID, "assign", status, models.StatusScheduled, actor,
		fmt.Sprintf("professional %d assigned", professionalID))
	return nil
}

// CheckIn records the professional's arrival and starts the shift. Only
// valid while the clock is inside the slot window (with grace).
func (e *Engine) CheckIn(ctx context.Context, slotID string, at time.Time, actor string) error {
	slot, status, err := e.Load(ctx, slotID)
	if err != nil {
		return err
	}
	if status != models.StatusScheduled {
		return &models.InvalidTransitionError{From: status, To: models.StatusInProgress}
	}
	if slot.ProfessionalID == nil {
		return &models.ValidationError{Field: "shift_id", Message: "slot has no assigned professional"}
	}
	if at.IsZero() {
		at = e.Now()
	}
	if at.Before(slot.StartTime.Add(-e.Grace)) || !at.Before(slot.EndTime) {
		return &models.ValidationError{Field: "check_in_time", Message: "check-in outside the slot window"}
	}

	res := e.DB.WithContext(ctx).Model(&database.ShiftSlot{}).
		Where("id = ? AND status = ?", slotID, models.StatusScheduled).
		Updates(map[string]interface{}{
			"status":        string(models.StatusInProgress),
			"check_in_time": at,
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		_, current, err := e.Load(ctx, slotID)
		if err != nil {
			return err
		}
		return &models.InvalidTransitionError{From: current, To: models.StatusInProgress}
	}

	e.emit(ctx, slotID, "check_in", status, models.StatusInProgress, actor, "")
	return nil
}

// CheckOut completes a running shift. The check-out must come after the
// recorded check-in.
func (e *Engine) CheckOut(ctx context.Context, slotID string, at time.Time, actor string) error {
	slot, status, err := e.Load(ctx, slotID)
	if err != nil {
		return err
	}
	if status != models.StatusInProgress {
		return &models.InvalidTransitionError{From: status, To: models.StatusCompleted}
	}
	if at.IsZero() {
		at = e.Now()
	}
	if slot.CheckInTime == nil || !at.After(*slot.CheckInTime) {
		return &models.ValidationError{Field: "check_out_time", Message: "check-out must come after check-in"}
	}

	res := e.DB.WithContext(ctx).Model(&database.ShiftSlot{}).
		Where("id = ? AND status = ?", slotID, models.StatusInProgress).
		Updates(map[string]interface{}{
			"status":         string(models.StatusCompleted),
			"check_out_time": at,
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		_, current, err := e.Load(ctx, slotID)
		if err != nil {
			return err
		}
		return &models.InvalidTransitionError{From: current, To: models.StatusCompleted}
	}

	e.emit(ctx, slotID, "check_out", status, models.StatusCompleted, actor, "")
	return nil
}

// Cancel voids a slot before it occurs. A reason is mandatory; canceled
// slots are kept, never deleted.
func (e *Engine) Cancel(ctx context.Context, slotID, reason, actor string) error {
	if reason == "" {
		return &models.ValidationError{Field: "reason", Message: "cancellation reason is required"}
	}
	_, status, err := e.Load(ctx, slotID)
	if err != nil {
		return err
	}
	if !canTransition(status, models.StatusCanceled) {
		return &models.InvalidTransitionError{From: status, To: models.StatusCanceled}
	}

	res := e.DB.WithContext(ctx).Model(&database.ShiftSlot{}).
		Where("id = ? AND status IN ?", slotID, []string{string(models.StatusOpen), string(models.StatusScheduled)}).
		Updates(map[string]interface{}{
			"status":        string(models.StatusCanceled),
			"cancel_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		_, current, err := e.Load(ctx, slotID)
		if err != nil {
			return err
		}
		return &models.InvalidTransitionError{From: current, To: models.StatusCanceled}
	}

	e.emit(ctx, slotID, "cancel", status, models.StatusCanceled, actor, reason)
	return nil
}

// Transition dispatches a generic target-state request from the HTTP layer
// onto the specific operation.
func (e *Engine) Transition(ctx context.Context, slotID string, target models.ShiftStatus, tc TransitionContext) error {
	switch target {
	case models.StatusScheduled:
		if tc.ProfessionalID == 0 {
			return &models.ValidationError{Field: "professional_id", Message: "professional_id is required to schedule a slot"}
		}
		return e.Assign(ctx, slotID, tc.ProfessionalID, tc.Actor)
	case models.StatusInProgress:
		return e.CheckIn(ctx, slotID, tc.At, tc.Actor)
	case models.StatusCompleted:
		return e.CheckOut(ctx, slotID, tc.At, tc.Actor)
	case models.StatusCanceled:
		return e.Cancel(ctx, slotID, tc.Reason, tc.Actor)
	case models.StatusMissed:
		return e.markMissed(ctx, slotID, tc.Actor)
	}
	_, status, err := e.Load(ctx, slotID)
	if err != nil {
		return err
	}
	return &models.InvalidTransitionError{From: status, To: target}
}

// markMissed is the manual form of expiry: only valid for an unfulfilled
// slot whose window has already closed.
func (e *Engine) markMissed(ctx context.Context, slotID, actor string) error {
	slot, status, err := e.Load(ctx, slotID)
	if err != nil {
		return err
	}
	if !canTransition(status, models.StatusMissed) {
		return &models.InvalidTransitionError{From: status, To: models.StatusMissed}
	}
	if slot.EndTime.After(e.Now()) {
		return &models.ValidationError{Field: "shift_id", Message: "slot window has not closed yet"}
	}

	res := e.DB.WithContext(ctx).Model(&database.ShiftSlot{}).
		Where("id = ? AND status IN ? AND check_in_time IS NULL", slotID,
			[]string{string(models.StatusOpen), string(models.StatusScheduled)}).
		Update("status", string(models.StatusMissed))
	if res.Error != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		_, current, err := e.Load(ctx, slotID)
		if err != nil {
			return err
		}
		return &models.InvalidTransitionError{From: current, To: models.StatusMissed}
	}

	e.emit(ctx, slotID, "mark_missed", status, models.StatusMissed, actor, "")
	return nil
}

// emit records a lifecycle audit event. Best-effort: failures are logged and
// the transition stands.
func (e *Engine) emit(ctx context.Context, slotID, action string, before, after models.ShiftStatus, actor, detail string) {
	err := e.Audit.Record(ctx, audit.Event{
		Entity:       "shift",
		EntityID:     slotID,
		Action:       action,
		BeforeStatus: string(before),
		AfterStatus:  string(after),
		Actor:        actor,
		Detail:       detail,
	})
	if err != nil {
		e.Log.Error().Err(err).Str("shift_id", slotID).Str("action", action).Msg("audit write failed")
	}
}
