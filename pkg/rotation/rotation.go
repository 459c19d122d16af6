// Package rotation resolves a patient's configured rotation rule and expands
// it into the concrete duty windows of each calendar day.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vidahome/homecare-api/pkg/database"
	"github.com/vidahome/homecare-api/pkg/models"
)

// Window is one duty period of a calendar day, ready to become a shift slot.
type Window struct {
	Type  models.ShiftType
	Start time.Time
	End   time.Time
}

// Resolver looks up the rotation rule configured for a patient, substituting
// the system default when none exists. Absence of configuration is a normal
// case, not an error.
type Resolver struct {
	DB *gorm.DB
}

// NewResolver creates a resolver bound to the store.
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{DB: db}
}

// Resolve returns the rule to apply for a patient. Only a store failure or a
// corrupt stored record produces an error; a missing record defaults.
func (r *Resolver) Resolve(ctx context.Context, patientID uint) (models.RotationRule, error) {
	var rec database.RotationRuleRecord
	err := r.DB.WithContext(ctx).Where("patient_id = ?", patientID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultRotationRule(), nil
	}
	if err != nil {
		return models.RotationRule{}, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return FromRecord(rec)
}

// FromRecord maps a stored configuration row to the rule value type,
// rejecting rows the core cannot interpret.
func FromRecord(rec database.RotationRuleRecord) (models.RotationRule, error) {
	scheme, err := models.ParseSchemeType(rec.Scheme)
	if err != nil {
		return models.RotationRule{}, err
	}
	dayStart, err := models.ParseTimeOfDay(rec.DayStart)
	if err != nil {
		return models.RotationRule{}, err
	}
	nightStart, err := models.ParseTimeOfDay(rec.NightStart)
	if err != nil {
		return models.RotationRule{}, err
	}
	rule := models.RotationRule{
		Scheme:                scheme,
		DayStart:              dayStart,
		NightStart:            nightStart,
		ProfessionalsPerShift: rec.ProfessionalsPerShift,
		RequiredRole:          rec.RequiredRole,
	}
	if rule.ProfessionalsPerShift < 1 {
		rule.ProfessionalsPerShift = 1
	}
	if rule.RequiredRole == "" {
		rule.RequiredRole = models.RoleTechnician
	}
	return rule, rule.Validate()
}

// Cadence expands a rule into the duty windows of one calendar day. The slot
// generator is generic over the returned windows, so alternate schemes plug
// in here without touching persistence.
func Cadence(rule models.RotationRule, date time.Time) ([]Window, error) {
	day := rule.DayStart.On(date)
	night := rule.NightStart.On(date)

	switch rule.Scheme {
	case models.SchemeFixed12x36, models.SchemeCustom:
		if !day.Before(night) {
			return nil, &models.ValidationError{Field: "night_start", Message: "night shift must start after the day shift"}
		}
		return []Window{
			{Type: models.ShiftDay, Start: day, End: night},
			{Type: models.ShiftNight, Start: night, End: rule.DayStart.On(date.AddDate(0, 0, 1))},
		}, nil
	case models.SchemeDaily12h:
		if !day.Before(night) {
			return nil, &models.ValidationError{Field: "night_start", Message: "night shift must start after the day shift"}
		}
		return []Window{{Type: models.ShiftDay, Start: day, End: night}}, nil
	case models.SchemeFixed24x48, models.SchemeDaily24h:
		return []Window{{Type: models.ShiftDay, Start: day, End: rule.DayStart.On(date.AddDate(0, 0, 1))}}, nil
	}
	return nil, &models.ValidationError{Field: "scheme", Message: fmt.Sprintf("unknown scheme type %q", rule.Scheme)}
}
