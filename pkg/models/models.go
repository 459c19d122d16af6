package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SchemeType identifies the rotation cadence configured for a patient.
type SchemeType string

const (
	SchemeFixed12x36 SchemeType = "fixed_12x36"
	SchemeFixed24x48 SchemeType = "fixed_24x48"
	SchemeDaily12h   SchemeType = "daily_12h"
	SchemeDaily24h   SchemeType = "daily_24h"
	SchemeCustom     SchemeType = "custom"
)

// ParseSchemeType validates a scheme string coming from storage or a request.
func ParseSchemeType(s string) (SchemeType, error) {
	switch SchemeType(s) {
	case SchemeFixed12x36, SchemeFixed24x48, SchemeDaily12h, SchemeDaily24h, SchemeCustom:
		return SchemeType(s), nil
	}
	return "", &ValidationError{Field: "scheme", Message: fmt.Sprintf("unknown scheme type %q", s)}
}

// ShiftType distinguishes the two halves of the daily rotation.
type ShiftType string

const (
	ShiftDay   ShiftType = "day"
	ShiftNight ShiftType = "night"
)

// ShiftStatus is the lifecycle state of a shift slot.
type ShiftStatus string

const (
	StatusOpen       ShiftStatus = "open"
	StatusScheduled  ShiftStatus = "scheduled"
	StatusInProgress ShiftStatus = "in_progress"
	StatusCompleted  ShiftStatus = "completed"
	StatusMissed     ShiftStatus = "missed"
	StatusCanceled   ShiftStatus = "canceled"
)

// ParseShiftStatus rejects status strings the state machine does not know.
// Rows carrying anything else are treated as corrupt at the boundary.
func ParseShiftStatus(s string) (ShiftStatus, error) {
	switch ShiftStatus(s) {
	case StatusOpen, StatusScheduled, StatusInProgress, StatusCompleted, StatusMissed, StatusCanceled:
		return ShiftStatus(s), nil
	}
	return "", fmt.Errorf("unknown shift status %q", s)
}

// Terminal reports whether no further transition can leave this status.
func (s ShiftStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusMissed || s == StatusCanceled
}

// Professional roles accepted by rotation rules.
const (
	RoleTechnician = "technician"
	RoleNurse      = "nurse"
	RoleCaregiver  = "caregiver"
)

// TimeOfDay is a wall-clock time without a date, e.g. a shift boundary.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, &ValidationError{Field: "time", Message: fmt.Sprintf("invalid time of day %q", s)}
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return TimeOfDay{}, &ValidationError{Field: "time", Message: fmt.Sprintf("time of day %q out of range", s)}
	}
	return t, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On anchors the time of day to a calendar date.
func (t TimeOfDay) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, date.Location())
}

// RotationRule is the configured cadence used to generate shift slots for a
// patient. It is read-only to the scheduling core; administrative screens own
// its lifecycle.
type RotationRule struct {
	Scheme                SchemeType `json:"scheme"`
	DayStart              TimeOfDay  `json:"day_start"`
	NightStart            TimeOfDay  `json:"night_start"`
	ProfessionalsPerShift int        `json:"professionals_per_shift"`
	RequiredRole          string     `json:"required_role"`
}

// DefaultRotationRule is the fallback when a patient has no configured rule:
// a 12x36 day/night split starting 07:00 and 19:00, one technician per shift.
func DefaultRotationRule() RotationRule {
	return RotationRule{
		Scheme:                SchemeFixed12x36,
		DayStart:              TimeOfDay{Hour: 7},
		NightStart:            TimeOfDay{Hour: 19},
		ProfessionalsPerShift: 1,
		RequiredRole:          RoleTechnician,
	}
}

// Validate enforces the rule invariants before the rule is used for generation.
func (r RotationRule) Validate() error {
	if _, err := ParseSchemeType(string(r.Scheme)); err != nil {
		return err
	}
	if r.ProfessionalsPerShift < 1 {
		return &ValidationError{Field: "professionals_per_shift", Message: "must be at least 1"}
	}
	return nil
}

// GenerationResult reports the per-item outcome of a bulk slot generation.
type GenerationResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// CoverageSnapshot is the derived aggregate served to dashboards. It is
// computed fresh on each query and never persisted.
type CoverageSnapshot struct {
	TotalSlots        int             `json:"total_slots"`
	Completed         int             `json:"completed"`
	Missed            int             `json:"missed"`
	OpenVacancies     int             `json:"open_vacancies"`
	CoverageRate      int             `json:"coverage_rate"`
	ProjectedRevenue  decimal.Decimal `json:"projected_revenue"`
	TopAbsenteeID     uint            `json:"top_absentee_id,omitempty"`
	TopAbsenteeName   string          `json:"top_absentee_name,omitempty"`
	TopAbsenteeMissed int             `json:"top_absentee_missed"`
}

// CoverageScope narrows an aggregation to one patient, one contractor, or the
// whole agency when both ids are zero.
type CoverageScope struct {
	PatientID    uint
	ContractorID uint
}
