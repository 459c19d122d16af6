// Package scheduler holds the scheduling core: bulk slot generation, the
// shift lifecycle state machine, expiry reconciliation and coverage metrics.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vidahome/homecare-api/pkg/database"
	"github.com/vidahome/homecare-api/pkg/models"
	"github.com/vidahome/homecare-api/pkg/rotation"
)

// maxRangeDays caps a single generation request at one year of slots.
const maxRangeDays = 366

// Generator expands a rotation rule across a date range into persisted shift
// slots. Generation produces vacancies, not assignments: every slot starts
// open with no professional.
type Generator struct {
	DB *gorm.DB
}

// NewGenerator creates a generator bound to the store.
func NewGenerator(db *gorm.DB) *Generator {
	return &Generator{DB: db}
}

// Generate creates the slots for every calendar day in the closed range
// [from, to]. The batch is written in one transaction; existing
// (patient, day, type) combinations are skipped via the uniqueness index,
// never duplicated, so re-running a range is a safe no-op.
func (g *Generator) Generate(ctx context.Context, patientID uint, rule models.RotationRule, from, to time.Time) (models.GenerationResult, error) {
	var result models.GenerationResult

	if err := rule.Validate(); err != nil {
		return result, err
	}
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return result, &models.ValidationError{Field: "date_range", Message: "end date precedes start date"}
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > maxRangeDays {
		return result, &models.ValidationError{Field: "date_range", Message: fmt.Sprintf("range of %d days exceeds the %d day limit", days, maxRangeDays)}
	}

	slots, err := g.expand(patientID, rule, from, to)
	if err != nil {
		return result, err
	}
	if len(slots) == 0 {
		return result, nil
	}

	err = g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		service, err := ensureService(tx, patientID, rule)
		if err != nil {
			return err
		}
		for i := range slots {
			slots[i].ServiceID = service.ID
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "patient_id"}, {Name: "shift_type"}, {Name: "start_time"}},
			DoNothing: true,
		}).Create(&slots)
		if res.Error != nil {
			return res.Error
		}
		result.Created = int(res.RowsAffected)
		result.Skipped = len(slots) - result.Created
		return nil
	})
	if err != nil {
		result.Failed = len(slots) - result.Created - result.Skipped
		return result, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return result, nil
}

// GenerateMonth covers one calendar month, the granularity the scheduling
// screens work in.
func (g *Generator) GenerateMonth(ctx context.Context, patientID uint, rule models.RotationRule, year int, month time.Month) (models.GenerationResult, error) {
	if year < 2000 || year > 2100 {
		return models.GenerationResult{}, &models.ValidationError{Field: "year", Message: "year out of range"}
	}
	if month < time.January || month > time.December {
		return models.GenerationResult{}, &models.ValidationError{Field: "month", Message: "month must be between 1 and 12"}
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	return g.Generate(ctx, patientID, rule, from, to)
}

// CreateManual schedules a single ad-hoc slot outside the generated cadence.
// A professional may be pre-assigned, in which case the slot starts scheduled
// instead of open. A clash with an existing (patient, type, start) slot is a
// DuplicateSlot error, not a silent overwrite.
func (g *Generator) CreateManual(ctx context.Context, patientID uint, rule models.RotationRule, shiftType models.ShiftType, start, end time.Time, professionalID *uint) (database.ShiftSlot, error) {
	var slot database.ShiftSlot
	if shiftType != models.ShiftDay && shiftType != models.ShiftNight {
		return slot, &models.ValidationError{Field: "shift_type", Message: fmt.Sprintf("unknown shift type %q", shiftType)}
	}
	if !end.After(start) {
		return slot, &models.ValidationError{Field: "end_time", Message: "end must come after start"}
	}

	status := models.StatusOpen
	if professionalID != nil {
		status = models.StatusScheduled
	}

	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		service, err := ensureService(tx, patientID, rule)
		if err != nil {
			return err
		}
		slot = database.ShiftSlot{
			PatientID:      patientID,
			ProfessionalID: professionalID,
			ServiceID:      service.ID,
			ShiftType:      string(shiftType),
			StartTime:      start,
			EndTime:        end,
			Status:         string(status),
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "patient_id"}, {Name: "shift_type"}, {Name: "start_time"}},
			DoNothing: true,
		}).Create(&slot)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrDuplicateSlot
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateSlot) {
			return slot, err
		}
		return slot, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return slot, nil
}

// expand walks the closed range day by day and maps each cadence window to an
// unpersisted slot descriptor.
func (g *Generator) expand(patientID uint, rule models.RotationRule, from, to time.Time) ([]database.ShiftSlot, error) {
	var slots []database.ShiftSlot
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		windows, err := rotation.Cadence(rule, d)
		if err != nil {
			return nil, err
		}
		for _, w := range windows {
			slots = append(slots, database.ShiftSlot{
				PatientID: patientID,
				ShiftType: string(w.Type),
				StartTime: w.Start,
				EndTime:   w.End,
				Status:    string(models.StatusOpen),
			})
		}
	}
	return slots, nil
}

// ensureService guarantees the placeholder catalog entry every slot bills
// against, keyed by patient and scheme-derived name.
func ensureService(tx *gorm.DB, patientID uint, rule models.RotationRule) (database.Service, error) {
	var service database.Service
	err := tx.Where(database.Service{
		PatientID: patientID,
		Name:      serviceName(rule),
	}).Attrs(database.Service{
		UnitPrice: decimal.Zero,
	}).FirstOrCreate(&service).Error
	return service, err
}

func serviceName(rule models.RotationRule) string {
	return fmt.Sprintf("home care coverage (%s)", rule.Scheme)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
