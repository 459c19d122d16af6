package scheduler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vidahome/homecare-api/pkg/database"
	"github.com/vidahome/homecare-api/pkg/models"
)

// Aggregator computes period KPIs from the shift records. Snapshots are
// derived fresh on every query; nothing here is cached or persisted.
type Aggregator struct {
	DB     *gorm.DB
	Engine *Engine
}

// NewAggregator wires the aggregator with the lifecycle engine it uses for
// lazy reconciliation before reading.
func NewAggregator(db *gorm.DB, engine *Engine) *Aggregator {
	return &Aggregator{DB: db, Engine: engine}
}

// Aggregate builds the coverage snapshot for a scope over [from, to].
// Expired slots are reconciled first so missed counts reflect reality at
// query time.
func (a *Aggregator) Aggregate(ctx context.Context, scope models.CoverageScope, from, to time.Time) (models.CoverageSnapshot, error) {
	snap := models.CoverageSnapshot{ProjectedRevenue: decimal.Zero}

	if to.Before(from) {
		return snap, &models.ValidationError{Field: "date_range", Message: "end date precedes start date"}
	}
	if _, err := a.Engine.ReconcileExpired(ctx, a.Engine.Now()); err != nil {
		return snap, err
	}

	q := a.DB.WithContext(ctx).Model(&database.ShiftSlot{}).
		Where("start_time <= ? AND end_time >= ?", to, from)
	q = scopeQuery(a.DB, q, scope)

	var slots []database.ShiftSlot
	if err := q.Find(&slots).Error; err != nil {
		return snap, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	prices, err := a.servicePrices(ctx, slots)
	if err != nil {
		return snap, err
	}

	missedBy := make(map[uint]int)
	for _, slot := range slots {
		status, err := models.ParseShiftStatus(slot.Status)
		if err != nil {
			return snap, err
		}
		snap.TotalSlots++
		switch status {
		case models.StatusCompleted:
			snap.Completed++
		case models.StatusMissed:
			snap.Missed++
			if slot.ProfessionalID != nil {
				missedBy[*slot.ProfessionalID]++
			}
		case models.StatusOpen:
			snap.OpenVacancies++
		}
		if status == models.StatusCompleted || status == models.StatusScheduled || status == models.StatusInProgress {
			snap.ProjectedRevenue = snap.ProjectedRevenue.Add(prices[slot.ServiceID])
		}
	}

	if snap.TotalSlots > 0 {
		snap.CoverageRate = int(math.Round(float64(snap.Completed) / float64(snap.TotalSlots) * 100))
	}

	if id, count := topAbsentee(missedBy); count > 0 {
		snap.TopAbsenteeID = id
		snap.TopAbsenteeMissed = count
		var pro database.Professional
		if err := a.DB.WithContext(ctx).First(&pro, id).Error; err == nil {
			snap.TopAbsenteeName = pro.Name
		}
	}
	return snap, nil
}

// scopeQuery narrows a slot query to a patient, a contractor's patients, or
// leaves it global.
func scopeQuery(db *gorm.DB, q *gorm.DB, scope models.CoverageScope) *gorm.DB {
	if scope.PatientID != 0 {
		return q.Where("patient_id = ?", scope.PatientID)
	}
	if scope.ContractorID != 0 {
		sub := db.Model(&database.Patient{}).Select("id").Where("contractor_id = ?", scope.ContractorID)
		return q.Where("patient_id IN (?)", sub)
	}
	return q
}

// servicePrices loads the unit prices of every service referenced by the
// slot set.
func (a *Aggregator) servicePrices(ctx context.Context, slots []database.ShiftSlot) (map[uint]decimal.Decimal, error) {
	ids := make(map[uint]bool)
	for _, s := range slots {
		ids[s.ServiceID] = true
	}
	prices := make(map[uint]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return prices, nil
	}
	list := make([]uint, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	var services []database.Service
	if err := a.DB.WithContext(ctx).Where("id IN ?", list).Find(&services).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	for _, s := range services {
		prices[s.ID] = s.UnitPrice
	}
	return prices, nil
}

// topAbsentee picks the professional with the most missed shifts. Ties break
// on the lowest professional id so the result is deterministic regardless of
// row order.
func topAbsentee(missedBy map[uint]int) (uint, int) {
	var bestID uint
	best := 0
	for id, count := range missedBy {
		if count > best || (count == best && best > 0 && id < bestID) {
			bestID = id
			best = count
		}
	}
	return bestID, best
}
