package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vidahome/homecare-api/pkg/database"
	"github.com/vidahome/homecare-api/pkg/models"
)

func seedService(t *testing.T, db *gorm.DB, patientID uint, price string) database.Service {
	t.Helper()
	svc := database.Service{
		PatientID: patientID,
		Name:      "home care coverage (fixed_12x36)",
		UnitPrice: decimal.RequireFromString(price),
	}
	require.NoError(t, db.Create(&svc).Error)
	return svc
}

func seedSlotWithStatus(t *testing.T, db *gorm.DB, patientID, serviceID uint, status models.ShiftStatus, day int, proID *uint) database.ShiftSlot {
	t.Helper()
	start := time.Date(2024, 1, day, 7, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, day, 19, 0, 0, 0, time.UTC)
	slot := database.ShiftSlot{
		PatientID:      patientID,
		ServiceID:      serviceID,
		ShiftType:      string(models.ShiftDay),
		StartTime:      start,
		EndTime:        end,
		Status:         string(status),
		ProfessionalID: proID,
	}
	if status == models.StatusCompleted {
		checkIn := start.Add(5 * time.Minute)
		checkOut := end
		slot.CheckInTime = &checkIn
		slot.CheckOutTime = &checkOut
	}
	require.NoError(t, db.Create(&slot).Error)
	return slot
}

func TestAggregateSnapshot(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	a := NewAggregator(db, e)
	svc := seedService(t, db, 1, "100.50")

	ana := seedProfessional(t, db, "Ana", models.RoleTechnician)
	bruno := seedProfessional(t, db, "Bruno", models.RoleTechnician)

	seedSlotWithStatus(t, db, 1, svc.ID, models.StatusCompleted, 2, &ana.ID)
	seedSlotWithStatus(t, db, 1, svc.ID, models.StatusCompleted, 3, &bruno.ID)
	seedSlotWithStatus(t, db, 1, svc.ID, models.StatusMissed, 4, &ana.ID)
	seedSlotWithStatus(t, db, 1, svc.ID, models.StatusMissed, 5, &ana.ID)
	seedSlotWithStatus(t, db, 1, svc.ID, models.StatusMissed, 6, &bruno.ID)
	seedSlotWithStatus(t, db, 1, svc.ID, models.StatusScheduled, 15, &bruno.ID)
	seedSlotWithStatus(t, db, 1, svc.ID, models.StatusOpen, 16, nil)

	snap, err := a.Aggregate(context.Background(),
		models.CoverageScope{PatientID: 1},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 7, snap.TotalSlots)
	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, 3, snap.Missed)
	assert.Equal(t, 1, snap.OpenVacancies)
	assert.Equal(t, 29, snap.CoverageRate) // round(2/7*100)

	// 2 completed + 1 scheduled at 100.50 each.
	assert.True(t, snap.ProjectedRevenue.Equal(decimal.RequireFromString("301.50")),
		"got %s", snap.ProjectedRevenue)

	assert.Equal(t, ana.ID, snap.TopAbsenteeID)
	assert.Equal(t, "Ana", snap.TopAbsenteeName)
	assert.Equal(t, 2, snap.TopAbsenteeMissed)
}

func TestAggregateEmptyRange(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	a := NewAggregator(db, e)

	snap, err := a.Aggregate(context.Background(), models.CoverageScope{},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Zero(t, snap.TotalSlots)
	assert.Zero(t, snap.CoverageRate)
	assert.Zero(t, snap.TopAbsenteeMissed)
	assert.Empty(t, snap.TopAbsenteeName)
	assert.True(t, snap.ProjectedRevenue.IsZero())
}

func TestAggregateRateBounds(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	a := NewAggregator(db, e)
	svc := seedService(t, db, 1, "50.00")
	ana := seedProfessional(t, db, "Ana", models.RoleTechnician)

	for day := 2; day <= 6; day++ {
		seedSlotWithStatus(t, db, 1, svc.ID, models.StatusCompleted, day, &ana.ID)
	}

	snap, err := a.Aggregate(context.Background(), models.CoverageScope{PatientID: 1},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 100, snap.CoverageRate)
	assert.GreaterOrEqual(t, snap.CoverageRate, 0)
	assert.LessOrEqual(t, snap.CoverageRate, 100)
}

func TestAggregateTopAbsenteeTieBreaksOnLowestID(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	a := NewAggregator(db, e)
	svc := seedService(t, db, 1, "50.00")

	first := seedProfessional(t, db, "Bruno", models.RoleTechnician)
	second := seedProfessional(t, db, "Ana", models.RoleTechnician)
	require.Less(t, first.ID, second.ID)

	seedSlotWithStatus(t, db, 1, svc.ID, models.StatusMissed, 2, &second.ID)
	seedSlotWithStatus(t, db, 1, svc.ID, models.StatusMissed, 3, &first.ID)

	snap, err := a.Aggregate(context.Background(), models.CoverageScope{PatientID: 1},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, first.ID, snap.TopAbsenteeID)
	assert.Equal(t, 1, snap.TopAbsenteeMissed)
}

func TestAggregateScopes(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	a := NewAggregator(db, e)

	require.NoError(t, db.Create(&database.Patient{Name: "P1", ContractorID: 100, Active: true}).Error)
	require.NoError(t, db.Create(&database.Patient{Name: "P2", ContractorID: 200, Active: true}).Error)

	svc1 := seedService(t, db, 1, "10.00")
	svc2 := seedService(t, db, 2, "10.00")
	ana := seedProfessional(t, db, "Ana", models.RoleTechnician)

	seedSlotWithStatus(t, db, 1, svc1.ID, models.StatusCompleted, 2, &ana.ID)
	seedSlotWithStatus(t, db, 2, svc2.ID, models.StatusCompleted, 2, &ana.ID)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	byPatient, err := a.Aggregate(context.Background(), models.CoverageScope{PatientID: 1}, from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, byPatient.TotalSlots)

	byContractor, err := a.Aggregate(context.Background(), models.CoverageScope{ContractorID: 200}, from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, byContractor.TotalSlots)

	global, err := a.Aggregate(context.Background(), models.CoverageScope{}, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, global.TotalSlots)
}

func TestAggregateRejectsInvertedRange(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	a := NewAggregator(db, e)

	_, err := a.Aggregate(context.Background(), models.CoverageScope{},
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
}
