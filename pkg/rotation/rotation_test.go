package rotation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vidahome/homecare-api/pkg/database"
	"github.com/vidahome/homecare-api/pkg/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestResolveDefaultsWhenUnconfigured(t *testing.T) {
	db := testDB(t)
	r := NewResolver(db)

	rule, err := r.Resolve(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, models.SchemeFixed12x36, rule.Scheme)
	assert.Equal(t, "07:00", rule.DayStart.String())
	assert.Equal(t, "19:00", rule.NightStart.String())
	assert.Equal(t, 1, rule.ProfessionalsPerShift)
	assert.Equal(t, models.RoleTechnician, rule.RequiredRole)
}

func TestResolveConfiguredRule(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&database.RotationRuleRecord{
		PatientID:             7,
		Scheme:                string(models.SchemeDaily12h),
		DayStart:              "08:00",
		NightStart:            "20:00",
		ProfessionalsPerShift: 2,
		RequiredRole:          models.RoleNurse,
	}).Error)

	rule, err := NewResolver(db).Resolve(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, models.SchemeDaily12h, rule.Scheme)
	assert.Equal(t, "08:00", rule.DayStart.String())
	assert.Equal(t, 2, rule.ProfessionalsPerShift)
	assert.Equal(t, models.RoleNurse, rule.RequiredRole)
}

func TestResolveRejectsCorruptScheme(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&database.RotationRuleRecord{
		PatientID:  9,
		Scheme:     "lunar",
		DayStart:   "07:00",
		NightStart: "19:00",
	}).Error)

	_, err := NewResolver(db).Resolve(context.Background(), 9)
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestCadenceDayNightSplit(t *testing.T) {
	rule := models.DefaultRotationRule()
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	windows, err := Cadence(rule, date)
	require.NoError(t, err)
	require.Len(t, windows, 2)

	assert.Equal(t, models.ShiftDay, windows[0].Type)
	assert.Equal(t, time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC), windows[0].Start)
	assert.Equal(t, time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC), windows[0].End)

	assert.Equal(t, models.ShiftNight, windows[1].Type)
	assert.Equal(t, time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC), windows[1].Start)
	assert.Equal(t, time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC), windows[1].End)
}

func TestCadenceAlternateSchemes(t *testing.T) {
	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		scheme models.SchemeType
		count  int
		hours  float64
	}{
		{models.SchemeDaily12h, 1, 12},
		{models.SchemeFixed24x48, 1, 24},
		{models.SchemeDaily24h, 1, 24},
		{models.SchemeCustom, 2, 12},
	}
	for _, tc := range cases {
		rule := models.DefaultRotationRule()
		rule.Scheme = tc.scheme

		windows, err := Cadence(rule, date)
		require.NoError(t, err, tc.scheme)
		require.Len(t, windows, tc.count, tc.scheme)
		assert.Equal(t, tc.hours, windows[0].End.Sub(windows[0].Start).Hours(), tc.scheme)
		for _, w := range windows {
			assert.True(t, w.End.After(w.Start), tc.scheme)
		}
	}
}

func TestCadenceRejectsInvertedSplit(t *testing.T) {
	rule := models.DefaultRotationRule()
	rule.DayStart = models.TimeOfDay{Hour: 20}
	rule.NightStart = models.TimeOfDay{Hour: 8}

	_, err := Cadence(rule, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
}
