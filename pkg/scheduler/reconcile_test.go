package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidahome/homecare-api/pkg/models"
)

func TestReconcileMarksExpiredUnfulfilledSlots(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	slot := seedSlot(t, db, 1)
	pro := seedProfessional(t, db, "Ana", models.RoleTechnician)
	ctx := context.Background()

	// Assigned but never checked in; the window then closes.
	require.NoError(t, e.Assign(ctx, slot.ID, pro.ID, "test"))

	after := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	count, err := e.ReconcileExpired(ctx, after)
	require.NoError(t, err)
	// Both the scheduled day slot and the untouched open night slot expired.
	assert.EqualValues(t, 2, count)

	_, status, err := e.Load(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMissed, status)
}

func TestReconcileIsIdempotent(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	seedSlot(t, db, 1)
	ctx := context.Background()

	after := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	first, err := e.ReconcileExpired(ctx, after)
	require.NoError(t, err)
	assert.EqualValues(t, 2, first)

	second, err := e.ReconcileExpired(ctx, after)
	require.NoError(t, err)
	assert.Zero(t, second)
}

func TestReconcileSparesCheckedInSlots(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	slot := seedSlot(t, db, 1)
	pro := seedProfessional(t, db, "Ana", models.RoleTechnician)
	ctx := context.Background()

	require.NoError(t, e.Assign(ctx, slot.ID, pro.ID, "test"))
	require.NoError(t, e.CheckIn(ctx, slot.ID, time.Date(2024, 1, 1, 7, 5, 0, 0, time.UTC), "test"))

	_, err := e.ReconcileExpired(ctx, time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	_, status, err := e.Load(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, status)
}

func TestReconcileSparesFutureSlots(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	slot := seedSlot(t, db, 1)
	ctx := context.Background()

	count, err := e.ReconcileExpired(ctx, time.Date(2024, 1, 1, 6, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, count)

	_, status, err := e.Load(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, status)
}

func TestManualMarkMissedRequiresClosedWindow(t *testing.T) {
	db := testDB(t)
	e := testEngine(t, db, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	slot := seedSlot(t, db, 1)
	ctx := context.Background()

	err := e.Transition(ctx, slot.ID, models.StatusMissed, TransitionContext{})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)

	// Move the clock past the slot window.
	e.Now = func() time.Time { return time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC) }
	require.NoError(t, e.Transition(ctx, slot.ID, models.StatusMissed, TransitionContext{}))

	_, status, loadErr := e.Load(ctx, slot.ID)
	require.NoError(t, loadErr)
	assert.Equal(t, models.StatusMissed, status)
}
