package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShiftStatus(t *testing.T) {
	for _, valid := range []string{"open", "scheduled", "in_progress", "completed", "missed", "canceled"} {
		_, err := ParseShiftStatus(valid)
		assert.NoError(t, err, valid)
	}

	_, err := ParseShiftStatus("done")
	require.Error(t, err)
	_, err = ParseShiftStatus("")
	require.Error(t, err)
}

func TestParseSchemeType(t *testing.T) {
	_, err := ParseSchemeType("fixed_12x36")
	require.NoError(t, err)

	_, err = ParseSchemeType("weekly")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("07:30")
	require.NoError(t, err)
	assert.Equal(t, "07:30", tod.String())

	anchored := tod.On(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC), anchored)

	for _, bad := range []string{"25:00", "07:61", "seven"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefaultRotationRule(t *testing.T) {
	rule := DefaultRotationRule()
	require.NoError(t, rule.Validate())
	assert.Equal(t, SchemeFixed12x36, rule.Scheme)
	assert.Equal(t, "07:00", rule.DayStart.String())
	assert.Equal(t, "19:00", rule.NightStart.String())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(&ValidationError{Message: "bad"}))
	assert.Equal(t, KindInvalidTransition, KindOf(&InvalidTransitionError{From: StatusCompleted, To: StatusScheduled}))
	assert.Equal(t, KindAssignmentLost, KindOf(ErrSlotTaken))
	assert.Equal(t, KindDuplicateSlot, KindOf(ErrDuplicateSlot))
	assert.Equal(t, KindNotFound, KindOf(ErrSlotNotFound))
	assert.Equal(t, KindNotFound, KindOf(ErrPatientNotFound))
	assert.Equal(t, KindUnavailable, KindOf(ErrStoreUnavailable))
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusMissed.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusOpen.Terminal())
	assert.False(t, StatusScheduled.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}
