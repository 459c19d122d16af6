package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/vidahome/homecare-api/pkg/audit"
	"github.com/vidahome/homecare-api/pkg/database"
	"github.com/vidahome/homecare-api/pkg/models"
)

// ReconcileExpired marks every unfulfilled slot whose window closed before
// now as missed, in a single idempotent update. It runs on the read paths
// (listing, coverage) and can also be triggered periodically; running it
// twice for the same instant changes nothing the second time.
func (e *Engine) ReconcileExpired(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		now = e.Now()
	}
	res := e.DB.WithContext(ctx).Model(&database.ShiftSlot{}).
		Where("status IN ? AND end_time < ? AND check_in_time IS NULL",
			[]string{string(models.StatusOpen), string(models.StatusScheduled)}, now).
		Update("status", string(models.StatusMissed))
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected > 0 {
		err := e.Audit.Record(ctx, audit.Event{
			Entity:      "shift",
			EntityID:    "*",
			Action:      "reconcile_expired",
			AfterStatus: string(models.StatusMissed),
			Actor:       "system",
			Detail:      fmt.Sprintf("%d slots marked missed", res.RowsAffected),
		})
		if err != nil {
			e.Log.Error().Err(err).Int64("count", res.RowsAffected).Msg("audit write failed")
		}
	}
	return res.RowsAffected, nil
}
