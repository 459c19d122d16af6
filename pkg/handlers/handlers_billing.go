package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vidahome/homecare-api/pkg/database"
	"github.com/vidahome/homecare-api/pkg/models"
)

// ListUnbilledShifts returns completed shifts not yet handed to invoicing.
// The billing subsystem consumes this; the core never computes invoices.
func (h *Handler) ListUnbilledShifts(c *gin.Context) {
	q := h.DB.WithContext(c.Request.Context()).
		Where("status = ? AND billing_batch_id IS NULL", string(models.StatusCompleted)).
		Order("start_time")
	if v := c.Query("patient_id"); v != "" {
		q = q.Where("patient_id = ?", v)
	}

	var slots []database.ShiftSlot
	if err := q.Find(&slots).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shifts": slots, "count": len(slots)})
}

// CreateBillingBatch opens a batch and stamps the billing linkage on every
// completed, unbilled shift in one transaction.
func (h *Handler) CreateBillingBatch(c *gin.Context) {
	var req struct {
		Reference string `json:"reference" binding:"required"`
		PatientID uint   `json:"patient_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required"})
		return
	}

	var batch database.BillingBatch
	var linked int64
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		batch = database.BillingBatch{Reference: req.Reference}
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		q := tx.Model(&database.ShiftSlot{}).
			Where("status = ? AND billing_batch_id IS NULL", string(models.StatusCompleted))
		if req.PatientID != 0 {
			q = q.Where("patient_id = ?", req.PatientID)
		}
		res := q.Update("billing_batch_id", batch.ID)
		if res.Error != nil {
			return res.Error
		}
		linked = res.RowsAffected
		return nil
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"batch_id": batch.ID, "reference": batch.Reference, "linked": linked})
}
