package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm/clause"

	"github.com/vidahome/homecare-api/pkg/database"
	"github.com/vidahome/homecare-api/pkg/models"
	"github.com/vidahome/homecare-api/pkg/rotation"
)

// The registries below are collaborator plumbing, not the scheduling core:
// patients and professionals are owned by their own administrative screens,
// the core only needs the references to exist.

func parseUint(s string) (uint, bool) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}

func (h *Handler) patientParam(c *gin.Context) (uint, bool) {
	id, ok := parseUint(c.Param("id"))
	if !ok {
		h.respondError(c, &models.ValidationError{Field: "id", Message: "must be a numeric patient id"})
		return 0, false
	}
	var patient database.Patient
	if err := h.DB.First(&patient, id).Error; err != nil {
		h.respondError(c, models.ErrPatientNotFound)
		return 0, false
	}
	return id, true
}

// CreatePatient registers a patient reference.
func (h *Handler) CreatePatient(c *gin.Context) {
	var req struct {
		Name         string `json:"name" binding:"required"`
		ContractorID uint   `json:"contractor_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patient := database.Patient{Name: req.Name, ContractorID: req.ContractorID, Active: true}
	if err := h.DB.Create(&patient).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, patient)
}

// ListPatients returns all patient references.
func (h *Handler) ListPatients(c *gin.Context) {
	var patients []database.Patient
	if err := h.DB.Find(&patients).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patients": patients})
}

// CreateProfessional registers a candidate assignee.
func (h *Handler) CreateProfessional(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pro := database.Professional{Name: req.Name, Role: req.Role, Active: true}
	if err := h.DB.Create(&pro).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pro)
}

// ListProfessionals returns all professionals.
func (h *Handler) ListProfessionals(c *gin.Context) {
	var pros []database.Professional
	if err := h.DB.Find(&pros).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"professionals": pros})
}

// SetRotationRule upserts a patient's rotation configuration.
func (h *Handler) SetRotationRule(c *gin.Context) {
	patientID, ok := h.patientParam(c)
	if !ok {
		return
	}

	var req struct {
		Scheme                string `json:"scheme" binding:"required"`
		DayStart              string `json:"day_start" binding:"required"`
		NightStart            string `json:"night_start" binding:"required"`
		ProfessionalsPerShift int    `json:"professionals_per_shift"`
		RequiredRole          string `json:"required_role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec := database.RotationRuleRecord{
		PatientID:             patientID,
		Scheme:                req.Scheme,
		DayStart:              req.DayStart,
		NightStart:            req.NightStart,
		ProfessionalsPerShift: req.ProfessionalsPerShift,
		RequiredRole:          req.RequiredRole,
	}
	if rec.ProfessionalsPerShift == 0 {
		rec.ProfessionalsPerShift = 1
	}
	if rec.RequiredRole == "" {
		rec.RequiredRole = models.RoleTechnician
	}

	// Reject bad config before it reaches the store.
	if _, err := rotation.FromRecord(rec); err != nil {
		h.respondError(c, err)
		return
	}

	err := h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "patient_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"scheme", "day_start", "night_start", "professionals_per_shift", "required_role", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetRotationRule returns the rule that generation would use, default
// included.
func (h *Handler) GetRotationRule(c *gin.Context) {
	patientID, ok := h.patientParam(c)
	if !ok {
		return
	}
	rule, err := h.Resolver.Resolve(c.Request.Context(), patientID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scheme":                  rule.Scheme,
		"day_start":               rule.DayStart.String(),
		"night_start":             rule.NightStart.String(),
		"professionals_per_shift": rule.ProfessionalsPerShift,
		"required_role":           rule.RequiredRole,
	})
}
