package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vidahome/homecare-api/pkg/audit"
	"github.com/vidahome/homecare-api/pkg/auth"
	"github.com/vidahome/homecare-api/pkg/database"
	"github.com/vidahome/homecare-api/pkg/models"
	"github.com/vidahome/homecare-api/pkg/rotation"
	"github.com/vidahome/homecare-api/pkg/scheduler"
)

const dateLayout = "2006-01-02"

// Handler contains dependencies for the route handlers
type Handler struct {
	DB         *gorm.DB
	Resolver   *rotation.Resolver
	Generator  *scheduler.Generator
	Engine     *scheduler.Engine
	Aggregator *scheduler.Aggregator
	Log        zerolog.Logger
}

// New wires the scheduling core onto one handler set.
func New(db *gorm.DB, logger zerolog.Logger) *Handler {
	resolver := rotation.NewResolver(db)
	engine := scheduler.NewEngine(db, resolver, audit.NewGormSink(db), logger)
	return &Handler{
		DB:         db,
		Resolver:   resolver,
		Generator:  scheduler.NewGenerator(db),
		Engine:     engine,
		Aggregator: scheduler.NewAggregator(db, engine),
		Log:        logger,
	}
}

// AuthMiddleware verifies the JWT token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}

		claims, err := auth.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}

// APIKeyMiddleware verifies the API key for scheduling routes using HMAC
func (h *Handler) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Authorization")
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API Key required"})
			c.Abort()
			return
		}

		if len(key) > 7 && key[:7] == "Bearer " {
			key = key[7:]
		}

		userID, err := auth.VerifyHMACKey(key)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key signature"})
			c.Abort()
			return
		}

		var apiKey database.APIKey
		h.DB.Where(database.APIKey{Key: key}).FirstOrCreate(&apiKey, database.APIKey{
			Key:       key,
			Name:      userID,
			RateLimit: 10000,
		})

		c.Set("apiKey", &apiKey)
		c.Set("userID", userID)
		c.Next()
	}
}

// respondError maps a core error onto an HTTP status plus a structured body
// the caller can branch on without parsing messages.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := models.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case models.KindValidation:
		status = http.StatusBadRequest
	case models.KindNotFound:
		status = http.StatusNotFound
	case models.KindInvalidTransition, models.KindAssignmentLost, models.KindDuplicateSlot:
		status = http.StatusConflict
	case models.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		h.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"success": false, "kind": kind, "error": err.Error()})
}

// GenerateShifts expands a patient's rotation rule over a month or an
// explicit date range and persists the resulting vacancies.
func (h *Handler) GenerateShifts(c *gin.Context) {
	patientID, ok := h.patientParam(c)
	if !ok {
		return
	}

	var req struct {
		Year  int    `json:"year"`
		Month int    `json:"month"`
		From  string `json:"from"`
		To    string `json:"to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.Resolver.Resolve(c.Request.Context(), patientID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var result models.GenerationResult
	if req.From != "" || req.To != "" {
		from, err1 := time.Parse(dateLayout, req.From)
		to, err2 := time.Parse(dateLayout, req.To)
		if err1 != nil || err2 != nil {
			h.respondError(c, &models.ValidationError{Field: "date_range", Message: "from and to must be YYYY-MM-DD dates"})
			return
		}
		result, err = h.Generator.Generate(c.Request.Context(), patientID, rule, from, to)
	} else {
		result, err = h.Generator.GenerateMonth(c.Request.Context(), patientID, rule, req.Year, time.Month(req.Month))
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.RecordUsage(c, result.Created, 0)
	c.JSON(http.StatusOK, result)
}

// CreateShift schedules a single ad-hoc slot outside the generated cadence.
func (h *Handler) CreateShift(c *gin.Context) {
	patientID, ok := h.patientParam(c)
	if !ok {
		return
	}

	var req struct {
		ShiftType      string `json:"shift_type" binding:"required"`
		Start          string `json:"start" binding:"required"`
		End            string `json:"end" binding:"required"`
		ProfessionalID *uint  `json:"professional_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err1 := time.Parse(time.RFC3339, req.Start)
	end, err2 := time.Parse(time.RFC3339, req.End)
	if err1 != nil || err2 != nil {
		h.respondError(c, &models.ValidationError{Field: "start", Message: "start and end must be RFC3339 timestamps"})
		return
	}

	rule, err := h.Resolver.Resolve(c.Request.Context(), patientID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	slot, err := h.Generator.CreateManual(c.Request.Context(), patientID, rule,
		models.ShiftType(req.ShiftType), start, end, req.ProfessionalID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.RecordUsage(c, 1, 0)
	c.JSON(http.StatusCreated, slot)
}

// AssignShift claims an open vacancy for a professional.
func (h *Handler) AssignShift(c *gin.Context) {
	var req struct {
		ProfessionalID uint `json:"professional_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Engine.Assign(c.Request.Context(), c.Param("id"), req.ProfessionalID, h.actor(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.RecordUsage(c, 0, 1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CheckInShift records the professional's arrival.
func (h *Handler) CheckInShift(c *gin.Context) {
	h.timedTransition(c, func(at time.Time) error {
		return h.Engine.CheckIn(c.Request.Context(), c.Param("id"), at, h.actor(c))
	})
}

// CheckOutShift completes a running shift.
func (h *Handler) CheckOutShift(c *gin.Context) {
	h.timedTransition(c, func(at time.Time) error {
		return h.Engine.CheckOut(c.Request.Context(), c.Param("id"), at, h.actor(c))
	})
}

func (h *Handler) timedTransition(c *gin.Context, op func(at time.Time) error) {
	var req struct {
		At string `json:"at"`
	}
	_ = c.ShouldBindJSON(&req)

	var at time.Time
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			h.respondError(c, &models.ValidationError{Field: "at", Message: "must be an RFC3339 timestamp"})
			return
		}
		at = parsed
	}

	if err := op(at); err != nil {
		h.respondError(c, err)
		return
	}
	h.RecordUsage(c, 0, 1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CancelShift voids a slot before it occurs.
func (h *Handler) CancelShift(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}

	if err := h.Engine.Cancel(c.Request.Context(), c.Param("id"), req.Reason, h.actor(c)); err != nil {
		h.respondError(c, err)
		return
	}
	h.RecordUsage(c, 0, 1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TransitionShift is the generic target-state entry point.
func (h *Handler) TransitionShift(c *gin.Context) {
	var req struct {
		Target         string `json:"target" binding:"required"`
		ProfessionalID uint   `json:"professional_id"`
		At             string `json:"at"`
		Reason         string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target, err := models.ParseShiftStatus(req.Target)
	if err != nil {
		h.respondError(c, &models.ValidationError{Field: "target", Message: err.Error()})
		return
	}

	tc := scheduler.TransitionContext{
		ProfessionalID: req.ProfessionalID,
		Reason:         req.Reason,
		Actor:          h.actor(c),
	}
	if req.At != "" {
		at, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			h.respondError(c, &models.ValidationError{Field: "at", Message: "must be an RFC3339 timestamp"})
			return
		}
		tc.At = at
	}

	if err := h.Engine.Transition(c.Request.Context(), c.Param("id"), target, tc); err != nil {
		h.respondError(c, err)
		return
	}
	h.RecordUsage(c, 0, 1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListShifts returns slots filtered by patient, professional, status and
// date range. Expired slots are reconciled first so stale scheduled rows
// read back as missed.
func (h *Handler) ListShifts(c *gin.Context) {
	if _, err := h.Engine.ReconcileExpired(c.Request.Context(), time.Time{}); err != nil {
		h.respondError(c, err)
		return
	}

	q := h.DB.WithContext(c.Request.Context()).Model(&database.ShiftSlot{}).Order("start_time")
	if v := c.Query("patient_id"); v != "" {
		q = q.Where("patient_id = ?", v)
	}
	if v := c.Query("professional_id"); v != "" {
		q = q.Where("professional_id = ?", v)
	}
	if v := c.Query("status"); v != "" {
		status, err := models.ParseShiftStatus(v)
		if err != nil {
			h.respondError(c, &models.ValidationError{Field: "status", Message: err.Error()})
			return
		}
		q = q.Where("status = ?", string(status))
	}
	if v := c.Query("from"); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			h.respondError(c, &models.ValidationError{Field: "from", Message: "must be a YYYY-MM-DD date"})
			return
		}
		q = q.Where("end_time >= ?", from)
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			h.respondError(c, &models.ValidationError{Field: "to", Message: "must be a YYYY-MM-DD date"})
			return
		}
		q = q.Where("start_time <= ?", to.AddDate(0, 0, 1))
	}

	var slots []database.ShiftSlot
	if err := q.Find(&slots).Error; err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shifts": slots, "count": len(slots)})
}

// GetCoverage serves the dashboard snapshot for a scope and period.
func (h *Handler) GetCoverage(c *gin.Context) {
	from, err := time.Parse(dateLayout, c.Query("from"))
	if err != nil {
		h.respondError(c, &models.ValidationError{Field: "from", Message: "must be a YYYY-MM-DD date"})
		return
	}
	to, err := time.Parse(dateLayout, c.Query("to"))
	if err != nil {
		h.respondError(c, &models.ValidationError{Field: "to", Message: "must be a YYYY-MM-DD date"})
		return
	}

	var scope models.CoverageScope
	if v := c.Query("patient_id"); v != "" {
		id, ok := parseUint(v)
		if !ok {
			h.respondError(c, &models.ValidationError{Field: "patient_id", Message: "must be a numeric id"})
			return
		}
		scope.PatientID = id
	}
	if v := c.Query("contractor_id"); v != "" {
		id, ok := parseUint(v)
		if !ok {
			h.respondError(c, &models.ValidationError{Field: "contractor_id", Message: "must be a numeric id"})
			return
		}
		scope.ContractorID = id
	}

	snap, err := h.Aggregator.Aggregate(c.Request.Context(), scope, from, to.AddDate(0, 0, 1))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Reconcile is the explicit trigger for the periodic expiry pass.
func (h *Handler) Reconcile(c *gin.Context) {
	count, err := h.Engine.ReconcileExpired(c.Request.Context(), time.Time{})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciled": count})
}

func (h *Handler) actor(c *gin.Context) string {
	if v := c.GetString("userID"); v != "" {
		return v
	}
	return c.GetString("username")
}
