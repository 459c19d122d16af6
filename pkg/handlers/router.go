package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine shared by the server binary and the
// serverless entrypoint.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Home Care Scheduling API",
			"version": "1.3.0",
		})
	})

	r.POST("/admin/login", h.Login)

	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.PUT("/keys/:id", h.UpdateKeyLimit)
		admin.DELETE("/keys/:id", h.RevokeKey)
		admin.GET("/usage/:id", h.GetUsage)
		admin.GET("/audit", h.ListAuditEvents)
	}

	api := r.Group("/api")
	api.Use(h.APIKeyMiddleware())
	{
		api.POST("/patients", h.CreatePatient)
		api.GET("/patients", h.ListPatients)
		api.PUT("/patients/:id/rotation-rule", h.SetRotationRule)
		api.GET("/patients/:id/rotation-rule", h.GetRotationRule)
		api.POST("/patients/:id/shifts/generate", h.GenerateShifts)
		api.POST("/patients/:id/shifts", h.CreateShift)

		api.POST("/professionals", h.CreateProfessional)
		api.GET("/professionals", h.ListProfessionals)

		api.GET("/shifts", h.ListShifts)
		api.POST("/shifts/:id/assign", h.AssignShift)
		api.POST("/shifts/:id/checkin", h.CheckInShift)
		api.POST("/shifts/:id/checkout", h.CheckOutShift)
		api.POST("/shifts/:id/cancel", h.CancelShift)
		api.POST("/shifts/:id/transition", h.TransitionShift)

		api.GET("/coverage", h.GetCoverage)
		api.POST("/reconcile", h.Reconcile)

		api.GET("/billing/unbilled", h.ListUnbilledShifts)
		api.POST("/billing/batches", h.CreateBillingBatch)

		api.GET("/usage", h.GetMyUsage)
	}

	return r
}
