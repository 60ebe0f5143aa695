package main

import (
	"freightcall-platform/internal/httpapi"
	"freightcall-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Recording-source webhooks (public, HMAC-signed).
	r.POST("/webhooks/recordings", h.RecordingWebhook)

	// protected API group
	v1 := r.Group("/v1")
	{
		// AUTH routes (token issuance).
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", h.Login)
		}

		protected := v1.Group("")
		protected.Use(authMW, rbac.RequireOrg())
		{
			// CALLS routes
			callsGroup := protected.Group("/calls")
			{
				callsGroup.POST("/:call_id/process", h.TriggerProcessing)
				callsGroup.GET("/:call_id/status", h.GetCallStatus)
				callsGroup.GET("/:call_id", h.GetCall)
			}

			// REPORTS routes
			reports := protected.Group("/reports")
			{
				reports.GET("/processing", h.ProcessingReport)
				reports.GET("/spend", h.SpendReport)
			}
		}
	}
}
