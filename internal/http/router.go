// Package httpapi wires the HTTP transport (Gin) to the application
// services, middleware, and route handlers. It centralizes cross-cutting
// concerns: tracing, correlation IDs, logging, panic recovery, metrics,
// compression, CORS, and rate limiting.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after the logger
//  5. Body size limiter
//  6. Metrics and /metrics
//  7. Rate limiter (per client IP)
//  8. Gzip and CORS
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/medtrack/go-medtrack-backend/internal/config"
	"github.com/medtrack/go-medtrack-backend/internal/http/handlers"
	"github.com/medtrack/go-medtrack-backend/internal/http/middleware"
	"github.com/medtrack/go-medtrack-backend/internal/scheduler"
	"github.com/medtrack/go-medtrack-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given
// Gin engine. Services are constructed from the shared DB handle and the
// rule configuration; the scheduler is injected by the caller because its
// lifecycle outlives any single request.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, jobs *scheduler.Scheduler, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	r.Use(rl.Handler())

	// 8) Compression and CORS
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← db + rule config
	medSvc := services.NewMedicationService(db)
	schedSvc := services.NewScheduleService(db)
	schedSvc.DueWindow = cfg.Rules.DueWindow
	schedSvc.MissedAfter = cfg.Rules.MissedAfter
	notifSvc := services.NewNotificationService(db)
	notifSvc.DedupWindow = cfg.Rules.DedupWindow
	notifSvc.DefaultBuySoonDays = cfg.Rules.BuySoonDays
	notifSvc.DefaultDoseDueMinutes = cfg.Rules.DoseDueMinutes
	notifSvc.DefaultMissedDoseHours = cfg.Rules.MissedDoseHours

	h := handlers.New(medSvc, schedSvc, notifSvc, jobs)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Medications
		api.POST("/medications", h.CreateMedication)
		api.GET("/medications", h.ListMedications)
		api.GET("/medications/:id", h.GetMedication)
		api.PUT("/medications/:id", h.UpdateMedication)
		api.DELETE("/medications/:id", h.DeleteMedication)
		api.PUT("/medications/:id/inventory", h.UpdateInventory)
		api.GET("/medications/:id/audit", h.MedicationAuditTrail)

		// Doses
		api.POST("/medications/:id/doses", h.AddDose)
		api.DELETE("/medications/:id/doses/:doseId", h.RemoveDose)
		api.POST("/medications/:id/doses/:doseId/given", h.RecordDoseGiven)

		// Skip dates
		api.POST("/medications/:id/skip-dates", h.AddSkipDate)
		api.DELETE("/medications/:id/skip-dates/:skipDateId", h.RemoveSkipDate)

		// Schedule
		api.GET("/schedule", h.DailySchedule)
		api.GET("/schedule/summary", h.ScheduleSummary)

		// Notifications
		api.GET("/notifications", h.ListNotifications)
		api.POST("/notifications/buy-soon", h.GenerateBuySoon)
		api.POST("/notifications/dose-due", h.GenerateDoseDue)
		api.POST("/notifications/missed-dose", h.GenerateMissedDose)
		api.POST("/notifications/check", h.ImmediateCheck)
		api.PUT("/notifications/read", h.MarkNotificationsRead)
		api.PUT("/notifications/:id/read", h.MarkNotificationRead)
		api.DELETE("/notifications/:id", h.DeleteNotification)
		api.POST("/notifications/cleanup", h.CleanupNotifications)
		api.PUT("/medications/:id/notifications/read", h.MarkMedicationNotificationsRead)

		// Background jobs
		api.POST("/jobs/start", h.StartAllJobs)
		api.POST("/jobs/stop", h.StopAllJobs)
		api.GET("/jobs/status", h.JobStatus)
		api.POST("/jobs/:name/start", h.StartJob)
		api.POST("/jobs/:name/stop", h.StopJob)
	}
}

// limitBody returns a Gin middleware that caps the request body size for
// all endpoints using http.MaxBytesReader.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
