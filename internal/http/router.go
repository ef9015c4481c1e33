// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
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

	"github.com/tbourn/go-review-backend/internal/ai"
	"github.com/tbourn/go-review-backend/internal/config"
	"github.com/tbourn/go-review-backend/internal/http/handlers"
	"github.com/tbourn/go-review-backend/internal/http/middleware"
	"github.com/tbourn/go-review-backend/internal/services"
	"github.com/tbourn/go-review-backend/internal/upstream"
)

// Collaborators are the outbound dependencies the services need. In
// production these are the concrete upstream clients; tests substitute
// fakes.
type Collaborators struct {
	Feed      services.FeedProvider
	Identity  services.IdentityProvider
	Places    services.PlaceResolver
	Messenger upstream.Messenger
	Completer ai.Completer
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine, then mounts the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per owner/IP)
//  8. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Collaborators, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB), compressed responses
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per owner/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByOwnerOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", handlers.OwnerEmailHeader},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", handlers.OwnerEmailHeader},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← collaborators/db
	tokenSvc := services.NewTokenService(db, cfg, deps.Identity)
	syncSvc := services.NewSyncService(db, deps.Feed, cfg.Sync)
	analysisSvc := services.NewAnalysisService(db, deps.Completer, cfg.Sync)
	replySvc := services.NewReplyService(db, deps.Completer, cfg.OpenAI.Model)
	outreachSvc := services.NewOutreachService(db, deps.Messenger, deps.Places, cfg.Outreach)
	settingsSvc := services.NewSettingsService(db)

	h := handlers.New(db, tokenSvc, syncSvc, analysisSvc, replySvc, outreachSvc, settingsSvc)
	h.PostLoginURL = cfg.Google.PostLoginURL

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// OAuth connect flow
		api.GET("/auth/google/login", h.Login)
		api.GET("/auth/google/callback", h.Callback)
		api.POST("/auth/google/disconnect", h.Disconnect)

		// Jobs and reviews
		api.POST("/jobs/auto", h.AutoJob)
		api.GET("/jobs/last", h.LastJob)
		api.GET("/jobs/:id", h.GetJob)
		api.POST("/jobs/:id/sync", h.RunSync)
		api.GET("/jobs/:id/reviews", h.ListReviews)

		// Derived analyses
		api.POST("/jobs/:id/analysis/topics", h.Topics)
		api.POST("/jobs/:id/analysis/action-plan", h.ActionPlan)
		api.POST("/reviews/:id/reply", h.Reply)

		// Business settings
		api.GET("/jobs/:id/settings", h.GetSettings)
		api.PUT("/jobs/:id/settings", h.UpdateSettings)

		// Outreach
		api.POST("/jobs/:id/review-requests", h.ScheduleReviewRequest)
		api.GET("/jobs/:id/review-requests", h.ListReviewRequests)
		api.GET("/jobs/:id/review-requests/stats", h.ReviewRequestStats)
		api.POST("/review-requests/:id/cancel", h.CancelReviewRequest)
		api.POST("/admin/review-requests/send-due", h.SendDueNow)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints using http.MaxBytesReader. Requests exceeding the cap will cause
// downstream body reads to error.
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
