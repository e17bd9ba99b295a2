package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/handler"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session   *handler.SessionHandler
	SessionWS *handler.SessionWSHandler
	Scoring   *handler.ScoringHandler
	Sweeper   *handler.SweeperHandler
	Monitor   *handler.MonitorHandler
}

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

// SetupRouter configures all Gin route groups with appropriate middlewares.
// checks are run by /health; a failing check turns the response into 503.
func SetupRouter(handlers *Handlers, cfg *config.Config, log zerolog.Logger, checks map[string]Pinger) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so logs and error envelopes share it.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))

	// Streaming routes bypass compression.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Skipper: func(c *gin.Context) bool {
			p := c.Request.URL.Path
			return strings.HasSuffix(p, "/ws") || strings.HasSuffix(p, "/monitor")
		},
	}))

	router.GET("/health", health(checks))

	api := router.Group("/api/v1")
	api.Use(middleware.NoStore())

	// ─── 1. Participant sessions ───────────────────────────────────────
	sessions := api.Group("/sessions")
	{
		sessions.POST("", handlers.Session.Start)
		sessions.GET("/:token", handlers.Session.Get)
		sessions.POST("/:token/resume", handlers.Session.Resume)
		sessions.POST("/:token/pause", handlers.Session.Pause)
		sessions.POST("/:token/time", handlers.Session.UpdateTime)
		sessions.POST("/:token/complete", handlers.Session.Complete)
		sessions.GET("/:token/ws", handlers.SessionWS.Stream)
	}

	// ─── 2. Administration ─────────────────────────────────────────────
	admin := api.Group("/admin")
	{
		quizzes := admin.Group("/quizzes/:quiz_id")
		quizzes.GET("/policies", handlers.Scoring.ListPolicies)
		quizzes.PUT("/policies/:policy_id/activate", handlers.Scoring.Activate)
		quizzes.POST("/policies/:policy_id/preview", handlers.Scoring.Preview)
		quizzes.GET("/monitor", handlers.Monitor.MonitorQuizSSE)

		admin.GET("/sweeper", handlers.Sweeper.Status)
		admin.POST("/sweeper/run", handlers.Sweeper.Run)
	}

	return router
}

func health(checks map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := gin.H{"status": "ok"}
		deps := make(map[string]string, len(checks))
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				deps[name] = "down"
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				continue
			}
			deps[name] = "up"
		}
		if len(deps) > 0 {
			result["dependencies"] = deps
		}
		response.Success(c, status, result)
	}
}
