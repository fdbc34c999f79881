// Package http wires the BizAtlas gin engine: global middleware, health checks,
// /metrics and the /api/v1 map and agent routes.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BizAtlas/internal/interfaces/http/handlers"
	"github.com/turtacn/BizAtlas/internal/interfaces/http/middleware"
	"github.com/turtacn/BizAtlas/internal/interfaces/http/response"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// APIPrefix is the versioned API root.
const APIPrefix = "/api/v1"

// RouterConfig collects what NewRouter mounts.  Nil handlers leave their
// routes out.
type RouterConfig struct {
	// Handlers
	MapHandler    *handlers.MapHandler
	AgentHandler  *handlers.AgentHandler
	HealthHandler *handlers.HealthHandler

	// Middleware
	Logging middleware.LoggingConfig
	// CORS is skipped when nil.
	CORS *middleware.CORSConfig
	// AgentLimiter throttles agent invocations when set.
	AgentLimiter middleware.RateLimiter
	MaxBodySize  int64

	// Infrastructure
	Logger           logging.Logger
	Metrics          *prom.AppMetrics
	MetricsCollector prom.MetricsCollector
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging))
	r.Use(middleware.Metrics(cfg.Metrics))
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	r.Use(middleware.BodyLimit(cfg.MaxBodySize))

	r.NoRoute(func(c *gin.Context) {
		response.Fail(c, errors.NotFound("route not found").WithDetail(c.Request.Method+" "+c.Request.URL.Path))
	})
	r.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, response.Envelope{
			Error: &response.ErrorBody{
				Code:    errors.ErrCodeBadRequest.String(),
				Message: "method not allowed",
			},
			Timestamp: response.Now(),
		})
	})

	// --- Health and metrics ---
	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	// --- API v1 ---
	api := r.Group(APIPrefix)
	if cfg.MapHandler != nil {
		cfg.MapHandler.RegisterRoutes(api)
	}
	if cfg.AgentHandler != nil {
		var mw []gin.HandlerFunc
		if cfg.AgentLimiter != nil {
			mw = append(mw, middleware.RateLimit(cfg.AgentLimiter, middleware.RateLimitConfig{}))
		}
		cfg.AgentHandler.RegisterRoutes(api, mw...)
	}

	return r
}

//Personal.AI order the ending
