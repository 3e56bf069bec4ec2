package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PratikDhanave/trigger-contract-service/internal/auth"
	"github.com/PratikDhanave/trigger-contract-service/internal/handlers"
	"github.com/PratikDhanave/trigger-contract-service/internal/pipeline"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the router serves from.
type Deps struct {
	APIKeys  map[string]string
	Manager  *pipeline.Manager
	Outcomes handlers.OutcomeCounter
	Ready    Pinger
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready, /metrics
// Authenticated: /triggers, /outcomes
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the DB dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := d.Ready.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	// Auth group enforces tenant context via X-API-Key.
	authGroup := r.Group("/")
	authGroup.Use(auth.APIKeyMiddleware(d.APIKeys))

	handlers.RegisterTriggerRoutes(authGroup, d.Manager, d.Logger)
	handlers.RegisterOutcomeRoutes(authGroup, d.Outcomes)

	return r
}
