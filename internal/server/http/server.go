package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relay/internal/logging"
	"relay/internal/orchestrator"
	"relay/internal/task"
)

const terminalCacheSize = 1024

// Server is the HTTP front door. All task access goes through the registry
// so every request lands on the single live instance for its key; terminal
// projections are additionally served from an in-process cache since they
// can never change again.
type Server struct {
	registry *orchestrator.Registry
	logger   logging.Logger
	cache    *lru.Cache[string, task.StatusView]
}

// InvalidateTask drops the cached projection for taskID. Wired to the
// registry's wipe callback so a cleaned-up task stops being served.
func (s *Server) InvalidateTask(taskID string) {
	s.cache.Remove(taskID)
}

// NewServer builds the server around the registry.
func NewServer(registry *orchestrator.Registry, logger logging.Logger) *Server {
	cache, err := lru.New[string, task.StatusView](terminalCacheSize)
	if err != nil {
		// Only possible with a non-positive size.
		panic(err)
	}
	return &Server{
		registry: registry,
		logger:   logging.OrNop(logger),
		cache:    cache,
	}
}

// Router assembles the gin engine with middleware and all routes. A nil
// gatherer serves the default prometheus registry on /metrics.
func (s *Server) Router(gatherer prometheus.Gatherer, allowedOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(s.logger))

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowedOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Request-ID")
	r.Use(cors.New(corsCfg))

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/:id", s.handleGetTask)
		api.GET("/tasks/:id/events", s.handleGetEvents)
		api.POST("/tasks/:id/cancel", s.handleCancelTask)
	}
	return r
}
