// Package adminapi exposes the orchestrator's administrative HTTP surface:
// status inspection, fallback reset, shutdown, and Prometheus metrics.
package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pipectl/internal/orchestrator"
	"pipectl/pkg/logging"
)

// Server serves the admin API for one orchestrator instance.
type Server struct {
	orch       *orchestrator.Orchestrator
	httpServer *http.Server
	shutdownFn func()
}

// New creates the admin server. shutdownFn is invoked (once, in its own
// goroutine) when POST /admin/shutdown is received; it should trigger the
// same clean-shutdown path as a termination signal.
func New(orch *orchestrator.Orchestrator, registry *prometheus.Registry, host string, port int, shutdownFn func()) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		orch:       orch,
		shutdownFn: shutdownFn,
	}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	admin := router.Group("/admin")
	admin.GET("/status", s.handleStatus)
	admin.POST("/fallback/reset", s.handleFallbackReset)
	admin.POST("/shutdown", s.handleShutdown)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: router,
	}

	return s
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed
// on a clean shutdown, like the underlying http.Server.
func (s *Server) Start() error {
	logging.Info("AdminAPI", "Listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"nodes":         s.orch.Status(),
		"fallbackState": s.orch.FallbackState(),
	}
	if r := s.orch.Router(); r != nil {
		resp["activeTarget"] = r.ActiveTarget()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFallbackReset(c *gin.Context) {
	if s.orch.Router() == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no primary/fallback pair configured"})
		return
	}

	s.orch.ResetFallback()
	logging.Info("AdminAPI", "Fallback reset requested")
	c.JSON(http.StatusOK, gin.H{
		"fallbackState": s.orch.FallbackState(),
		"activeTarget":  s.orch.Router().ActiveTarget(),
	})
}

func (s *Server) handleShutdown(c *gin.Context) {
	logging.Info("AdminAPI", "Shutdown requested")
	c.JSON(http.StatusAccepted, gin.H{"status": "shutting down"})

	// Defer the actual teardown so this response gets written first.
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.shutdownFn()
	}()
}
