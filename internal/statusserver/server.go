// Package statusserver exposes a read-only HTTP view of the runner fleet.
// It never mutates trading state; operators act through configuration and
// restarts, not this surface.
package statusserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bensig/golibre/internal/runner"
	"github.com/bensig/golibre/pkg/logger"
)

var log = logger.WithField("component", "statusserver")

// StatusSource is the slice of the trading manager the server reads.
type StatusSource interface {
	Statuses() []runner.Status
	RunnerStatus(name string) (runner.Status, bool)
}

// Server serves runner status over HTTP.
type Server struct {
	src  StatusSource
	http *http.Server
}

func New(listen string, src StatusSource) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{src: src}
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/status", s.handleStatuses)
	// Runner names embed the pair symbol ("alice:BTC/USDT:MarketRate"), so
	// the lookup route must swallow slashes.
	engine.GET("/status/*name", s.handleStatus)

	s.http = &http.Server{
		Addr:              listen,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown; it returns when the listener closes.
func (s *Server) Start() error {
	log.Infof("status server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the server bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runners": s.src.Statuses()})
}

func (s *Server) handleStatus(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	status, ok := s.src.RunnerStatus(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown runner"})
		return
	}
	c.JSON(http.StatusOK, status)
}
