// Package httpapi serves the operator endpoints: health, metrics, state and manual triggers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pairing_bot/internal/app"
	"pairing_bot/internal/domain/tenant"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Cycles is the part of app.CycleService the API drives.
type Cycles interface {
	RunCycle(ctx context.Context, tenantID int64, trigger app.Trigger) (*app.CycleReport, error)
	SendReminders(ctx context.Context, tenantID int64) (int, error)
	State(ctx context.Context, tenantID int64) (*app.TenantState, error)
}

// Server is the ops HTTP server.
type Server struct {
	cycles Cycles
	router *gin.Engine
	log    *logrus.Entry
	http   *http.Server
}

// NewServer builds the router. gatherer backs /metrics.
func NewServer(addr string, cycles Cycles, gatherer prometheus.Gatherer, log *logrus.Entry) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cycles: cycles,
		router: router,
		log:    log,
	}

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	tenants := router.Group("/tenants/:id")
	{
		tenants.GET("/state", s.handleState)
		tenants.POST("/cycles", s.handleRunCycle)
		tenants.POST("/reminders", s.handleReminders)
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.log.WithField("addr", s.http.Addr).Info("Ops HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleState(c *gin.Context) {
	id, ok := tenantParam(c)
	if !ok {
		return
	}
	state, err := s.cycles.State(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleRunCycle(c *gin.Context) {
	id, ok := tenantParam(c)
	if !ok {
		return
	}
	report, err := s.cycles.RunCycle(c.Request.Context(), id, app.TriggerManual)
	if err != nil {
		s.writeError(c, id, err)
		return
	}
	c.JSON(http.StatusAccepted, report)
}

func (s *Server) handleReminders(c *gin.Context) {
	id, ok := tenantParam(c)
	if !ok {
		return
	}
	sent, err := s.cycles.SendReminders(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

func tenantParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant id must be a non-zero integer"})
		return 0, false
	}
	return id, true
}

func (s *Server) writeError(c *gin.Context, tenantID int64, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrCycleInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("tenant_id", tenantID).Error("Ops request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
