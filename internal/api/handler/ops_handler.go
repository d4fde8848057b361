package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"quote-sentinel/internal/alerting"
	"quote-sentinel/internal/api/dto"
	"quote-sentinel/internal/circuitbreaker"
	"quote-sentinel/internal/service"

	"github.com/gin-gonic/gin"
)

const sweepAll = "all"

type Sweeper interface {
	Sweep(ctx context.Context, name string) (alerting.SweepResult, error)
	RunAll(ctx context.Context) []alerting.SweepResult
}

type BreakerRegistry interface {
	Snapshots() []circuitbreaker.Health
	Reset(service string) bool
	ResetAll() []string
}

// OpsHandler serves the operator surface: sweeps, health and breakers.
type OpsHandler struct {
	sweeper  Sweeper
	health   service.HealthService
	breakers BreakerRegistry
	window   time.Duration
}

func NewOpsHandler(sweeper Sweeper, health service.HealthService, breakers BreakerRegistry, window time.Duration) *OpsHandler {
	return &OpsHandler{sweeper: sweeper, health: health, breakers: breakers, window: window}
}

func (h *OpsHandler) RunSweep(c *gin.Context) {
	name := c.Param("name")
	if name == sweepAll {
		c.JSON(http.StatusOK, h.sweeper.RunAll(c.Request.Context()))
		return
	}

	result, err := h.sweeper.Sweep(c.Request.Context(), name)
	if err != nil {
		abort(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HealthSummary accepts an optional ?window=<duration> query.
func (h *OpsHandler) HealthSummary(c *gin.Context) {
	window := h.window
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			abort(c, http.StatusBadRequest, fmt.Errorf("invalid window %q", raw))
			return
		}
		window = d
	}

	summary, err := h.health.Summary(c.Request.Context(), window)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *OpsHandler) ListBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, h.breakers.Snapshots())
}

func (h *OpsHandler) ResetBreaker(c *gin.Context) {
	name := c.Param("service")
	if !h.breakers.Reset(name) {
		abort(c, http.StatusNotFound, fmt.Errorf("no circuit breaker for %s", name))
		return
	}
	c.JSON(http.StatusOK, dto.BreakerResetResponse{Reset: []string{name}})
}

func (h *OpsHandler) ResetAllBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, dto.BreakerResetResponse{Reset: h.breakers.ResetAll()})
}
