package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coaching-console/internal/service"
)

type dashboardService interface {
	Summary(ctx context.Context) (service.View[service.DashboardSummary], error)
}

// DashboardHandler wires the dashboard summary to HTTP.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Summary returns the landing dashboard.
func (h *DashboardHandler) Summary(c *gin.Context) {
	start := time.Now()
	view, err := h.service.Summary(c.Request.Context())
	c.Header("Server-Timing", "summary;dur="+durationMillis(time.Since(start)))
	respondView(c, view, err)
}
