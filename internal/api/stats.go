package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
)

const (
	defaultSummaryWindow = 30 * 24 * time.Hour
	defaultAlertLimit    = 50
	maxAlertLimit        = 500
)

// getMetricSummary handles GET /api/v1/models/:id/metrics/summary
func (s *Server) getMetricSummary(c *gin.Context) {
	start, end, err := shared.ParseTimeRange(c, defaultSummaryWindow)
	if err != nil {
		s.errorResponse(c, http.StatusBadRequest, "Invalid time range: "+err.Error())
		return
	}

	summary, err := s.statsService.ModelMetricSummary(c.Request.Context(), c.Param("id"), start, end)
	if err != nil {
		s.errorResponse(c, statusFor(err), "Failed to get metric summary: "+err.Error())
		return
	}

	s.successResponse(c, summary)
}

// listAlerts handles GET /api/v1/models/:id/alerts
func (s *Server) listAlerts(c *gin.Context) {
	limit := shared.ParseLimit(c, defaultAlertLimit, maxAlertLimit)

	alerts, err := s.statsService.RecentAlerts(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.errorResponse(c, statusFor(err), "Failed to list alerts: "+err.Error())
		return
	}

	s.successResponse(c, alerts)
}

// listRanges handles GET /api/v1/models/:id/ranges
func (s *Server) listRanges(c *gin.Context) {
	ranges, err := s.statsService.WeeklyRanges(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.errorResponse(c, statusFor(err), "Failed to list metric ranges: "+err.Error())
		return
	}

	s.successResponse(c, ranges)
}

type healthCheckBody struct {
	Healthy *bool `json:"healthy" binding:"required"`
}

// recordHealthCheck handles POST /api/v1/models/:id/health-checks
func (s *Server) recordHealthCheck(c *gin.Context) {
	var body healthCheckBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	metricLog, err := s.jobService.RecordHealthCheck(c.Request.Context(), c.Param("id"), *body.Healthy)
	if err != nil {
		s.errorResponse(c, statusFor(err), "Failed to record health check: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, models.APIResponse{Success: true, Data: metricLog})
}
