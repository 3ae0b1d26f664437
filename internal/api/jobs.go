package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
)

// runMetricJob handles POST /api/v1/jobs/metrics/run
func (s *Server) runMetricJob(c *gin.Context) {
	summary, err := s.scheduler.ExecuteNow(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Data:    summary,
			Error:   "Metric job failed: " + err.Error(),
		})
		return
	}

	s.successResponse(c, summary)
}

// listJobRuns handles GET /api/v1/jobs/metrics/runs
func (s *Server) listJobRuns(c *gin.Context) {
	runs, err := s.scheduler.History(c.Request.Context(), shared.ParseLimit(c, 20, 200))
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "Failed to list job runs: "+err.Error())
		return
	}

	s.successResponse(c, runs)
}
