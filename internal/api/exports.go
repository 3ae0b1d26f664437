package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AI2HU/gauge/internal/models"
)

// sampleBody is the JSON body of the export endpoints
type sampleBody struct {
	NodeIDs          []string  `json:"node_ids"`
	Fields           []string  `json:"fields"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	SamplePercentage *int      `json:"sample_percentage"`
}

func (s *Server) bindSample(c *gin.Context, mode string) (models.SampleRequest, bool) {
	var body sampleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return models.SampleRequest{}, false
	}

	return models.SampleRequest{
		Mode:             mode,
		NodeIDs:          body.NodeIDs,
		Fields:           body.Fields,
		StartDate:        body.StartDate,
		EndDate:          body.EndDate,
		SamplePercentage: body.SamplePercentage,
	}, true
}

func (s *Server) respondSample(c *gin.Context, req models.SampleRequest) {
	resp, err := s.sampler.Sample(c.Request.Context(), req)
	if err != nil {
		s.errorResponse(c, statusFor(err), "Failed to sample logs: "+err.Error())
		return
	}
	s.successResponse(c, resp)
}

// sampleModel handles POST /api/v1/exports/models/:id/sample
func (s *Server) sampleModel(c *gin.Context) {
	req, ok := s.bindSample(c, models.SampleModeModel)
	if !ok {
		return
	}
	req.ModelID = c.Param("id")
	req.NodeIDs = nil
	s.respondSample(c, req)
}

// sampleNodes handles POST /api/v1/exports/nodes/sample
func (s *Server) sampleNodes(c *gin.Context) {
	req, ok := s.bindSample(c, models.SampleModeNodes)
	if !ok {
		return
	}
	s.respondSample(c, req)
}

// sampleAgentRuns handles POST /api/v1/exports/agent-runs/sample
func (s *Server) sampleAgentRuns(c *gin.Context) {
	req, ok := s.bindSample(c, models.SampleModeAgentRun)
	if !ok {
		return
	}
	s.respondSample(c, req)
}
