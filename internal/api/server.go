package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/logger"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/sampler"
	"github.com/AI2HU/gauge/internal/scheduler"
	"github.com/AI2HU/gauge/internal/services"
)

// Options wires the server to the engine
type Options struct {
	Database        db.Database
	Sampler         *sampler.Service
	Stats           *services.StatsService
	Jobs            *services.MetricJobService
	Scheduler       *scheduler.Scheduler
	Gatherer        prometheus.Gatherer
	CORSOrigin      string
	ExportRateLimit float64
	ExportBurst     int
}

// Server serves the read and trigger endpoints of the engine
type Server struct {
	router        *gin.Engine
	db            db.Database
	sampler       *sampler.Service
	statsService  *services.StatsService
	jobService    *services.MetricJobService
	scheduler     *scheduler.Scheduler
	exportLimiter *rate.Limiter
	corsOrigin    string
	log           *logger.Logger
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	limit := rate.Inf
	if opts.ExportRateLimit > 0 {
		limit = rate.Limit(opts.ExportRateLimit)
	}
	burst := opts.ExportBurst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		router:        gin.New(),
		db:            opts.Database,
		sampler:       opts.Sampler,
		statsService:  opts.Stats,
		jobService:    opts.Jobs,
		scheduler:     opts.Scheduler,
		exportLimiter: rate.NewLimiter(limit, burst),
		corsOrigin:    opts.CORSOrigin,
		log:           logger.Named("api"),
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s.router.Use(gin.Recovery(), s.requestLogger(), s.cors())
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")

	v1.GET("/health", s.health)

	exports := v1.Group("/exports", s.rateLimit())
	exports.POST("/models/:id/sample", s.sampleModel)
	exports.POST("/nodes/sample", s.sampleNodes)
	exports.POST("/agent-runs/sample", s.sampleAgentRuns)

	modelsGroup := v1.Group("/models/:id")
	modelsGroup.GET("/metrics/summary", s.getMetricSummary)
	modelsGroup.GET("/alerts", s.listAlerts)
	modelsGroup.GET("/ranges", s.listRanges)
	modelsGroup.POST("/health-checks", s.recordHealthCheck)

	v1.POST("/jobs/metrics/run", s.runMetricJob)
	v1.GET("/jobs/metrics/runs", s.listJobRuns)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on address until ctx is cancelled
func (s *Server) Run(ctx context.Context, address string) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.corsOrigin != "" {
			c.Header("Access-Control-Allow-Origin", s.corsOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.exportLimiter.Allow() {
			s.errorResponse(c, http.StatusTooManyRequests, "Export rate limit exceeded, retry later")
			c.Abort()
			return
		}
		c.Next()
	}
}

// health handles GET /api/v1/health
func (s *Server) health(c *gin.Context) {
	if err := s.db.Ping(c.Request.Context()); err != nil {
		s.errorResponse(c, http.StatusServiceUnavailable, "Database unavailable: "+err.Error())
		return
	}
	s.successResponse(c, gin.H{"status": "healthy", "time": time.Now()})
}

func (s *Server) successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: data})
}

func (s *Server) errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, models.APIResponse{Success: false, Error: message})
}

// statusFor maps engine errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, sampler.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
