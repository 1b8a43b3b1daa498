// Package api serves the agent's read-only query surface: health, metrics,
// scheduler status and the persisted audit log, yield reports and goal.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/observability"
	"solana-yield-agent/internal/orchestrator"
	"solana-yield-agent/internal/storage"
)

// StatusSource exposes scheduler state. *orchestrator.Scheduler implements it.
type StatusSource interface {
	LastReport() (orchestrator.TickReport, bool)
	Context() orchestrator.TickContext
	Skipped() int
}

// APYAnalytics aggregates historical yield reports.
type APYAnalytics interface {
	APYByProtocol(ctx context.Context, since time.Time) (map[string]float64, error)
}

// Config describes the server's dependencies. Nil stores disable their routes' data
// (they answer 503).
type Config struct {
	Addr      string
	Actions   storage.ActionLogStore
	Yields    storage.YieldReportStore
	Goals     storage.GoalStore
	GoalKey   string
	Status    StatusSource
	Analytics APYAnalytics // optional
	Logger    *log.Logger
	Now       func() time.Time
}

// Server is the read-only HTTP API.
type Server struct {
	addr    string
	router  *gin.Engine
	cfg     Config
	started time.Time
	logger  *log.Logger
}

// NewServer builds the router.
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
	if cfg.GoalKey == "" {
		cfg.GoalKey = domain.PrimaryGoalKey
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	s := &Server{addr: cfg.Addr, router: router, cfg: cfg, started: cfg.Now(), logger: cfg.Logger}
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(observability.Handler()))
	router.GET("/status", s.handleStatus)

	v1 := router.Group("/api/v1")
	v1.GET("/actions", s.handleActions)
	v1.GET("/yields", s.handleYields)
	v1.GET("/goal", s.handleGoal)
	if cfg.Analytics != nil {
		v1.GET("/analytics/apy", s.handleAPYAnalytics)
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Printf("HTTP server listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Printf("WARN: HTTP %s %s status=%d dur=%s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
		}
	}
}

// limitParam reads ?limit=N. Missing or unparsable values fall back to the default.
func limitParam(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return storage.ClampLimit(n)
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " store not configured"})
}
