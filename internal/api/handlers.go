package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status       string       `json:"status"`
	Uptime       string       `json:"uptime"`
	Ticks        int          `json:"ticks"`
	SkippedTicks int          `json:"skipped_ticks"`
	CurrentAPY   float64      `json:"current_apy"`
	LastTick     *TickSummary `json:"last_tick,omitempty"`
}

// TickSummary is the JSON view of the most recent tick.
type TickSummary struct {
	TickID        string    `json:"tick_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Balance       float64   `json:"balance_sol"`
	Degraded      bool      `json:"degraded"`
	Skipped       bool      `json:"skipped"`
	Opportunities int       `json:"opportunities"`
	Eligible      int       `json:"eligible"`
	Action        string    `json:"action,omitempty"`
	Execution     string    `json:"execution,omitempty"`
	Signature     string    `json:"signature,omitempty"`
	Errors        []string  `json:"errors,omitempty"`
}

// GoalResponse is the JSON view of a goal. days_to_goal is null when the
// target is unreachable at the current APY.
type GoalResponse struct {
	GoalKey        string            `json:"goal_key"`
	TargetBalance  float64           `json:"target_balance"`
	CurrentBalance float64           `json:"current_balance"`
	TargetAPY      float64           `json:"target_apy"`
	DaysToGoal     any               `json:"days_to_goal"`
	ProgressPct    float64           `json:"progress_pct"`
	Status         domain.GoalStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := StatusResponse{
		Status: "running",
		Uptime: s.cfg.Now().Sub(s.started).Round(time.Second).String(),
	}
	if s.cfg.Status != nil {
		tc := s.cfg.Status.Context()
		resp.Ticks = tc.Ticks
		resp.CurrentAPY = tc.CurrentAPY
		resp.SkippedTicks = s.cfg.Status.Skipped()
		if r, ok := s.cfg.Status.LastReport(); ok {
			sum := &TickSummary{
				TickID:        r.TickID,
				StartedAt:     r.StartedAt,
				FinishedAt:    r.FinishedAt,
				Balance:       r.Balance,
				Degraded:      r.Degraded,
				Skipped:       r.Skipped,
				Opportunities: r.Opportunities,
				Eligible:      r.Eligible,
				Errors:        r.Errors,
			}
			if r.Decision != nil {
				sum.Action = string(r.Decision.Action)
			}
			if r.Execution != nil {
				sum.Execution = string(r.Execution.Status)
				sum.Signature = r.Execution.Signature
			}
			resp.LastTick = sum
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleActions(c *gin.Context) {
	if s.cfg.Actions == nil {
		unavailable(c, "action log")
		return
	}
	actions, err := s.cfg.Actions.Recent(c.Request.Context(), limitParam(c))
	if err != nil {
		s.logger.Printf("WARN: recent actions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if actions == nil {
		actions = []*domain.AgentAction{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

func (s *Server) handleYields(c *gin.Context) {
	if s.cfg.Yields == nil {
		unavailable(c, "yield report")
		return
	}
	reports, err := s.cfg.Yields.Recent(c.Request.Context(), limitParam(c))
	if err != nil {
		s.logger.Printf("WARN: recent yield reports: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if reports == nil {
		reports = []*domain.YieldReport{}
	}
	c.JSON(http.StatusOK, gin.H{"yields": reports, "count": len(reports)})
}

func (s *Server) handleGoal(c *gin.Context) {
	if s.cfg.Goals == nil {
		unavailable(c, "goal")
		return
	}
	g, err := s.cfg.Goals.Get(c.Request.Context(), s.cfg.GoalKey)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no goal recorded yet"})
		return
	}
	if err != nil {
		s.logger.Printf("WARN: get goal: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	progress := 0.0
	if g.TargetBalance > 0 {
		progress = min(g.CurrentBalance/g.TargetBalance*100, 100)
	}
	c.JSON(http.StatusOK, GoalResponse{
		GoalKey:        g.GoalKey,
		TargetBalance:  g.TargetBalance,
		CurrentBalance: g.CurrentBalance,
		TargetAPY:      g.TargetAPY,
		DaysToGoal:     domain.FiniteOrNil(g.DaysToGoal),
		ProgressPct:    progress,
		Status:         g.Status,
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	})
}

// handleAPYAnalytics returns the average APY per protocol over ?hours=N (default 24).
func (s *Server) handleAPYAnalytics(c *gin.Context) {
	window := 24 * time.Hour
	if h := c.Query("hours"); h != "" {
		d, err := time.ParseDuration(h + "h")
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive number"})
			return
		}
		window = d
	}
	since := s.cfg.Now().Add(-window).UTC()
	byProtocol, err := s.cfg.Analytics.APYByProtocol(c.Request.Context(), since)
	if err != nil {
		s.logger.Printf("WARN: apy analytics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "avg_apy": byProtocol})
}
