package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"btcagent/internal/logger"
	"btcagent/internal/service"
	"btcagent/internal/store"
	"btcagent/internal/workflow"

	"github.com/gin-gonic/gin"
)

const (
	defaultSignalLimit = 10
	maxSignalLimit     = 100
)

// AnalysisRunner 由 service.Runner 实现。
type AnalysisRunner interface {
	RunAnalysis(ctx context.Context) (service.AnalysisResult, error)
}

type SignalReader interface {
	LatestSignals(ctx context.Context, limit int) ([]store.SignalRecord, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Router 挂载全部路由。
type Router struct {
	version string
	runner  AnalysisRunner
	signals SignalReader
	health  HealthChecker
	metrics http.Handler
}

func NewRouter(cfg ServerConfig) *Router {
	return &Router{
		version: cfg.Version,
		runner:  cfg.Runner,
		signals: cfg.Signals,
		health:  cfg.Health,
		metrics: cfg.Metrics,
	}
}

func (r *Router) Register(engine *gin.Engine) {
	if engine == nil {
		return
	}
	engine.GET("/", r.handleRoot)
	engine.GET("/health", r.handleHealth)
	engine.POST("/analyze/manual", r.handleManualAnalysis)
	engine.GET("/signals/latest", r.handleLatestSignals)
	if r.metrics != nil {
		engine.GET("/metrics", gin.WrapH(r.metrics))
	}
}

func (r *Router) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "BTC Smart Agent System",
		"status":  "running",
		"version": r.version,
	})
}

func (r *Router) handleHealth(c *gin.Context) {
	if r.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := r.health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleManualAnalysis 同步执行一次分析并返回结果。
func (r *Router) handleManualAnalysis(c *gin.Context) {
	res, err := r.runner.RunAnalysis(c.Request.Context())
	if err != nil {
		var runErr *workflow.RunError
		switch {
		case errors.Is(err, service.ErrAnalysisBusy):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.As(err, &runErr):
			logger.Warnf("手动分析失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "stage": runErr.Stage, "run_id": runErr.RunID})
		default:
			logger.Warnf("手动分析失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	body := gin.H{
		"message": "分析已完成",
		"signal":  signalView(res.Signal),
		"tier":    res.Tier,
	}
	if res.NotifyError != "" {
		body["notify_error"] = res.NotifyError
	}
	c.JSON(http.StatusOK, body)
}

func (r *Router) handleLatestSignals(c *gin.Context) {
	limit := defaultSignalLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须为正整数"})
			return
		}
		limit = n
	}
	if limit > maxSignalLimit {
		limit = maxSignalLimit
	}
	recs, err := r.signals.LatestSignals(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, signalView(rec))
	}
	c.JSON(http.StatusOK, gin.H{"signals": out})
}

func signalView(rec store.SignalRecord) gin.H {
	view := gin.H{
		"id":         rec.ID,
		"run_id":     rec.RunID,
		"timestamp":  rec.Timestamp.UTC().Format(time.RFC3339),
		"signal":     rec.Signal,
		"confidence": rec.Confidence,
		"reasoning":  rec.Reasoning,
		"tier":       rec.Tier,
		"status":     rec.Status,
	}
	if !rec.Price.IsZero() {
		view["price"] = rec.Price.String()
	}
	return view
}
