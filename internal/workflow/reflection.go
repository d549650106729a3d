package workflow

import (
	"context"
	"time"

	"btcagent/internal/decision"
	"btcagent/internal/logger"
	"btcagent/internal/metrics"
	"btcagent/internal/store"
)

// PerformanceRecord 一条已评估的历史信号。
type PerformanceRecord = store.PerformanceRecord

// PerformanceSource 反思阶段的历史表现来源，按时间倒序。
type PerformanceSource interface {
	Performance(ctx context.Context) ([]PerformanceRecord, error)
}

// EmptyHistory 默认来源：始终为空。
type EmptyHistory struct{}

func (EmptyHistory) Performance(context.Context) ([]PerformanceRecord, error) { return nil, nil }

type historyReader interface {
	PerformanceHistory(ctx context.Context, limit int) ([]store.PerformanceRecord, error)
}

// StoreHistory 从 feedback 表读取最近 limit 条评估结果。
type StoreHistory struct {
	reader historyReader
	limit  int
}

func NewStoreHistory(r historyReader, limit int) *StoreHistory {
	return &StoreHistory{reader: r, limit: limit}
}

func (h *StoreHistory) Performance(ctx context.Context) ([]PerformanceRecord, error) {
	return h.reader.PerformanceHistory(ctx, h.limit)
}

// reflectionStage 只产出建议记录，不回写权重，也不影响最终信号。
type reflectionStage struct {
	reflector Reflector
	history   PerformanceSource
	timeout   time.Duration
	metrics   *metrics.Metrics
}

func (s reflectionStage) run(ctx context.Context, runID string, outcome decision.AgentResult) decision.Reflection {
	var perf []PerformanceRecord
	if s.history != nil {
		var err error
		perf, err = s.history.Performance(ctx)
		if err != nil {
			logger.ForRun(runID).Warnf("读取历史表现失败，按空历史处理: %v", err)
			perf = nil
		}
	}
	raw, err := bounded(ctx, s.timeout, func(c context.Context) (string, error) {
		return s.reflector.Reflect(c, ReflectionInput{RunID: runID, Outcome: outcome, Performance: perf})
	})
	if err != nil {
		logger.ForRun(runID).Warnf("反思阶段失败: %v", err)
		s.metrics.IncDegraded("ReflectionAgent")
		return decision.DegradedReflection(failureText("reflection", err))
	}
	out, err := decision.ParseReflection(raw)
	if err != nil {
		logger.ForRun(runID).Warnf("反思结果无法解析: %v", err)
		s.metrics.IncDegraded("ReflectionAgent")
		return decision.DegradedReflection(raw)
	}
	logger.ForRun(runID).Infof("反思建议: adjusted_confidence=%.2f weights=%v", out.AdjustedConfidence, out.WeightAdjustments)
	return out
}
