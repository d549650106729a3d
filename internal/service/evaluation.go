package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"btcagent/internal/decision"
	"btcagent/internal/logger"
	"btcagent/internal/market"
	"btcagent/internal/store"
	"btcagent/internal/workflow"

	"github.com/shopspring/decimal"
)

// 价格在评估窗口内的实际走势。
const (
	OutcomeUp   = "UP"
	OutcomeDown = "DOWN"
	OutcomeFlat = "FLAT"
)

// Outcome 一条信号在评估窗口结束时的结果。
type Outcome struct {
	Actual     string
	ChangePct  float64
	Correct    bool
	ProfitLoss float64
}

// Evaluate 比较入场价与出场价：涨幅超过 holdBandPct 为 UP，跌幅超过为 DOWN，否则 FLAT。
// BUY 对应 UP、SELL 对应 DOWN、HOLD 对应 FLAT 时判定正确；
// ProfitLoss 为按信号方向持仓的收益百分比，HOLD 为 0。
func Evaluate(sig decision.Signal, entry, exit decimal.Decimal, holdBandPct float64) (Outcome, error) {
	if !entry.IsPositive() || !exit.IsPositive() {
		return Outcome{}, fmt.Errorf("invalid prices entry=%s exit=%s", entry, exit)
	}
	change, _ := exit.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100)).Float64()
	out := Outcome{Actual: OutcomeFlat, ChangePct: change}
	switch {
	case change > holdBandPct:
		out.Actual = OutcomeUp
	case change < -holdBandPct:
		out.Actual = OutcomeDown
	}
	out.Correct = expectedSignal(out.Actual) == sig
	switch sig {
	case decision.SignalBuy:
		out.ProfitLoss = change
	case decision.SignalSell:
		out.ProfitLoss = -change
	}
	out.ProfitLoss = math.Round(out.ProfitLoss*10000) / 10000
	return out, nil
}

func expectedSignal(actual string) decision.Signal {
	switch actual {
	case OutcomeUp:
		return decision.SignalBuy
	case OutcomeDown:
		return decision.SignalSell
	default:
		return decision.SignalHold
	}
}

// EvaluationSummary 一次评估任务的统计。
type EvaluationSummary struct {
	Evaluated int `json:"evaluated"`
	Skipped   int `json:"skipped"`
	Correct   int `json:"correct"`
}

// EvaluatePerformance 评估所有超过 horizon 的 PENDING 信号：写入 feedback 并标记 EVALUATED，
// 同时按 producer 累计 models_eval。缺少价格的信号保持 PENDING，下次再评估。
func (r *Runner) EvaluatePerformance(ctx context.Context) (EvaluationSummary, error) {
	now := r.now()
	pending, err := r.store.PendingSignals(ctx, now.Add(-r.opts.Horizon), r.opts.EvalBatch)
	if err != nil {
		return EvaluationSummary{}, fmt.Errorf("load pending signals: %w", err)
	}
	var (
		summary EvaluationSummary
		stats   = newAgentStats()
	)
	for _, sig := range pending {
		entry := sig.Price
		if entry.IsZero() {
			if p, ok, err := r.store.PriceAt(ctx, sig.Symbol, sig.Timestamp); err == nil && ok {
				entry = p
			}
		}
		exit, ok, err := r.exitPrice(ctx, sig)
		if err != nil {
			return summary, r.abortEvaluation(ctx, stats, fmt.Errorf("load exit price: %w", err))
		}
		if !ok || !entry.IsPositive() {
			summary.Skipped++
			logger.Warnf("信号 %d 缺少价格数据，暂不评估", sig.ID)
			continue
		}
		out, err := Evaluate(decision.Signal(sig.Signal), entry, exit, r.opts.HoldBandPct)
		if err != nil {
			summary.Skipped++
			logger.Warnf("信号 %d 评估失败: %v", sig.ID, err)
			continue
		}
		fb := store.FeedbackRecord{
			SignalID:      sig.ID,
			ActualOutcome: out.Actual,
			EntryPrice:    entry,
			ExitPrice:     exit,
			ProfitLoss:    out.ProfitLoss,
			Accuracy:      boolScore(out.Correct),
			EvaluatedAt:   now,
			Notes:         fmt.Sprintf("change=%.4f%% horizon=%s band=%.2f%%", out.ChangePct, r.opts.Horizon, r.opts.HoldBandPct),
		}
		if err := r.store.SaveFeedback(ctx, fb); err != nil {
			return summary, r.abortEvaluation(ctx, stats, fmt.Errorf("save feedback for signal %d: %w", sig.ID, err))
		}
		summary.Evaluated++
		if out.Correct {
			summary.Correct++
		}
		stats.addBundle(sig.Bundle, out.Actual)
	}
	if err := r.flushAgentStats(ctx, stats); err != nil {
		return summary, err
	}
	logger.Infof("评估了 %d 个信号 (正确 %d, 跳过 %d)", summary.Evaluated, summary.Correct, summary.Skipped)
	return summary, nil
}

// exitPrice 取 ts+horizon 处的收盘价。K 线必须晚于信号本身，
// 且开盘时间不早于目标时刻前一个周期，否则视为行情缺失。
func (r *Runner) exitPrice(ctx context.Context, sig store.SignalRecord) (decimal.Decimal, bool, error) {
	target := sig.Timestamp.Add(r.opts.Horizon)
	p, ok, err := r.store.PointAt(ctx, sig.Symbol, target)
	if err != nil || !ok {
		return decimal.Zero, false, err
	}
	if !p.OpenTime.After(sig.Timestamp) {
		return decimal.Zero, false, nil
	}
	if step, known := market.ParseInterval(r.opts.Interval); known && p.OpenTime.Before(target.Add(-step)) {
		return decimal.Zero, false, nil
	}
	return p.Close, true, nil
}

// abortEvaluation 已写入 feedback 的信号不会再次进入 PENDING，
// 出错退出前先把它们的统计写入 models_eval。
func (r *Runner) abortEvaluation(ctx context.Context, stats *agentStats, cause error) error {
	if err := r.flushAgentStats(ctx, stats); err != nil {
		logger.Errorf("评估中断后写入模型统计失败: %v", err)
	}
	return cause
}

type agentKey struct{ agent, model string }

type agentTally struct {
	total, correct int
	sumConfidence  float64
	weight         float64
}

type agentStats struct {
	order []agentKey
	byKey map[agentKey]*agentTally
}

func newAgentStats() *agentStats {
	return &agentStats{byKey: map[agentKey]*agentTally{}}
}

// addBundle 从结果包中取出两条轨道的 producer 结果，按实际走势计分。
func (s *agentStats) addBundle(raw json.RawMessage, actual string) {
	if len(raw) == 0 {
		return
	}
	var rep workflow.Report
	if err := json.Unmarshal(raw, &rep); err != nil {
		logger.Warnf("结果包解析失败，跳过 producer 统计: %v", err)
		return
	}
	want := expectedSignal(actual)
	for _, res := range append(append([]decision.AgentResult(nil), rep.Technical...), rep.News...) {
		k := agentKey{agent: res.Agent, model: res.Model}
		t, ok := s.byKey[k]
		if !ok {
			t = &agentTally{}
			s.byKey[k] = t
			s.order = append(s.order, k)
		}
		t.total++
		if res.Signal == want {
			t.correct++
		}
		t.sumConfidence += res.Confidence
		t.weight = res.Weight
	}
}

func (r *Runner) flushAgentStats(ctx context.Context, stats *agentStats) error {
	if len(stats.order) == 0 {
		return nil
	}
	existing, err := r.store.ModelEvals(ctx, r.opts.EvalPeriod)
	if err != nil {
		return fmt.Errorf("load model evals: %w", err)
	}
	prev := make(map[agentKey]store.ModelEvalRecord, len(existing))
	for _, e := range existing {
		prev[agentKey{agent: e.Agent, model: e.Model}] = e
	}
	now := r.now()
	recs := make([]store.ModelEvalRecord, 0, len(stats.order))
	for _, k := range stats.order {
		t := stats.byKey[k]
		p := prev[k]
		total := p.TotalPredictions + t.total
		correct := p.CorrectPredictions + t.correct
		sumConf := p.AvgConfidence*float64(p.TotalPredictions) + t.sumConfidence
		recs = append(recs, store.ModelEvalRecord{
			Agent:              k.agent,
			Model:              k.model,
			Period:             r.opts.EvalPeriod,
			TotalPredictions:   total,
			CorrectPredictions: correct,
			Accuracy:           float64(correct) / float64(total),
			AvgConfidence:      sumConf / float64(total),
			Weight:             t.weight,
			LastUpdated:        now,
		})
	}
	if err := r.store.UpsertModelEvals(ctx, recs); err != nil {
		return fmt.Errorf("save model evals: %w", err)
	}
	return nil
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

func decimalFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
