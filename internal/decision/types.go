package decision

import (
	"strings"
	"time"
)

// 中文说明：
// 本文件定义分析结果的通用数据结构，供 Analyzer、共识聚合与工作流使用。

// Signal 交易信号类别。
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Valid reports whether s is one of BUY/SELL/HOLD.
func (s Signal) Valid() bool {
	switch s {
	case SignalBuy, SignalSell, SignalHold:
		return true
	}
	return false
}

// NormalizeSignal 把模型返回的各种写法归一到 BUY/SELL/HOLD，无法识别时返回 false。
func NormalizeSignal(raw string) (Signal, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG", "OPEN_LONG":
		return SignalBuy, true
	case "SELL", "SHORT", "OPEN_SHORT":
		return SignalSell, true
	case "HOLD", "WAIT", "NEUTRAL":
		return SignalHold, true
	}
	return "", false
}

const (
	// DefaultConfidence 降级结果使用的置信度。
	DefaultConfidence = 0.5
	// DefaultWeight 未配置权重的 producer 使用的投票权重。
	DefaultWeight = 0.5
)

// AgentResult 是所有 Analyzer 与聚合阶段的统一输出，创建后不再修改。
type AgentResult struct {
	Agent      string    `json:"agent"`
	Model      string    `json:"model"`
	Signal     Signal    `json:"signal"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	Weight     float64   `json:"weight"`
	Timestamp  time.Time `json:"timestamp"`
}

// Producer identifies the component that emits an AgentResult.
type Producer struct {
	Name   string
	Model  string
	Weight float64
}

// NewResult builds an AgentResult with clamped confidence/weight and a
// non-empty reasoning.
func (p Producer) NewResult(sig Signal, confidence float64, reasoning string, now time.Time) AgentResult {
	if !sig.Valid() {
		sig = SignalHold
	}
	reasoning = strings.TrimSpace(reasoning)
	if reasoning == "" {
		reasoning = "no reasoning provided"
	}
	return AgentResult{
		Agent:      p.Name,
		Model:      p.Model,
		Signal:     sig,
		Confidence: Clamp01(confidence),
		Reasoning:  reasoning,
		Weight:     Clamp01(p.Weight),
		Timestamp:  now,
	}
}

// Degraded 返回降级默认值：HOLD / 0.5 / 原始文本。
func (p Producer) Degraded(raw string, now time.Time) AgentResult {
	return p.NewResult(SignalHold, DefaultConfidence, raw, now)
}

// Clamp01 clamps v into [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Verdict 是 judge/discussion 模型返回的结构化结论。
type Verdict struct {
	Signal        Signal   `json:"signal"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	KeyPoints     []string `json:"key_points,omitempty"`
	Disagreements []string `json:"disagreements,omitempty"`
}

// Reflection 是反思阶段的建议记录，仅作旁路产物，不参与最终信号。
type Reflection struct {
	AdjustedConfidence float64            `json:"adjusted_confidence"`
	WeightAdjustments  map[string]float64 `json:"weight_adjustments"`
	Insights           string             `json:"insights"`
}
