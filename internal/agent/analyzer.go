package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"btcagent/internal/decision"
	"btcagent/internal/market"
	"btcagent/internal/news"
)

// Track 分析轨道。
type Track string

const (
	TrackTechnical Track = "technical"
	TrackNews      Track = "news"
)

// Input 一次运行中所有 Analyzer 共享的只读输入快照。
type Input struct {
	RunID    string
	Symbol   string
	Interval string
	Prices   []market.Candle
	News     []news.Item
}

// Analyzer 分析能力。Analyze 不返回错误：任何无法解析、调用失败的情况
// 都必须降级为 HOLD / 0.5 / 原始文本。
type Analyzer interface {
	Producer() decision.Producer
	Analyze(ctx context.Context, in Input) decision.AgentResult
}

// Func adapts a plain function to Analyzer.
type Func struct {
	P  decision.Producer
	Fn func(ctx context.Context, in Input) decision.AgentResult
}

func (f Func) Producer() decision.Producer { return f.P }

func (f Func) Analyze(ctx context.Context, in Input) decision.AgentResult {
	return f.Fn(ctx, in)
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

func failureText(stage string, err error) string {
	return fmt.Sprintf("%s failed: %v", stage, err)
}

const maxPromptNews = 10
const maxPromptCandles = 10

func newsTitles(items []news.Item, limit int) string {
	if len(items) == 0 {
		return "(no news)"
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, "- "+strings.TrimSpace(it.Title))
	}
	return strings.Join(lines, "\n")
}
