package agent

import (
	"context"
	"time"

	"btcagent/internal/analysis/indicator"
	"btcagent/internal/decision"
	"btcagent/internal/gateway/provider"
	"btcagent/internal/logger"
	"btcagent/internal/market"
	"btcagent/internal/pkg/jsonutil"
	"btcagent/internal/prompt"
)

// Renderer renders system/user prompts by key.
type Renderer interface {
	Render(key string, data any) (system, user string, err error)
}

type technicalPromptData struct {
	Symbol     string
	Interval   string
	PriceTable string
	Snapshot   string
	Indicators string
}

type newsPromptData struct {
	Symbol   string
	NewsList string
}

// LLMAnalyzer 把一个轨道的输入渲染成提示词，交给文本生成服务，再按降级策略解析。
type LLMAnalyzer struct {
	producer   decision.Producer
	track      Track
	promptKey  string
	model      provider.ModelProvider
	prompts    Renderer
	indicators indicator.Settings
	now        clock
}

type LLMOption func(*LLMAnalyzer)

func WithClock(now func() time.Time) LLMOption {
	return func(a *LLMAnalyzer) { a.now = now }
}

func WithIndicatorSettings(s indicator.Settings) LLMOption {
	return func(a *LLMAnalyzer) { a.indicators = s }
}

func NewLLMAnalyzer(p decision.Producer, track Track, promptKey string, model provider.ModelProvider, prompts Renderer, opts ...LLMOption) *LLMAnalyzer {
	if promptKey == "" {
		promptKey = string(track)
	}
	if p.Model == "" && model != nil {
		p.Model = model.ID()
	}
	a := &LLMAnalyzer{
		producer:  p,
		track:     track,
		promptKey: promptKey,
		model:     model,
		prompts:   prompts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *LLMAnalyzer) Producer() decision.Producer { return a.producer }

func (a *LLMAnalyzer) Analyze(ctx context.Context, in Input) decision.AgentResult {
	system, user, err := a.prompts.Render(a.promptKey, a.promptData(in))
	if err != nil {
		logger.Warnf("[%s] 提示词渲染失败: %v", a.producer.Name, err)
		return a.producer.Degraded(failureText("prompt", err), a.now.now())
	}
	ex := logger.Exchange{Kind: "analyzer", Provider: a.model.ID(), Purpose: a.producer.Name, RunID: in.RunID}
	logger.LogLLMRequest(ex, system, user, "")
	raw, err := a.model.Call(ctx, provider.ChatPayload{System: system, User: user, ExpectJSON: true})
	logger.LogLLMResponse(ex, raw, err)
	if err != nil {
		logger.Warnf("[%s] 模型调用失败，降级为 HOLD: %v", a.producer.Name, err)
		return a.producer.Degraded(failureText("model call", err), a.now.now())
	}
	res, ok := decision.ParseAgentReply(a.producer, raw, a.now.now())
	if !ok {
		logger.Warnf("[%s] 输出无法解析，降级为 HOLD", a.producer.Name)
	}
	return res
}

func (a *LLMAnalyzer) promptData(in Input) any {
	if a.track == TrackNews {
		return newsPromptData{Symbol: in.Symbol, NewsList: newsTitles(in.News, maxPromptNews)}
	}
	candles := market.Candles(in.Prices)
	data := technicalPromptData{
		Symbol:     in.Symbol,
		Interval:   in.Interval,
		PriceTable: candles.Tail(maxPromptCandles).Table(),
		Snapshot:   candles.Snapshot(in.Interval),
		Indicators: "{}",
	}
	if snap, err := indicator.Compute(in.Prices, a.indicators); err == nil {
		data.Indicators = jsonutil.Compact(snap)
	}
	return data
}

var _ Renderer = (*prompt.Registry)(nil)
