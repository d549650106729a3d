package workflow

import (
	"context"
	"fmt"

	"btcagent/internal/decision"
	"btcagent/internal/gateway/provider"
	"btcagent/internal/logger"
	"btcagent/internal/pkg/jsonutil"
	"btcagent/internal/prompt"
)

// DecisionInput 决策阶段输入：两条轨道各自的共识。
type DecisionInput struct {
	RunID     string
	Technical decision.AgentResult
	News      decision.AgentResult
}

// DiscussionInput 一轮讨论的输入。Round 从 1 开始。
type DiscussionInput struct {
	RunID   string
	Round   int
	Rounds  int
	Results []decision.AgentResult
	History []DiscussionRound
}

// ReflectionInput 反思阶段输入。
type ReflectionInput struct {
	RunID       string
	Outcome     decision.AgentResult
	Performance []PerformanceRecord
}

// 以下协作方只负责返回原始文本，解析与降级统一在阶段内完成。

type Judge interface {
	Judge(ctx context.Context, in DecisionInput) (string, error)
}

type Moderator interface {
	Discuss(ctx context.Context, in DiscussionInput) (string, error)
}

type Reflector interface {
	Reflect(ctx context.Context, in ReflectionInput) (string, error)
}

// Renderer renders prompts by key; satisfied by *prompt.Registry.
type Renderer interface {
	Render(key string, data any) (system, user string, err error)
}

// modelLabeler is implemented by collaborators that can name the model behind them.
type modelLabeler interface {
	ModelID() string
}

func modelLabel(v any, fallback string) string {
	if l, ok := v.(modelLabeler); ok && l.ModelID() != "" {
		return l.ModelID()
	}
	return fallback
}

// llmCollaborator 渲染提示词后调用文本生成服务，返回原始回复。
type llmCollaborator struct {
	kind      string
	promptKey string
	model     provider.ModelProvider
	prompts   Renderer
}

func (c llmCollaborator) ModelID() string {
	if c.model == nil {
		return ""
	}
	return c.model.ID()
}

func (c llmCollaborator) ask(ctx context.Context, runID, purpose string, data any) (string, error) {
	if c.model == nil {
		return "", fmt.Errorf("%s: 未配置模型", c.kind)
	}
	system, user, err := c.prompts.Render(c.promptKey, data)
	if err != nil {
		return "", fmt.Errorf("%s prompt: %w", c.kind, err)
	}
	ex := logger.Exchange{Kind: c.kind, Provider: c.model.ID(), Purpose: purpose, RunID: runID}
	logger.LogLLMRequest(ex, system, user, jsonutil.Compact(data))
	raw, err := c.model.Call(ctx, provider.ChatPayload{System: system, User: user, ExpectJSON: true})
	logger.LogLLMResponse(ex, raw, err)
	return raw, err
}

// LLMJudge 决策阶段协作方。
type LLMJudge struct{ llmCollaborator }

func NewLLMJudge(model provider.ModelProvider, prompts Renderer) *LLMJudge {
	return &LLMJudge{llmCollaborator{kind: "decision", promptKey: prompt.KeyDecision, model: model, prompts: prompts}}
}

func (j *LLMJudge) Judge(ctx context.Context, in DecisionInput) (string, error) {
	return j.ask(ctx, in.RunID, DecisionAgentName, struct {
		Technical string
		News      string
	}{
		Technical: indent(in.Technical),
		News:      indent(in.News),
	})
}

// LLMModerator 讨论主持人。
type LLMModerator struct{ llmCollaborator }

func NewLLMModerator(model provider.ModelProvider, prompts Renderer) *LLMModerator {
	return &LLMModerator{llmCollaborator{kind: "discussion", promptKey: prompt.KeyDiscussion, model: model, prompts: prompts}}
}

func (m *LLMModerator) Discuss(ctx context.Context, in DiscussionInput) (string, error) {
	history := "（无）"
	if len(in.History) > 0 {
		history = indent(in.History)
	}
	return m.ask(ctx, in.RunID, fmt.Sprintf("round-%d/%d", in.Round, in.Rounds), struct {
		Round    int
		Rounds   int
		Opinions string
		History  string
	}{
		Round:    in.Round,
		Rounds:   in.Rounds,
		Opinions: indent(in.Results),
		History:  history,
	})
}

// LLMReflector 反思专家。
type LLMReflector struct{ llmCollaborator }

func NewLLMReflector(model provider.ModelProvider, prompts Renderer) *LLMReflector {
	return &LLMReflector{llmCollaborator{kind: "reflection", promptKey: prompt.KeyReflection, model: model, prompts: prompts}}
}

func (r *LLMReflector) Reflect(ctx context.Context, in ReflectionInput) (string, error) {
	perf := in.Performance
	if perf == nil {
		perf = []PerformanceRecord{}
	}
	return r.ask(ctx, in.RunID, "reflection", struct {
		Signal      string
		Performance string
	}{
		Signal:      indent(in.Outcome),
		Performance: indent(perf),
	})
}

func indent(v any) string {
	return jsonutil.Pretty(jsonutil.Compact(v))
}

var (
	_ Judge     = (*LLMJudge)(nil)
	_ Moderator = (*LLMModerator)(nil)
	_ Reflector = (*LLMReflector)(nil)
	_ Renderer  = (*prompt.Registry)(nil)
)
