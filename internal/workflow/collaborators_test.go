package workflow

import (
	"context"
	"testing"

	"btcagent/internal/decision"
	"btcagent/internal/gateway/provider"
	"btcagent/internal/prompt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProvider struct{ mock.Mock }

func (m *MockProvider) ID() string { return "openai:gpt-4o" }

func (m *MockProvider) Call(ctx context.Context, p provider.ChatPayload) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func captureCall(m *MockProvider, reply string) *provider.ChatPayload {
	var got provider.ChatPayload
	m.On("Call", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(1).(provider.ChatPayload)
	}).Return(reply, nil)
	return &got
}

func defaultPrompts(t *testing.T) *prompt.Registry {
	r, err := prompt.NewRegistry("")
	require.NoError(t, err)
	return r
}

func TestLLMModeratorRendersRoundAndHistory(t *testing.T) {
	m := new(MockProvider)
	got := captureCall(m, "{}")
	mod := NewLLMModerator(m, defaultPrompts(t))
	res := decision.Producer{Name: "TechAgent-OpenAI", Weight: 0.5}.NewResult(decision.SignalBuy, 0.8, "up", fixedNow)

	_, err := mod.Discuss(context.Background(), DiscussionInput{
		RunID:   "r1",
		Round:   2,
		Rounds:  3,
		Results: []decision.AgentResult{res},
		History: []DiscussionRound{{Round: 1, Summary: "first round text"}},
	})
	require.NoError(t, err)
	assert.Contains(t, got.System, "第2轮讨论（共3轮）")
	assert.Contains(t, got.User, "TechAgent-OpenAI")
	assert.Contains(t, got.User, "first round text")
	assert.True(t, got.ExpectJSON)
	assert.Equal(t, "openai:gpt-4o", modelLabel(mod, "discussion"))
}

func TestLLMJudgeAndReflectorPrompts(t *testing.T) {
	m := new(MockProvider)
	got := captureCall(m, `{"signal":"BUY","confidence":0.8}`)
	tc := decision.NewConsensusAggregator("technical", TechnicalConsensusAgentName).Aggregate(nil, fixedNow)

	raw, err := NewLLMJudge(m, defaultPrompts(t)).Judge(context.Background(), DecisionInput{RunID: "r", Technical: tc, News: tc})
	require.NoError(t, err)
	assert.Contains(t, raw, "BUY")
	assert.Contains(t, got.User, "技术分析结果")
	assert.Contains(t, got.User, "no analysis available")

	_, err = NewLLMReflector(m, defaultPrompts(t)).Reflect(context.Background(), ReflectionInput{RunID: "r", Outcome: tc})
	require.NoError(t, err)
	assert.Contains(t, got.User, "历史表现：\n[]")
}

func TestLLMCollaboratorWithoutModel(t *testing.T) {
	_, err := NewLLMJudge(nil, defaultPrompts(t)).Judge(context.Background(), DecisionInput{})
	assert.Error(t, err)
	assert.Equal(t, "decision", modelLabel(NewLLMJudge(nil, defaultPrompts(t)), "decision"))
}
