package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"btcagent/internal/agent"
	"btcagent/internal/decision"
	"btcagent/internal/market"
	"btcagent/internal/news"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type MockModerator struct{ mock.Mock }

func (m *MockModerator) Discuss(ctx context.Context, in DiscussionInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

type judgeFunc func(ctx context.Context, in DecisionInput) (string, error)

func (f judgeFunc) Judge(ctx context.Context, in DecisionInput) (string, error) { return f(ctx, in) }

type reflectorFunc func(ctx context.Context, in ReflectionInput) (string, error)

func (f reflectorFunc) Reflect(ctx context.Context, in ReflectionInput) (string, error) {
	return f(ctx, in)
}

type stubHistory struct {
	records []PerformanceRecord
	err     error
}

func (s stubHistory) Performance(context.Context) ([]PerformanceRecord, error) {
	return s.records, s.err
}

func fixed(name string, weight float64, sig decision.Signal, conf float64) agent.Analyzer {
	p := decision.Producer{Name: name, Model: "stub", Weight: weight}
	return agent.Func{P: p, Fn: func(context.Context, agent.Input) decision.AgentResult {
		return p.NewResult(sig, conf, name+" says "+string(sig), fixedNow)
	}}
}

func okJudge() Judge {
	return judgeFunc(func(context.Context, DecisionInput) (string, error) {
		return `{"signal":"BUY","confidence":0.75,"reasoning":"both tracks lean bullish"}`, nil
	})
}

func okReflector() Reflector {
	return reflectorFunc(func(context.Context, ReflectionInput) (string, error) {
		return `{"adjusted_confidence":0.2,"weight_adjustments":{"TechAgent-A":0.7},"insights":"be careful"}`, nil
	})
}

func agreeingModerator(rounds int) *MockModerator {
	m := new(MockModerator)
	m.On("Discuss", mock.Anything, mock.Anything).
		Return(`{"consensus":"BUY","confidence":0.7,"key_points":["trend up"],"disagreements":[]}`, nil).
		Times(rounds)
	return m
}

func samplePrices() []market.Candle {
	return []market.Candle{
		{Symbol: "BTC/USDT", Interval: "1h", OpenTime: fixedNow.Add(-2 * time.Hour).UnixMilli(), Close: 100},
		{Symbol: "BTC/USDT", Interval: "1h", OpenTime: fixedNow.Add(-time.Hour).UnixMilli(), Close: 101},
	}
}

func sampleNews() []news.Item {
	return []news.Item{{Source: "rss", Title: "ETF approved", PublishedAt: fixedNow}}
}

func newOrchestrator(t *testing.T, technical, newsAgents []agent.Analyzer, j Judge, m Moderator, r Reflector, opts Options) *Orchestrator {
	t.Helper()
	if opts.Now == nil {
		opts.Now = clock
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return "run-test" }
	}
	o, err := New(technical, newsAgents, j, m, r, opts)
	require.NoError(t, err)
	return o
}

func TestExecuteFullPipeline(t *testing.T) {
	mod := agreeingModerator(3)
	o := newOrchestrator(t,
		[]agent.Analyzer{fixed("TechAgent-A", 0.6, decision.SignalBuy, 0.8), fixed("TechAgent-B", 0.4, decision.SignalSell, 0.5)},
		[]agent.Analyzer{fixed("NewsAgent-A", 0.4, decision.SignalHold, 0.6)},
		okJudge(), mod, okReflector(), Options{})

	rep, err := o.Execute(context.Background(), samplePrices(), sampleNews())
	require.NoError(t, err)

	assert.Equal(t, "run-test", rep.RunID)
	require.Len(t, rep.Technical, 2)
	require.Len(t, rep.News, 1)
	assert.Equal(t, decision.SignalBuy, rep.TechnicalConsensus.Signal)
	assert.InDelta(t, 0.48, rep.TechnicalConsensus.Confidence, 1e-9)
	assert.Equal(t, TechnicalConsensusAgentName, rep.TechnicalConsensus.Agent)
	assert.Equal(t, decision.SignalHold, rep.NewsConsensus.Signal)

	assert.Equal(t, DecisionAgentName, rep.InitialDecision.Agent)
	assert.Equal(t, 0.75, rep.InitialDecision.Confidence)

	assert.Equal(t, DiscussionAgentName, rep.Final.Agent)
	assert.Equal(t, decision.SignalBuy, rep.Final.Signal)
	assert.Equal(t, 0.7, rep.Final.Confidence)
	assert.Equal(t, 1.0, rep.Final.Weight)
	assert.Equal(t, "Key points: trend up", rep.Final.Reasoning)

	// 反思仅作建议，不改变最终置信度。
	assert.Equal(t, 0.2, rep.Reflection.AdjustedConfidence)
	assert.Equal(t, map[string]float64{"TechAgent-A": 0.7}, rep.Reflection.WeightAdjustments)

	require.Len(t, rep.Discussion, 3)
	for i, round := range rep.Discussion {
		assert.Equal(t, i+1, round.Round)
		assert.Len(t, round.Results, 3)
	}
	mod.AssertExpectations(t)
}

func TestDiscussionRunsExactlyRRounds(t *testing.T) {
	const rounds = 5
	var seen []DiscussionInput
	mod := new(MockModerator)
	mod.On("Discuss", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		seen = append(seen, args.Get(1).(DiscussionInput))
	}).Return(`{"consensus":"SELL","confidence":0.9}`, nil)

	o := newOrchestrator(t, []agent.Analyzer{fixed("T", 0.5, decision.SignalSell, 0.9)}, nil, okJudge(), mod, okReflector(), Options{Rounds: rounds})
	final, err := o.Run(context.Background(), samplePrices(), nil)
	require.NoError(t, err)
	assert.Equal(t, decision.SignalSell, final.Signal)

	mod.AssertNumberOfCalls(t, "Discuss", rounds)
	require.Len(t, seen, rounds)
	for i, in := range seen {
		assert.Equal(t, i+1, in.Round)
		assert.Equal(t, rounds, in.Rounds)
		assert.Len(t, in.History, i)
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	slow := agent.Func{P: decision.Producer{Name: "Slow", Weight: 0.3}, Fn: func(ctx context.Context, _ agent.Input) decision.AgentResult {
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
		return decision.Producer{Name: "Slow"}.NewResult(decision.SignalBuy, 1, "too late", fixedNow)
	}}
	panicky := agent.Func{P: decision.Producer{Name: "Panicky", Weight: 0.3}, Fn: func(context.Context, agent.Input) decision.AgentResult {
		panic("boom")
	}}
	o := newOrchestrator(t,
		[]agent.Analyzer{slow, fixed("Good", 0.4, decision.SignalBuy, 0.9), panicky},
		nil, okJudge(), agreeingModerator(3), okReflector(),
		Options{ProducerTimeout: 30 * time.Millisecond})

	rep, err := o.Execute(context.Background(), samplePrices(), nil)
	require.NoError(t, err)
	require.Len(t, rep.Technical, 3)

	assert.Equal(t, "Slow", rep.Technical[0].Agent)
	assert.Equal(t, decision.SignalHold, rep.Technical[0].Signal)
	assert.Equal(t, decision.DefaultConfidence, rep.Technical[0].Confidence)
	assert.Contains(t, rep.Technical[0].Reasoning, "deadline exceeded")

	assert.Equal(t, "Good", rep.Technical[1].Agent)
	assert.Equal(t, decision.SignalBuy, rep.Technical[1].Signal)

	assert.Equal(t, "Panicky", rep.Technical[2].Agent)
	assert.Equal(t, decision.SignalHold, rep.Technical[2].Signal)
	assert.Contains(t, rep.Technical[2].Reasoning, "boom")
}

func TestAnalyzersRunConcurrently(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	barrier := func(name string) agent.Analyzer {
		p := decision.Producer{Name: name, Weight: 0.5}
		return agent.Func{P: p, Fn: func(ctx context.Context, _ agent.Input) decision.AgentResult {
			arrived.Done()
			done := make(chan struct{})
			go func() { arrived.Wait(); close(done) }()
			select {
			case <-done:
				return p.NewResult(decision.SignalBuy, 0.8, "met", fixedNow)
			case <-ctx.Done():
				return p.Degraded("alone", fixedNow)
			}
		}}
	}
	o := newOrchestrator(t, []agent.Analyzer{barrier("T1")}, []agent.Analyzer{barrier("N1")},
		okJudge(), agreeingModerator(3), okReflector(), Options{ProducerTimeout: time.Second})
	rep, err := o.Execute(context.Background(), samplePrices(), sampleNews())
	require.NoError(t, err)
	assert.Equal(t, "met", rep.Technical[0].Reasoning)
	assert.Equal(t, "met", rep.News[0].Reasoning)
}

func TestDegradePolicyAcrossStages(t *testing.T) {
	judge := judgeFunc(func(context.Context, DecisionInput) (string, error) { return "I think it goes up", nil })
	mod := new(MockModerator)
	mod.On("Discuss", mock.Anything, mock.MatchedBy(func(in DiscussionInput) bool { return in.Round < 3 })).
		Return(`{"consensus":"BUY","confidence":0.9}`, nil)
	mod.On("Discuss", mock.Anything, mock.MatchedBy(func(in DiscussionInput) bool { return in.Round == 3 })).
		Return("no consensus reached", nil)
	reflector := reflectorFunc(func(context.Context, ReflectionInput) (string, error) {
		return "", errors.New("quota exceeded")
	})

	o := newOrchestrator(t, nil, nil, judge, mod, reflector, Options{})
	rep, err := o.Execute(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "no analysis available", rep.TechnicalConsensus.Reasoning)
	assert.Equal(t, decision.DefaultConfidence, rep.NewsConsensus.Confidence)

	assert.Equal(t, decision.SignalHold, rep.InitialDecision.Signal)
	assert.Equal(t, "I think it goes up", rep.InitialDecision.Reasoning)

	assert.Equal(t, decision.SignalHold, rep.Final.Signal)
	assert.Equal(t, decision.DefaultConfidence, rep.Final.Confidence)
	assert.Equal(t, "no consensus reached", rep.Final.Reasoning)

	assert.Equal(t, decision.DefaultConfidence, rep.Reflection.AdjustedConfidence)
	assert.Contains(t, rep.Reflection.Insights, "quota exceeded")
}

func TestModeratorErrorStillCountsAsRound(t *testing.T) {
	mod := new(MockModerator)
	mod.On("Discuss", mock.Anything, mock.Anything).Return("", errors.New("503")).Times(3)
	o := newOrchestrator(t, nil, nil, okJudge(), mod, okReflector(), Options{})
	rep, err := o.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, rep.Discussion, 3)
	assert.Contains(t, rep.Discussion[2].Summary, "503")
	assert.Equal(t, decision.SignalHold, rep.Final.Signal)
	mod.AssertExpectations(t)
}

func TestRunIsIdempotent(t *testing.T) {
	build := func() *Orchestrator {
		return newOrchestrator(t,
			[]agent.Analyzer{fixed("TechAgent-A", 0.5, decision.SignalBuy, 0.8), fixed("TechAgent-B", 0.5, decision.SignalSell, 0.8)},
			[]agent.Analyzer{fixed("NewsAgent-A", 0.4, decision.SignalSell, 0.6)},
			okJudge(), agreeingModerator(3), okReflector(), Options{})
	}
	first, err := build().Run(context.Background(), samplePrices(), sampleNews())
	require.NoError(t, err)
	second, err := build().Run(context.Background(), samplePrices(), sampleNews())
	require.NoError(t, err)
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))
}

func TestTieBreakIsStableAcrossRuns(t *testing.T) {
	for i := 0; i < 20; i++ {
		o := newOrchestrator(t,
			[]agent.Analyzer{fixed("A", 0.5, decision.SignalSell, 0.6), fixed("B", 0.5, decision.SignalBuy, 0.6)},
			nil, okJudge(), agreeingModerator(3), okReflector(), Options{})
		rep, err := o.Execute(context.Background(), samplePrices(), nil)
		require.NoError(t, err)
		assert.Equal(t, decision.SignalSell, rep.TechnicalConsensus.Signal)
	}
}

func TestReflectionReceivesPerformanceHistory(t *testing.T) {
	var got ReflectionInput
	reflector := reflectorFunc(func(_ context.Context, in ReflectionInput) (string, error) {
		got = in
		return `{"adjusted_confidence":0.4}`, nil
	})
	history := stubHistory{records: []PerformanceRecord{{SignalID: 7, Signal: "BUY", Accuracy: 1}}}
	o := newOrchestrator(t, nil, nil, okJudge(), agreeingModerator(3), reflector, Options{Performance: history})
	rep, err := o.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, got.Performance, 1)
	assert.Equal(t, int64(7), got.Performance[0].SignalID)
	assert.Equal(t, rep.Final, got.Outcome)

	failing := newOrchestrator(t, nil, nil, okJudge(), agreeingModerator(3), reflector, Options{Performance: stubHistory{err: errors.New("db locked")}})
	_, err = failing.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got.Performance)
}

func TestCanceledContextIsRunFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newOrchestrator(t, nil, nil, okJudge(), new(MockModerator), okReflector(), Options{})
	_, err := o.Run(ctx, nil, nil)
	require.Error(t, err)
	var re *RunError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, StageAnalysis, re.Stage)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, nil, new(MockModerator), okReflector(), Options{})
	assert.Error(t, err)
}

func TestSlotsAreWriteOnce(t *testing.T) {
	st := newRunState("r", nil, nil)
	_, err := st.initialDecision.get()
	assert.ErrorIs(t, err, ErrSlotEmpty)
	require.NoError(t, st.initialDecision.put(decision.AgentResult{Agent: "x"}))
	assert.ErrorIs(t, st.initialDecision.put(decision.AgentResult{Agent: "y"}), ErrSlotWritten)
	v, err := st.initialDecision.get()
	require.NoError(t, err)
	assert.Equal(t, "x", v.Agent)

	_, err = st.report()
	assert.ErrorIs(t, err, ErrSlotEmpty)
}
