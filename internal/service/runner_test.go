package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"btcagent/internal/decision"
	"btcagent/internal/market"
	"btcagent/internal/news"
	"btcagent/internal/notify"
	"btcagent/internal/store"
	"btcagent/internal/workflow"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "btc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func candle(at time.Time, closePrice float64) market.Candle {
	return market.Candle{
		Source:    "binance",
		Symbol:    "BTC/USDT",
		Interval:  "1h",
		OpenTime:  at.UnixMilli(),
		CloseTime: at.Add(time.Hour).UnixMilli() - 1,
		Open:      closePrice,
		High:      closePrice,
		Low:       closePrice,
		Close:     closePrice,
		Volume:    1,
	}
}

type pipelineFunc func(ctx context.Context, prices []market.Candle, items []news.Item) (workflow.Report, error)

func (f pipelineFunc) Execute(ctx context.Context, prices []market.Candle, items []news.Item) (workflow.Report, error) {
	return f(ctx, prices, items)
}

type recordingSender struct {
	mu  sync.Mutex
	got []notify.StructuredMessage
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Send(_ context.Context, msg notify.StructuredMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, msg)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func sampleReport(runID string, sig decision.Signal, conf float64) workflow.Report {
	tech := decision.AgentResult{Agent: "TechAgent-OpenAI", Model: "openai", Signal: decision.SignalBuy, Confidence: 0.8, Weight: 0.5, Reasoning: "trend"}
	rag := decision.AgentResult{Agent: "RAGAgent", Model: "retrieval", Signal: decision.SignalHold, Confidence: 0.6, Weight: 0.2, Reasoning: "history"}
	final := decision.AgentResult{Agent: workflow.DiscussionAgentName, Signal: sig, Confidence: conf, Weight: 1, Reasoning: "agreed"}
	return workflow.Report{
		RunID:              runID,
		Technical:          []decision.AgentResult{tech},
		News:               []decision.AgentResult{rag},
		TechnicalConsensus: decision.AgentResult{Agent: workflow.TechnicalConsensusAgentName, Signal: decision.SignalBuy, Confidence: 0.4},
		NewsConsensus:      decision.AgentResult{Agent: workflow.NewsConsensusAgentName, Signal: decision.SignalHold, Confidence: 0.12},
		InitialDecision:    decision.AgentResult{Agent: workflow.DecisionAgentName, Signal: sig, Confidence: conf},
		Discussion: []workflow.DiscussionRound{
			{Round: 1, Summary: "round one"},
			{Round: 2, Summary: "round two"},
			{Round: 3, Summary: `{"consensus":"BUY","confidence":0.85}`},
		},
		Final: final,
	}
}

func newRunner(t *testing.T, st *store.Store, p Pipeline) (*Runner, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	d, err := notify.NewDispatcher(notify.DefaultThresholds(), nil, sender)
	require.NoError(t, err)
	r, err := NewRunner(Options{
		Symbol:      "BTC/USDT",
		Interval:    "1h",
		PriceWindow: 100,
		NewsWindow:  50,
		Horizon:     4 * time.Hour,
		HoldBandPct: 0.5,
		EvalPeriod:  "all",
	}, nil, nil, st, p, d)
	require.NoError(t, err)
	return r, sender
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		sig     decision.Signal
		exit    string
		actual  string
		correct bool
		pnl     float64
	}{
		{"buy up", decision.SignalBuy, "102", OutcomeUp, true, 2},
		{"buy down", decision.SignalBuy, "97", OutcomeDown, false, -3},
		{"sell down", decision.SignalSell, "98", OutcomeDown, true, 2},
		{"sell flat", decision.SignalSell, "100.4", OutcomeFlat, false, -0.4},
		{"hold flat", decision.SignalHold, "99.6", OutcomeFlat, true, 0},
		{"hold up", decision.SignalHold, "101", OutcomeUp, false, 0},
		{"band edge", decision.SignalHold, "100.5", OutcomeFlat, true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Evaluate(tc.sig, decimal.NewFromInt(100), decimal.RequireFromString(tc.exit), 0.5)
			require.NoError(t, err)
			assert.Equal(t, tc.actual, out.Actual)
			assert.Equal(t, tc.correct, out.Correct)
			assert.InDelta(t, tc.pnl, out.ProfitLoss, 1e-9)
		})
	}
	_, err := Evaluate(decision.SignalBuy, decimal.Zero, decimal.NewFromInt(1), 0.5)
	assert.Error(t, err)
}

func TestRunAnalysisPersistsAndNotifies(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.SavePrices(ctx, []market.Candle{candle(t0, 100), candle(t0.Add(time.Hour), 101), candle(t0.Add(2*time.Hour), 102.5)})
	require.NoError(t, err)
	_, err = st.SaveNews(ctx, []news.Item{{Source: "rss", Title: "Bitcoin ETF inflows", URL: "https://x/1", PublishedAt: t0}})
	require.NoError(t, err)

	var gotPrices []market.Candle
	var gotNews []news.Item
	r, sender := newRunner(t, st, pipelineFunc(func(_ context.Context, prices []market.Candle, items []news.Item) (workflow.Report, error) {
		gotPrices, gotNews = prices, items
		return sampleReport("run-1", decision.SignalBuy, 0.85), nil
	}))
	r.SetClock(func() time.Time { return t0.Add(3 * time.Hour) })

	res, err := r.RunAnalysis(ctx)
	require.NoError(t, err)
	require.Len(t, gotPrices, 3)
	assert.Equal(t, 100.0, gotPrices[0].Close)
	require.Len(t, gotNews, 1)

	assert.Equal(t, notify.TierAuto, res.Tier)
	assert.Positive(t, res.Signal.ID)
	assert.Equal(t, "102.5", res.Signal.Price.String())
	assert.Empty(t, res.NotifyError)
	assert.Equal(t, 1, sender.count())

	latest, err := st.LatestSignals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "BUY", latest[0].Signal)
	assert.Equal(t, string(notify.TierAuto), latest[0].Tier)
	assert.Equal(t, store.StatusPending, latest[0].Status)
	assert.InDelta(t, 0.4, latest[0].TechnicalScore, 1e-9)

	var bundle workflow.Report
	require.NoError(t, json.Unmarshal(latest[0].Bundle, &bundle))
	assert.Equal(t, "run-1", bundle.RunID)
	assert.Len(t, bundle.Discussion, 3)

	rounds, err := st.DiscussionRounds(ctx, res.Signal.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	assert.Empty(t, rounds[0].Position)
	assert.Equal(t, "BUY", rounds[2].Position)
	assert.Equal(t, workflow.DiscussionAgentName, rounds[2].Agent)
}

func TestRunAnalysisSuppressedStillPersists(t *testing.T) {
	st := newTestStore(t)
	r, sender := newRunner(t, st, pipelineFunc(func(context.Context, []market.Candle, []news.Item) (workflow.Report, error) {
		return sampleReport("run-low", decision.SignalHold, 0.4), nil
	}))
	res, err := r.RunAnalysis(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notify.TierSuppress, res.Tier)
	assert.True(t, res.Signal.Price.IsZero())
	assert.Equal(t, 0, sender.count())

	latest, err := st.LatestSignals(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}

func TestRunAnalysisFailurePersistsNothing(t *testing.T) {
	st := newTestStore(t)
	runErr := &workflow.RunError{RunID: "run-x", Stage: workflow.StageDecision, Err: errors.New("boom")}
	r, sender := newRunner(t, st, pipelineFunc(func(context.Context, []market.Candle, []news.Item) (workflow.Report, error) {
		return workflow.Report{}, runErr
	}))
	_, err := r.RunAnalysis(context.Background())
	var re *workflow.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, workflow.StageDecision, re.Stage)

	latest, err := st.LatestSignals(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, latest)
	assert.Equal(t, 0, sender.count())
}

func TestRunAnalysisRejectsConcurrentRun(t *testing.T) {
	st := newTestStore(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	r, _ := newRunner(t, st, pipelineFunc(func(context.Context, []market.Candle, []news.Item) (workflow.Report, error) {
		close(entered)
		<-release
		return sampleReport("run-slow", decision.SignalHold, 0.5), nil
	}))
	done := make(chan error, 1)
	go func() {
		_, err := r.RunAnalysis(context.Background())
		done <- err
	}()
	<-entered
	_, err := r.RunAnalysis(context.Background())
	assert.ErrorIs(t, err, ErrAnalysisBusy)
	close(release)
	assert.NoError(t, <-done)
}

type priceCollectorFunc func(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)

func (f priceCollectorFunc) Collect(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	return f(ctx, symbol, interval, limit)
}

type newsCollectorFunc func(ctx context.Context) ([]news.Item, error)

func (f newsCollectorFunc) Collect(ctx context.Context) ([]news.Item, error) { return f(ctx) }

func TestCollectTasks(t *testing.T) {
	st := newTestStore(t)
	d, err := notify.NewDispatcher(notify.DefaultThresholds(), nil)
	require.NoError(t, err)
	var gotSymbol, gotInterval string
	prices := priceCollectorFunc(func(_ context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
		gotSymbol, gotInterval = symbol, interval
		return []market.Candle{candle(t0, 100), candle(t0.Add(time.Hour), 101)}, nil
	})
	items := newsCollectorFunc(func(context.Context) ([]news.Item, error) {
		return []news.Item{{Source: "rss", Title: "A", URL: "https://x/a"}, {Source: "rss", Title: "B", URL: "https://x/b"}}, nil
	})
	r, err := NewRunner(Options{Symbol: "BTC/USDT", Interval: "1h"}, prices, items, st, pipelineFunc(nil), d)
	require.NoError(t, err)

	n, err := r.CollectPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "BTC/USDT", gotSymbol)
	assert.Equal(t, "1h", gotInterval)
	n, err = r.CollectPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = r.CollectNews(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	failing := priceCollectorFunc(func(context.Context, string, string, int) ([]market.Candle, error) {
		return nil, errors.New("all sources down")
	})
	r2, err := NewRunner(Options{Symbol: "BTC/USDT", Interval: "1h"}, failing, nil, st, pipelineFunc(nil), d)
	require.NoError(t, err)
	_, err = r2.CollectPrices(context.Background())
	assert.ErrorContains(t, err, "all sources down")
	_, err = r2.CollectNews(context.Background())
	assert.Error(t, err)
}

func saveSignal(t *testing.T, st *store.Store, runID string, at time.Time, sig decision.Signal, price string) int64 {
	t.Helper()
	bundle, err := json.Marshal(sampleReport(runID, sig, 0.7))
	require.NoError(t, err)
	rec := store.SignalRecord{
		RunID:      runID,
		Timestamp:  at,
		Symbol:     "BTC/USDT",
		Signal:     string(sig),
		Confidence: 0.7,
		Price:      decimal.RequireFromString(price),
		Bundle:     bundle,
	}
	require.NoError(t, st.SaveSignal(context.Background(), &rec))
	return rec.ID
}

func TestEvaluatePerformance(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.SavePrices(ctx, []market.Candle{candle(t0, 100), candle(t0.Add(4*time.Hour), 102)})
	require.NoError(t, err)

	saveSignal(t, st, "run-buy", t0, decision.SignalBuy, "100")
	saveSignal(t, st, "run-sell", t0.Add(time.Hour), decision.SignalSell, "100")
	recent := saveSignal(t, st, "run-recent", t0.Add(5*time.Hour), decision.SignalBuy, "102")

	r, _ := newRunner(t, st, pipelineFunc(nil))
	r.SetClock(func() time.Time { return t0.Add(6 * time.Hour) })

	sum, err := r.EvaluatePerformance(ctx)
	require.NoError(t, err)
	assert.Equal(t, EvaluationSummary{Evaluated: 2, Correct: 1}, sum)

	perf, err := st.PerformanceHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, perf, 2)
	byRun := map[string]store.PerformanceRecord{}
	for _, p := range perf {
		byRun[p.Signal] = p
	}
	assert.Equal(t, OutcomeUp, byRun["BUY"].ActualOutcome)
	assert.Equal(t, 1.0, byRun["BUY"].Accuracy)
	assert.InDelta(t, 2, byRun["BUY"].ProfitLoss, 1e-9)
	assert.Equal(t, 0.0, byRun["SELL"].Accuracy)
	assert.InDelta(t, -2, byRun["SELL"].ProfitLoss, 1e-9)

	pending, err := st.PendingSignals(ctx, t0.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, recent, pending[0].ID)

	evals, err := st.ModelEvals(ctx, "all")
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, "RAGAgent", evals[0].Agent)
	assert.Equal(t, 2, evals[0].TotalPredictions)
	assert.Equal(t, 0, evals[0].CorrectPredictions)
	assert.Equal(t, "TechAgent-OpenAI", evals[1].Agent)
	assert.Equal(t, 2, evals[1].CorrectPredictions)
	assert.InDelta(t, 1.0, evals[1].Accuracy, 1e-9)
	assert.InDelta(t, 0.8, evals[1].AvgConfidence, 1e-9)

	// 已评估的信号不会被重复计入。
	sum, err = r.EvaluatePerformance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Evaluated)
	evals, err = st.ModelEvals(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, 2, evals[1].TotalPredictions)
}

func TestEvaluatePerformanceRequiresExitBar(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.SavePrices(ctx, []market.Candle{candle(t0, 100)})
	require.NoError(t, err)
	id := saveSignal(t, st, "run-hold", t0, decision.SignalHold, "100")

	r, _ := newRunner(t, st, pipelineFunc(nil))
	r.SetClock(func() time.Time { return t0.Add(6 * time.Hour) })

	// 只有入场那根 K 线，不能拿它当出场价。
	sum, err := r.EvaluatePerformance(ctx)
	require.NoError(t, err)
	assert.Equal(t, EvaluationSummary{Skipped: 1}, sum)

	// 最新 K 线距 ts+horizon 超过一个周期，同样视为缺失。
	_, err = st.SavePrices(ctx, []market.Candle{candle(t0.Add(time.Hour), 100)})
	require.NoError(t, err)
	sum, err = r.EvaluatePerformance(ctx)
	require.NoError(t, err)
	assert.Equal(t, EvaluationSummary{Skipped: 1}, sum)

	pending, err := st.PendingSignals(ctx, t0.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	_, err = st.SavePrices(ctx, []market.Candle{candle(t0.Add(3*time.Hour), 100.1)})
	require.NoError(t, err)
	sum, err = r.EvaluatePerformance(ctx)
	require.NoError(t, err)
	assert.Equal(t, EvaluationSummary{Evaluated: 1, Correct: 1}, sum)
}

func TestAbortEvaluationFlushesStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	r, _ := newRunner(t, st, pipelineFunc(nil))

	bundle, err := json.Marshal(sampleReport("run-1", decision.SignalBuy, 0.8))
	require.NoError(t, err)
	stats := newAgentStats()
	stats.addBundle(bundle, OutcomeUp)

	cause := errors.New("disk full")
	assert.ErrorIs(t, r.abortEvaluation(ctx, stats, cause), cause)

	evals, err := st.ModelEvals(ctx, "all")
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, 1, evals[0].TotalPredictions)
}

func TestJobs(t *testing.T) {
	st := newTestStore(t)
	r, _ := newRunner(t, st, pipelineFunc(nil))
	jobs := r.Jobs(Schedule{Price: 5 * time.Minute, News: 15 * time.Minute, Analysis: time.Hour, Evaluation: 24 * time.Hour, RunImmediately: true})
	require.Len(t, jobs, 4)
	names := []string{jobs[0].Name, jobs[1].Name, jobs[2].Name, jobs[3].Name}
	assert.Equal(t, []string{"price_update", "news_update", "analysis", "evaluation"}, names)
	assert.True(t, jobs[0].RunImmediately)
	assert.False(t, jobs[2].RunImmediately)
	assert.Equal(t, time.Hour, jobs[3].AlignInterval)
}
