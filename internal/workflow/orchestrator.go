package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"btcagent/internal/agent"
	"btcagent/internal/decision"
	"btcagent/internal/logger"
	"btcagent/internal/market"
	"btcagent/internal/metrics"
	"btcagent/internal/news"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// 中文说明：
// 固定 DAG：{技术面 Analyzer} ∥ {新闻面 Analyzer} → 各轨道共识 → 决策 → R 轮讨论 → 反思。
// 最终信号为讨论结论；反思结果只随结果包输出。

const (
	DecisionAgentName           = "DecisionAgent"
	TechnicalConsensusAgentName = "TechnicalConsensus"
	NewsConsensusAgentName      = "NewsConsensus"

	DefaultProducerTimeout = 60 * time.Second
	DefaultStageTimeout    = 90 * time.Second
)

const (
	StageAnalysis   = "analysis"
	StageConsensus  = "consensus"
	StageDecision   = "decision"
	StageDiscussion = "discussion"
	StageReflection = "reflection"
	StageReport     = "report"
)

// RunError 运行级失败：降级策略覆盖不到的异常，调用方不应持久化任何信号。
type RunError struct {
	RunID string
	Stage string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("workflow run %s failed at %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Options 可选参数，零值使用默认值。
type Options struct {
	Rounds          int
	ProducerTimeout time.Duration
	StageTimeout    time.Duration
	Performance     PerformanceSource
	Metrics         *metrics.Metrics
	Now             func() time.Time
	NewRunID        func() string
}

// Orchestrator 持有已注册的 Analyzer 与协作方，每次 Run 创建独立的 RunState。
type Orchestrator struct {
	technical []agent.Analyzer
	news      []agent.Analyzer

	technicalAgg decision.ConsensusAggregator
	newsAgg      decision.ConsensusAggregator

	judge      Judge
	discussion discussionLoop
	reflection reflectionStage

	producerTimeout time.Duration
	stageTimeout    time.Duration
	metrics         *metrics.Metrics
	now             func() time.Time
	newRunID        func() string
}

// New wires an orchestrator. Analyzer order is registration order and decides
// consensus ties.
func New(technical, newsAnalyzers []agent.Analyzer, judge Judge, moderator Moderator, reflector Reflector, opts Options) (*Orchestrator, error) {
	if judge == nil || moderator == nil || reflector == nil {
		return nil, fmt.Errorf("workflow: judge/moderator/reflector 均不能为空")
	}
	if opts.Rounds <= 0 {
		opts.Rounds = DefaultRounds
	}
	if opts.ProducerTimeout <= 0 {
		opts.ProducerTimeout = DefaultProducerTimeout
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}
	if opts.Performance == nil {
		opts.Performance = EmptyHistory{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Orchestrator{
		technical:    append([]agent.Analyzer(nil), technical...),
		news:         append([]agent.Analyzer(nil), newsAnalyzers...),
		technicalAgg: decision.NewConsensusAggregator(string(agent.TrackTechnical), TechnicalConsensusAgentName),
		newsAgg:      decision.NewConsensusAggregator(string(agent.TrackNews), NewsConsensusAgentName),
		judge:        judge,
		discussion: discussionLoop{
			moderator: moderator,
			rounds:    opts.Rounds,
			timeout:   opts.StageTimeout,
			metrics:   opts.Metrics,
			now:       opts.Now,
		},
		reflection: reflectionStage{
			reflector: reflector,
			history:   opts.Performance,
			timeout:   opts.StageTimeout,
			metrics:   opts.Metrics,
		},
		producerTimeout: opts.ProducerTimeout,
		stageTimeout:    opts.StageTimeout,
		metrics:         opts.Metrics,
		now:             opts.Now,
		newRunID:        opts.NewRunID,
	}, nil
}

// Rounds returns the configured discussion round count.
func (o *Orchestrator) Rounds() int { return o.discussion.rounds }

// Run executes the pipeline once and returns the discussion outcome.
func (o *Orchestrator) Run(ctx context.Context, prices []market.Candle, items []news.Item) (decision.AgentResult, error) {
	rep, err := o.Execute(ctx, prices, items)
	if err != nil {
		return decision.AgentResult{}, err
	}
	return rep.Final, nil
}

// Execute runs the pipeline once and returns the full result bundle.
func (o *Orchestrator) Execute(ctx context.Context, prices []market.Candle, items []news.Item) (Report, error) {
	start := time.Now()
	st := newRunState(o.newRunID(), prices, items)
	logger.ForRun(st.RunID).Infof("工作流开始: prices=%d news=%d technical=%d news_agents=%d rounds=%d",
		len(prices), len(items), len(o.technical), len(o.news), o.discussion.rounds)

	stages := []struct {
		name string
		fn   func(context.Context, *RunState) error
	}{
		{StageAnalysis, o.analyze},
		{StageConsensus, o.consensus},
		{StageDecision, o.decide},
		{StageDiscussion, o.discuss},
		{StageReflection, o.reflect},
	}
	for _, s := range stages {
		if err := o.runStage(ctx, st, s.name, s.fn); err != nil {
			o.metrics.ObserveRun("failed", time.Since(start))
			logger.Errorf("%v", err)
			return Report{}, err
		}
	}
	rep, err := st.report()
	if err != nil {
		o.metrics.ObserveRun("failed", time.Since(start))
		return Report{}, &RunError{RunID: st.RunID, Stage: StageReport, Err: err}
	}
	o.metrics.ObserveRun("ok", time.Since(start))
	logger.ForRun(st.RunID).Infof("工作流完成: %s confidence=%.2f (%s)", rep.Final.Signal, rep.Final.Confidence, time.Since(start).Round(time.Millisecond))
	return rep, nil
}

func (o *Orchestrator) runStage(ctx context.Context, st *RunState, name string, fn func(context.Context, *RunState) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RunError{RunID: st.RunID, Stage: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if cerr := ctx.Err(); cerr != nil {
		return &RunError{RunID: st.RunID, Stage: name, Err: cerr}
	}
	if ferr := fn(ctx, st); ferr != nil {
		var re *RunError
		if errors.As(ferr, &re) {
			return ferr
		}
		return &RunError{RunID: st.RunID, Stage: name, Err: ferr}
	}
	return nil
}

// analyze 两条轨道及轨道内所有 Analyzer 并发执行；结果按注册顺序落位，
// 单个 Analyzer 失败或超时只会产出降级结果，不影响同轨道其他 Analyzer。
func (o *Orchestrator) analyze(ctx context.Context, st *RunState) error {
	technical := make([]decision.AgentResult, len(o.technical))
	newsResults := make([]decision.AgentResult, len(o.news))
	techIn := agent.Input{RunID: st.RunID, Prices: st.Prices}
	if n := len(st.Prices); n > 0 {
		techIn.Symbol, techIn.Interval = st.Prices[n-1].Symbol, st.Prices[n-1].Interval
	}
	newsIn := agent.Input{RunID: st.RunID, News: st.News}

	// 不用 WithContext：任何一个 Analyzer 都不应取消其它 Analyzer。
	var g errgroup.Group
	for i, a := range o.technical {
		i, a := i, a
		g.Go(func() error {
			technical[i] = o.invoke(ctx, a, techIn)
			return nil
		})
	}
	for i, a := range o.news {
		i, a := i, a
		g.Go(func() error {
			newsResults[i] = o.invoke(ctx, a, newsIn)
			return nil
		})
	}
	_ = g.Wait()

	if err := st.technical.put(technical); err != nil {
		return err
	}
	return st.newsResults.put(newsResults)
}

func (o *Orchestrator) invoke(ctx context.Context, a agent.Analyzer, in agent.Input) decision.AgentResult {
	p := a.Producer()
	res, err := bounded(ctx, o.producerTimeout, func(c context.Context) (decision.AgentResult, error) {
		return a.Analyze(c, in), nil
	})
	if err != nil {
		logger.ForRun(in.RunID).Warnf("%s 未在限定时间内完成，降级为 HOLD: %v", p.Name, err)
		o.metrics.IncDegraded(p.Name)
		return p.Degraded(failureText("analysis", err), o.now())
	}
	return res
}

func (o *Orchestrator) consensus(_ context.Context, st *RunState) error {
	technical, err := st.technical.get()
	if err != nil {
		return err
	}
	newsResults, err := st.newsResults.get()
	if err != nil {
		return err
	}
	now := o.now()
	tc := o.technicalAgg.Aggregate(technical, now)
	nc := o.newsAgg.Aggregate(newsResults, now)
	logger.ForRun(st.RunID).Debugf("\n%s\n%s", decision.RenderResultsTable("技术面", technical, 200),
		decision.RenderResultsTable("新闻面", newsResults, 200))
	logger.ForRun(st.RunID).Infof("技术面共识 %s %.2f | 新闻面共识 %s %.2f", tc.Signal, tc.Confidence, nc.Signal, nc.Confidence)
	if err := st.technicalConsensus.put(tc); err != nil {
		return err
	}
	return st.newsConsensus.put(nc)
}

func (o *Orchestrator) decide(ctx context.Context, st *RunState) error {
	tc, err := st.technicalConsensus.get()
	if err != nil {
		return err
	}
	nc, err := st.newsConsensus.get()
	if err != nil {
		return err
	}
	producer := decision.Producer{Name: DecisionAgentName, Model: modelLabel(o.judge, "decision"), Weight: 1.0}
	raw, err := bounded(ctx, o.stageTimeout, func(c context.Context) (string, error) {
		return o.judge.Judge(c, DecisionInput{RunID: st.RunID, Technical: tc, News: nc})
	})
	if err != nil {
		logger.ForRun(st.RunID).Warnf("决策阶段失败，降级为 HOLD: %v", err)
		o.metrics.IncDegraded(DecisionAgentName)
		return st.initialDecision.put(producer.Degraded(failureText("decision", err), o.now()))
	}
	res, ok := decision.ParseAgentReply(producer, raw, o.now())
	if !ok {
		logger.ForRun(st.RunID).Warnf("决策输出无法解析，降级为 HOLD")
		o.metrics.IncDegraded(DecisionAgentName)
	}
	return st.initialDecision.put(res)
}

// discuss 以两条轨道的全部原始结果（非共识）作为讨论输入。
func (o *Orchestrator) discuss(ctx context.Context, st *RunState) error {
	technical, err := st.technical.get()
	if err != nil {
		return err
	}
	newsResults, err := st.newsResults.get()
	if err != nil {
		return err
	}
	all := make([]decision.AgentResult, 0, len(technical)+len(newsResults))
	all = append(all, technical...)
	all = append(all, newsResults...)
	outcome, history := o.discussion.run(ctx, st.RunID, all)
	if err := st.rounds.put(history); err != nil {
		return err
	}
	return st.discussion.put(outcome)
}

func (o *Orchestrator) reflect(ctx context.Context, st *RunState) error {
	outcome, err := st.discussion.get()
	if err != nil {
		return err
	}
	return st.reflection.put(o.reflection.run(ctx, st.RunID, outcome))
}

// bounded 在独立 goroutine 中执行 fn，超时或 panic 都转为 error；fn 忽略 ctx 时也不会拖住调用方。
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- outcome{v: v, err: err}
	}()
	select {
	case out := <-ch:
		return out.v, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func failureText(stage string, err error) string {
	return fmt.Sprintf("%s failed: %v", stage, err)
}
