package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"btcagent/internal/decision"
	"btcagent/internal/logger"
	"btcagent/internal/market"
	"btcagent/internal/news"
	"btcagent/internal/notify"
	"btcagent/internal/scheduler"
	"btcagent/internal/store"
	"btcagent/internal/workflow"
)

// PriceCollector 拉取一个交易对的最近 K 线。
type PriceCollector interface {
	Collect(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

type NewsCollector interface {
	Collect(ctx context.Context) ([]news.Item, error)
}

// Pipeline 执行一次完整的信号工作流。
type Pipeline interface {
	Execute(ctx context.Context, prices []market.Candle, items []news.Item) (workflow.Report, error)
}

type Notifier interface {
	Thresholds() notify.Thresholds
	Notify(ctx context.Context, p notify.Payload) (notify.Tier, error)
}

// ErrAnalysisBusy 上一次分析尚未结束。
var ErrAnalysisBusy = errors.New("analysis already running")

// Options 运行参数，来源于 market / workflow / evaluation 配置段。
type Options struct {
	Symbol      string
	Interval    string
	FetchLimit  int
	PriceWindow int
	NewsWindow  int
	Horizon     time.Duration
	HoldBandPct float64
	EvalPeriod  string
	EvalBatch   int
}

// Runner 四个周期任务：采集行情、采集新闻、执行分析、评估历史信号。
type Runner struct {
	opts     Options
	prices   PriceCollector
	news     NewsCollector
	store    *store.Store
	pipeline Pipeline
	notifier Notifier
	now      func() time.Time

	analysisMu sync.Mutex
}

func NewRunner(opts Options, prices PriceCollector, newsCollector NewsCollector, st *store.Store, pipeline Pipeline, notifier Notifier) (*Runner, error) {
	if st == nil || pipeline == nil || notifier == nil {
		return nil, fmt.Errorf("runner requires store, pipeline and notifier")
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 100
	}
	if opts.PriceWindow <= 0 {
		opts.PriceWindow = 100
	}
	if opts.NewsWindow <= 0 {
		opts.NewsWindow = 50
	}
	if opts.EvalBatch <= 0 {
		opts.EvalBatch = 500
	}
	return &Runner{
		opts:     opts,
		prices:   prices,
		news:     newsCollector,
		store:    st,
		pipeline: pipeline,
		notifier: notifier,
		now:      time.Now,
	}, nil
}

// SetClock 仅用于测试。
func (r *Runner) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// CollectPrices 拉取最新 K 线并写入 prices 表，返回新写入条数。
func (r *Runner) CollectPrices(ctx context.Context) (int, error) {
	if r.prices == nil {
		return 0, fmt.Errorf("no price collector configured")
	}
	candles, err := r.prices.Collect(ctx, r.opts.Symbol, r.opts.Interval, r.opts.FetchLimit)
	if err != nil {
		return 0, fmt.Errorf("collect prices: %w", err)
	}
	n, err := r.store.SavePrices(ctx, candles)
	if err != nil {
		return 0, fmt.Errorf("save prices: %w", err)
	}
	logger.Infof("采集了 %d 条价格数据，新写入 %d 条", len(candles), n)
	return n, nil
}

// CollectNews 拉取新闻并写入 news 表，返回新写入条数。
func (r *Runner) CollectNews(ctx context.Context) (int, error) {
	if r.news == nil {
		return 0, fmt.Errorf("no news collector configured")
	}
	items, err := r.news.Collect(ctx)
	if err != nil {
		return 0, fmt.Errorf("collect news: %w", err)
	}
	n, err := r.store.SaveNews(ctx, items)
	if err != nil {
		return 0, fmt.Errorf("save news: %w", err)
	}
	logger.Infof("采集了 %d 条新闻，新写入 %d 条", len(items), n)
	return n, nil
}

// AnalysisResult 一次成功分析的持久化结果与通知分级。
type AnalysisResult struct {
	Signal store.SignalRecord `json:"signal"`
	Tier   notify.Tier        `json:"tier"`
	// NotifyError 通知失败不影响已保存的信号。
	NotifyError string `json:"notify_error,omitempty"`
}

// RunAnalysis 读取最近的价格 / 新闻窗口，执行工作流，保存信号后按置信度分级通知。
// 工作流失败时不写入任何记录。同一时刻只允许一次分析。
func (r *Runner) RunAnalysis(ctx context.Context) (AnalysisResult, error) {
	if !r.analysisMu.TryLock() {
		return AnalysisResult{}, ErrAnalysisBusy
	}
	defer r.analysisMu.Unlock()

	prices, err := r.store.RecentPrices(ctx, r.opts.Symbol, r.opts.Interval, r.opts.PriceWindow)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("load prices: %w", err)
	}
	items, err := r.store.RecentNews(ctx, r.opts.NewsWindow)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("load news: %w", err)
	}
	if len(prices) == 0 {
		logger.Warnf("价格窗口为空 (%s %s)，技术面分析将基于空数据", r.opts.Symbol, r.opts.Interval)
	}

	rep, err := r.pipeline.Execute(ctx, prices, items)
	if err != nil {
		return AnalysisResult{}, err
	}

	now := r.now()
	rec, err := r.signalRecord(ctx, rep, prices, now)
	if err != nil {
		return AnalysisResult{}, err
	}
	tier := notify.Route(rec.Confidence, r.notifier.Thresholds())
	rec.Tier = string(tier)
	if err := r.store.SaveSignal(ctx, &rec); err != nil {
		return AnalysisResult{}, fmt.Errorf("save signal: %w", err)
	}

	res := AnalysisResult{Signal: rec, Tier: tier}
	payload := notify.Payload{
		RunID:      rep.RunID,
		Signal:     rep.Final.Signal,
		Confidence: rep.Final.Confidence,
		Reasoning:  rep.Final.Reasoning,
		Results:    payloadResults(rep),
		Timestamp:  now,
	}
	if !rec.Price.IsZero() {
		price := rec.Price
		payload.Price = &price
	}
	if _, err := r.notifier.Notify(ctx, payload); err != nil {
		res.NotifyError = err.Error()
	}
	logger.ForRun(rep.RunID).Infof("分析完成: %s (置信度: %.2f%%) tier=%s signal_id=%d",
		rec.Signal, rec.Confidence*100, tier, rec.ID)
	return res, nil
}

func (r *Runner) signalRecord(ctx context.Context, rep workflow.Report, prices []market.Candle, now time.Time) (store.SignalRecord, error) {
	bundle, err := json.Marshal(rep)
	if err != nil {
		return store.SignalRecord{}, fmt.Errorf("marshal report: %w", err)
	}
	rec := store.SignalRecord{
		RunID:          rep.RunID,
		Timestamp:      now,
		Symbol:         r.opts.Symbol,
		Signal:         string(rep.Final.Signal),
		Confidence:     rep.Final.Confidence,
		TechnicalScore: rep.TechnicalConsensus.Confidence,
		NewsScore:      rep.NewsConsensus.Confidence,
		Reasoning:      rep.Final.Reasoning,
		Bundle:         bundle,
	}
	if price, ok, err := r.store.PriceAt(ctx, r.opts.Symbol, now); err != nil {
		logger.ForRun(rep.RunID).Warnf("读取当前价格失败: %v", err)
	} else if ok {
		rec.Price = price
	} else if n := len(prices); n > 0 {
		rec.Price = decimalFromFloat(prices[n-1].Close)
	}
	last := len(rep.Discussion)
	for _, round := range rep.Discussion {
		dr := store.DiscussionRecord{
			Round:    round.Round,
			Agent:    workflow.DiscussionAgentName,
			Argument: round.Summary,
		}
		// 只有最后一轮被解析为结论。
		if round.Round == last {
			dr.Position = string(rep.Final.Signal)
			dr.Confidence = rep.Final.Confidence
		}
		rec.Rounds = append(rec.Rounds, dr)
	}
	return rec, nil
}

// payloadResults 通知中展示的结果顺序：各 producer、两轨共识、初始决策、最终结论。
func payloadResults(rep workflow.Report) []decision.AgentResult {
	out := make([]decision.AgentResult, 0, len(rep.Technical)+len(rep.News)+4)
	out = append(out, rep.Technical...)
	out = append(out, rep.News...)
	out = append(out, rep.TechnicalConsensus, rep.NewsConsensus, rep.InitialDecision, rep.Final)
	return out
}

// Schedule 四个任务的调度间隔。
type Schedule struct {
	Price          time.Duration
	News           time.Duration
	Analysis       time.Duration
	Evaluation     time.Duration
	RunImmediately bool
}

// Jobs 生成调度任务。采集任务先于分析执行，评估任务每天对齐到整点。
func (r *Runner) Jobs(s Schedule) []scheduler.Job {
	return []scheduler.Job{
		{
			Name:           "price_update",
			Interval:       s.Price,
			RunImmediately: s.RunImmediately,
			Task: func(ctx context.Context) error {
				_, err := r.CollectPrices(ctx)
				return err
			},
		},
		{
			Name:           "news_update",
			Interval:       s.News,
			RunImmediately: s.RunImmediately,
			Task: func(ctx context.Context) error {
				_, err := r.CollectNews(ctx)
				return err
			},
		},
		{
			Name:     "analysis",
			Interval: s.Analysis,
			// 留出时间让同一边界触发的采集任务先写入。
			Offset: 30 * time.Second,
			Task: func(ctx context.Context) error {
				_, err := r.RunAnalysis(ctx)
				return err
			},
		},
		{
			Name:          "evaluation",
			Interval:      s.Evaluation,
			AlignInterval: time.Hour,
			Task: func(ctx context.Context) error {
				_, err := r.EvaluatePerformance(ctx)
				return err
			},
		},
	}
}
