package app

import (
	"context"
	"fmt"
	"time"

	"btcagent/internal/agent"
	brcfg "btcagent/internal/config"
	"btcagent/internal/gateway/provider"
	"btcagent/internal/logger"
	"btcagent/internal/metrics"
	"btcagent/internal/notify"
	promptkit "btcagent/internal/prompt"
	"btcagent/internal/scheduler"
	"btcagent/internal/service"
	"btcagent/internal/store"
	"btcagent/internal/workflow"
)

// AppBuilder 按配置装配依赖；各 *Fn 字段可在测试中替换。
type AppBuilder struct {
	cfg *brcfg.Config

	storeFn     func(brcfg.StorageConfig) (*store.Store, error)
	promptsFn   func(string) (*promptkit.Registry, error)
	providersFn func(brcfg.AIConfig, *metrics.Metrics) (map[string]provider.ModelProvider, error)
	sendersFn   func(brcfg.NotifyConfig) ([]notify.Sender, error)
	metricsFn   func() *metrics.Metrics
}

type AppBuilderOption func(*AppBuilder)

// WithProviders 替换模型构建（测试用本地 fake）。
func WithProviders(fn func(brcfg.AIConfig, *metrics.Metrics) (map[string]provider.ModelProvider, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.providersFn = fn }
}

func WithSenders(fn func(brcfg.NotifyConfig) ([]notify.Sender, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.sendersFn = fn }
}

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		storeFn:     openStore,
		promptsFn:   promptkit.NewRegistry,
		providersFn: buildModelProviders,
		sendersFn:   buildSenders,
		metricsFn:   metrics.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStore(cfg brcfg.StorageConfig) (*store.Store, error) {
	st, err := store.New(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	mode, err := st.JournalMode(context.Background())
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("读取 journal_mode 失败: %w", err)
	}
	logger.Infof("✓ 数据库 %s (journal=%s)", cfg.Path, mode)
	return st, nil
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	m := b.metricsFn()

	st, err := b.storeFn(cfg.Storage)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = st.Close()
		}
	}()
	if err := st.Ping(ctx); err != nil {
		return nil, fmt.Errorf("数据库不可用: %w", err)
	}

	prompts, err := b.promptsFn(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("加载提示词失败: %w", err)
	}
	providers, err := b.providersFn(cfg.AI, m)
	if err != nil {
		return nil, err
	}
	orch, err := buildOrchestrator(cfg, providers, prompts, st, m)
	if err != nil {
		return nil, err
	}

	senders, err := b.sendersFn(cfg.Notify)
	if err != nil {
		return nil, err
	}
	dispatcher, err := notify.NewDispatcher(notify.Thresholds{
		Auto:   cfg.Notify.ConfidenceThreshold,
		Review: cfg.Notify.HumanReviewThreshold,
	}, m, senders...)
	if err != nil {
		return nil, err
	}

	runner, err := service.NewRunner(service.Options{
		Symbol:      cfg.Market.Symbol,
		Interval:    cfg.Market.Interval,
		FetchLimit:  cfg.Market.HistoryLimit,
		PriceWindow: cfg.Workflow.PriceWindow,
		NewsWindow:  cfg.Workflow.NewsWindow,
		Horizon:     brcfg.Duration(cfg.Evaluation.Horizon),
		HoldBandPct: cfg.Evaluation.HoldBandPct,
		EvalPeriod:  cfg.Evaluation.Period,
	}, buildPriceCollector(cfg.Market, m), buildNewsCollector(cfg.News, m), st, orch, dispatcher)
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(runner.Jobs(service.Schedule{
		Price:          brcfg.Duration(cfg.Schedule.PriceInterval),
		News:           brcfg.Duration(cfg.Schedule.NewsInterval),
		Analysis:       brcfg.Duration(cfg.Schedule.AnalysisInterval),
		Evaluation:     brcfg.Duration(cfg.Schedule.EvaluationInterval),
		RunImmediately: cfg.Schedule.RunImmediately,
	})...)

	server, err := buildHTTPServer(cfg.App, runner, st, m)
	if err != nil {
		return nil, err
	}

	ok = true
	return &App{
		cfg:       cfg,
		store:     st,
		runner:    runner,
		scheduler: sched,
		http:      server,
		Summary:   buildSummary(cfg, providers, senders),
	}, nil
}

func buildOrchestrator(cfg *brcfg.Config, providers map[string]provider.ModelProvider, prompts *promptkit.Registry, st *store.Store, m *metrics.Metrics) (*workflow.Orchestrator, error) {
	deps := agent.Deps{
		Providers:      providers,
		Prompts:        prompts,
		Retriever:      st,
		RetrievalLimit: cfg.Agents.RetrievalLimit,
	}
	technical, err := agent.Build(agent.TrackTechnical, agentSpecs(cfg.Agents.Technical, cfg.Agents.DefaultWeight), deps)
	if err != nil {
		return nil, fmt.Errorf("构建技术面 agent 失败: %w", err)
	}
	newsAgents, err := agent.Build(agent.TrackNews, agentSpecs(cfg.Agents.News, cfg.Agents.DefaultWeight), deps)
	if err != nil {
		return nil, fmt.Errorf("构建新闻面 agent 失败: %w", err)
	}
	judgeModel, err := provider.Lookup(providers, cfg.Workflow.DecisionModel)
	if err != nil {
		return nil, fmt.Errorf("workflow.decision_model: %w", err)
	}
	discussionModel, err := provider.Lookup(providers, cfg.Workflow.DiscussionModel)
	if err != nil {
		return nil, fmt.Errorf("workflow.discussion_model: %w", err)
	}
	reflectionModel, err := provider.Lookup(providers, cfg.Workflow.ReflectionModel)
	if err != nil {
		return nil, fmt.Errorf("workflow.reflection_model: %w", err)
	}

	var history workflow.PerformanceSource = workflow.EmptyHistory{}
	if cfg.Workflow.ReflectionHistory == brcfg.ReflectionHistoryStore {
		history = workflow.NewStoreHistory(st, cfg.Workflow.HistoryLimit)
	}
	return workflow.New(technical, newsAgents,
		workflow.NewLLMJudge(judgeModel, prompts),
		workflow.NewLLMModerator(discussionModel, prompts),
		workflow.NewLLMReflector(reflectionModel, prompts),
		workflow.Options{
			Rounds:          cfg.Workflow.DiscussionRounds,
			ProducerTimeout: time.Duration(cfg.Agents.ProducerTimeoutSeconds) * time.Second,
			StageTimeout:    time.Duration(cfg.Workflow.StageTimeoutSeconds) * time.Second,
			Performance:     history,
			Metrics:         m,
		})
}

func agentSpecs(list []brcfg.AgentConfig, defaultWeight float64) []agent.Spec {
	out := make([]agent.Spec, 0, len(list))
	for _, a := range list {
		out = append(out, agent.Spec{
			Name:    a.Name,
			Kind:    a.Kind,
			Model:   a.Model,
			Weight:  a.EffectiveWeight(defaultWeight),
			Prompt:  a.Prompt,
			Enabled: a.IsEnabled(),
		})
	}
	return out
}
