package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":8080"
	defaultAITimeout         = 60
	defaultBreakerThreshold  = 3
	defaultBreakerCooldown   = 120
	defaultAgentWeight       = 0.5
	defaultProducerTimeout   = 60
	defaultRetrievalLimit    = 5
	defaultDiscussionRounds  = 3
	defaultStageTimeout      = 90
	defaultReflectionHistory = ReflectionHistoryNone
	defaultHistoryLimit      = 20
	defaultPriceWindow       = 100
	defaultNewsWindow        = 50
	defaultAutoThreshold     = 0.8
	defaultReviewThreshold   = 0.6
	defaultMarketSymbol      = "BTC/USDT"
	defaultMarketInterval    = "1h"
	defaultMarketHistory     = 200
	defaultHTTPTimeout       = 15
	defaultNewsMaxItems      = 50
	defaultCryptoPanicCcy    = "BTC"
	defaultStoragePath       = "data/btc_trading.db"
	defaultPriceInterval     = "5m"
	defaultNewsInterval      = "15m"
	defaultAnalysisInterval  = "1h"
	defaultEvalInterval      = "24h"
	defaultEvalHorizon       = "4h"
	defaultHoldBandPct       = 0.5
	defaultEvalPeriod        = "all"
)

const (
	ReflectionHistoryNone  = "none"
	ReflectionHistoryStore = "store"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.Agents.applyDefaults(keys)
	c.Workflow.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.News.applyDefaults(keys)
	c.Schedule.applyDefaults(keys)
	c.Evaluation.applyDefaults(keys)
	applyFieldDefaults(keys,
		stringFieldDefault("storage.path", &c.Storage.Path, defaultStoragePath),
	)
	// 决策 / 讨论 / 反思未指定模型时使用第一个启用的模型。
	first := c.AI.firstEnabledModel()
	applyFieldDefaults(keys,
		stringFieldDefault("workflow.decision_model", &c.Workflow.DecisionModel, first),
		stringFieldDefault("workflow.discussion_model", &c.Workflow.DiscussionModel, first),
		stringFieldDefault("workflow.reflection_model", &c.Workflow.ReflectionModel, first),
	)
}

func (a *AIConfig) firstEnabledModel() string {
	for _, m := range a.Models {
		if m.Enabled != nil && !*m.Enabled {
			continue
		}
		if id := strings.TrimSpace(m.ID); id != "" {
			return id
		}
		return strings.TrimSpace(m.Provider)
	}
	return ""
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("ai.timeout_seconds", &a.TimeoutSeconds, defaultAITimeout),
		intFieldDefault("ai.breaker_threshold", &a.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("ai.breaker_cooldown_seconds", &a.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
}

func (a *AgentsConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "agents.default_weight",
			need:  func() bool { return a.DefaultWeight <= 0 },
			apply: func() { a.DefaultWeight = defaultAgentWeight },
		},
		intFieldDefault("agents.producer_timeout_seconds", &a.ProducerTimeoutSeconds, defaultProducerTimeout),
		intFieldDefault("agents.retrieval_limit", &a.RetrievalLimit, defaultRetrievalLimit),
		fieldDefault{
			key:   "agents.technical",
			need:  func() bool { return len(a.Technical) == 0 },
			apply: func() { a.Technical = defaultTechnicalAgents() },
		},
		fieldDefault{
			key:   "agents.news",
			need:  func() bool { return len(a.News) == 0 },
			apply: func() { a.News = defaultNewsAgents() },
		},
	)
	for i := range a.Technical {
		if strings.TrimSpace(a.Technical[i].Kind) == "" {
			a.Technical[i].Kind = "llm"
		}
	}
	for i := range a.News {
		if strings.TrimSpace(a.News[i].Kind) == "" {
			a.News[i].Kind = "llm"
		}
	}
}

func defaultTechnicalAgents() []AgentConfig {
	return []AgentConfig{
		{Name: "TechAgent-OpenAI", Kind: "llm", Model: "openai", Weight: floatPtr(0.5), Prompt: "technical"},
		{Name: "TechAgent-Gemini", Kind: "llm", Model: "gemini", Weight: floatPtr(0.5), Prompt: "technical_en"},
	}
}

func defaultNewsAgents() []AgentConfig {
	return []AgentConfig{
		{Name: "NewsAgent-OpenAI", Kind: "llm", Model: "openai", Weight: floatPtr(0.4), Prompt: "news"},
		{Name: "NewsAgent-Gemini", Kind: "llm", Model: "gemini", Weight: floatPtr(0.4), Prompt: "news_en"},
		{Name: "RAGAgent", Kind: "retrieval", Weight: floatPtr(0.2)},
	}
}

func (w *WorkflowConfig) applyDefaults(keys keySet) {
	if w == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("workflow.discussion_rounds", &w.DiscussionRounds, defaultDiscussionRounds),
		intFieldDefault("workflow.stage_timeout_seconds", &w.StageTimeoutSeconds, defaultStageTimeout),
		stringFieldDefault("workflow.reflection_history", &w.ReflectionHistory, defaultReflectionHistory),
		intFieldDefault("workflow.history_limit", &w.HistoryLimit, defaultHistoryLimit),
		intFieldDefault("workflow.price_window", &w.PriceWindow, defaultPriceWindow),
		intFieldDefault("workflow.news_window", &w.NewsWindow, defaultNewsWindow),
	)
	w.ReflectionHistory = strings.ToLower(strings.TrimSpace(w.ReflectionHistory))
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	// 阈值允许显式设置为 0，因此只在未出现在配置中时补默认值。
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "notify.confidence_threshold",
			apply: func() { n.ConfidenceThreshold = defaultAutoThreshold },
		},
		fieldDefault{
			key:   "notify.human_review_threshold",
			apply: func() { n.HumanReviewThreshold = defaultReviewThreshold },
		},
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.symbol", &m.Symbol, defaultMarketSymbol),
		stringFieldDefault("market.interval", &m.Interval, defaultMarketInterval),
		intFieldDefault("market.history_limit", &m.HistoryLimit, defaultMarketHistory),
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, defaultHTTPTimeout),
		fieldDefault{
			key:  "market.sources",
			need: func() bool { return len(m.Sources) == 0 },
			apply: func() {
				m.Sources = []MarketSource{
					{Name: "binance", Enabled: true},
					{Name: "okx", Enabled: true},
				}
			},
		},
	)
	for i := range m.Sources {
		m.Sources[i].Name = strings.ToLower(strings.TrimSpace(m.Sources[i].Name))
	}
}

func (n *NewsConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("news.max_items", &n.MaxItems, defaultNewsMaxItems),
		intFieldDefault("news.timeout_seconds", &n.TimeoutSeconds, defaultHTTPTimeout),
		stringFieldDefault("news.cryptopanic.currencies", &n.CryptoPanic.Currencies, defaultCryptoPanicCcy),
		boolFieldDefault("news.fear_greed.enabled", &n.FearGreed.Enabled, true),
	)
}

func (s *ScheduleConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("schedule.price_interval", &s.PriceInterval, defaultPriceInterval),
		stringFieldDefault("schedule.news_interval", &s.NewsInterval, defaultNewsInterval),
		stringFieldDefault("schedule.analysis_interval", &s.AnalysisInterval, defaultAnalysisInterval),
		stringFieldDefault("schedule.evaluation_interval", &s.EvaluationInterval, defaultEvalInterval),
		boolFieldDefault("schedule.run_immediately", &s.RunImmediately, true),
	)
}

func (e *EvaluationConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("evaluation.horizon", &e.Horizon, defaultEvalHorizon),
		stringFieldDefault("evaluation.period", &e.Period, defaultEvalPeriod),
		fieldDefault{
			key:   "evaluation.hold_band_pct",
			need:  func() bool { return e.HoldBandPct <= 0 },
			apply: func() { e.HoldBandPct = defaultHoldBandPct },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatPtr(v float64) *float64 { return &v }
