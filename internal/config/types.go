package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config 是 btcagent 的主配置载体。
type Config struct {
	App         AppConfig        `toml:"app"`
	AI          AIConfig         `toml:"ai"`
	Agents      AgentsConfig     `toml:"agents"`
	Workflow    WorkflowConfig   `toml:"workflow"`
	Notify      NotifyConfig     `toml:"notify"`
	Market      MarketConfig     `toml:"market"`
	News        NewsConfig       `toml:"news"`
	Storage     StorageConfig    `toml:"storage"`
	Schedule    ScheduleConfig   `toml:"schedule"`
	Evaluation  EvaluationConfig `toml:"evaluation"`
	PromptsPath string           `toml:"prompts_path"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

// AIConfig 文本生成服务及其连接参数。
type AIConfig struct {
	TimeoutSeconds         int                    `toml:"timeout_seconds"`
	BreakerThreshold       int                    `toml:"breaker_threshold"`
	BreakerCooldownSeconds int                    `toml:"breaker_cooldown_seconds"`
	ProviderPresets        map[string]ModelPreset `toml:"provider_presets"`
	Models                 []AIModelConfig        `toml:"models"`
}

// ModelPreset 描述可复用的 API 连接配置。
type ModelPreset struct {
	APIURL    string            `toml:"api_url"`
	APIKey    string            `toml:"api_key"`
	APIKeyEnv string            `toml:"api_key_env"`
	Headers   map[string]string `toml:"headers"`
}

// AIModelConfig 一个可被 agent / 协作方引用的模型条目。
type AIModelConfig struct {
	ID                string            `toml:"id"`
	Provider          string            `toml:"provider"`
	Preset            string            `toml:"preset"`
	Enabled           *bool             `toml:"enabled"`
	APIURL            string            `toml:"api_url"`
	APIKey            string            `toml:"api_key"`
	APIKeyEnv         string            `toml:"api_key_env"`
	Model             string            `toml:"model"`
	Temperature       float64           `toml:"temperature"`
	Headers           map[string]string `toml:"headers"`
	RequestsPerMinute int               `toml:"requests_per_minute"`
}

// ResolvedModel 合并预设与环境变量后的最终模型配置。
type ResolvedModel struct {
	ID                string
	Provider          string
	APIURL            string
	APIKey            string
	Model             string
	Enabled           bool
	Temperature       float64
	Headers           map[string]string
	RequestsPerMinute int
}

// ResolveModels 合并 preset，并从 api_key_env 读取密钥（显式 api_key 优先）。
func (a AIConfig) ResolveModels() ([]ResolvedModel, error) {
	out := make([]ResolvedModel, 0, len(a.Models))
	for _, m := range a.Models {
		r := ResolvedModel{
			ID:                strings.TrimSpace(m.ID),
			Provider:          strings.TrimSpace(m.Provider),
			APIURL:            strings.TrimSpace(m.APIURL),
			APIKey:            strings.TrimSpace(m.APIKey),
			Model:             strings.TrimSpace(m.Model),
			Enabled:           m.Enabled == nil || *m.Enabled,
			Temperature:       m.Temperature,
			RequestsPerMinute: m.RequestsPerMinute,
			Headers:           map[string]string{},
		}
		keyEnv := strings.TrimSpace(m.APIKeyEnv)
		if name := strings.TrimSpace(m.Preset); name != "" {
			preset, ok := a.ProviderPresets[name]
			if !ok {
				return nil, fmt.Errorf("ai.models.%s 引用了未定义的 preset: %s", r.ID, name)
			}
			if r.APIURL == "" {
				r.APIURL = strings.TrimSpace(preset.APIURL)
			}
			if r.APIKey == "" {
				r.APIKey = strings.TrimSpace(preset.APIKey)
			}
			if keyEnv == "" {
				keyEnv = strings.TrimSpace(preset.APIKeyEnv)
			}
			for k, v := range preset.Headers {
				r.Headers[k] = v
			}
		}
		for k, v := range m.Headers {
			r.Headers[k] = v
		}
		if r.APIKey == "" && keyEnv != "" {
			r.APIKey = strings.TrimSpace(os.Getenv(keyEnv))
		}
		if r.ID == "" {
			r.ID = r.Provider
		}
		out = append(out, r)
	}
	return out, nil
}

// AgentsConfig 两条轨道的 producer 注册表；列表顺序即注册顺序。
type AgentsConfig struct {
	DefaultWeight          float64       `toml:"default_weight"`
	ProducerTimeoutSeconds int           `toml:"producer_timeout_seconds"`
	RetrievalLimit         int           `toml:"retrieval_limit"`
	Technical              []AgentConfig `toml:"technical"`
	News                   []AgentConfig `toml:"news"`
}

type AgentConfig struct {
	Name    string   `toml:"name"`
	Kind    string   `toml:"kind"`
	Model   string   `toml:"model"`
	Weight  *float64 `toml:"weight"`
	Prompt  string   `toml:"prompt"`
	Enabled *bool    `toml:"enabled"`
}

// EffectiveWeight 未配置 weight 时使用 default_weight。
func (a AgentConfig) EffectiveWeight(def float64) float64 {
	if a.Weight == nil {
		return def
	}
	return *a.Weight
}

func (a AgentConfig) IsEnabled() bool { return a.Enabled == nil || *a.Enabled }

type WorkflowConfig struct {
	DiscussionRounds    int    `toml:"discussion_rounds"`
	StageTimeoutSeconds int    `toml:"stage_timeout_seconds"`
	DecisionModel       string `toml:"decision_model"`
	DiscussionModel     string `toml:"discussion_model"`
	ReflectionModel     string `toml:"reflection_model"`
	ReflectionHistory   string `toml:"reflection_history"`
	HistoryLimit        int    `toml:"history_limit"`
	PriceWindow         int    `toml:"price_window"`
	NewsWindow          int    `toml:"news_window"`
}

type NotifyConfig struct {
	ConfidenceThreshold  float64        `toml:"confidence_threshold"`
	HumanReviewThreshold float64        `toml:"human_review_threshold"`
	Telegram             TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled     bool   `toml:"enabled"`
	BotToken    string `toml:"bot_token"`
	BotTokenEnv string `toml:"bot_token_env"`
	ChatID      string `toml:"chat_id"`
}

// Token 显式 bot_token 优先，否则读取 bot_token_env。
func (t TelegramConfig) Token() string {
	if tok := strings.TrimSpace(t.BotToken); tok != "" {
		return tok
	}
	if env := strings.TrimSpace(t.BotTokenEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

type MarketConfig struct {
	Symbol         string         `toml:"symbol"`
	Interval       string         `toml:"interval"`
	HistoryLimit   int            `toml:"history_limit"`
	TimeoutSeconds int            `toml:"timeout_seconds"`
	Sources        []MarketSource `toml:"sources"`
}

// MarketSource 描述单个行情源（binance / okx）。
type MarketSource struct {
	Name        string `toml:"name"`
	Enabled     bool   `toml:"enabled"`
	RESTBaseURL string `toml:"rest_base_url"`
}

// EnabledSources returns enabled sources in configured order.
func (m MarketConfig) EnabledSources() []MarketSource {
	out := make([]MarketSource, 0, len(m.Sources))
	for _, src := range m.Sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out
}

type NewsConfig struct {
	MaxItems       int               `toml:"max_items"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	CryptoPanic    CryptoPanicConfig `toml:"cryptopanic"`
	RSS            []RSSFeedConfig   `toml:"rss"`
	FearGreed      FearGreedConfig   `toml:"fear_greed"`
}

type CryptoPanicConfig struct {
	Enabled    bool   `toml:"enabled"`
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	APIKeyEnv  string `toml:"api_key_env"`
	Currencies string `toml:"currencies"`
	Filter     string `toml:"filter"`
}

func (c CryptoPanicConfig) Key() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	if env := strings.TrimSpace(c.APIKeyEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

type RSSFeedConfig struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

type FearGreedConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

// ScheduleConfig 四个周期任务的间隔（Go duration 字符串）。
type ScheduleConfig struct {
	PriceInterval      string `toml:"price_interval"`
	NewsInterval       string `toml:"news_interval"`
	AnalysisInterval   string `toml:"analysis_interval"`
	EvaluationInterval string `toml:"evaluation_interval"`
	RunImmediately     bool   `toml:"run_immediately"`
}

type EvaluationConfig struct {
	Horizon     string  `toml:"horizon"`
	HoldBandPct float64 `toml:"hold_band_pct"`
	Period      string  `toml:"period"`
}

// Duration 解析配置里的时长字段；调用前已通过 validate。
func Duration(raw string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return d
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
