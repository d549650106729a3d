package config

import (
	"fmt"
	"strings"
	"time"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.Agents.validate(); err != nil {
		return err
	}
	if err := c.Workflow.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Schedule.validate(); err != nil {
		return err
	}
	if err := c.Evaluation.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path cannot be empty")
	}
	return validateModelRefs(c)
}

// validateModelRefs 检查 agent 与协作方引用的模型均已配置且启用。
func validateModelRefs(c *Config) error {
	models, err := c.AI.ResolveModels()
	if err != nil {
		return err
	}
	enabled := make(map[string]bool, len(models))
	for _, m := range models {
		if m.Enabled {
			enabled[m.ID] = true
		}
	}
	check := func(field, id string) error {
		id = strings.TrimSpace(id)
		if id == "" {
			return fmt.Errorf("%s requires a model (no enabled ai.models)", field)
		}
		if !enabled[id] {
			return fmt.Errorf("%s references unknown or disabled model %q", field, id)
		}
		return nil
	}
	for track, list := range map[string][]AgentConfig{"technical": c.Agents.Technical, "news": c.Agents.News} {
		for _, ag := range list {
			if !ag.IsEnabled() || !strings.EqualFold(ag.Kind, "llm") {
				continue
			}
			if err := check(fmt.Sprintf("agents.%s.%s.model", track, ag.Name), ag.Model); err != nil {
				return err
			}
		}
	}
	if err := check("workflow.decision_model", c.Workflow.DecisionModel); err != nil {
		return err
	}
	if err := check("workflow.discussion_model", c.Workflow.DiscussionModel); err != nil {
		return err
	}
	return check("workflow.reflection_model", c.Workflow.ReflectionModel)
}

func (a *AIConfig) validate() error {
	models, err := a.ResolveModels()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if m.ID == "" {
			return fmt.Errorf("ai.models contains entry without id/provider")
		}
		if seen[m.ID] {
			return fmt.Errorf("ai.models duplicate id: %s", m.ID)
		}
		seen[m.ID] = true
		if m.Model == "" {
			return fmt.Errorf("ai.models contains entry without model (id=%s)", m.ID)
		}
		if m.APIURL == "" {
			return fmt.Errorf("ai.models.%s missing api_url (can inherit from preset)", m.ID)
		}
		if m.RequestsPerMinute < 0 {
			return fmt.Errorf("ai.models.%s requests_per_minute must be >= 0", m.ID)
		}
	}
	if a.BreakerThreshold < 0 {
		return fmt.Errorf("ai.breaker_threshold must be >= 0")
	}
	return nil
}

func (a *AgentsConfig) validate() error {
	if a.DefaultWeight < 0 || a.DefaultWeight > 1 {
		return fmt.Errorf("agents.default_weight must be within [0,1]")
	}
	for track, list := range map[string][]AgentConfig{"technical": a.Technical, "news": a.News} {
		names := make(map[string]bool, len(list))
		for _, ag := range list {
			name := strings.TrimSpace(ag.Name)
			if name == "" {
				return fmt.Errorf("agents.%s contains entry without name", track)
			}
			if names[name] {
				return fmt.Errorf("agents.%s duplicate name: %s", track, name)
			}
			names[name] = true
			if w := ag.EffectiveWeight(a.DefaultWeight); w < 0 || w > 1 {
				return fmt.Errorf("agents.%s.%s weight must be within [0,1]", track, name)
			}
			switch strings.ToLower(strings.TrimSpace(ag.Kind)) {
			case "llm":
				if strings.TrimSpace(ag.Model) == "" {
					return fmt.Errorf("agents.%s.%s missing model", track, name)
				}
			case "retrieval":
			default:
				return fmt.Errorf("agents.%s.%s unknown kind %q", track, name, ag.Kind)
			}
		}
	}
	return nil
}

func (w *WorkflowConfig) validate() error {
	if w.DiscussionRounds < 1 {
		return fmt.Errorf("workflow.discussion_rounds must be >= 1")
	}
	switch w.ReflectionHistory {
	case ReflectionHistoryNone, ReflectionHistoryStore:
	default:
		return fmt.Errorf("workflow.reflection_history must be none or store")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	auto, review := n.ConfidenceThreshold, n.HumanReviewThreshold
	if review < 0 || auto > 1 || review > auto {
		return fmt.Errorf("notify thresholds must satisfy 0 <= human_review_threshold <= confidence_threshold <= 1 (got %.2f / %.2f)", review, auto)
	}
	if n.Telegram.Enabled {
		if n.Telegram.Token() == "" {
			return fmt.Errorf("notify.telegram enabled but bot token is empty")
		}
		if strings.TrimSpace(n.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram enabled but chat_id is empty")
		}
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if !strings.Contains(m.Symbol, "/") {
		return fmt.Errorf("market.symbol must look like BASE/QUOTE, got %q", m.Symbol)
	}
	if len(m.EnabledSources()) == 0 {
		return fmt.Errorf("market.sources requires at least one enabled source")
	}
	for _, src := range m.Sources {
		switch src.Name {
		case "binance", "okx":
		default:
			return fmt.Errorf("market.sources unknown source %q", src.Name)
		}
	}
	return nil
}

func (s *ScheduleConfig) validate() error {
	for key, raw := range map[string]string{
		"schedule.price_interval":      s.PriceInterval,
		"schedule.news_interval":       s.NewsInterval,
		"schedule.analysis_interval":   s.AnalysisInterval,
		"schedule.evaluation_interval": s.EvaluationInterval,
	} {
		if err := positiveDuration(key, raw); err != nil {
			return err
		}
	}
	return nil
}

func (e *EvaluationConfig) validate() error {
	if err := positiveDuration("evaluation.horizon", e.Horizon); err != nil {
		return err
	}
	if e.HoldBandPct < 0 {
		return fmt.Errorf("evaluation.hold_band_pct must be >= 0")
	}
	return nil
}

func positiveDuration(key, raw string) error {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s invalid duration %q: %w", key, raw, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	return nil
}
