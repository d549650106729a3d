package provider

import (
	"fmt"
	"strings"
	"time"

	"btcagent/internal/logger"
	"btcagent/internal/pkg/circuit"
)

type ModelCfg struct {
	ID, Provider, APIURL, APIKey, Model string
	Enabled                             bool
	Temperature                         float64
	Headers                             map[string]string
	RequestsPerMinute                   int
}

type FactoryOptions struct {
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	// OnBreakerChange 可选，用于指标与告警。
	OnBreakerChange func(name string, from, to circuit.State)
}

// BuildProvidersFromConfig 构建启用的模型，返回 id -> provider。
func BuildProvidersFromConfig(models []ModelCfg, opts FactoryOptions) map[string]ModelProvider {
	out := make(map[string]ModelProvider, len(models))
	for _, m := range models {
		if !m.Enabled {
			continue
		}
		id := strings.TrimSpace(m.ID)
		if id == "" {
			base := strings.TrimSpace(m.Provider)
			if base == "" {
				base = "provider"
			}
			if model := strings.TrimSpace(m.Model); model != "" {
				id = fmt.Sprintf("%s:%s", base, model)
			} else {
				id = base
			}
			logger.Warnf("未配置 ai.models.id，已为 %q 生成 ID: %s", m.Provider, id)
		}
		m.ID = id
		if _, dup := out[id]; dup {
			logger.Warnf("ai.models.id 重复，忽略后者: %s", id)
			continue
		}
		breaker := circuit.New("llm:"+id, opts.BreakerThreshold, opts.BreakerCooldown)
		if opts.OnBreakerChange != nil {
			breaker.OnStateChange(opts.OnBreakerChange)
		}
		out[id] = NewOpenAIChatClient(m, ClientOptions{
			Timeout:           opts.Timeout,
			RequestsPerMinute: m.RequestsPerMinute,
			Breaker:           breaker,
		})
	}
	return out
}

// Lookup returns the provider registered under id.
func Lookup(providers map[string]ModelProvider, id string) (ModelProvider, error) {
	p, ok := providers[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("model %q 未配置或未启用", id)
	}
	return p, nil
}
