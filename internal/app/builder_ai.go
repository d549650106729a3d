package app

import (
	"fmt"
	"time"

	brcfg "btcagent/internal/config"
	"btcagent/internal/gateway/provider"
	"btcagent/internal/logger"
	"btcagent/internal/metrics"
	"btcagent/internal/pkg/circuit"
)

func buildModelProviders(cfg brcfg.AIConfig, m *metrics.Metrics) (map[string]provider.ModelProvider, error) {
	resolved, err := cfg.ResolveModels()
	if err != nil {
		return nil, err
	}
	models := make([]provider.ModelCfg, 0, len(resolved))
	for _, r := range resolved {
		if r.Enabled && r.APIKey == "" {
			logger.Warnf("模型 %s 未配置 API Key，调用将失败并降级", r.ID)
		}
		models = append(models, provider.ModelCfg{
			ID:                r.ID,
			Provider:          r.Provider,
			APIURL:            r.APIURL,
			APIKey:            r.APIKey,
			Model:             r.Model,
			Enabled:           r.Enabled,
			Temperature:       r.Temperature,
			Headers:           r.Headers,
			RequestsPerMinute: r.RequestsPerMinute,
		})
	}
	providers := provider.BuildProvidersFromConfig(models, provider.FactoryOptions{
		Timeout:          time.Duration(cfg.TimeoutSeconds) * time.Second,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.BreakerCooldownSeconds) * time.Second,
		OnBreakerChange: func(name string, from, to circuit.State) {
			logger.Warnf("熔断器 %s: %s -> %s", name, from, to)
			m.BreakerTransition(name, to.String())
		},
	})
	if len(providers) == 0 {
		return nil, fmt.Errorf("没有启用的模型，请检查 ai.models")
	}
	return providers, nil
}
