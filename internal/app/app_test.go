package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	brcfg "btcagent/internal/config"
	"btcagent/internal/gateway/provider"
	"btcagent/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct{ id string }

func (s stubModel) ID() string { return s.id }

func (s stubModel) Call(context.Context, provider.ChatPayload) (string, error) {
	return `{"signal":"HOLD","confidence":0.5,"reason":"stub"}`, nil
}

func loadTestConfig(t *testing.T, extra string) *brcfg.Config {
	t.Helper()
	dir := t.TempDir()
	body := `
ai:
  models:
    - id: openai
      provider: openai
      api_url: https://api.openai.com/v1
      api_key: sk-test
      model: gpt-4o
    - id: gemini
      provider: gemini
      api_url: https://generativelanguage.googleapis.com/v1beta/openai
      api_key: g-test
      model: gemini-1.5-pro
storage:
  path: ` + filepath.Join(dir, "test.db") + `
` + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := brcfg.Load(path)
	require.NoError(t, err)
	return cfg
}

func stubProviders(cfg brcfg.AIConfig, _ *metrics.Metrics) (map[string]provider.ModelProvider, error) {
	out := map[string]provider.ModelProvider{}
	for _, m := range cfg.Models {
		out[m.ID] = stubModel{id: m.ID}
	}
	return out, nil
}

func TestBuilderAssemblesApp(t *testing.T) {
	cfg := loadTestConfig(t, "workflow:\n  reflection_history: store\n")
	app, err := NewAppBuilder(cfg, WithProviders(stubProviders)).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	require.NotNil(t, app.Runner())
	require.NotNil(t, app.scheduler)
	require.NotNil(t, app.http)
	assert.Equal(t, ":8080", app.http.Addr())

	require.NotNil(t, app.Summary)
	assert.Equal(t, []string{"gemini", "openai"}, app.Summary.Models)
	assert.Equal(t, "BTC/USDT", app.Summary.Market.Symbol)
	assert.Equal(t, []string{"binance", "okx"}, app.Summary.Market.Sources)
	assert.Equal(t, []string{"log"}, app.Summary.Notify.Senders)
	assert.Len(t, app.Summary.Technical, 2)
	assert.Equal(t, brcfg.ReflectionHistoryStore, app.Summary.Workflow.History)
}

func TestBuilderFailsWithoutProviders(t *testing.T) {
	cfg := loadTestConfig(t, "")
	_, err := NewAppBuilder(cfg, WithProviders(func(brcfg.AIConfig, *metrics.Metrics) (map[string]provider.ModelProvider, error) {
		return map[string]provider.ModelProvider{}, nil
	})).Build(context.Background())
	require.Error(t, err)
}

func TestBuildModelProvidersRequiresEnabledModel(t *testing.T) {
	disabled := false
	_, err := buildModelProviders(brcfg.AIConfig{
		Models: []brcfg.AIModelConfig{{ID: "openai", Model: "gpt-4o", APIURL: "http://x", Enabled: &disabled}},
	}, nil)
	require.Error(t, err)

	providers, err := buildModelProviders(brcfg.AIConfig{
		TimeoutSeconds: 5,
		Models:         []brcfg.AIModelConfig{{ID: "openai", Model: "gpt-4o", APIURL: "http://x", APIKey: "k"}},
	}, metrics.New())
	require.NoError(t, err)
	assert.Contains(t, providers, "openai")
}

func TestBuildSenders(t *testing.T) {
	senders, err := buildSenders(brcfg.NotifyConfig{})
	require.NoError(t, err)
	require.Len(t, senders, 1)
	assert.Equal(t, "log", senders[0].Name())

	_, err = buildSenders(brcfg.NotifyConfig{Telegram: brcfg.TelegramConfig{Enabled: true}})
	assert.Error(t, err)

	senders, err = buildSenders(brcfg.NotifyConfig{Telegram: brcfg.TelegramConfig{Enabled: true, BotToken: "123:abc", ChatID: "42"}})
	require.NoError(t, err)
	assert.Len(t, senders, 2)
}

func TestBuildCollectorsSkipUnknownSources(t *testing.T) {
	cfg := loadTestConfig(t, "")
	cfg.Market.Sources = append(cfg.Market.Sources, brcfg.MarketSource{Name: "kraken", Enabled: true})
	assert.NotNil(t, buildPriceCollector(cfg.Market, nil))
	cfg.News.CryptoPanic.Enabled = true
	assert.NotNil(t, buildNewsCollector(cfg.News, nil))
}
