package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigPrefersFlagThenEnv(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`
ai:
  models:
    - id: openai
      provider: openai
      api_url: https://api.openai.com/v1
      api_key: sk-test
      model: gpt-4o
agents:
  technical:
    - name: TechAgent
      model: openai
      prompt: technical
  news:
    - name: NewsAgent
      model: openai
      prompt: news
app:
  env: test
storage:
  path: ` + filepath.Join(dir, "t.db") + `
`)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	t.Setenv("BTCAGENT_CONFIG", path)
	cfg, err := loadConfig(&rootOptions{})
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.App.Env)

	_, err = loadConfig(&rootOptions{configPath: filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "analyze", "evaluate", "collect"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
