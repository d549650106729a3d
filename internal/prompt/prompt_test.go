package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)
	sys, user, err := r.Render(KeyDiscussion, map[string]any{"Round": 2, "Rounds": 3, "Opinions": "[]", "History": "[]"})
	require.NoError(t, err)
	assert.Contains(t, sys, "第2轮讨论（共3轮）")
	assert.Contains(t, user, "当前观点：\n[]")
	for _, key := range []string{KeyTechnical, KeyTechnicalEN, KeyNews, KeyNewsEN, KeyDecision, KeyReflection} {
		assert.True(t, r.Has(key), key)
	}
	_, _, err = r.Render("missing", nil)
	assert.Error(t, err)
}

func TestRegistryFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompts:\n  news:\n    system: \"custom {{.Symbol}}\"\n  extra:\n    system: s\n    user: u\n"), 0o644))
	r, err := NewRegistry(path)
	require.NoError(t, err)
	sys, user, err := r.Render("NEWS", map[string]any{"Symbol": "BTC/USDT", "NewsList": "- a"})
	require.NoError(t, err)
	assert.Equal(t, "custom BTC/USDT", sys)
	assert.Equal(t, "新闻列表：\n- a", user)
	assert.Contains(t, r.Snapshot().Keys, "extra")
}

func TestRegistryRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompts:\n  news:\n    sytem: typo\n"), 0o644))
	_, err := NewRegistry(path)
	assert.Error(t, err)
}
