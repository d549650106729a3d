package agent

import (
	"fmt"
	"strings"
	"time"

	"btcagent/internal/analysis/indicator"
	"btcagent/internal/decision"
	"btcagent/internal/gateway/provider"
)

const (
	KindLLM       = "llm"
	KindRetrieval = "retrieval"
)

// Spec 描述一个注册到某轨道的 producer。
type Spec struct {
	Name    string
	Kind    string
	Model   string
	Weight  float64
	Prompt  string
	Enabled bool
}

type Deps struct {
	Providers map[string]provider.ModelProvider
	Prompts   Renderer
	Retriever Retriever
	// RetrievalLimit 检索类 producer 每次取回的历史新闻条数，0 使用默认值。
	RetrievalLimit int
	Indicators     indicator.Settings
	Now            func() time.Time
}

// Build 按注册顺序构建一个轨道的 Analyzer 列表，顺序决定共识平分时的胜者。
func Build(track Track, specs []Spec, deps Deps) ([]Analyzer, error) {
	out := make([]Analyzer, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if !s.Enabled {
			continue
		}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("%s agent 缺少 name", track)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("agent 名称重复: %s", name)
		}
		seen[name] = struct{}{}
		p := decision.Producer{Name: name, Weight: s.Weight}
		switch strings.ToLower(strings.TrimSpace(s.Kind)) {
		case KindRetrieval:
			out = append(out, NewRetrievalAnalyzer(p, deps.Retriever, deps.RetrievalLimit, deps.Now))
		case "", KindLLM:
			model, err := provider.Lookup(deps.Providers, s.Model)
			if err != nil {
				return nil, fmt.Errorf("agent %s: %w", name, err)
			}
			opts := []LLMOption{WithIndicatorSettings(deps.Indicators)}
			if deps.Now != nil {
				opts = append(opts, WithClock(deps.Now))
			}
			out = append(out, NewLLMAnalyzer(p, track, s.Prompt, model, deps.Prompts, opts...))
		default:
			return nil, fmt.Errorf("agent %s: 未知 kind %q", name, s.Kind)
		}
	}
	return out, nil
}
