package prompt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"btcagent/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Template 一组 system / user 提示词，两者都按 text/template 渲染。
type Template struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// FileConfig 映射覆盖文件中的 prompts 段。
type FileConfig struct {
	Prompts map[string]Template `yaml:"prompts"`
}

type compiled struct {
	system *template.Template
	user   *template.Template
}

type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Keys     []string
}

// Registry 管理提示词，覆盖文件变化时热加载；加载失败保留上一版本。
type Registry struct {
	path string

	mu        sync.RWMutex
	templates map[string]compiled
	version   int64
	loadedAt  time.Time
}

// NewRegistry returns a registry with the built-in prompts. When path is
// non-empty the file overrides them and is watched for changes.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path)}
	if err := r.reload(); err != nil {
		return nil, err
	}
	if r.path == "" {
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read prompts file failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("prompts reload failed: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.templates))
	for k := range r.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Snapshot{Version: r.version, LoadedAt: r.loadedAt, Keys: keys}
}

// Render 渲染 key 对应的提示词。
func (r *Registry) Render(key string, data any) (system, user string, err error) {
	r.mu.RLock()
	tpl, ok := r.templates[normalizeKey(key)]
	r.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("prompt %q 未定义", key)
	}
	if system, err = execute(tpl.system, data); err != nil {
		return "", "", fmt.Errorf("render %s system: %w", key, err)
	}
	if user, err = execute(tpl.user, data); err != nil {
		return "", "", fmt.Errorf("render %s user: %w", key, err)
	}
	return system, user, nil
}

func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[normalizeKey(key)]
	return ok
}

func (r *Registry) reload() error {
	merged := make(map[string]Template, len(defaultTemplates))
	for k, v := range defaultTemplates {
		merged[k] = v
	}
	if r.path != "" {
		cfg, err := readPromptFile(r.path)
		if err != nil {
			return err
		}
		for k, v := range cfg.Prompts {
			key := normalizeKey(k)
			base := merged[key]
			if strings.TrimSpace(v.System) != "" {
				base.System = v.System
			}
			if strings.TrimSpace(v.User) != "" {
				base.User = v.User
			}
			merged[key] = base
		}
	}
	out := make(map[string]compiled, len(merged))
	for key, tpl := range merged {
		c, err := compile(key, tpl)
		if err != nil {
			return err
		}
		out[key] = c
	}
	r.mu.Lock()
	r.templates = out
	r.version++
	r.loadedAt = time.Now()
	r.mu.Unlock()
	if r.path != "" {
		logger.Infof("prompt registry loaded %d prompts from %s", len(out), filepath.Base(r.path))
	}
	return nil
}

func compile(key string, tpl Template) (compiled, error) {
	sys, err := template.New(key + ".system").Option("missingkey=zero").Parse(tpl.System)
	if err != nil {
		return compiled{}, fmt.Errorf("parse prompt %s system: %w", key, err)
	}
	usr, err := template.New(key + ".user").Option("missingkey=zero").Parse(tpl.User)
	if err != nil {
		return compiled{}, fmt.Errorf("parse prompt %s user: %w", key, err)
	}
	return compiled{system: sys, user: usr}, nil
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func readPromptFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read prompts file failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse prompts file failed: %w", err)
	}
	return cfg, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
