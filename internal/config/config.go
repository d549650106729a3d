package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量覆盖前缀，例如 BTCAGENT_APP_LOG_LEVEL。
const EnvPrefix = "BTCAGENT"

// envOverrides 允许用环境变量覆盖的标量配置项。
var envOverrides = []string{
	"app.env",
	"app.log_level",
	"app.http_addr",
	"app.log_path",
	"storage.path",
	"market.symbol",
	"market.interval",
	"workflow.discussion_rounds",
	"workflow.reflection_history",
	"notify.confidence_threshold",
	"notify.human_review_threshold",
	"notify.telegram.enabled",
	"notify.telegram.chat_id",
	"schedule.run_immediately",
	"prompts_path",
}

// Load 读取配置文件（支持 include 合并与环境变量覆盖），补默认值并校验。
func Load(path string) (*Config, error) {
	files, err := newIncludeResolver().resolve(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, f := range files {
		if err := v.MergeConfigMap(f.settings); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", f.path, err)
		}
	}
	setKeys := make(keySet)
	collectSettingsKeys(v.AllSettings(), setKeys)
	bindEnvOverrides(v, setKeys)

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindEnvOverrides 只绑定已设置的环境变量，并把对应 key 视为显式配置。
func bindEnvOverrides(v *viper.Viper, keys keySet) {
	for _, key := range envOverrides {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, ok := os.LookupEnv(name); !ok {
			continue
		}
		_ = v.BindEnv(key, name)
		keys.mark(key)
	}
}

type configFile struct {
	path     string
	settings map[string]any
}

// includeResolver 深度优先展开 include，被包含的文件先于包含者合并。
type includeResolver struct {
	seen  map[string]bool
	stack map[string]bool
}

func newIncludeResolver() *includeResolver {
	return &includeResolver{seen: map[string]bool{}, stack: map[string]bool{}}
}

func (r *includeResolver) resolve(path string) ([]configFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return r.visit(abs)
}

func (r *includeResolver) visit(path string) ([]configFile, error) {
	path = filepath.Clean(path)
	if r.stack[path] {
		return nil, fmt.Errorf("include cycle detected: %s", path)
	}
	if r.seen[path] {
		return nil, nil
	}
	r.stack[path] = true
	defer delete(r.stack, path)

	settings, includes, err := readConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var ordered []configFile
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		sub, err := r.visit(inc)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, sub...)
	}
	r.seen[path] = true
	return append(ordered, configFile{path: path, settings: settings}), nil
}

// readConfigFile 读取单个文件，返回去掉 include 后的设置与 include 列表。
func readConfigFile(path string) (map[string]any, []string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, err
	}
	settings := v.AllSettings()
	includes, err := parseIncludeList(settings["include"])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing include failed: %w", err)
	}
	delete(settings, "include")
	return settings, includes, nil
}

func parseIncludeList(raw any) ([]string, error) {
	var items []any
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("include must be a string array")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func collectSettingsKeys(settings map[string]any, dest keySet) {
	if dest == nil || len(settings) == 0 {
		return
	}
	flattenConfigKeys("", settings, dest)
}

// flattenConfigKeys 记录所有叶子路径；列表路径本身也会被记录。
func flattenConfigKeys(prefix string, node any, dest keySet) {
	join := func(k string) string {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch val := node.(type) {
	case map[string]any:
		for k, child := range val {
			if next := join(k); next != "" {
				flattenConfigKeys(next, child, dest)
			}
		}
	case map[any]any:
		for k, child := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			if next := join(ks); next != "" {
				flattenConfigKeys(next, child, dest)
			}
		}
	case []any:
		dest.mark(prefix)
		for _, item := range val {
			flattenConfigKeys(prefix, item, dest)
		}
	default:
		dest.mark(prefix)
	}
}
