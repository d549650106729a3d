package decision

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// coerceReply 把模型返回的对象整理成规范形态：
// signal 可来自多个别名字段，confidence 兼容字符串与百分数写法。
func coerceReply(raw string, signalKeys ...string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("json 内容为空")
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("json 格式无效")
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("根节点必须是 JSON 对象")
	}
	if len(signalKeys) == 0 {
		signalKeys = []string{"signal"}
	}
	out := make(map[string]any, 5)
	for _, key := range signalKeys {
		if v := parsed.Get(key); v.Exists() && strings.TrimSpace(v.String()) != "" {
			if sig, ok := NormalizeSignal(v.String()); ok {
				out["signal"] = string(sig)
			} else {
				out["signal"] = strings.TrimSpace(v.String())
			}
			break
		}
	}
	if v := parsed.Get("confidence"); v.Exists() {
		conf, err := coerceConfidence(v)
		if err != nil {
			return nil, err
		}
		out["confidence"] = conf
	}
	if v := parsed.Get("reasoning"); v.Exists() {
		out["reasoning"] = strings.TrimSpace(v.String())
	}
	if v := parsed.Get("key_points"); v.Exists() {
		out["key_points"] = stringList(v)
	}
	if v := parsed.Get("disagreements"); v.Exists() {
		out["disagreements"] = stringList(v)
	}
	return out, nil
}

// coerceConfidence accepts 0.8, "0.8", 80 and "80%". Values in (1,100]
// are read as percentages.
func coerceConfidence(v gjson.Result) (float64, error) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Float()
	case gjson.String:
		s := strings.TrimSpace(v.String())
		pct := strings.HasSuffix(s, "%")
		s = strings.TrimSuffix(s, "%")
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("confidence 无法解析: %q", v.String())
		}
		f = parsed
		if pct {
			f /= 100
		}
	default:
		return 0, fmt.Errorf("confidence 类型无效: %s", v.Type)
	}
	if f > 1 && f <= 100 {
		f /= 100
	}
	return f, nil
}

func stringList(v gjson.Result) []any {
	if !v.IsArray() {
		if s := strings.TrimSpace(v.String()); s != "" {
			return []any{s}
		}
		return []any{}
	}
	out := make([]any, 0, len(v.Array()))
	v.ForEach(func(_, item gjson.Result) bool {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}
