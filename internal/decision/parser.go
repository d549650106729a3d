package decision

import (
	"fmt"
	"strings"
	"time"

	"btcagent/internal/pkg/jsonutil"

	"github.com/tidwall/gjson"
)

// ParseVerdict 从模型文本中解析 {signal, confidence, reasoning, key_points, disagreements}。
// signalKeys 指定信号字段的候选名（讨论阶段模型常用 consensus）。
func ParseVerdict(raw string, signalKeys ...string) (Verdict, error) {
	block, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return Verdict{}, fmt.Errorf("未找到 JSON 对象")
	}
	obj, err := coerceReply(block, signalKeys...)
	if err != nil {
		return Verdict{}, err
	}
	if err := ValidateReply(obj); err != nil {
		return Verdict{}, err
	}
	v := Verdict{
		Signal:        Signal(obj["signal"].(string)),
		Confidence:    Clamp01(obj["confidence"].(float64)),
		KeyPoints:     toStrings(obj["key_points"]),
		Disagreements: toStrings(obj["disagreements"]),
	}
	if s, ok := obj["reasoning"].(string); ok {
		v.Reasoning = s
	}
	if strings.TrimSpace(v.Reasoning) == "" {
		v.Reasoning = v.summary()
	}
	if strings.TrimSpace(v.Reasoning) == "" {
		v.Reasoning = strings.TrimSpace(raw)
	}
	return v, nil
}

func (v Verdict) summary() string {
	var b strings.Builder
	if len(v.KeyPoints) > 0 {
		b.WriteString("Key points: ")
		b.WriteString(strings.Join(v.KeyPoints, "; "))
	}
	if len(v.Disagreements) > 0 {
		if b.Len() > 0 {
			b.WriteString(". ")
		}
		b.WriteString("Disagreements: ")
		b.WriteString(strings.Join(v.Disagreements, "; "))
	}
	return b.String()
}

// ParseAgentReply parses a model reply into an AgentResult for p. Any parse
// failure yields the degraded HOLD result carrying the raw text; the second
// return value reports whether parsing succeeded.
func ParseAgentReply(p Producer, raw string, now time.Time, signalKeys ...string) (AgentResult, bool) {
	v, err := ParseVerdict(raw, signalKeys...)
	if err != nil {
		return p.Degraded(raw, now), false
	}
	return p.NewResult(v.Signal, v.Confidence, v.Reasoning, now), true
}

// DegradedReflection 解析失败时的反思默认值。
func DegradedReflection(raw string) Reflection {
	return Reflection{
		AdjustedConfidence: DefaultConfidence,
		WeightAdjustments:  map[string]float64{},
		Insights:           strings.TrimSpace(raw),
	}
}

// ParseReflection parses {adjusted_confidence, weight_adjustments, insights}.
func ParseReflection(raw string) (Reflection, error) {
	block, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return Reflection{}, fmt.Errorf("未找到 JSON 对象")
	}
	if !gjson.Valid(block) {
		return Reflection{}, fmt.Errorf("json 格式无效")
	}
	parsed := gjson.Parse(block)
	obj := map[string]any{}
	if v := parsed.Get("adjusted_confidence"); v.Exists() {
		conf, err := coerceConfidence(v)
		if err != nil {
			return Reflection{}, err
		}
		obj["adjusted_confidence"] = conf
	}
	adjustments := map[string]any{}
	out := Reflection{WeightAdjustments: map[string]float64{}}
	if v := parsed.Get("weight_adjustments"); v.Exists() {
		if !v.IsObject() {
			return Reflection{}, fmt.Errorf("weight_adjustments 需为对象")
		}
		var convErr error
		v.ForEach(func(key, val gjson.Result) bool {
			if val.Type != gjson.Number {
				convErr = fmt.Errorf("weight_adjustments.%s 需为数字", key.String())
				return false
			}
			adjustments[key.String()] = val.Float()
			out.WeightAdjustments[key.String()] = val.Float()
			return true
		})
		if convErr != nil {
			return Reflection{}, convErr
		}
	}
	obj["weight_adjustments"] = adjustments
	if v := parsed.Get("insights"); v.Exists() {
		obj["insights"] = v.String()
		out.Insights = strings.TrimSpace(v.String())
	}
	if err := ValidateReflection(obj); err != nil {
		return Reflection{}, err
	}
	out.AdjustedConfidence = obj["adjusted_confidence"].(float64)
	if out.Insights == "" {
		out.Insights = strings.TrimSpace(raw)
	}
	return out, nil
}

func toStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
