package decision

import (
	"fmt"
	"strings"

	"btcagent/internal/pkg/text"
)

// RenderResultsTable 以纯文本形式输出一组 Analyzer 结果，供日志查看。
func RenderResultsTable(title string, results []AgentResult, maxReason int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== %s ===\n", fallback(title, "Results")))
	if len(results) == 0 {
		sb.WriteString("(none)")
		return sb.String()
	}
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("- [%s] model=%s signal=%s confidence=%.2f weight=%.2f\n",
			fallback(r.Agent, "-"), fallback(r.Model, "-"), r.Signal, r.Confidence, r.Weight))
		reason := fallback(r.Reasoning, "(no reasoning)")
		reason = text.Truncate(reason, maxReason)
		sb.WriteString(indentLines(reason, "    "))
		sb.WriteRune('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func fallback(val, def string) string {
	val = strings.TrimSpace(val)
	if val == "" {
		return def
	}
	return val
}
