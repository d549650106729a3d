package notify

import (
	"strings"
	"time"

	"btcagent/internal/pkg/text"
)

const maxStructuredMessageLen = 3800

// MessageSection 表示通知中的一个段落。
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage 统一格式的推送消息。
type StructuredMessage struct {
	Icon      string
	Title     string
	Banner    string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// Subject 返回标题行（图标 + 标题）。
func (m StructuredMessage) Subject() string {
	return strings.TrimSpace(strings.TrimSpace(m.Icon) + " " + strings.TrimSpace(m.Title))
}

// RenderMarkdown 生成 Telegram 旧版 Markdown 文本，超长时截断。
// 代码块外的正文会转义 _ * ` [，代码块内原样输出。
func (m StructuredMessage) RenderMarkdown() string {
	var b strings.Builder
	if header := m.Subject(); header != "" {
		b.WriteString(escapeMarkdown(header) + "\n\n")
	}
	if banner := strings.TrimSpace(m.Banner); banner != "" {
		b.WriteString("*" + strings.ReplaceAll(sanitize(banner), "*", "") + "*\n\n")
	}
	if block := renderSections(m.Sections); block != "" {
		b.WriteString(block)
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(escapeMarkdown(sanitize(footer)))
		b.WriteString("\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：" + m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxStructuredMessageLen {
		body = text.Truncate(body, maxStructuredMessageLen)
	}
	return body
}

func renderSections(secs []MessageSection) string {
	var b strings.Builder
	written := 0
	for _, sec := range secs {
		lines := sanitizeLines(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		if written > 0 {
			b.WriteString("\n")
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			b.WriteString(sanitize(title))
			b.WriteString("\n")
		}
		for _, line := range lines {
			b.WriteString("- ")
			b.WriteString(sanitize(line))
			b.WriteString("\n")
		}
		written++
	}
	if written == 0 {
		return ""
	}
	return "```\n" + b.String() + "```\n\n"
}

func sanitizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
