package notify

import (
	"fmt"
	"strings"
	"time"

	"btcagent/internal/decision"

	"github.com/shopspring/decimal"
)

const (
	autoSubject   = "BTC交易信号"
	reviewSubject = "BTC信号待审核"
	reviewBanner  = "⚠️ 此信号置信度中等，建议人工审核后决策"
)

// Payload 通知内容：最终信号、可选的当前价格以及本次运行的结果包。
type Payload struct {
	RunID      string
	Signal     decision.Signal
	Confidence float64
	Price      *decimal.Decimal
	Reasoning  string
	// Results 按展示顺序排列的各阶段结果（producer 结果、共识、决策）。
	Results   []decision.AgentResult
	Timestamp time.Time
}

// BuildMessage 按分级生成消息；SUPPRESS 返回 false。
func BuildMessage(tier Tier, p Payload) (StructuredMessage, bool) {
	head := fmt.Sprintf("：%s (置信度: %s)", p.Signal, pct(p.Confidence))
	msg := StructuredMessage{Timestamp: p.Timestamp}
	switch tier {
	case TierAuto:
		msg.Icon = "🚨"
		msg.Title = autoSubject + head
	case TierReview:
		msg.Icon = "⚠️"
		msg.Title = reviewSubject + head
		msg.Banner = reviewBanner
	default:
		return StructuredMessage{}, false
	}
	overview := []string{
		"信号：" + string(p.Signal),
		"置信度：" + pct(p.Confidence),
		"当前价格：" + priceText(p.Price),
	}
	msg.Sections = append(msg.Sections,
		MessageSection{Title: "概览", Lines: overview},
		MessageSection{Title: "分析推理", Lines: []string{orNA(p.Reasoning)}},
	)
	// 完整的 Agent 共识只在 AUTO 通知中展示。
	if tier == TierAuto && len(p.Results) > 0 {
		lines := make([]string, 0, len(p.Results))
		for _, r := range p.Results {
			lines = append(lines, fmt.Sprintf("%s: %s %s (w=%.2f)", r.Agent, r.Signal, pct(r.Confidence), r.Weight))
		}
		msg.Sections = append(msg.Sections, MessageSection{Title: "Agent共识", Lines: lines})
	}
	if p.RunID != "" {
		msg.Footer = "run: " + p.RunID
	}
	return msg, true
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func priceText(p *decimal.Decimal) string {
	if p == nil || p.IsZero() {
		return "N/A"
	}
	return "$" + p.StringFixed(2)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
