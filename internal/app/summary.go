package app

import (
	"fmt"
	"sort"
	"strings"

	brcfg "btcagent/internal/config"
	"btcagent/internal/gateway/provider"
	"btcagent/internal/notify"
)

type StartupSummary struct {
	Market     MarketSummary
	Models     []string
	Technical  []AgentLine
	News       []AgentLine
	Workflow   WorkflowSummary
	Notify     NotifySummary
	Schedule   brcfg.ScheduleConfig
	HTTPAddr   string
	Storage    string
	NewsInputs []string
}

type MarketSummary struct {
	Symbol   string
	Interval string
	Sources  []string
	Limit    int
}

type AgentLine struct {
	Name    string
	Kind    string
	Model   string
	Weight  float64
	Enabled bool
}

type WorkflowSummary struct {
	Rounds     int
	Decision   string
	Discussion string
	Reflection string
	History    string
}

type NotifySummary struct {
	Auto    float64
	Review  float64
	Senders []string
}

func buildSummary(cfg *brcfg.Config, providers map[string]provider.ModelProvider, senders []notify.Sender) *StartupSummary {
	s := &StartupSummary{
		Market: MarketSummary{
			Symbol:   cfg.Market.Symbol,
			Interval: cfg.Market.Interval,
			Limit:    cfg.Market.HistoryLimit,
		},
		Workflow: WorkflowSummary{
			Rounds:     cfg.Workflow.DiscussionRounds,
			Decision:   cfg.Workflow.DecisionModel,
			Discussion: cfg.Workflow.DiscussionModel,
			Reflection: cfg.Workflow.ReflectionModel,
			History:    cfg.Workflow.ReflectionHistory,
		},
		Notify: NotifySummary{
			Auto:   cfg.Notify.ConfidenceThreshold,
			Review: cfg.Notify.HumanReviewThreshold,
		},
		Schedule: cfg.Schedule,
		HTTPAddr: cfg.App.HTTPAddr,
		Storage:  cfg.Storage.Path,
	}
	for _, src := range cfg.Market.EnabledSources() {
		s.Market.Sources = append(s.Market.Sources, src.Name)
	}
	for id := range providers {
		s.Models = append(s.Models, id)
	}
	sort.Strings(s.Models)
	s.Technical = agentLines(cfg.Agents.Technical, cfg.Agents.DefaultWeight)
	s.News = agentLines(cfg.Agents.News, cfg.Agents.DefaultWeight)
	for _, snd := range senders {
		s.Notify.Senders = append(s.Notify.Senders, snd.Name())
	}
	if cfg.News.CryptoPanic.Enabled {
		s.NewsInputs = append(s.NewsInputs, "cryptopanic")
	}
	for _, feed := range cfg.News.RSS {
		s.NewsInputs = append(s.NewsInputs, "rss:"+feed.Name)
	}
	if cfg.News.FearGreed.Enabled {
		s.NewsInputs = append(s.NewsInputs, "fear_greed")
	}
	return s
}

func agentLines(list []brcfg.AgentConfig, def float64) []AgentLine {
	out := make([]AgentLine, 0, len(list))
	for _, a := range list {
		out = append(out, AgentLine{
			Name:    a.Name,
			Kind:    a.Kind,
			Model:   a.Model,
			Weight:  a.EffectiveWeight(def),
			Enabled: a.IsEnabled(),
		})
	}
	return out
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[行情 (MARKET)]")
	fmt.Printf("  交易对: %s  周期: %s  拉取: %d\n", s.Market.Symbol, s.Market.Interval, s.Market.Limit)
	fmt.Printf("  数据源: %s\n", formatList(s.Market.Sources))
	fmt.Printf("  新闻源: %s\n", formatList(s.NewsInputs))
	fmt.Println()

	fmt.Println("[模型 (MODELS)]")
	fmt.Printf("  已启用: %s\n", formatList(s.Models))
	fmt.Println()

	fmt.Println("[分析智能体 (AGENTS)]")
	printAgents("技术面", s.Technical)
	printAgents("新闻面", s.News)
	fmt.Println()

	fmt.Println("[工作流 (WORKFLOW)]")
	fmt.Printf("  讨论轮数: %d\n", s.Workflow.Rounds)
	fmt.Printf("  决策/讨论/反思模型: %s / %s / %s\n", s.Workflow.Decision, s.Workflow.Discussion, s.Workflow.Reflection)
	fmt.Printf("  反思历史: %s\n", s.Workflow.History)
	fmt.Println()

	fmt.Println("[通知 (NOTIFY)]")
	fmt.Printf("  自动推送 ≥ %.2f，人工复核 ≥ %.2f\n", s.Notify.Auto, s.Notify.Review)
	fmt.Printf("  通道: %s\n", formatList(s.Notify.Senders))
	fmt.Println()

	fmt.Println("[调度 (SCHEDULE)]")
	fmt.Printf("  行情 %s | 新闻 %s | 分析 %s | 评估 %s | 启动即执行: %v\n",
		s.Schedule.PriceInterval, s.Schedule.NewsInterval, s.Schedule.AnalysisInterval,
		s.Schedule.EvaluationInterval, s.Schedule.RunImmediately)
	fmt.Printf("  HTTP: %s  数据库: %s\n", s.HTTPAddr, s.Storage)
	fmt.Println(strings.Repeat("=", 80))
}

func printAgents(title string, list []AgentLine) {
	fmt.Printf("  %s:\n", title)
	if len(list) == 0 {
		fmt.Println("    - (无)")
		return
	}
	for _, a := range list {
		state := ""
		if !a.Enabled {
			state = " (已禁用)"
		}
		model := a.Model
		if model == "" {
			model = "-"
		}
		fmt.Printf("    - %s [%s] model=%s weight=%.2f%s\n", a.Name, a.Kind, model, a.Weight, state)
	}
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "(无)"
	}
	return strings.Join(items, ", ")
}
