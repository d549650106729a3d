package workflow

import (
	"errors"
	"fmt"

	"btcagent/internal/decision"
	"btcagent/internal/market"
	"btcagent/internal/news"
)

var (
	// ErrSlotWritten 同一运行内某个槽位被写入第二次。
	ErrSlotWritten = errors.New("run state slot already written")
	// ErrSlotEmpty 读取了尚未写入的槽位。
	ErrSlotEmpty = errors.New("run state slot not written")
)

// slot 写一次、写后可读的单值容器。
type slot[T any] struct {
	name  string
	value T
	set   bool
}

func (s *slot[T]) put(v T) error {
	if s.set {
		return fmt.Errorf("%s: %w", s.name, ErrSlotWritten)
	}
	s.value = v
	s.set = true
	return nil
}

func (s *slot[T]) get() (T, error) {
	if !s.set {
		var zero T
		return zero, fmt.Errorf("%s: %w", s.name, ErrSlotEmpty)
	}
	return s.value, nil
}

// RunState 单次运行的工作内存：输入快照 + 按阶段划分的写一次槽位。
// 只由一个 Orchestrator.Run 持有，阶段顺序保证读写先后，因此无需加锁。
type RunState struct {
	RunID  string
	Prices []market.Candle
	News   []news.Item

	technical          slot[[]decision.AgentResult]
	newsResults        slot[[]decision.AgentResult]
	technicalConsensus slot[decision.AgentResult]
	newsConsensus      slot[decision.AgentResult]
	initialDecision    slot[decision.AgentResult]
	discussion         slot[decision.AgentResult]
	rounds             slot[[]DiscussionRound]
	reflection         slot[decision.Reflection]
}

func newRunState(runID string, prices []market.Candle, items []news.Item) *RunState {
	return &RunState{
		RunID:              runID,
		Prices:             prices,
		News:               items,
		technical:          slot[[]decision.AgentResult]{name: "technical_results"},
		newsResults:        slot[[]decision.AgentResult]{name: "news_results"},
		technicalConsensus: slot[decision.AgentResult]{name: "technical_consensus"},
		newsConsensus:      slot[decision.AgentResult]{name: "news_consensus"},
		initialDecision:    slot[decision.AgentResult]{name: "initial_decision"},
		discussion:         slot[decision.AgentResult]{name: "discussion_outcome"},
		rounds:             slot[[]DiscussionRound]{name: "discussion_rounds"},
		reflection:         slot[decision.Reflection]{name: "reflection"},
	}
}

// Report 整次运行的结构化结果包，持久化为 agents_consensus，也用于通知。
type Report struct {
	RunID              string                 `json:"run_id"`
	Technical          []decision.AgentResult `json:"technical_results"`
	News               []decision.AgentResult `json:"news_results"`
	TechnicalConsensus decision.AgentResult   `json:"technical_consensus"`
	NewsConsensus      decision.AgentResult   `json:"news_consensus"`
	InitialDecision    decision.AgentResult   `json:"initial_decision"`
	Discussion         []DiscussionRound      `json:"discussion_history"`
	Reflection         decision.Reflection    `json:"reflection"`
	Final              decision.AgentResult   `json:"final"`
}

// report 提取结果包；任何槽位缺失都说明阶段顺序被破坏。
func (s *RunState) report() (Report, error) {
	var (
		r   = Report{RunID: s.RunID}
		err error
	)
	if r.Technical, err = s.technical.get(); err != nil {
		return Report{}, err
	}
	if r.News, err = s.newsResults.get(); err != nil {
		return Report{}, err
	}
	if r.TechnicalConsensus, err = s.technicalConsensus.get(); err != nil {
		return Report{}, err
	}
	if r.NewsConsensus, err = s.newsConsensus.get(); err != nil {
		return Report{}, err
	}
	if r.InitialDecision, err = s.initialDecision.get(); err != nil {
		return Report{}, err
	}
	if r.Discussion, err = s.rounds.get(); err != nil {
		return Report{}, err
	}
	if r.Reflection, err = s.reflection.get(); err != nil {
		return Report{}, err
	}
	if r.Final, err = s.discussion.get(); err != nil {
		return Report{}, err
	}
	return r, nil
}
