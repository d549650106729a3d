package workflow

import (
	"context"
	"time"

	"btcagent/internal/decision"
	"btcagent/internal/logger"
	"btcagent/internal/metrics"
)

const (
	DefaultRounds       = 3
	DiscussionAgentName = "DiscussionAgent"
)

// DiscussionRound 一轮讨论：轮次、当轮输入快照、主持人原始回复。
type DiscussionRound struct {
	Round   int                    `json:"round"`
	Results []decision.AgentResult `json:"results"`
	Summary string                 `json:"summary"`
}

// discussionLoop ROUND_0 → … → ROUND_{R-1} → DONE。
// 每轮都执行，不因提前一致而退出；中间轮次只作为历史上下文，最后一轮在 DONE 时解析。
type discussionLoop struct {
	moderator Moderator
	rounds    int
	timeout   time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

func (l discussionLoop) run(ctx context.Context, runID string, results []decision.AgentResult) (decision.AgentResult, []DiscussionRound) {
	rounds := l.rounds
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	history := make([]DiscussionRound, 0, rounds)
	for i := 0; i < rounds; i++ {
		snapshot := append([]decision.AgentResult(nil), results...)
		in := DiscussionInput{
			RunID:   runID,
			Round:   i + 1,
			Rounds:  rounds,
			Results: snapshot,
			History: append([]DiscussionRound(nil), history...),
		}
		text, err := bounded(ctx, l.timeout, func(c context.Context) (string, error) {
			return l.moderator.Discuss(c, in)
		})
		if err != nil {
			logger.ForRun(runID).Warnf("第 %d/%d 轮讨论失败: %v", i+1, rounds, err)
			text = failureText("discussion round", err)
		}
		history = append(history, DiscussionRound{Round: i + 1, Results: snapshot, Summary: text})
	}

	producer := decision.Producer{
		Name:   DiscussionAgentName,
		Model:  modelLabel(l.moderator, "discussion"),
		Weight: 1.0,
	}
	last := history[len(history)-1].Summary
	res, ok := decision.ParseAgentReply(producer, last, l.now(), "consensus", "signal")
	if !ok {
		logger.ForRun(runID).Warnf("讨论结论无法解析，降级为 HOLD")
		l.metrics.IncDegraded(DiscussionAgentName)
	}
	return res, history
}
