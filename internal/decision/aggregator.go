package decision

import (
	"fmt"
	"strings"
	"time"
)

// 中文说明：
// 单轨道（技术面/新闻面）加权共识：score = weight × confidence，
// 按信号累加，得分最高者胜；平分时取输入顺序中最先出现的信号。

const noAnalysisReasoning = "no analysis available"

// Tally 是一次加权投票的中间结果，Order 记录信号首次出现的顺序。
type Tally struct {
	Participants int
	Order        []Signal
	Scores       map[Signal]float64
	TotalWeight  float64
}

// TallyResults accumulates weighted scores in input order.
func TallyResults(results []AgentResult) Tally {
	t := Tally{
		Participants: len(results),
		Scores:       make(map[Signal]float64, 3),
	}
	for _, r := range results {
		sig := r.Signal
		if !sig.Valid() {
			sig = SignalHold
		}
		if _, seen := t.Scores[sig]; !seen {
			t.Order = append(t.Order, sig)
		}
		t.Scores[sig] += r.Weight * r.Confidence
		t.TotalWeight += r.Weight
	}
	return t
}

// Winner returns the highest scoring signal; ties go to the signal that
// appeared first.
func (t Tally) Winner() (Signal, float64) {
	best := SignalHold
	bestScore := -1.0
	for _, sig := range t.Order {
		if s := t.Scores[sig]; s > bestScore {
			best, bestScore = sig, s
		}
	}
	if bestScore < 0 {
		return SignalHold, 0
	}
	return best, bestScore
}

// Summary renders the tally deterministically, e.g. "2 agents, weighted scores: BUY=0.4800, SELL=0.2000".
func (t Tally) Summary() string {
	parts := make([]string, 0, len(t.Order))
	for _, sig := range t.Order {
		parts = append(parts, fmt.Sprintf("%s=%.4f", sig, t.Scores[sig]))
	}
	return fmt.Sprintf("%d agents, weighted scores: %s", t.Participants, strings.Join(parts, ", "))
}

// ConsensusAggregator 把一个轨道的结果融合为单个 AgentResult。
type ConsensusAggregator struct {
	Producer Producer
	Track    string
}

// NewConsensusAggregator builds the aggregator for a named track
// ("technical" or "news").
func NewConsensusAggregator(track, name string) ConsensusAggregator {
	return ConsensusAggregator{
		Producer: Producer{Name: name, Model: "consensus", Weight: 1.0},
		Track:    track,
	}
}

// Aggregate 是纯函数：无 I/O，无副作用。
func (a ConsensusAggregator) Aggregate(results []AgentResult, now time.Time) AgentResult {
	if len(results) == 0 {
		return a.Producer.NewResult(SignalHold, DefaultConfidence, noAnalysisReasoning, now)
	}
	t := TallyResults(results)
	winner, score := t.Winner()
	confidence := DefaultConfidence
	if t.TotalWeight > 0 {
		confidence = score / t.TotalWeight
	}
	reasoning := t.Summary()
	if track := strings.TrimSpace(a.Track); track != "" {
		reasoning = track + " consensus: " + reasoning
	}
	return a.Producer.NewResult(winner, confidence, reasoning, now)
}
