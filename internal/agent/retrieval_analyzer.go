package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"btcagent/internal/decision"
	"btcagent/internal/logger"
	"btcagent/internal/news"
)

const (
	cautiousReasoning  = "Historical context suggests cautious approach"
	cautiousConfidence = 0.6
	sentimentBand      = 0.2
	defaultRetrieveN   = 20
)

// Retriever 检索与当前标题相似的历史新闻。
type Retriever interface {
	SimilarNews(ctx context.Context, titles []string, limit int) ([]news.Item, error)
}

// RetrievalAnalyzer 用历史相似新闻的情绪均值给出信号，不调用模型。
type RetrievalAnalyzer struct {
	producer  decision.Producer
	retriever Retriever
	limit     int
	now       clock
}

func NewRetrievalAnalyzer(p decision.Producer, r Retriever, limit int, now func() time.Time) *RetrievalAnalyzer {
	if p.Model == "" {
		p.Model = "rag-retrieval"
	}
	if limit <= 0 {
		limit = defaultRetrieveN
	}
	return &RetrievalAnalyzer{producer: p, retriever: r, limit: limit, now: now}
}

func (a *RetrievalAnalyzer) Producer() decision.Producer { return a.producer }

func (a *RetrievalAnalyzer) Analyze(ctx context.Context, in Input) decision.AgentResult {
	if a.retriever == nil || len(in.News) == 0 {
		return a.producer.NewResult(decision.SignalHold, cautiousConfidence, cautiousReasoning, a.now.now())
	}
	titles := make([]string, 0, len(in.News))
	for _, it := range in.News {
		if t := strings.TrimSpace(it.Title); t != "" {
			titles = append(titles, t)
		}
	}
	matches, err := a.retriever.SimilarNews(ctx, titles, a.limit)
	if err != nil {
		logger.Warnf("[%s] 历史检索失败: %v", a.producer.Name, err)
		return a.producer.Degraded(failureText("retrieval", err), a.now.now())
	}
	var sum float64
	n := 0
	for _, m := range matches {
		if m.Sentiment == nil {
			continue
		}
		sum += *m.Sentiment
		n++
	}
	if n == 0 {
		return a.producer.NewResult(decision.SignalHold, cautiousConfidence, cautiousReasoning, a.now.now())
	}
	avg := sum / float64(n)
	sig := decision.SignalHold
	switch {
	case avg > sentimentBand:
		sig = decision.SignalBuy
	case avg < -sentimentBand:
		sig = decision.SignalSell
	}
	reasoning := fmt.Sprintf("%d similar historical items, average sentiment %.3f", n, avg)
	return a.producer.NewResult(sig, 0.5+math.Abs(avg)/2, reasoning, a.now.now())
}
