package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"btcagent/internal/decision"
	"btcagent/internal/gateway/provider"
	"btcagent/internal/market"
	"btcagent/internal/news"
	"btcagent/internal/prompt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func nowFn() time.Time { return fixedNow }

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) ID() string { return "mock-model" }
func (m *MockProvider) Call(ctx context.Context, payload provider.ChatPayload) (string, error) {
	args := m.Called(ctx, payload)
	return args.String(0), args.Error(1)
}

type stubRetriever struct {
	items []news.Item
	err   error
}

func (s stubRetriever) SimilarNews(context.Context, []string, int) ([]news.Item, error) {
	return s.items, s.err
}

func registry(t *testing.T) *prompt.Registry {
	r, err := prompt.NewRegistry("")
	require.NoError(t, err)
	return r
}

func sampleInput() Input {
	candles := make([]market.Candle, 12)
	for i := range candles {
		p := 50000 + float64(i*10)
		candles[i] = market.Candle{OpenTime: fixedNow.Add(time.Duration(i-12) * time.Hour).UnixMilli(), Open: p, High: p + 5, Low: p - 5, Close: p, Volume: 1}
	}
	items := make([]news.Item, 12)
	for i := range items {
		items[i] = news.Item{Title: "headline"}
	}
	items[0].Title = "ETF approved"
	return Input{RunID: "run-1", Symbol: "BTC/USDT", Interval: "1h", Prices: candles, News: items}
}

func TestLLMAnalyzerParsesReply(t *testing.T) {
	m := new(MockProvider)
	m.On("Call", mock.Anything, mock.MatchedBy(func(p provider.ChatPayload) bool {
		return p.ExpectJSON && p.User != ""
	})).Return(`{"signal":"BUY","confidence":0.8,"reasoning":"uptrend"}`, nil)

	a := NewLLMAnalyzer(decision.Producer{Name: "TechAgent-OpenAI", Weight: 0.5}, TrackTechnical, prompt.KeyTechnical, m, registry(t), WithClock(nowFn))
	got := a.Analyze(context.Background(), sampleInput())
	assert.Equal(t, decision.SignalBuy, got.Signal)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Equal(t, "mock-model", got.Model)
	assert.Equal(t, fixedNow, got.Timestamp)
	m.AssertExpectations(t)
}

func TestLLMAnalyzerNewsPromptCarriesFirstTenTitles(t *testing.T) {
	m := new(MockProvider)
	var user string
	m.On("Call", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		user = args.Get(1).(provider.ChatPayload).User
	}).Return(`{"signal":"SELL","confidence":0.6,"reasoning":"r"}`, nil)

	a := NewLLMAnalyzer(decision.Producer{Name: "NewsAgent-OpenAI", Weight: 0.4}, TrackNews, prompt.KeyNews, m, registry(t), WithClock(nowFn))
	got := a.Analyze(context.Background(), sampleInput())
	assert.Equal(t, decision.SignalSell, got.Signal)
	assert.Contains(t, user, "- ETF approved")
	assert.Equal(t, 10, countLines(user, "- "))
}

func TestLLMAnalyzerDegrades(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		err  error
	}{
		{name: "garbage", raw: "the market looks fine"},
		{name: "transport error", err: errors.New("timeout")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := new(MockProvider)
			m.On("Call", mock.Anything, mock.Anything).Return(tc.raw, tc.err)
			a := NewLLMAnalyzer(decision.Producer{Name: "TechAgent-Gemini", Weight: 0.5}, TrackTechnical, prompt.KeyTechnicalEN, m, registry(t), WithClock(nowFn))
			got := a.Analyze(context.Background(), sampleInput())
			assert.Equal(t, decision.SignalHold, got.Signal)
			assert.Equal(t, 0.5, got.Confidence)
			if tc.err != nil {
				assert.Contains(t, got.Reasoning, "timeout")
			} else {
				assert.Equal(t, tc.raw, got.Reasoning)
			}
		})
	}
}

func TestRetrievalAnalyzer(t *testing.T) {
	pos, neg := 0.6, -0.1
	p := decision.Producer{Name: "RAGAgent", Weight: 0.2}

	none := NewRetrievalAnalyzer(p, stubRetriever{}, 0, nowFn).Analyze(context.Background(), sampleInput())
	assert.Equal(t, decision.SignalHold, none.Signal)
	assert.Equal(t, 0.6, none.Confidence)
	assert.Equal(t, "Historical context suggests cautious approach", none.Reasoning)
	assert.Equal(t, "rag-retrieval", none.Model)

	got := NewRetrievalAnalyzer(p, stubRetriever{items: []news.Item{{Sentiment: &pos}, {Sentiment: &pos}, {Sentiment: &neg}, {}}}, 0, nowFn).
		Analyze(context.Background(), sampleInput())
	assert.Equal(t, decision.SignalBuy, got.Signal)
	assert.InDelta(t, 0.5+(1.1/3)/2, got.Confidence, 1e-9)

	failed := NewRetrievalAnalyzer(p, stubRetriever{err: errors.New("db locked")}, 0, nowFn).Analyze(context.Background(), sampleInput())
	assert.Equal(t, decision.SignalHold, failed.Signal)
	assert.Equal(t, 0.5, failed.Confidence)
}

func TestBuildKeepsRegistrationOrder(t *testing.T) {
	providers := map[string]provider.ModelProvider{"openai": new(MockProvider), "gemini": new(MockProvider)}
	as, err := Build(TrackNews, []Spec{
		{Name: "NewsAgent-OpenAI", Model: "openai", Weight: 0.4, Enabled: true},
		{Name: "Disabled", Model: "openai", Enabled: false},
		{Name: "NewsAgent-Gemini", Model: "gemini", Weight: 0.4, Prompt: prompt.KeyNewsEN, Enabled: true},
		{Name: "RAGAgent", Kind: KindRetrieval, Weight: 0.2, Enabled: true},
	}, Deps{Providers: providers, Prompts: registry(t), Now: nowFn})
	require.NoError(t, err)
	require.Len(t, as, 3)
	assert.Equal(t, "NewsAgent-OpenAI", as[0].Producer().Name)
	assert.Equal(t, "NewsAgent-Gemini", as[1].Producer().Name)
	assert.Equal(t, "RAGAgent", as[2].Producer().Name)

	_, err = Build(TrackNews, []Spec{{Name: "x", Model: "missing", Enabled: true}}, Deps{Providers: providers})
	assert.Error(t, err)
	_, err = Build(TrackNews, []Spec{{Name: "x", Kind: "oracle", Enabled: true}}, Deps{Providers: providers})
	assert.Error(t, err)
}

func countLines(s, prefix string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}
