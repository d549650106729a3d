package news

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const fearGreedEndpoint = "https://api.alternative.me/fng/?limit=1"

// FearGreedSource 把 alternative.me 恐惧贪婪指数转换为一条带情绪分的新闻条目。
type FearGreedSource struct {
	endpoint string
	client   *resty.Client
}

type fearGreedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
	Metadata struct {
		Error interface{} `json:"error"`
	} `json:"metadata"`
}

func NewFearGreedSource(endpoint string, timeout time.Duration) *FearGreedSource {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = fearGreedEndpoint
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FearGreedSource{
		endpoint: endpoint,
		client:   resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json"),
	}
}

func (s *FearGreedSource) Name() string { return "fear_greed" }

func (s *FearGreedSource) Fetch(ctx context.Context) ([]Item, error) {
	var payload fearGreedResponse
	resp, err := s.client.R().SetContext(ctx).SetResult(&payload).Get(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("fear & greed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fear & greed: unexpected status %s", resp.Status())
	}
	if payload.Metadata.Error != nil {
		return nil, fmt.Errorf("fear & greed api error: %v", payload.Metadata.Error)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("fear & greed api data empty")
	}
	latest := payload.Data[0]
	value, err := strconv.Atoi(strings.TrimSpace(latest.Value))
	if err != nil {
		return nil, fmt.Errorf("fear & greed value invalid: %q", latest.Value)
	}
	var ts time.Time
	if sec, err := strconv.ParseInt(strings.TrimSpace(latest.Timestamp), 10, 64); err == nil {
		ts = time.Unix(sec, 0).UTC()
	}
	class := strings.TrimSpace(latest.ValueClassification)
	return []Item{{
		Source:      s.Name(),
		Title:       fmt.Sprintf("Crypto Fear & Greed Index: %d (%s)", value, class),
		URL:         "https://alternative.me/crypto/fear-and-greed-index/",
		PublishedAt: ts,
		Keywords:    []string{"BTC", "sentiment"},
		Sentiment:   sentimentPtr(float64(value-50) / 50),
	}}, nil
}
