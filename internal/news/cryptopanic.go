package news

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const cryptoPanicBaseURL = "https://cryptopanic.com/api/v1"

type CryptoPanicConfig struct {
	BaseURL    string
	APIKey     string
	Currencies string
	Filter     string
	Timeout    time.Duration
}

type CryptoPanicSource struct {
	cfg    CryptoPanicConfig
	client *resty.Client
}

type cryptoPanicVotes struct {
	Positive  int `json:"positive"`
	Negative  int `json:"negative"`
	Important int `json:"important"`
	Liked     int `json:"liked"`
	Disliked  int `json:"disliked"`
}

type cryptoPanicPost struct {
	Title       string           `json:"title"`
	URL         string           `json:"url"`
	Body        string           `json:"body"`
	PublishedAt string           `json:"published_at"`
	Votes       cryptoPanicVotes `json:"votes"`
}

type cryptoPanicResponse struct {
	Results []cryptoPanicPost `json:"results"`
}

func NewCryptoPanicSource(cfg CryptoPanicConfig) *CryptoPanicSource {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = cryptoPanicBaseURL
	}
	if cfg.Currencies == "" {
		cfg.Currencies = "BTC"
	}
	if cfg.Filter == "" {
		cfg.Filter = "important"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)
	return &CryptoPanicSource{cfg: cfg, client: client}
}

func (s *CryptoPanicSource) Name() string { return "cryptopanic" }

func (s *CryptoPanicSource) Fetch(ctx context.Context) ([]Item, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, fmt.Errorf("cryptopanic api key not configured")
	}
	var body cryptoPanicResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"auth_token": s.cfg.APIKey,
			"currencies": s.cfg.Currencies,
			"filter":     s.cfg.Filter,
			"public":     "true",
		}).
		SetResult(&body).
		Get("/posts/")
	if err != nil {
		return nil, fmt.Errorf("cryptopanic: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("cryptopanic: status=%d", resp.StatusCode())
	}
	keywords := strings.Split(s.cfg.Currencies, ",")
	out := make([]Item, 0, len(body.Results))
	for _, post := range body.Results {
		title := strings.TrimSpace(post.Title)
		if title == "" {
			continue
		}
		published, err := time.Parse(time.RFC3339, strings.TrimSpace(post.PublishedAt))
		if err != nil {
			published = time.Time{}
		}
		item := Item{
			Source:      s.Name(),
			Title:       title,
			URL:         post.URL,
			Content:     post.Body,
			PublishedAt: published.UTC(),
			Keywords:    keywords,
		}
		if score, ok := voteSentiment(post.Votes); ok {
			item.Sentiment = sentimentPtr(score)
		}
		out = append(out, item)
	}
	return out, nil
}

// voteSentiment maps community votes to [-1,1].
func voteSentiment(v cryptoPanicVotes) (float64, bool) {
	pos := float64(v.Positive + v.Liked)
	neg := float64(v.Negative + v.Disliked)
	if pos+neg == 0 {
		return 0, false
	}
	return (pos - neg) / (pos + neg), true
}
