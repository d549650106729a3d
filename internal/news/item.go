package news

import (
	"context"
	"strings"
	"time"
)

// Item 一条新闻，Sentiment 取值 [-1,1]，未知时为 nil。
type Item struct {
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Keywords    []string  `json:"keywords,omitempty"`
	Sentiment   *float64  `json:"sentiment_score,omitempty"`
}

// DedupeKey 去重键：优先 URL；无 URL 或指数类条目用 source|title。
func (it Item) DedupeKey() string {
	key := strings.TrimSpace(it.URL)
	if key == "" || it.Source == "fear_greed" {
		key = it.Source + "|" + strings.ToLower(strings.TrimSpace(it.Title))
	}
	return key
}

type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Item, error)
}

func sentimentPtr(v float64) *float64 {
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	return &v
}
