package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type RSSFeed struct {
	Name string
	URL  string
}

// RSSSource 拉取单个 RSS 源，description 中的 HTML 用 goquery 去标签。
type RSSSource struct {
	feed   RSSFeed
	client *resty.Client
}

func NewRSSSource(feed RSSFeed, timeout time.Duration) *RSSSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; btcagent/1.0)")
	return &RSSSource{feed: feed, client: client}
}

func (s *RSSSource) Name() string {
	if s.feed.Name != "" {
		return s.feed.Name
	}
	return "rss"
}

func (s *RSSSource) Fetch(ctx context.Context) ([]Item, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.feed.URL)
	if err != nil {
		return nil, fmt.Errorf("rss %s: %w", s.Name(), err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rss %s: status=%d", s.Name(), resp.StatusCode())
	}
	return parseRSS(s.Name(), resp.Body())
}

func parseRSS(source string, raw []byte) ([]Item, error) {
	var doc rssDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("rss %s: decode: %w", source, err)
	}
	out := make([]Item, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		out = append(out, Item{
			Source:      source,
			Title:       title,
			URL:         strings.TrimSpace(it.Link),
			Content:     htmlText(it.Description),
			PublishedAt: parsePubDate(it.PubDate),
			Keywords:    []string{"BTC"},
		})
	}
	return out, nil
}

func htmlText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" || !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

var pubDateLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC3339, "Mon, 2 Jan 2006 15:04:05 -0700"}

func parsePubDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
