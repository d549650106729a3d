package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"btcagent/internal/news"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

const (
	maxSimilarKeywords = 8
	minKeywordLen      = 4
)

// SaveNews 写入新闻，按 DedupeKey 去重。返回新写入条数。
func (s *Store) SaveNews(ctx context.Context, items []news.Item) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	rows := make([]newsModel, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		row := newsModel{
			DedupeKey:   it.DedupeKey(),
			Source:      it.Source,
			Title:       strings.TrimSpace(it.Title),
			Content:     it.Content,
			URL:         it.URL,
			Sentiment:   it.Sentiment,
			PublishedAt: it.PublishedAt.UnixMilli(),
		}
		if len(it.Keywords) > 0 {
			if raw, err := json.Marshal(it.Keywords); err == nil {
				row.Keywords = datatypes.JSON(raw)
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, 100)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// RecentNews returns the newest limit items, newest first.
func (s *Store) RecentNews(ctx context.Context, limit int) ([]news.Item, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []newsModel
	if err := s.db.WithContext(ctx).Order("published_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toItems(rows), nil
}

// SimilarNews 以标题关键词做 LIKE 匹配，检索历史上相似的新闻；当前这批标题本身会被排除。
func (s *Store) SimilarNews(ctx context.Context, titles []string, limit int) ([]news.Item, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	keywords := titleKeywords(titles, maxSimilarKeywords)
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	likes := make([]string, 0, len(keywords))
	args := make([]interface{}, 0, len(keywords))
	for _, kw := range keywords {
		likes = append(likes, "LOWER(title) LIKE ?")
		args = append(args, "%"+kw+"%")
	}
	q := s.db.WithContext(ctx).Where(strings.Join(likes, " OR "), args...)
	if len(titles) > 0 {
		q = q.Where("title NOT IN ?", titles)
	}
	var rows []newsModel
	if err := q.Order("published_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toItems(rows), nil
}

func toItems(rows []newsModel) []news.Item {
	out := make([]news.Item, 0, len(rows))
	for _, r := range rows {
		it := news.Item{
			Source:      r.Source,
			Title:       r.Title,
			URL:         r.URL,
			Content:     r.Content,
			Sentiment:   r.Sentiment,
			PublishedAt: time.UnixMilli(r.PublishedAt).UTC(),
		}
		if len(r.Keywords) > 0 {
			_ = json.Unmarshal(r.Keywords, &it.Keywords)
		}
		out = append(out, it)
	}
	return out
}

var stopWords = map[string]struct{}{
	"with": {}, "from": {}, "that": {}, "this": {}, "will": {}, "have": {},
	"after": {}, "into": {}, "over": {}, "amid": {}, "says": {}, "about": {},
}

// titleKeywords 抽取标题中的关键词（小写、去重、按出现顺序），最多 n 个。
func titleKeywords(titles []string, n int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, t := range titles {
		words := strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			if len([]rune(w)) < minKeywordLen {
				continue
			}
			if _, skip := stopWords[w]; skip {
				continue
			}
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
			if len(out) == n {
				return out
			}
		}
	}
	return out
}
