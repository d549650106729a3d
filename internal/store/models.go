package store

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// 中文说明：
// 表结构沿用整数毫秒时间戳列；价格类字段用 decimal 以 TEXT 存储，避免浮点误差。

const (
	StatusPending   = "PENDING"
	StatusEvaluated = "EVALUATED"
)

type priceModel struct {
	ID        int64           `gorm:"column:id;primaryKey"`
	Source    string          `gorm:"column:source;uniqueIndex:idx_price_bar,priority:1"`
	Symbol    string          `gorm:"column:symbol;uniqueIndex:idx_price_bar,priority:2"`
	Interval  string          `gorm:"column:interval;uniqueIndex:idx_price_bar,priority:3"`
	OpenTime  int64           `gorm:"column:open_time;uniqueIndex:idx_price_bar,priority:4;index"`
	CloseTime int64           `gorm:"column:close_time"`
	Open      decimal.Decimal `gorm:"column:open;type:TEXT"`
	High      decimal.Decimal `gorm:"column:high;type:TEXT"`
	Low       decimal.Decimal `gorm:"column:low;type:TEXT"`
	Close     decimal.Decimal `gorm:"column:close;type:TEXT"`
	Volume    decimal.Decimal `gorm:"column:volume;type:TEXT"`
	Trades    int64           `gorm:"column:trades"`
	CreatedAt int64           `gorm:"column:created_at;autoCreateTime:milli"`
}

func (priceModel) TableName() string { return "prices" }

type newsModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	DedupeKey   string         `gorm:"column:dedupe_key;uniqueIndex"`
	Source      string         `gorm:"column:source"`
	Title       string         `gorm:"column:title"`
	Content     string         `gorm:"column:content"`
	URL         string         `gorm:"column:url"`
	Sentiment   *float64       `gorm:"column:sentiment_score"`
	Keywords    datatypes.JSON `gorm:"column:keywords;type:TEXT"`
	PublishedAt int64          `gorm:"column:published_at;index"`
	CreatedAt   int64          `gorm:"column:created_at;autoCreateTime:milli"`
}

func (newsModel) TableName() string { return "news" }

type signalModel struct {
	ID              int64           `gorm:"column:id;primaryKey"`
	RunID           string          `gorm:"column:run_id;uniqueIndex"`
	Timestamp       int64           `gorm:"column:timestamp;index"`
	Symbol          string          `gorm:"column:symbol"`
	SignalType      string          `gorm:"column:signal_type"`
	Confidence      float64         `gorm:"column:confidence"`
	Price           decimal.Decimal `gorm:"column:price;type:TEXT"`
	TechnicalScore  float64         `gorm:"column:technical_score"`
	NewsScore       float64         `gorm:"column:news_score"`
	Reasoning       string          `gorm:"column:reasoning"`
	AgentsConsensus datatypes.JSON  `gorm:"column:agents_consensus;type:TEXT"`
	Tier            string          `gorm:"column:tier"`
	Status          string          `gorm:"column:status;index"`
	CreatedAt       int64           `gorm:"column:created_at;autoCreateTime:milli"`
}

func (signalModel) TableName() string { return "signals" }

type feedbackModel struct {
	ID             int64           `gorm:"column:id;primaryKey"`
	SignalID       int64           `gorm:"column:signal_id;uniqueIndex"`
	ActualOutcome  string          `gorm:"column:actual_outcome"`
	EntryPrice     decimal.Decimal `gorm:"column:entry_price;type:TEXT"`
	ExitPrice      decimal.Decimal `gorm:"column:exit_price;type:TEXT"`
	ProfitLoss     float64         `gorm:"column:profit_loss"`
	AccuracyScore  float64         `gorm:"column:accuracy_score"`
	EvaluationTime int64           `gorm:"column:evaluation_time"`
	Notes          string          `gorm:"column:notes"`
	CreatedAt      int64           `gorm:"column:created_at;autoCreateTime:milli"`
}

func (feedbackModel) TableName() string { return "feedback" }

type modelEvalModel struct {
	ID                 int64   `gorm:"column:id;primaryKey"`
	AgentName          string  `gorm:"column:agent_name;uniqueIndex:idx_model_eval,priority:1"`
	ModelName          string  `gorm:"column:model_name;uniqueIndex:idx_model_eval,priority:2"`
	EvaluationPeriod   string  `gorm:"column:evaluation_period;uniqueIndex:idx_model_eval,priority:3"`
	TotalPredictions   int     `gorm:"column:total_predictions"`
	CorrectPredictions int     `gorm:"column:correct_predictions"`
	Accuracy           float64 `gorm:"column:accuracy"`
	AvgConfidence      float64 `gorm:"column:avg_confidence"`
	Weight             float64 `gorm:"column:weight"`
	LastUpdated        int64   `gorm:"column:last_updated"`
}

func (modelEvalModel) TableName() string { return "models_eval" }

type discussionModel struct {
	ID         int64   `gorm:"column:id;primaryKey"`
	SignalID   int64   `gorm:"column:signal_id;index"`
	Round      int     `gorm:"column:round"`
	AgentName  string  `gorm:"column:agent_name"`
	Position   string  `gorm:"column:position"`
	Argument   string  `gorm:"column:argument"`
	Confidence float64 `gorm:"column:confidence"`
	CreatedAt  int64   `gorm:"column:created_at;autoCreateTime:milli"`
}

func (discussionModel) TableName() string { return "agent_discussions" }
