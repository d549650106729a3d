package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SignalRecord 一次成功运行的持久化结果。Bundle 为整次运行的结构化结果包（不透明 JSON）。
type SignalRecord struct {
	ID             int64              `json:"id"`
	RunID          string             `json:"run_id"`
	Timestamp      time.Time          `json:"timestamp"`
	Symbol         string             `json:"symbol"`
	Signal         string             `json:"signal"`
	Confidence     float64            `json:"confidence"`
	Price          decimal.Decimal    `json:"price"`
	TechnicalScore float64            `json:"technical_score"`
	NewsScore      float64            `json:"news_score"`
	Reasoning      string             `json:"reasoning"`
	Tier           string             `json:"tier"`
	Status         string             `json:"status"`
	Bundle         json.RawMessage    `json:"agents_consensus,omitempty"`
	Rounds         []DiscussionRecord `json:"rounds,omitempty"`
}

// DiscussionRecord 一轮讨论。
type DiscussionRecord struct {
	Round      int     `json:"round"`
	Agent      string  `json:"agent"`
	Position   string  `json:"position,omitempty"`
	Argument   string  `json:"argument"`
	Confidence float64 `json:"confidence"`
}

// FeedbackRecord 一条信号的事后评估。
type FeedbackRecord struct {
	SignalID      int64           `json:"signal_id"`
	ActualOutcome string          `json:"actual_outcome"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	ExitPrice     decimal.Decimal `json:"exit_price"`
	ProfitLoss    float64         `json:"profit_loss"`
	Accuracy      float64         `json:"accuracy"`
	EvaluatedAt   time.Time       `json:"evaluated_at"`
	Notes         string          `json:"notes,omitempty"`
}

// PerformanceRecord 用于反思阶段的历史表现（信号 + 评估结果）。
type PerformanceRecord struct {
	SignalID      int64     `json:"signal_id"`
	Timestamp     time.Time `json:"timestamp"`
	Signal        string    `json:"signal"`
	Confidence    float64   `json:"confidence"`
	ActualOutcome string    `json:"actual_outcome"`
	Accuracy      float64   `json:"accuracy"`
	ProfitLoss    float64   `json:"profit_loss"`
}

// ModelEvalRecord 单个 producer 在一个评估周期内的累计表现。
type ModelEvalRecord struct {
	Agent              string    `json:"agent_name"`
	Model              string    `json:"model_name"`
	Period             string    `json:"evaluation_period"`
	TotalPredictions   int       `json:"total_predictions"`
	CorrectPredictions int       `json:"correct_predictions"`
	Accuracy           float64   `json:"accuracy"`
	AvgConfidence      float64   `json:"avg_confidence"`
	Weight             float64   `json:"weight"`
	LastUpdated        time.Time `json:"last_updated"`
}

// SaveSignal 在同一事务内写入信号及其讨论轮次，成功后回填 rec.ID。
func (s *Store) SaveSignal(ctx context.Context, rec *SignalRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("signal record 不能为空")
	}
	status := rec.Status
	if status == "" {
		status = StatusPending
	}
	row := signalModel{
		RunID:           rec.RunID,
		Timestamp:       rec.Timestamp.UnixMilli(),
		Symbol:          rec.Symbol,
		SignalType:      rec.Signal,
		Confidence:      rec.Confidence,
		Price:           rec.Price,
		TechnicalScore:  rec.TechnicalScore,
		NewsScore:       rec.NewsScore,
		Reasoning:       rec.Reasoning,
		AgentsConsensus: datatypes.JSON(rec.Bundle),
		Tier:            rec.Tier,
		Status:          status,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert signal: %w", err)
		}
		if len(rec.Rounds) == 0 {
			return nil
		}
		rounds := make([]discussionModel, 0, len(rec.Rounds))
		for _, r := range rec.Rounds {
			rounds = append(rounds, discussionModel{
				SignalID:   row.ID,
				Round:      r.Round,
				AgentName:  r.Agent,
				Position:   r.Position,
				Argument:   r.Argument,
				Confidence: r.Confidence,
			})
		}
		if err := tx.Create(&rounds).Error; err != nil {
			return fmt.Errorf("insert discussion: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	rec.ID = row.ID
	rec.Status = status
	return nil
}

// LatestSignals returns the newest limit signals, newest first, without rounds.
func (s *Store) LatestSignals(ctx context.Context, limit int) ([]SignalRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	var rows []signalModel
	if err := s.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toSignalRecords(rows), nil
}

// PendingSignals returns PENDING signals created at or before cutoff, oldest first.
func (s *Store) PendingSignals(ctx context.Context, cutoff time.Time, limit int) ([]SignalRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).
		Where("status = ? AND timestamp <= ?", StatusPending, cutoff.UnixMilli()).
		Order("timestamp ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []signalModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toSignalRecords(rows), nil
}

// DiscussionRounds returns the stored rounds of one signal in round order.
func (s *Store) DiscussionRounds(ctx context.Context, signalID int64) ([]DiscussionRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []discussionModel
	if err := s.db.WithContext(ctx).Where("signal_id = ?", signalID).Order("round ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]DiscussionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, DiscussionRecord{Round: r.Round, Agent: r.AgentName, Position: r.Position, Argument: r.Argument, Confidence: r.Confidence})
	}
	return out, nil
}

// SaveFeedback 写入评估结果，并在同一事务中把信号标记为 EVALUATED。
func (s *Store) SaveFeedback(ctx context.Context, fb FeedbackRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	row := feedbackModel{
		SignalID:       fb.SignalID,
		ActualOutcome:  fb.ActualOutcome,
		EntryPrice:     fb.EntryPrice,
		ExitPrice:      fb.ExitPrice,
		ProfitLoss:     fb.ProfitLoss,
		AccuracyScore:  fb.Accuracy,
		EvaluationTime: fb.EvaluatedAt.UnixMilli(),
		Notes:          fb.Notes,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert feedback: %w", err)
		}
		res := tx.Model(&signalModel{}).
			Where("id = ?", fb.SignalID).
			Update("status", StatusEvaluated)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("signal %d 不存在", fb.SignalID)
		}
		return nil
	})
}

// PerformanceHistory returns evaluated signals, most recently evaluated first.
func (s *Store) PerformanceHistory(ctx context.Context, limit int) ([]PerformanceRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	type row struct {
		SignalID       int64
		Timestamp      int64
		SignalType     string
		Confidence     float64
		ActualOutcome  string
		AccuracyScore  float64
		ProfitLoss     float64
		EvaluationTime int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("feedback").
		Select("feedback.signal_id, signals.timestamp, signals.signal_type, signals.confidence, " +
			"feedback.actual_outcome, feedback.accuracy_score, feedback.profit_loss, feedback.evaluation_time").
		Joins("JOIN signals ON signals.id = feedback.signal_id").
		Order("feedback.evaluation_time DESC, feedback.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]PerformanceRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, PerformanceRecord{
			SignalID:      r.SignalID,
			Timestamp:     time.UnixMilli(r.Timestamp).UTC(),
			Signal:        r.SignalType,
			Confidence:    r.Confidence,
			ActualOutcome: r.ActualOutcome,
			Accuracy:      r.AccuracyScore,
			ProfitLoss:    r.ProfitLoss,
		})
	}
	return out, nil
}

// UpsertModelEvals 按 (agent, model, period) 覆盖写入评估统计。
func (s *Store) UpsertModelEvals(ctx context.Context, recs []ModelEvalRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	rows := make([]modelEvalModel, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, modelEvalModel{
			AgentName:          r.Agent,
			ModelName:          r.Model,
			EvaluationPeriod:   r.Period,
			TotalPredictions:   r.TotalPredictions,
			CorrectPredictions: r.CorrectPredictions,
			Accuracy:           r.Accuracy,
			AvgConfidence:      r.AvgConfidence,
			Weight:             r.Weight,
			LastUpdated:        r.LastUpdated.UnixMilli(),
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "agent_name"}, {Name: "model_name"}, {Name: "evaluation_period"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_predictions", "correct_predictions", "accuracy", "avg_confidence", "weight", "last_updated",
			}),
		}).
		Create(&rows).Error
}

// ModelEvals returns stored evaluations for period (all periods when empty).
func (s *Store) ModelEvals(ctx context.Context, period string) ([]ModelEvalRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Order("agent_name ASC, model_name ASC")
	if period = strings.TrimSpace(period); period != "" {
		q = q.Where("evaluation_period = ?", period)
	}
	var rows []modelEvalModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ModelEvalRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, ModelEvalRecord{
			Agent:              r.AgentName,
			Model:              r.ModelName,
			Period:             r.EvaluationPeriod,
			TotalPredictions:   r.TotalPredictions,
			CorrectPredictions: r.CorrectPredictions,
			Accuracy:           r.Accuracy,
			AvgConfidence:      r.AvgConfidence,
			Weight:             r.Weight,
			LastUpdated:        time.UnixMilli(r.LastUpdated).UTC(),
		})
	}
	return out, nil
}

func toSignalRecords(rows []signalModel) []SignalRecord {
	out := make([]SignalRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, SignalRecord{
			ID:             r.ID,
			RunID:          r.RunID,
			Timestamp:      time.UnixMilli(r.Timestamp).UTC(),
			Symbol:         r.Symbol,
			Signal:         r.SignalType,
			Confidence:     r.Confidence,
			Price:          r.Price,
			TechnicalScore: r.TechnicalScore,
			NewsScore:      r.NewsScore,
			Reasoning:      r.Reasoning,
			Tier:           r.Tier,
			Status:         r.Status,
			Bundle:         json.RawMessage(r.AgentsConsensus),
		})
	}
	return out
}
