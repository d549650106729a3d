package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"btcagent/internal/market"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SavePrices 写入 K 线，同一 (source, symbol, interval, open_time) 重复写入时忽略。
// 返回新写入的条数。
func (s *Store) SavePrices(ctx context.Context, candles []market.Candle) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}
	rows := make([]priceModel, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, priceModel{
			Source:    c.Source,
			Symbol:    c.Symbol,
			Interval:  c.Interval,
			OpenTime:  c.OpenTime,
			CloseTime: c.CloseTime,
			Open:      decimal.NewFromFloat(c.Open),
			High:      decimal.NewFromFloat(c.High),
			Low:       decimal.NewFromFloat(c.Low),
			Close:     decimal.NewFromFloat(c.Close),
			Volume:    decimal.NewFromFloat(c.Volume),
			Trades:    c.Trades,
		})
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, 200)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// RecentPrices 返回最近 limit 根 K 线（按开盘时间升序）。多个数据源在同一开盘时间
// 都有记录时只保留最先写入的那条。
func (s *Store) RecentPrices(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []priceModel
	q := s.db.WithContext(ctx).Model(&priceModel{})
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if interval = strings.TrimSpace(interval); interval != "" {
		q = q.Where("interval = ?", interval)
	}
	// 多源时每根 K 线最多出现 len(sources) 次，多取一些再去重。
	if err := q.Order("open_time DESC, id ASC").Limit(limit * 4).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, limit)
	seen := make(map[int64]struct{}, limit)
	for _, r := range rows {
		if _, dup := seen[r.OpenTime]; dup {
			continue
		}
		seen[r.OpenTime] = struct{}{}
		out = append(out, r.toCandle())
		if len(out) == limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// PricePoint 一根 K 线的开盘时间与收盘价。
type PricePoint struct {
	OpenTime time.Time
	Close    decimal.Decimal
}

// PriceAt returns the close of the latest bar opened at or before at.
func (s *Store) PriceAt(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, bool, error) {
	p, ok, err := s.PointAt(ctx, symbol, at)
	return p.Close, ok, err
}

// PointAt 与 PriceAt 相同，但同时返回该 K 线的开盘时间，调用方可据此判断数据是否过旧。
func (s *Store) PointAt(ctx context.Context, symbol string, at time.Time) (PricePoint, bool, error) {
	if err := s.ready(); err != nil {
		return PricePoint{}, false, err
	}
	var row priceModel
	q := s.db.WithContext(ctx).Where("open_time <= ?", at.UnixMilli())
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	err := q.Order("open_time DESC, id ASC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PricePoint{}, false, nil
	}
	if err != nil {
		return PricePoint{}, false, err
	}
	return PricePoint{OpenTime: time.UnixMilli(row.OpenTime).UTC(), Close: row.Close}, true, nil
}

func (r priceModel) toCandle() market.Candle {
	return market.Candle{
		Source:    r.Source,
		Symbol:    r.Symbol,
		Interval:  r.Interval,
		OpenTime:  r.OpenTime,
		CloseTime: r.CloseTime,
		Open:      r.Open.InexactFloat64(),
		High:      r.High.InexactFloat64(),
		Low:       r.Low.InexactFloat64(),
		Close:     r.Close.InexactFloat64(),
		Volume:    r.Volume.InexactFloat64(),
		Trades:    r.Trades,
	}
}
