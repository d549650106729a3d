package market

import "context"

// Source 拉取历史 K 线的行情源。
type Source interface {
	Name() string
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}
