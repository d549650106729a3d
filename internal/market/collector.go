package market

import (
	"context"
	"fmt"

	"btcagent/internal/logger"
	"btcagent/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// Collector 并发拉取所有行情源，单个源失败只记录日志。
type Collector struct {
	sources []Source
	metrics *metrics.Metrics
}

func NewCollector(m *metrics.Metrics, sources ...Source) *Collector {
	return &Collector{sources: sources, metrics: m}
}

// Collect returns candles of every source that answered, in source order.
// An error is returned only when no source succeeded.
func (c *Collector) Collect(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if len(c.sources) == 0 {
		return nil, fmt.Errorf("no market source configured")
	}
	results := make([][]Candle, len(c.sources))
	errs := make([]error, len(c.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		i, src := i, src
		g.Go(func() error {
			candles, err := src.FetchHistory(gctx, symbol, interval, limit)
			if err != nil {
				errs[i] = err
				logger.Warnf("行情源 %s 拉取失败: %v", src.Name(), err)
				return nil
			}
			results[i] = candles
			c.metrics.AddCollected("price", src.Name(), len(candles))
			return nil
		})
	}
	_ = g.Wait()

	var out []Candle
	failed := 0
	for i := range c.sources {
		if errs[i] != nil {
			failed++
			continue
		}
		out = append(out, results[i]...)
	}
	if failed == len(c.sources) {
		return nil, fmt.Errorf("all market sources failed: %w", errs[0])
	}
	return out, nil
}
