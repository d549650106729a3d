package news

import (
	"context"
	"fmt"
	"sort"

	"btcagent/internal/logger"
	"btcagent/internal/metrics"

	"golang.org/x/sync/errgroup"
)

type Collector struct {
	sources  []Source
	maxItems int
	metrics  *metrics.Metrics
}

func NewCollector(m *metrics.Metrics, maxItems int, sources ...Source) *Collector {
	return &Collector{sources: sources, maxItems: maxItems, metrics: m}
}

// Collect fetches every source concurrently, drops duplicates (by URL, then
// title) and returns newest first, capped at maxItems.
func (c *Collector) Collect(ctx context.Context) ([]Item, error) {
	if len(c.sources) == 0 {
		return nil, fmt.Errorf("no news source configured")
	}
	results := make([][]Item, len(c.sources))
	errs := make([]error, len(c.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		i, src := i, src
		g.Go(func() error {
			items, err := src.Fetch(gctx)
			if err != nil {
				errs[i] = err
				logger.Warnf("新闻源 %s 拉取失败: %v", src.Name(), err)
				return nil
			}
			results[i] = items
			c.metrics.AddCollected("news", src.Name(), len(items))
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]struct{})
	var out []Item
	failed := 0
	for i := range c.sources {
		if errs[i] != nil {
			failed++
			continue
		}
		for _, it := range results[i] {
			key := it.DedupeKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, it)
		}
	}
	if failed == len(c.sources) {
		return nil, fmt.Errorf("all news sources failed: %w", errs[0])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if c.maxItems > 0 && len(out) > c.maxItems {
		out = out[:c.maxItems]
	}
	return out, nil
}
