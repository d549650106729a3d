package market

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"btcagent/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2"
)

const binanceMaxLimit = 1000

type BinanceConfig struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
}

// BinanceSource 基于 go-binance 现货 K 线接口。
type BinanceSource struct {
	client *binance.Client
	now    func() time.Time
}

func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	client := binance.NewClient("", "")
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = strings.TrimRight(base, "/")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceSource{client: client, now: time.Now}
}

func (s *BinanceSource) Name() string { return "binance" }

func (s *BinanceSource) FetchHistory(ctx context.Context, sym, interval string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > binanceMaxLimit {
		limit = binanceMaxLimit
	}
	parsed := symbol.Parse(sym)
	if parsed.Binance() == "" {
		return nil, fmt.Errorf("invalid symbol: %q", sym)
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	dur, ok := ParseInterval(interval)
	if !ok {
		return nil, fmt.Errorf("invalid interval: %q", interval)
	}
	kls, err := s.client.NewKlinesService().
		Symbol(parsed.Binance()).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines: %w", err)
	}
	out := make([]Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, Candle{
			Source:    s.Name(),
			Symbol:    parsed.Internal(),
			Interval:  interval,
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return DropUnclosed(out, dur, s.now()), nil
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
