package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"btcagent/internal/pkg/symbol"

	"github.com/go-resty/resty/v2"
)

const (
	okxDefaultBaseURL = "https://www.okx.com"
	okxMaxLimit       = 300
)

type OKXConfig struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
}

// OKXSource 拉取 OKX /api/v5/market/candles。
type OKXSource struct {
	client *resty.Client
}

type okxCandlesResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

func NewOKXSource(cfg OKXConfig) *OKXSource {
	base := strings.TrimRight(strings.TrimSpace(cfg.RESTBaseURL), "/")
	if base == "" {
		base = okxDefaultBaseURL
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(1)
	return &OKXSource{client: client}
}

func (s *OKXSource) Name() string { return "okx" }

func (s *OKXSource) FetchHistory(ctx context.Context, sym, interval string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > okxMaxLimit {
		limit = okxMaxLimit
	}
	parsed := symbol.Parse(sym)
	if parsed.OKX() == "" {
		return nil, fmt.Errorf("invalid symbol: %q", sym)
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	dur, ok := ParseInterval(interval)
	if !ok {
		return nil, fmt.Errorf("invalid interval: %q", interval)
	}
	var body okxCandlesResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"instId": parsed.OKX(),
			"bar":    okxBar(interval),
			"limit":  strconv.Itoa(limit),
		}).
		SetResult(&body).
		Get("/api/v5/market/candles")
	if err != nil {
		return nil, fmt.Errorf("okx candles: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("okx candles: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	if body.Code != "" && body.Code != "0" {
		return nil, fmt.Errorf("okx candles: code=%s msg=%s", body.Code, body.Msg)
	}
	out := make([]Candle, 0, len(body.Data))
	// data 按时间倒序返回
	for i := len(body.Data) - 1; i >= 0; i-- {
		row := body.Data[i]
		if len(row) < 6 {
			continue
		}
		// confirm=0 表示未收盘
		if len(row) >= 9 && strings.TrimSpace(row[8]) == "0" {
			continue
		}
		openTime, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Candle{
			Source:    s.Name(),
			Symbol:    parsed.Internal(),
			Interval:  interval,
			OpenTime:  openTime,
			CloseTime: openTime + dur.Milliseconds() - 1,
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
		})
	}
	return out, nil
}
