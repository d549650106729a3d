package app

import (
	"strings"
	"time"

	brcfg "btcagent/internal/config"
	"btcagent/internal/logger"
	"btcagent/internal/market"
	"btcagent/internal/metrics"
	"btcagent/internal/news"
)

// buildPriceCollector 按配置顺序组装行情源，靠前的源优先。
func buildPriceCollector(cfg brcfg.MarketConfig, m *metrics.Metrics) *market.Collector {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	sources := make([]market.Source, 0, len(cfg.Sources))
	for _, src := range cfg.EnabledSources() {
		switch strings.ToLower(strings.TrimSpace(src.Name)) {
		case "binance":
			sources = append(sources, market.NewBinanceSource(market.BinanceConfig{
				RESTBaseURL: src.RESTBaseURL,
				HTTPTimeout: timeout,
			}))
		case "okx":
			sources = append(sources, market.NewOKXSource(market.OKXConfig{
				RESTBaseURL: src.RESTBaseURL,
				HTTPTimeout: timeout,
			}))
		default:
			logger.Warnf("未知行情源 %s，已忽略", src.Name)
		}
	}
	return market.NewCollector(m, sources...)
}

func buildNewsCollector(cfg brcfg.NewsConfig, m *metrics.Metrics) *news.Collector {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	var sources []news.Source
	if cfg.CryptoPanic.Enabled {
		key := cfg.CryptoPanic.Key()
		if key == "" {
			logger.Warnf("CryptoPanic 已启用但未配置 API Key，跳过")
		} else {
			sources = append(sources, news.NewCryptoPanicSource(news.CryptoPanicConfig{
				BaseURL:    cfg.CryptoPanic.BaseURL,
				APIKey:     key,
				Currencies: cfg.CryptoPanic.Currencies,
				Filter:     cfg.CryptoPanic.Filter,
				Timeout:    timeout,
			}))
		}
	}
	for _, feed := range cfg.RSS {
		if strings.TrimSpace(feed.URL) == "" {
			continue
		}
		sources = append(sources, news.NewRSSSource(news.RSSFeed{Name: feed.Name, URL: feed.URL}, timeout))
	}
	if cfg.FearGreed.Enabled {
		sources = append(sources, news.NewFearGreedSource(cfg.FearGreed.Endpoint, timeout))
	}
	if len(sources) == 0 {
		logger.Warnf("未配置任何新闻源，新闻轨道将只使用历史数据")
	}
	return news.NewCollector(m, cfg.MaxItems, sources...)
}
