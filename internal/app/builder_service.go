package app

import (
	"fmt"

	brcfg "btcagent/internal/config"
	"btcagent/internal/metrics"
	"btcagent/internal/notify"
	"btcagent/internal/service"
	"btcagent/internal/store"
	apihttp "btcagent/internal/transport/http/api"
)

const appVersion = "1.0.0"

// buildSenders 默认只写日志；启用 Telegram 时追加 bot 推送。
func buildSenders(cfg brcfg.NotifyConfig) ([]notify.Sender, error) {
	senders := []notify.Sender{notify.LogSender{}}
	if !cfg.Telegram.Enabled {
		return senders, nil
	}
	tg, err := notify.NewTelegramSender(notify.TelegramConfig{
		BotToken: cfg.Telegram.Token(),
		ChatID:   cfg.Telegram.ChatID,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 Telegram 失败: %w", err)
	}
	return append(senders, tg), nil
}

func buildHTTPServer(cfg brcfg.AppConfig, runner *service.Runner, st *store.Store, m *metrics.Metrics) (*apihttp.Server, error) {
	return apihttp.NewServer(apihttp.ServerConfig{
		Addr:    cfg.HTTPAddr,
		Version: appVersion,
		Runner:  runner,
		Signals: st,
		Health:  st,
		Metrics: m.Handler(),
	})
}
