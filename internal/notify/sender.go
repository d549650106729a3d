package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"btcagent/internal/logger"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Sender 投递一条已渲染的消息。
type Sender interface {
	Name() string
	Send(ctx context.Context, msg StructuredMessage) error
}

// LogSender 只写日志，未配置 Telegram 时使用。
type LogSender struct{}

func (LogSender) Name() string { return "log" }

func (LogSender) Send(_ context.Context, msg StructuredMessage) error {
	logger.InfoBlock(msg.RenderMarkdown())
	return nil
}

// TelegramConfig Telegram 推送配置。
type TelegramConfig struct {
	BotToken string
	ChatID   string
	// ServerURL 仅测试时覆盖 api.telegram.org。
	ServerURL string
}

type TelegramSender struct {
	bot    *bot.Bot
	chatID any
}

func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	token := strings.TrimSpace(cfg.BotToken)
	chat := strings.TrimSpace(cfg.ChatID)
	if token == "" || chat == "" {
		return nil, fmt.Errorf("Telegram 配置不完整")
	}
	opts := []bot.Option{bot.WithSkipGetMe()}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramSender{bot: b, chatID: parseChatID(chat)}, nil
}

func (t *TelegramSender) Name() string { return "telegram" }

func (t *TelegramSender) Send(ctx context.Context, msg StructuredMessage) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      msg.RenderMarkdown(),
		ParseMode: models.ParseModeMarkdownV1,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// parseChatID 数字 ID 转 int64，@channel 形式保留字符串。
func parseChatID(raw string) any {
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id
	}
	return raw
}
