// internal/services/telegram_notifier.go
// 里程碑通知 - Telegram Bot 與 log 輸出

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

// TelegramNotifier 透過 Telegram Bot 發送通知
type TelegramNotifier struct {
	bot  *tele.Bot
	chat *tele.Chat
}

// NewTelegramNotifier 建立 Telegram 通知服務
// apiURL 為空時使用 Telegram 官方 API
func NewTelegramNotifier(token string, chatID int64, apiURL string) (*TelegramNotifier, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     apiURL,
		Offline: true,
		Client:  &http.Client{Timeout: 8 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramNotifier{bot: b, chat: &tele.Chat{ID: chatID}}, nil
}

// Notify 發送文字訊息
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.bot.Send(n.chat, text); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// LogNotifier 未設定 Telegram 時改以 log 輸出通知
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier 建立 log 通知服務
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify 寫入一筆 info log
func (n *LogNotifier) Notify(_ context.Context, text string) error {
	n.log.Info().Str("notification", text).Msg("milestone reached")
	return nil
}
