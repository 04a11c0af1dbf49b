package alert

import (
	"context"
	"fmt"
	"time"

	pkghttp "market_maker/pkg/http"
)

// TelegramChannel posts alerts via the Telegram bot sendMessage API.
type TelegramChannel struct {
	chatID  string
	enabled bool
	client  *pkghttp.Client
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	baseURL := ""
	if botToken != "" {
		baseURL = fmt.Sprintf("https://api.telegram.org/bot%s", botToken)
	}
	return &TelegramChannel{
		chatID:  chatID,
		enabled: botToken != "" && chatID != "",
		client:  pkghttp.NewClient(baseURL, 5*time.Second, nil),
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Send(ctx context.Context, alert AlertPayload) error {
	if !t.enabled {
		return nil
	}

	icon := "ℹ️"
	switch alert.Level {
	case Warning:
		icon = "⚠️"
	case Error:
		icon = "❌"
	case Critical:
		icon = "🚨"
	}

	text := fmt.Sprintf("%s *[%s] %s*\n\n%s", icon, alert.Level, alert.Title, alert.Message)
	if len(alert.Fields) > 0 {
		text += "\n"
		for k, v := range alert.Fields {
			text += fmt.Sprintf("\n- *%s*: %s", k, v)
		}
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	if _, err := t.client.Post(ctx, "/sendMessage", payload); err != nil {
		return fmt.Errorf("telegram api failed: %w", err)
	}
	return nil
}
