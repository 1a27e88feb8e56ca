package notify

import (
	"context"
	"fmt"
	"net/http"
)

// TelegramSender pushes alerts to a chat through the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: sendTimeout},
	}
}

// Send posts the alert via sendMessage, bolding the title so severity and
// pair ID stand out in the chat.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	}
	url := "https://api.telegram.org/bot" + t.token + "/sendMessage"
	if err := postJSON(ctx, t.client, url, payload); err != nil {
		return fmt.Errorf("notify: telegram: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
