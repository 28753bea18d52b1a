package internal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// ChatSender delivers a rendered message to a chat.
type ChatSender interface {
	Send(ctx context.Context, botToken string, target TelegramTarget, text string) error
}

// TelegramSender sends through the Telegram Bot API with a bot bound to the
// token of each call.
type TelegramSender struct {
	// APIServer overrides https://api.telegram.org when set.
	APIServer string
	HTTP      *http.Client
}

func (s TelegramSender) Send(ctx context.Context, botToken string, target TelegramTarget, text string) error {
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	options := []telego.BotOption{
		telego.WithHTTPClient(client),
		telego.WithDiscardLogger(),
	}
	if s.APIServer != "" {
		options = append(options, telego.WithAPIServer(s.APIServer))
	}
	bot, err := telego.NewBot(botToken, options...)
	if err != nil {
		return fmt.Errorf("telegram bot: %w", err)
	}

	params := tu.Message(tu.ID(target.Chat), text)
	if target.Topic != nil {
		params = params.WithMessageThreadID(*target.Topic)
	}
	if _, err := bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send chat=%d: %w", target.Chat, err)
	}
	return nil
}
