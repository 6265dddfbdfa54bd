package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSink posts to one Telegram chat through the Bot API.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSink authenticates the bot token against the Bot API.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("NewTelegramSink: creating bot: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

// NewTelegramSinkWithBot wraps an existing bot client.
func NewTelegramSinkWithBot(bot *tgbotapi.BotAPI, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

func (s *TelegramSink) Send(ctx context.Context, msg Message) error {
	var c tgbotapi.Chattable
	if msg.IsPhoto() {
		photo := tgbotapi.NewPhoto(s.chatID, tgbotapi.FileBytes{Name: msg.PhotoName, Bytes: msg.Photo})
		photo.Caption = msg.Caption
		if msg.Markdown {
			photo.ParseMode = tgbotapi.ModeMarkdown
		}
		c = photo
	} else {
		text := tgbotapi.NewMessage(s.chatID, msg.Text)
		if msg.Markdown {
			text.ParseMode = tgbotapi.ModeMarkdown
		}
		c = text
	}

	// The Bot API client takes no context.
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.bot.Send(c); err != nil {
		return fmt.Errorf("TelegramSink.Send: %w", err)
	}
	return nil
}
