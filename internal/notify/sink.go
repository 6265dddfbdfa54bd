package notify

import (
	"context"
	"fmt"

	"github.com/mendoc/paypal-listener/internal/config"
	"github.com/mendoc/paypal-listener/internal/logger"
)

// Sink delivers a rendered message to a channel.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// LogSink writes messages to the context logger. Useful in development.
type LogSink struct{}

func (LogSink) Send(ctx context.Context, msg Message) error {
	log := logger.FromContext(ctx)
	if msg.IsPhoto() {
		log.Info().Str("caption", msg.Caption).Str("file", msg.PhotoName).Int("bytes", len(msg.Photo)).Msg("notification (photo)")
		return nil
	}
	log.Info().Str("text", msg.Text).Msg("notification")
	return nil
}

// SinkFromConfig builds the sink selected by NOTIFY_SINK.
func SinkFromConfig(c config.NotifyConfig) (Sink, error) {
	switch c.Sink {
	case config.SinkTelegram:
		return NewTelegramSink(c.TelegramToken, c.TelegramChatID)
	case config.SinkDiscord:
		return NewDiscordSink(c.DiscordToken, c.DiscordChannelID)
	case config.SinkLog, "":
		return LogSink{}, nil
	default:
		return nil, fmt.Errorf("SinkFromConfig: unknown sink %q", c.Sink)
	}
}
