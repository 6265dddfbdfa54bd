package notify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordSink posts to one Discord channel.
type DiscordSink struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordSink creates a REST-only session for a bot token.
func NewDiscordSink(token, channelID string) (*DiscordSink, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("NewDiscordSink: creating session: %w", err)
	}
	return &DiscordSink{session: session, channelID: channelID}, nil
}

func (s *DiscordSink) Send(ctx context.Context, msg Message) error {
	var err error
	if msg.IsPhoto() {
		_, err = s.session.ChannelMessageSendComplex(s.channelID, &discordgo.MessageSend{
			Content: msg.Caption,
			Files: []*discordgo.File{{
				Name:        msg.PhotoName,
				ContentType: "image/png",
				Reader:      bytes.NewReader(msg.Photo),
			}},
		}, discordgo.WithContext(ctx))
	} else {
		_, err = s.session.ChannelMessageSend(s.channelID, msg.Text, discordgo.WithContext(ctx))
	}
	if err != nil {
		return fmt.Errorf("DiscordSink.Send: %w", err)
	}
	return nil
}
