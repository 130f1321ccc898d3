package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordSender is the subset of *discordgo.Session used by DiscordChannel.
type DiscordSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordChannel posts messages to a Discord text channel through a bot session.
type DiscordChannel struct {
	sender    DiscordSender
	channelID string
}

// NewDiscordSession opens a REST-only bot session; no gateway connection is made.
func NewDiscordSession(botToken string) (*discordgo.Session, error) {
	if botToken == "" {
		return nil, errors.New("discord channel: empty bot token")
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord channel: %w", err)
	}
	return session, nil
}

// NewDiscordChannel constructs a Discord channel.
func NewDiscordChannel(sender DiscordSender, channelID string) (*DiscordChannel, error) {
	if sender == nil {
		return nil, errors.New("discord channel: nil sender")
	}
	if channelID == "" {
		return nil, errors.New("discord channel: empty channel id")
	}
	return &DiscordChannel{sender: sender, channelID: channelID}, nil
}

// Name implements Channel.
func (d *DiscordChannel) Name() string { return "discord" }

// Send implements Channel.
func (d *DiscordChannel) Send(ctx context.Context, msg Message) error {
	if d == nil {
		return errors.New("discord channel: nil")
	}
	content := msg.Text
	if msg.Topic != "" {
		content = fmt.Sprintf("**%s**\n%s", msg.Topic, content)
	}
	if _, err := d.sender.ChannelMessageSend(d.channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord channel: %w", err)
	}
	return nil
}
