package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/himanstore/dmpilot/internal/store"
)

// DiscordBroadcaster sends escalations to an operator channel.
type DiscordBroadcaster struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordBroadcaster(token, channelID string) (*DiscordBroadcaster, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &DiscordBroadcaster{session: session, channelID: channelID}, nil
}

func (d *DiscordBroadcaster) Name() string { return "discord" }

func (d *DiscordBroadcaster) Broadcast(_ context.Context, n store.AdminNotification) error {
	text := fmt.Sprintf("⚠️ **%s** conversation `%s`\n%s", n.Severity, n.ConversationID, n.Text)
	_, err := d.session.ChannelMessageSend(d.channelID, text)
	return err
}
