// Package discord implements the notify Sender for Discord via REST embeds.
package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/switchboard/internal/notify"
)

// session is the subset of *discordgo.Session the sender needs. Embeds are
// posted over REST, so the gateway is never opened.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sender posts operator events to a Discord channel.
type Sender struct {
	sess      session
	channelID string
}

// Opts configures a Discord Sender.
type Opts struct {
	// Token is the bot token. Required unless Session is injected.
	Token string
	// ChannelID is the channel to post events to.
	ChannelID string
	// Session overrides the real discordgo session (used by tests).
	Session session
}

// New creates a Discord Sender.
func New(opts Opts) (*Sender, error) {
	if opts.Session == nil && opts.Token == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel ID is required")
	}

	s := &Sender{channelID: opts.ChannelID, sess: opts.Session}
	if s.sess == nil {
		dg, err := discordgo.New("Bot " + opts.Token)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		s.sess = dg
	}
	return s, nil
}

// Name identifies the sender in notifier logs.
func (s *Sender) Name() string { return "discord" }

// Send posts the event as a single embed.
func (s *Sender) Send(ctx context.Context, evt notify.Event) error {
	if _, err := s.sess.ChannelMessageSendEmbed(s.channelID, eventToEmbed(evt), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send embed: %w", err)
	}
	return nil
}

// eventToEmbed converts a notify.Event to a Discord embed.
func eventToEmbed(evt notify.Event) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       evt.Title,
		Description: evt.Body,
		Color:       severityColorInt(evt.Severity),
	}
	for _, f := range evt.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// severityColorInt converts the shared hex severity color to the integer
// form Discord embeds use.
func severityColorInt(severity string) int {
	hex := strings.TrimPrefix(notify.SeverityColor(severity), "#")
	n, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return 0
	}
	return int(n)
}
