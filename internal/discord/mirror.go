package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/blikh/discord-translation-relay/internal/eventlog"
)

// LogChannels returns the configured log and debug log channel ids.
type LogChannels interface {
	LogChannels() (logChannel, debugChannel string)
}

// Mirror is an event log sink posting entries to the configured log
// channels. Debug entries go to the debug channel, everything else to the
// log channel.
type Mirror struct {
	send     func(channelID string, embed *discordgo.MessageEmbed) error
	channels LogChannels
	logger   *slog.Logger
}

// NewMirror creates a mirror posting through c.
func NewMirror(c *Client, channels LogChannels, logger *slog.Logger) *Mirror {
	return &Mirror{
		send: func(channelID string, embed *discordgo.MessageEmbed) error {
			_, err := c.dg.ChannelMessageSendEmbed(channelID, embed)
			return err
		},
		channels: channels,
		logger:   logger,
	}
}

// Deliver implements eventlog.Sink. Sending happens in the background.
func (m *Mirror) Deliver(e eventlog.Entry) {
	logCh, debugCh := m.channels.LogChannels()
	target := logCh
	if e.Severity == eventlog.SeverityDebug {
		target = debugCh
	}
	if target == "" {
		return
	}
	embed := entryEmbed(e)
	go func() {
		// Failures are only logged; reporting them as events would loop.
		if err := m.send(target, embed); err != nil {
			m.logger.Warn("discord: failed to mirror log entry", "channel_id", target, "err", err)
		}
	}()
}
