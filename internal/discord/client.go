// Package discord connects the relay to Discord: the gateway session,
// the platform operations used by the pipeline, name lookups for the
// directory, command handlers and the log channel mirror.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-resty/resty/v2"

	"github.com/blikh/discord-translation-relay/internal/chat"
)

const (
	downloadTimeout = 30 * time.Second
	maxDownloadSize = 25 << 20
)

// Intents requested on the gateway.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMessages |
	discordgo.IntentGuildMembers |
	discordgo.IntentMessageContent

// Client wraps a discordgo session.
type Client struct {
	dg     *discordgo.Session
	http   *resty.Client
	logger *slog.Logger

	ready     atomic.Bool
	startedAt time.Time
}

// New creates a client for the bot token. Call Open to connect.
func New(token string, logger *slog.Logger) (*Client, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	dg.Identify.Intents = Intents

	c := &Client{
		dg:        dg,
		http:      resty.New().SetTimeout(downloadTimeout).SetResponseBodyLimit(maxDownloadSize),
		logger:    logger,
		startedAt: time.Now(),
	}
	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		c.ready.Store(true)
		logger.Info("discord: connected", "user", r.User.String(), "guilds", len(r.Guilds))
	})
	dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		c.ready.Store(false)
		logger.Warn("discord: disconnected")
	})
	dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		c.ready.Store(true)
		logger.Info("discord: session resumed")
	})
	return c, nil
}

// Session returns the underlying discordgo session.
func (c *Client) Session() *discordgo.Session {
	return c.dg
}

// Open connects to the gateway.
func (c *Client) Open() error {
	if err := c.dg.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (c *Client) Close() error {
	c.ready.Store(false)
	return c.dg.Close()
}

// SelfID returns the bot user id, or "" before the session is ready.
func (c *Client) SelfID() string {
	if c.dg.State == nil || c.dg.State.User == nil {
		return ""
	}
	return c.dg.State.User.ID
}

// BotStatus is the connection summary shown on the dashboard.
type BotStatus struct {
	Online bool   `json:"online"`
	User   string `json:"user,omitempty"`
	Guilds int    `json:"guilds"`
	Uptime int64  `json:"uptime"` // milliseconds
}

// Status reports the current connection state.
func (c *Client) Status() BotStatus {
	st := BotStatus{
		Online: c.ready.Load(),
		Uptime: time.Since(c.startedAt).Milliseconds(),
	}
	if s := c.dg.State; s != nil {
		s.RLock()
		if s.User != nil {
			st.User = s.User.String()
		}
		st.Guilds = len(s.Guilds)
		s.RUnlock()
	}
	return st
}

// MemberRoles fetches the member's current roles from the REST API. The
// state cache is not consulted so a revoked role takes effect immediately.
func (c *Client) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	m, err := c.dg.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: fetch member %s: %w", userID, err)
	}
	return m.Roles, nil
}

// Download fetches an attachment.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return nil, fmt.Errorf("discord: attachment larger than %d bytes: %w", c.http.ResponseBodyLimit, err)
	}
	if err != nil {
		return nil, fmt.Errorf("discord: download attachment: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("discord: download attachment: %s", resp.Status())
	}
	return resp.Body(), nil
}

// Reply sends reply as an embed referencing msg.
func (c *Client) Reply(ctx context.Context, msg chat.Message, reply chat.Reply) error {
	embed := &discordgo.MessageEmbed{
		Color:     colorTranslation,
		Author:    &discordgo.MessageEmbedAuthor{Name: reply.AuthorName, IconURL: reply.AuthorIcon},
		Fields:    embedFields(reply.Fields),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	_, err := c.dg.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Reference: &discordgo.MessageReference{
			MessageID: msg.ID,
			ChannelID: msg.ChannelID,
			GuildID:   msg.GuildID,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: send reply: %w", err)
	}
	return nil
}

func embedFields(fields []chat.Field) []*discordgo.MessageEmbedField {
	out := make([]*discordgo.MessageEmbedField, 0, len(fields))
	for _, f := range fields {
		out = append(out, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	return out
}
