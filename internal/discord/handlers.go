package discord

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/blikh/discord-translation-relay/internal/chat"
	"github.com/blikh/discord-translation-relay/internal/commands"
	"github.com/blikh/discord-translation-relay/internal/pipeline"
)

// Handler routes gateway events to the pipeline and the command service.
type Handler struct {
	client   *Client
	pipeline *pipeline.Pipeline
	commands *commands.Service
	prefix   string
	logger   *slog.Logger
}

// NewHandler creates a Handler. Messages starting with prefix are parsed as
// commands.
func NewHandler(c *Client, p *pipeline.Pipeline, svc *commands.Service, prefix string, logger *slog.Logger) *Handler {
	return &Handler{client: c, pipeline: p, commands: svc, prefix: prefix, logger: logger}
}

// Attach registers the handlers on the session. ctx bounds the work started
// by each event.
func (h *Handler) Attach(ctx context.Context) {
	h.client.dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		h.onMessage(ctx, s, m)
	})
	h.client.dg.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		h.onInteraction(ctx, s, i)
	})
}

func (h *Handler) onMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	msg := convertMessage(m.Message, h.client.SelfID())

	if !msg.AuthorIsBot && msg.GuildID != "" {
		if req, ok := commands.ParsePrefix(h.prefix, msg.Content); ok {
			h.runPrefixCommand(ctx, s, m, req)
			return
		}
	}

	outcome := h.pipeline.Handle(ctx, msg)
	h.logger.Debug("discord: message handled", "message_id", msg.ID, "channel_id", msg.ChannelID, "outcome", outcome)
}

func (h *Handler) runPrefixCommand(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, req commands.Request) {
	req.GuildID = m.GuildID
	req.ChannelID = m.ChannelID
	if ch, err := s.State.Channel(m.ChannelID); err == nil {
		req.ChannelName = ch.Name
	}
	if req.TargetChannelID != "" && req.TargetChannelID != m.ChannelID {
		if ch, err := s.State.Channel(req.TargetChannelID); err == nil {
			req.TargetChannelName = ch.Name
		}
	}
	req.Invoker = commands.Invoker{UserID: m.Author.ID, Name: m.Author.Username}
	if m.Member != nil {
		req.Invoker.Roles = m.Member.Roles
	}
	if commands.Mutating(req) {
		perms, err := s.State.UserChannelPermissions(m.Author.ID, m.ChannelID)
		if err != nil {
			perms, err = s.UserChannelPermissions(m.Author.ID, m.ChannelID, discordgo.WithContext(ctx))
		}
		if err != nil {
			h.logger.Warn("discord: permission lookup failed", "user_id", m.Author.ID, "err", err)
		}
		req.Invoker.CanManage = err == nil && canManage(perms)
	}

	resp := h.commands.Execute(ctx, req)
	_, err := s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content:   resp.Content,
		Embeds:    commandEmbeds(resp),
		Reference: m.Reference(),
	}, discordgo.WithContext(ctx))
	if err != nil {
		h.logger.Error("discord: failed to reply to command", "verb", req.Verb, "channel_id", m.ChannelID, "err", err)
	}
}

func (h *Handler) onInteraction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	req, ok := slashRequest(s, i)
	if !ok {
		return
	}
	if ch, err := s.State.Channel(i.ChannelID); err == nil {
		req.ChannelName = ch.Name
	}

	// Status and model listings probe the provider, which can outlast the
	// interaction deadline, so the response is deferred and edited.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, discordgo.WithContext(ctx))
	if err != nil {
		h.logger.Error("discord: failed to acknowledge interaction", "verb", req.Verb, "err", err)
		return
	}

	resp := h.commands.Execute(ctx, req)
	content := resp.Content
	embeds := commandEmbeds(resp)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
		Embeds:  &embeds,
	}, discordgo.WithContext(ctx)); err != nil {
		h.logger.Error("discord: failed to answer interaction", "verb", req.Verb, "err", err)
	}
}

func convertMessage(m *discordgo.Message, selfID string) chat.Message {
	msg := chat.Message{
		ID:          m.ID,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.Author.ID,
		AuthorName:  m.Author.Username,
		AuthorIcon:  m.Author.AvatarURL(""),
		AuthorIsBot: m.Author.Bot,
		FromSelf:    selfID != "" && m.Author.ID == selfID,
		Content:     m.Content,
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, chat.Attachment{
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
		})
	}
	return msg
}
