package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/blikh/discord-translation-relay/internal/directory"
)

// Source resolves names from the gateway state cache, falling back to REST.
type Source struct {
	dg *discordgo.Session
}

// NewSource returns a directory source backed by c.
func NewSource(c *Client) *Source {
	return &Source{dg: c.dg}
}

var _ directory.Source = (*Source)(nil)

func (s *Source) GuildName(ctx context.Context, guildID string) (string, error) {
	if g, err := s.dg.State.Guild(guildID); err == nil && g.Name != "" {
		return g.Name, nil
	}
	g, err := s.dg.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: fetch guild %s: %w", guildID, err)
	}
	return g.Name, nil
}

func (s *Source) ChannelName(ctx context.Context, _, channelID string) (string, error) {
	if ch, err := s.dg.State.Channel(channelID); err == nil {
		return ch.Name, nil
	}
	ch, err := s.dg.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: fetch channel %s: %w", channelID, err)
	}
	return ch.Name, nil
}

func (s *Source) RoleName(ctx context.Context, guildID, roleID string) (string, error) {
	if r, err := s.dg.State.Role(guildID, roleID); err == nil {
		return r.Name, nil
	}
	roles, err := s.dg.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: fetch roles of %s: %w", guildID, err)
	}
	for _, r := range roles {
		if r.ID == roleID {
			return r.Name, nil
		}
	}
	return "", fmt.Errorf("discord: role %s not found in %s", roleID, guildID)
}

func (s *Source) User(ctx context.Context, userID string) (directory.User, error) {
	u, err := s.dg.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return directory.User{}, fmt.Errorf("discord: fetch user %s: %w", userID, err)
	}
	return directory.User{Name: u.Username, Avatar: u.AvatarURL("")}, nil
}
