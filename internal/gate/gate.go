// Package gate decides whether an inbound message is eligible for
// translation and, separately, for image text extraction.
package gate

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/blikh/discord-translation-relay/internal/chat"
	"github.com/blikh/discord-translation-relay/internal/store"
)

// Reason explains a decision.
type Reason string

const (
	ReasonAdmitted      Reason = "admitted"
	ReasonBotAuthor     Reason = "bot_author"
	ReasonDirectMessage Reason = "direct_message"
	ReasonCommand       Reason = "command"
	ReasonNoRoute       Reason = "no_route"
	ReasonDisabled      Reason = "disabled"
	ReasonIgnoredUser   Reason = "ignored_user"
	ReasonMissingRole   Reason = "missing_role"
	ReasonRoleLookup    Reason = "role_lookup_failed"
)

// RoleFetcher returns the role ids a guild member currently holds.
type RoleFetcher interface {
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
}

// Decision is the result of Evaluate.
type Decision struct {
	Proceed bool
	Reason  Reason
	Route   store.ChannelRoute
	// OCR is set when the message's first image should go through text extraction.
	OCR bool
}

// Gate evaluates messages against a configuration snapshot.
type Gate struct {
	prefix string
	roles  RoleFetcher
	logger *slog.Logger
}

// New creates a gate. Messages starting with prefix are commands and never
// translated.
func New(prefix string, roles RoleFetcher, logger *slog.Logger) *Gate {
	return &Gate{prefix: prefix, roles: roles, logger: logger}
}

// Evaluate runs the admission checks in order and stops at the first
// failure. Member roles are fetched live at most once, and only when a role
// rule applies.
func (g *Gate) Evaluate(ctx context.Context, msg chat.Message, st store.State) Decision {
	if msg.AuthorIsBot || msg.FromSelf {
		return Decision{Reason: ReasonBotAuthor}
	}
	if msg.GuildID == "" {
		return Decision{Reason: ReasonDirectMessage}
	}
	if g.prefix != "" && strings.HasPrefix(msg.Content, g.prefix) {
		return Decision{Reason: ReasonCommand}
	}
	route, ok := st.Route(msg.ChannelID)
	if !ok {
		return Decision{Reason: ReasonNoRoute}
	}
	if !route.IsEnabled() {
		return Decision{Reason: ReasonDisabled, Route: route}
	}
	if st.IsIgnored(msg.AuthorID) {
		return Decision{Reason: ReasonIgnoredUser, Route: route}
	}

	var (
		held    []string
		fetched bool
		fetchOK bool
	)
	memberRoles := func() ([]string, bool) {
		if fetched {
			return held, fetchOK
		}
		fetched = true
		roles, err := g.roles.MemberRoles(ctx, msg.GuildID, msg.AuthorID)
		if err != nil {
			g.logger.Warn("gate: member role lookup failed",
				"guild_id", msg.GuildID, "user_id", msg.AuthorID, "err", err)
			return nil, false
		}
		held, fetchOK = roles, true
		return held, true
	}

	if allowed := st.Roles(store.AllowedRoles, msg.ChannelID); len(allowed) > 0 {
		roles, ok := memberRoles()
		if !ok {
			return Decision{Reason: ReasonRoleLookup, Route: route}
		}
		if !holdsAny(roles, allowed) {
			return Decision{Reason: ReasonMissingRole, Route: route}
		}
	}

	d := Decision{Proceed: true, Reason: ReasonAdmitted, Route: route}
	if _, hasImage := msg.FirstImage(); hasImage && route.EnableOCR {
		d.OCR = true
		if ocrRoles := st.Roles(store.OCRRoles, msg.ChannelID); len(ocrRoles) > 0 {
			roles, ok := memberRoles()
			d.OCR = ok && holdsAny(roles, ocrRoles)
		}
	}
	return d
}

func holdsAny(held []string, rules []store.Role) bool {
	for _, r := range rules {
		if slices.Contains(held, r.ID) {
			return true
		}
	}
	return false
}
