package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/blikh/discord-translation-relay/internal/commands"
)

// Definition returns the /translate application command.
func Definition() *discordgo.ApplicationCommand {
	channelOpt := func(desc string, required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Name:         "channel",
			Description:  desc,
			Type:         discordgo.ApplicationCommandOptionChannel,
			ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			Required:     required,
		}
	}
	stringOpt := func(name, desc string, required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Name:        name,
			Description: desc,
			Type:        discordgo.ApplicationCommandOptionString,
			Required:    required,
		}
	}
	sub := func(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Name:        name,
			Description: desc,
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Options:     opts,
		}
	}

	return &discordgo.ApplicationCommand{
		Name:        commands.Command,
		Description: "Manage message translation",
		Options: []*discordgo.ApplicationCommandOption{
			sub(commands.VerbSet, "Set a channel for translation",
				channelOpt("Channel to translate", true),
				stringOpt("language", "Target language", true)),
			sub(commands.VerbRemove, "Remove translation from a channel",
				channelOpt("Channel to remove", true)),
			sub(commands.VerbList, "List all translation channels"),
			sub(commands.VerbStatus, "Check bot and AI provider status"),
			sub(commands.VerbLogs, "View recent bot logs"),
			sub(commands.VerbLogChannel, "Configure log channel",
				stringOpt("action", "Action: set or remove", false),
				channelOpt("Channel for logs", false)),
			sub(commands.VerbOCR, "Enable/disable OCR for a channel",
				stringOpt("action", "Action: enable or disable", true),
				channelOpt("Channel to configure", true)),
			sub(commands.VerbModel, "Get or set the translation model",
				stringOpt("name", "Model name (leave empty to see current)", false)),
			sub(commands.VerbOCRModel, "Get or set the OCR model",
				stringOpt("name", "Model name (leave empty to see current)", false)),
			sub(commands.VerbProvider, "Get or set the AI provider",
				stringOpt("name", "Provider: ollama, openai, anthropic, google, deepseek, xai, mistral", false)),
			sub(commands.VerbHelp, "Show available commands"),
		},
	}
}

// Register creates the /translate command, or updates it when it already
// exists. An empty guildID registers it globally.
func (c *Client) Register(guildID string) error {
	appID := c.SelfID()
	if appID == "" {
		return fmt.Errorf("discord: register commands: session not ready")
	}
	def := Definition()

	existing, err := c.dg.ApplicationCommands(appID, guildID)
	if err != nil {
		return fmt.Errorf("discord: list commands: %w", err)
	}
	for _, cmd := range existing {
		if cmd.Name != def.Name {
			continue
		}
		if _, err := c.dg.ApplicationCommandEdit(appID, guildID, cmd.ID, def); err != nil {
			return fmt.Errorf("discord: update /%s: %w", def.Name, err)
		}
		c.logger.Info("discord: updated slash command", "name", def.Name, "guild_id", guildID)
		return nil
	}
	if _, err := c.dg.ApplicationCommandCreate(appID, guildID, def); err != nil {
		return fmt.Errorf("discord: create /%s: %w", def.Name, err)
	}
	c.logger.Info("discord: registered slash command", "name", def.Name, "guild_id", guildID)
	return nil
}

// slashRequest converts a /translate interaction into a command request.
func slashRequest(s *discordgo.Session, i *discordgo.InteractionCreate) (commands.Request, bool) {
	data := i.ApplicationCommandData()
	if data.Name != commands.Command || len(data.Options) == 0 {
		return commands.Request{}, false
	}
	sub := data.Options[0]
	req := commands.Request{
		Verb:      sub.Name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Slash:     true,
	}
	for _, opt := range sub.Options {
		switch opt.Name {
		case "channel":
			if ch := opt.ChannelValue(s); ch != nil {
				req.TargetChannelID = ch.ID
				req.TargetChannelName = ch.Name
			}
		case "language":
			req.Language = strings.TrimSpace(opt.StringValue())
		case "action":
			req.Action = strings.ToLower(strings.TrimSpace(opt.StringValue()))
		case "name":
			req.Name = strings.TrimSpace(opt.StringValue())
		}
	}
	if i.Member != nil {
		req.Invoker = commands.Invoker{
			Roles:     i.Member.Roles,
			CanManage: canManage(i.Member.Permissions),
		}
		if i.Member.User != nil {
			req.Invoker.UserID = i.Member.User.ID
			req.Invoker.Name = i.Member.User.Username
		}
	}
	return req, true
}

func canManage(perms int64) bool {
	return perms&discordgo.PermissionAdministrator != 0 || perms&discordgo.PermissionManageServer != 0
}
