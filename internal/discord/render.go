package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/blikh/discord-translation-relay/internal/commands"
	"github.com/blikh/discord-translation-relay/internal/eventlog"
)

const (
	colorInfo        = 0x5865f2
	colorError       = 0xed4245
	colorTranslation = 0x3ba55c
	colorDebug       = 0xf0a500
	colorAudit       = 0xfee75c
)

func commandEmbeds(resp commands.Response) []*discordgo.MessageEmbed {
	if resp.Embed == nil {
		return nil
	}
	return []*discordgo.MessageEmbed{{
		Title:       resp.Embed.Title,
		Description: resp.Embed.Description,
		Color:       resp.Embed.Color,
		Fields:      embedFields(resp.Embed.Fields),
	}}
}

func entryEmbed(e eventlog.Entry) *discordgo.MessageEmbed {
	title := "Log: " + e.Type
	color := colorInfo
	switch {
	case e.Severity == eventlog.SeverityDebug:
		title = "Debug: " + e.Type
		color = colorDebug
	case e.Severity == eventlog.SeverityError:
		color = colorError
	case e.Kind == eventlog.KindTranslation, e.Kind == eventlog.KindOCR:
		color = colorTranslation
	case e.Kind == eventlog.KindAudit:
		color = colorAudit
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: e.Message,
		Color:       color,
		Timestamp:   e.Time.Format(time.RFC3339),
	}
}
