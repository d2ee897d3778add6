package discord

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-resty/resty/v2"

	"github.com/blikh/discord-translation-relay/internal/commands"
	"github.com/blikh/discord-translation-relay/internal/eventlog"
)

func TestConvertMessage(t *testing.T) {
	m := &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   "hello",
		Author:    &discordgo.User{ID: "bot", Username: "relay", Bot: true},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn/a.txt", Filename: "a.txt", ContentType: "text/plain"},
			{URL: "https://cdn/b.png", Filename: "b.png", ContentType: "image/png"},
		},
	}
	msg := convertMessage(m, "bot")
	if !msg.FromSelf || !msg.AuthorIsBot || msg.AuthorName != "relay" {
		t.Fatalf("author flags = %+v", msg)
	}
	img, ok := msg.FirstImage()
	if !ok || img.Filename != "b.png" {
		t.Fatalf("first image = %+v %v", img, ok)
	}
	if convertMessage(m, "").FromSelf {
		t.Fatal("FromSelf without a known self id")
	}
}

func TestCanManage(t *testing.T) {
	tests := []struct {
		perms int64
		want  bool
	}{
		{0, false},
		{discordgo.PermissionSendMessages, false},
		{discordgo.PermissionManageServer, true},
		{discordgo.PermissionAdministrator, true},
	}
	for _, tt := range tests {
		if got := canManage(tt.perms); got != tt.want {
			t.Fatalf("canManage(%d) = %v", tt.perms, got)
		}
	}
}

func TestDefinitionCoversAllVerbs(t *testing.T) {
	def := Definition()
	if def.Name != "translate" {
		t.Fatalf("name = %q", def.Name)
	}
	want := []string{
		commands.VerbSet, commands.VerbRemove, commands.VerbList, commands.VerbStatus,
		commands.VerbLogs, commands.VerbLogChannel, commands.VerbOCR, commands.VerbModel,
		commands.VerbOCRModel, commands.VerbProvider, commands.VerbHelp,
	}
	if len(def.Options) != len(want) {
		t.Fatalf("got %d subcommands, want %d", len(def.Options), len(want))
	}
	for i, opt := range def.Options {
		if opt.Name != want[i] || opt.Type != discordgo.ApplicationCommandOptionSubCommand {
			t.Fatalf("option %d = %s (%d)", i, opt.Name, opt.Type)
		}
	}
}

func TestSlashRequest(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c1",
		Member: &discordgo.Member{
			User:        &discordgo.User{ID: "u1", Username: "alice"},
			Roles:       []string{"r1"},
			Permissions: discordgo.PermissionManageServer,
		},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "translate",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name: "set",
				Type: discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "42"},
					{Name: "language", Type: discordgo.ApplicationCommandOptionString, Value: " spanish "},
				},
			}},
		},
	}}

	req, ok := slashRequest(nil, i)
	if !ok {
		t.Fatal("not parsed")
	}
	if req.Verb != commands.VerbSet || req.TargetChannelID != "42" || req.Language != "spanish" || !req.Slash {
		t.Fatalf("req = %+v", req)
	}
	if !req.Invoker.CanManage || req.Invoker.Name != "alice" || len(req.Invoker.Roles) != 1 {
		t.Fatalf("invoker = %+v", req.Invoker)
	}
}

func TestEntryEmbed(t *testing.T) {
	tests := []struct {
		entry eventlog.Entry
		title string
		color int
	}{
		{eventlog.Entry{Type: "info", Severity: eventlog.SeverityInfo}, "Log: info", colorInfo},
		{eventlog.Entry{Type: "error", Severity: eventlog.SeverityError}, "Log: error", colorError},
		{eventlog.Entry{Type: "debug", Severity: eventlog.SeverityDebug}, "Debug: debug", colorDebug},
		{eventlog.Entry{Type: "translation", Severity: eventlog.SeverityInfo, Kind: eventlog.KindTranslation}, "Log: translation", colorTranslation},
		{eventlog.Entry{Type: "audit", Severity: eventlog.SeverityInfo, Kind: eventlog.KindAudit}, "Log: audit", colorAudit},
	}
	for _, tt := range tests {
		e := entryEmbed(tt.entry)
		if e.Title != tt.title || e.Color != tt.color {
			t.Fatalf("%s: got %q %x", tt.entry.Type, e.Title, e.Color)
		}
	}
}

type channels struct{ log, debug string }

func (c channels) LogChannels() (string, string) { return c.log, c.debug }

func TestMirrorRoutesBySeverity(t *testing.T) {
	sent := make(chan string, 4)
	m := &Mirror{
		send: func(channelID string, _ *discordgo.MessageEmbed) error {
			sent <- channelID
			return nil
		},
		channels: channels{log: "logs", debug: "debug"},
		logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}

	m.Deliver(eventlog.Entry{Severity: eventlog.SeverityInfo, Message: "a"})
	if got := waitSent(t, sent); got != "logs" {
		t.Fatalf("info went to %q", got)
	}
	m.Deliver(eventlog.Entry{Severity: eventlog.SeverityDebug, Message: "b"})
	if got := waitSent(t, sent); got != "debug" {
		t.Fatalf("debug went to %q", got)
	}

	m.channels = channels{}
	m.Deliver(eventlog.Entry{Severity: eventlog.SeverityError, Message: "c"})
	select {
	case got := <-sent:
		t.Fatalf("sent to %q with no channel configured", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitSent(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(time.Second):
		t.Fatal("nothing sent")
		return ""
	}
}

func TestDownloadEnforcesSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c, err := New("token", logger)
	if err != nil {
		t.Fatal(err)
	}

	data, err := c.Download(context.Background(), srv.URL)
	if err != nil || len(data) != 64 {
		t.Fatalf("download = %d bytes, err %v", len(data), err)
	}

	c.http.SetResponseBodyLimit(16)
	if _, err := c.Download(context.Background(), srv.URL); !errors.Is(err, resty.ErrResponseBodyTooLarge) {
		t.Fatalf("err = %v, want ErrResponseBodyTooLarge", err)
	}
}
