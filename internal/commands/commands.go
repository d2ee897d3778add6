// Package commands implements the in-channel administration verbs. The
// prefix parser and the slash command adapter both build a Request and call
// Service.Execute, so each verb behaves the same on both surfaces.
package commands

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/blikh/discord-translation-relay/internal/chat"
	"github.com/blikh/discord-translation-relay/internal/directory"
	"github.com/blikh/discord-translation-relay/internal/eventlog"
	"github.com/blikh/discord-translation-relay/internal/provider"
	"github.com/blikh/discord-translation-relay/internal/store"
)

// Verbs.
const (
	VerbSet        = "set"
	VerbRemove     = "remove"
	VerbList       = "list"
	VerbStatus     = "status"
	VerbLogs       = "logs"
	VerbLogChannel = "logchannel"
	VerbOCR        = "ocr"
	VerbModel      = "model"
	VerbOCRModel   = "ocrmodel"
	VerbProvider   = "provider"
	VerbHelp       = "help"
)

// Embed colours.
const (
	ColorBlurple = 0x5865f2
	ColorAmber   = 0xf0a500
	ColorRed     = 0xed4245
)

const (
	logsLimit          = 10
	maxDescriptionSize = 4000
)

// Invoker is the member issuing a command.
type Invoker struct {
	UserID    string
	Name      string
	CanManage bool // holds the Manage Server permission
	Roles     []string
}

// Request is a parsed command.
type Request struct {
	Verb string

	// Where the command was issued.
	GuildID     string
	ChannelID   string
	ChannelName string

	// TargetChannelID is the channel argument; empty means the invoking channel.
	TargetChannelID   string
	TargetChannelName string

	Language string
	Action   string // ocr: enable|disable, logchannel: set|remove
	Name     string // model, ocrmodel and provider argument

	Invoker Invoker
	Slash   bool // issued through the slash command
}

// Embed is a rich reply.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []chat.Field
}

// Response is the reply to a command: plain content, an embed, or both.
type Response struct {
	Content string
	Embed   *Embed
}

func text(format string, args ...any) Response {
	return Response{Content: fmt.Sprintf(format, args...)}
}

// Service executes commands against the configuration store.
type Service struct {
	store     *store.Store
	registry  *provider.Registry
	directory *directory.Lookup
	events    *eventlog.Log
	prefix    string
	logger    *slog.Logger
}

// NewService creates a Service. prefix is only used in usage messages.
func NewService(st *store.Store, registry *provider.Registry, dir *directory.Lookup, events *eventlog.Log, prefix string, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		registry:  registry,
		directory: dir,
		events:    events,
		prefix:    prefix,
		logger:    logger,
	}
}

// Mutating reports whether verb changes configuration given its arguments.
func Mutating(req Request) bool {
	switch req.Verb {
	case VerbSet, VerbRemove, VerbLogChannel, VerbOCR:
		return true
	case VerbModel, VerbOCRModel, VerbProvider:
		return req.Name != ""
	}
	return false
}

// Execute runs req and returns the reply.
func (s *Service) Execute(ctx context.Context, req Request) Response {
	if Mutating(req) && !s.authorized(req.Invoker) {
		s.logger.Info("commands: unauthorized", "verb", req.Verb, "user_id", req.Invoker.UserID)
		return text("⛔ You need the Manage Server permission or an admin role to change translation settings.")
	}

	switch req.Verb {
	case VerbSet:
		return s.set(ctx, req)
	case VerbRemove:
		return s.remove(ctx, req)
	case VerbList:
		return s.list(ctx, req)
	case VerbStatus:
		return s.status(ctx)
	case VerbLogs:
		return s.logs()
	case VerbLogChannel:
		return s.logChannel(ctx, req)
	case VerbOCR:
		return s.ocr(ctx, req)
	case VerbModel:
		return s.model(ctx, req)
	case VerbOCRModel:
		return s.ocrModel(ctx, req)
	case VerbProvider:
		return s.provider(req)
	default:
		return s.help(req)
	}
}

func (s *Service) authorized(inv Invoker) bool {
	if inv.CanManage {
		return true
	}
	for _, r := range s.store.Snapshot().AdminRoles {
		if slices.Contains(inv.Roles, r.ID) {
			return true
		}
	}
	return false
}

// target returns the channel a command applies to.
func (s *Service) target(ctx context.Context, req Request) (id, name string) {
	if req.TargetChannelID == "" || req.TargetChannelID == req.ChannelID {
		name = cmp.Or(req.TargetChannelName, req.ChannelName)
		if name == "" && s.directory != nil {
			name = s.directory.ChannelName(ctx, req.GuildID, req.ChannelID)
		}
		return req.ChannelID, name
	}
	name = req.TargetChannelName
	if name == "" && s.directory != nil {
		name = s.directory.ChannelName(ctx, req.GuildID, req.TargetChannelID)
	}
	return req.TargetChannelID, name
}

// cmd returns the command as the invoker typed it, for usage messages.
func (s *Service) cmd(req Request) string {
	if req.Slash {
		return "/translate"
	}
	return s.prefix + "translate"
}

func (s *Service) audit(req Request, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if req.Invoker.Name != "" {
		msg += " (by " + req.Invoker.Name + ")"
	}
	s.events.Audit(msg)
}

func (s *Service) set(ctx context.Context, req Request) Response {
	if req.Language == "" {
		return text("Usage: %s set #channel <language>", s.cmd(req))
	}
	id, name := s.target(ctx, req)
	s.store.SetRoute(store.ChannelRoute{
		ChannelID:   id,
		Language:    req.Language,
		GuildID:     req.GuildID,
		ChannelName: name,
	})
	s.audit(req, "Added translation channel: #%s → %s", name, req.Language)
	return text("✅ Translation set for #%s → %s", name, req.Language)
}

func (s *Service) remove(ctx context.Context, req Request) Response {
	id, name := s.target(ctx, req)
	if _, ok := s.store.RemoveRoute(id); !ok {
		return text("⚠️ No translation set for #%s", name)
	}
	s.audit(req, "Removed translation channel: #%s", name)
	return text("✅ Translation removed for #%s", name)
}

func (s *Service) list(ctx context.Context, req Request) Response {
	st := s.store.Snapshot()
	if len(st.Channels) == 0 {
		return text("No translation channels configured.")
	}

	type line struct{ name, text string }
	var lines []line
	for id, r := range st.Channels {
		if r.GuildID != "" && req.GuildID != "" && r.GuildID != req.GuildID {
			continue
		}
		name := r.ChannelName
		if s.directory != nil {
			if n := s.directory.ChannelName(ctx, r.GuildID, id); n != directory.Unknown {
				name = n
			}
		}
		l := fmt.Sprintf("#%s → %s", name, r.Language)
		if r.EnableOCR {
			l += " 📷"
		}
		if !r.IsEnabled() {
			l += " (disabled)"
		}
		lines = append(lines, line{name: name, text: l})
	}
	slices.SortFunc(lines, func(a, b line) int { return cmp.Compare(a.name, b.name) })

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.text)
		b.WriteByte('\n')
	}
	desc := b.String()
	if desc == "" {
		desc = "No active translations"
	}
	return Response{Embed: &Embed{Title: "Translation Channels", Description: desc, Color: ColorBlurple}}
}

func (s *Service) status(ctx context.Context) Response {
	st := s.registry.Status(ctx, s.store.ProviderSettings())

	var b strings.Builder
	b.WriteString("**Bot**: ✅ Running\n")
	fmt.Fprintf(&b, "**AI Provider**: %s\n", st.Name)
	if st.Online {
		b.WriteString("**Status**: ✅ Available\n")
	} else {
		b.WriteString("**Status**: ❌ Not available\n")
	}
	switch {
	case len(st.Models) > 0:
		fmt.Fprintf(&b, "**Models**: %s", strings.Join(st.Models, ", "))
	case st.Error != "":
		fmt.Fprintf(&b, "**Error**: %s", st.Error)
	}

	color := ColorBlurple
	if !st.Online {
		color = ColorRed
	}
	return Response{Embed: &Embed{Title: "Bot Status", Description: b.String(), Color: color}}
}

func (s *Service) logs() Response {
	entries := s.events.List(logsLimit, s.store.ShowDebug())
	if len(entries) == 0 {
		return text("No logs available.")
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] **%s**: %s", e.Time.Format("15:04:05"), e.Type, e.Message)
	}
	desc := b.String()
	if r := []rune(desc); len(r) > maxDescriptionSize {
		desc = string(r[:maxDescriptionSize-3]) + "..."
	}
	return Response{Embed: &Embed{Title: "Recent Logs", Description: desc, Color: ColorBlurple}}
}

func (s *Service) logChannel(ctx context.Context, req Request) Response {
	switch req.Action {
	case "remove", "disable":
		s.store.SetLogChannel("")
		s.audit(req, "Log channel disabled")
		return text("✅ Log channel removed.")
	case "", "set":
		id, name := s.target(ctx, req)
		s.store.SetLogChannel(id)
		s.audit(req, "Log channel set to #%s", name)
		return text("✅ Log channel set to #%s", name)
	default:
		return text("Usage: %[1]s logchannel #channel\n%[1]s logchannel remove", s.cmd(req))
	}
}

func (s *Service) ocr(ctx context.Context, req Request) Response {
	var enabled bool
	switch req.Action {
	case "enable", "on":
		enabled = true
	case "disable", "off":
	default:
		return text("Usage: %[1]s ocr enable #channel\n%[1]s ocr disable #channel", s.cmd(req))
	}

	id, name := s.target(ctx, req)
	if err := s.store.SetOCR(id, enabled); err != nil {
		return text("⚠️ Translation not configured for #%s. Use %s set first.", name, s.cmd(req))
	}
	if enabled {
		s.audit(req, "OCR enabled for #%s", name)
		return text("✅ OCR enabled for #%s", name)
	}
	s.audit(req, "OCR disabled for #%s", name)
	return text("✅ OCR disabled for #%s", name)
}

func (s *Service) providerName(id provider.ID) string {
	if id == "" {
		id = provider.LocalID
	}
	if d, ok := s.registry.Descriptor(id); ok {
		return d.Name
	}
	return string(id)
}

func (s *Service) availableModels(ctx context.Context, settings provider.Settings) string {
	models, err := s.registry.Models(ctx, settings)
	list := strings.Join(models, "\n")
	if err != nil || list == "" {
		list = "No models available"
	}
	if settings.Provider != "" && settings.Provider != provider.LocalID {
		list += fmt.Sprintf("\n\nNote: For %s, any model name the provider accepts can be set.", s.providerName(settings.Provider))
	}
	return chat.Truncate(list)
}

func (s *Service) model(ctx context.Context, req Request) Response {
	if req.Name == "" {
		settings := s.store.ProviderSettings()
		return Response{Embed: &Embed{
			Title: "🤖 Translation Model",
			Color: ColorBlurple,
			Fields: []chat.Field{
				{Name: "Current Model", Value: s.registry.EffectiveModel(settings)},
				{Name: "Provider", Value: s.providerName(settings.Provider)},
				{Name: "Available Models", Value: s.availableModels(ctx, settings)},
			},
		}}
	}
	name := req.Name
	s.store.UpdateSettings(store.SettingsPatch{Model: &name})
	s.audit(req, "Translation model changed to: %s", name)
	return text("✅ Translation model set to: **%s**", name)
}

func (s *Service) ocrModel(ctx context.Context, req Request) Response {
	if req.Name == "" {
		settings := s.store.ProviderSettings()
		current := settings.OCRModel
		if current == "" {
			current = "Default (same as translation)"
		}
		return Response{Embed: &Embed{
			Title: "📷 OCR Model",
			Color: ColorAmber,
			Fields: []chat.Field{
				{Name: "Current OCR Model", Value: current},
				{Name: "Provider", Value: s.providerName(settings.Provider)},
				{Name: "Available Models", Value: s.availableModels(ctx, settings)},
			},
		}}
	}
	name := req.Name
	s.store.UpdateSettings(store.SettingsPatch{OCRModel: &name})
	s.audit(req, "OCR model changed to: %s", name)
	return text("✅ OCR model set to: **%s**", name)
}

func (s *Service) provider(req Request) Response {
	if req.Name == "" {
		var b strings.Builder
		for i, d := range s.registry.Descriptors() {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s: %s", d.ID, d.Name)
		}
		return Response{Embed: &Embed{
			Title: "🔌 AI Provider",
			Color: ColorBlurple,
			Fields: []chat.Field{
				{Name: "Current Provider", Value: s.providerName(s.store.ProviderSettings().Provider)},
				{Name: "Available Providers", Value: b.String()},
			},
		}}
	}

	id := provider.ID(strings.ToLower(req.Name))
	if !s.registry.Known(id) {
		ids := make([]string, 0)
		for _, known := range s.registry.IDs() {
			ids = append(ids, string(known))
		}
		return text("❌ Unknown provider: **%s**\nAvailable: %s", req.Name, strings.Join(ids, ", "))
	}
	name := string(id)
	s.store.UpdateSettings(store.SettingsPatch{AIProvider: &name})
	s.audit(req, "AI provider changed to: %s", name)
	return text("✅ AI provider set to: **%s**", s.providerName(id))
}

func (s *Service) help(req Request) Response {
	p := s.cmd(req)
	usage := [][2]string{
		{p + " set #channel <language>", "Set a channel for translation"},
		{p + " remove #channel", "Remove translation from a channel"},
		{p + " ocr enable #channel", "Enable OCR for a channel"},
		{p + " ocr disable #channel", "Disable OCR for a channel"},
		{p + " model", "Show current and available translation models"},
		{p + " model <name>", "Set the translation model"},
		{p + " ocrmodel", "Show current and available OCR models"},
		{p + " ocrmodel <name>", "Set the OCR model"},
		{p + " provider", "Show current and available AI providers"},
		{p + " provider <name>", "Set the AI provider"},
		{p + " list", "List all configured channels"},
		{p + " status", "Check bot and AI provider status"},
		{p + " logs", "View recent bot logs"},
		{p + " logchannel #channel", "Set log channel"},
		{p + " logchannel remove", "Remove log channel"},
		{p + " help", "Show this help message"},
	}
	fields := make([]chat.Field, len(usage))
	for i, u := range usage {
		fields[i] = chat.Field{Name: u[0], Value: u[1]}
	}
	return Response{Embed: &Embed{Title: "🤖 Translation Bot Commands", Color: ColorBlurple, Fields: fields}}
}
