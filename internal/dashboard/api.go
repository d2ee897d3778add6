package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/blikh/discord-translation-relay/internal/directory"
	"github.com/blikh/discord-translation-relay/internal/discord"
	"github.com/blikh/discord-translation-relay/internal/eventlog"
	"github.com/blikh/discord-translation-relay/internal/pipeline"
	"github.com/blikh/discord-translation-relay/internal/provider"
	"github.com/blikh/discord-translation-relay/internal/store"
)

const (
	logsLimit         = 50
	historyLimit      = 100
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

type channelInfo struct {
	ID          string `json:"id"`
	Language    string `json:"language"`
	GuildID     string `json:"guildId"`
	GuildName   string `json:"guildName"`
	ChannelName string `json:"channelName"`
	Enabled     bool   `json:"enabled"`
	EnableOCR   bool   `json:"enableOcr"`
}

type statusResponse struct {
	Bot      discord.BotStatus `json:"bot"`
	Provider provider.Status   `json:"provider"`
	Channels []channelInfo     `json:"channels"`
}

type ignoredUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type configResponse struct {
	Channels     []channelInfo           `json:"channels"`
	IgnoredUsers []ignoredUser           `json:"ignoredUsers"`
	AllowedRoles map[string][]store.Role `json:"allowedRoles"`
	OCRRoles     map[string][]store.Role `json:"ocrRoles"`
	AdminRoles   []store.Role            `json:"adminRoles"`
	AIProvider   string                  `json:"aiProvider"`
	HasAPIKey    bool                    `json:"hasApiKey"`
	AIBaseURL    string                  `json:"aiBaseUrl"`
}

type settingsView struct {
	ShowDebug       bool   `json:"showDebug"`
	LogChannel      string `json:"logChannel"`
	DebugLogChannel string `json:"debugLogChannel"`
	Model           string `json:"model"`
	OCRModel        string `json:"ocrModel"`
	AIProvider      string `json:"aiProvider"`
	HasAPIKey       bool   `json:"hasApiKey"`
	AIBaseURL       string `json:"aiBaseUrl"`
	OllamaURL       string `json:"ollamaUrl"`
}

type settingsUpdate struct {
	ShowDebug       *bool   `json:"showDebug"`
	LogChannel      *string `json:"logChannel"`
	DebugLogChannel *string `json:"debugLogChannel"`
	Model           *string `json:"model"`
	OCRModel        *string `json:"ocrModel"`
	AIProvider      *string `json:"aiProvider"`
	AIAPIKey        *string `json:"aiApiKey"`
	AIBaseURL       *string `json:"aiBaseUrl"`
	OllamaURL       *string `json:"ollamaUrl"`
}

type modelsResponse struct {
	Provider       provider.ID `json:"provider"`
	Models         []string    `json:"models"`
	Current        string      `json:"current"`
	OCRCurrent     string      `json:"ocrCurrent"`
	RequiresAPIKey bool        `json:"requiresApiKey"`
}

func (s *Server) channels(ctx context.Context, st store.State) []channelInfo {
	out := make([]channelInfo, 0, len(st.Channels))
	for id, r := range st.Channels {
		name := r.ChannelName
		if name == "" {
			name = s.Directory.ChannelName(ctx, r.GuildID, id)
		}
		out = append(out, channelInfo{
			ID:          id,
			Language:    r.Language,
			GuildID:     r.GuildID,
			GuildName:   s.Directory.GuildName(ctx, r.GuildID),
			ChannelName: name,
			Enabled:     r.IsEnabled(),
			EnableOCR:   r.EnableOCR,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// channelLabel returns "#name" for channelID, falling back to the id.
func (s *Server) channelLabel(ctx context.Context, st store.State, channelID string) string {
	r, ok := st.Route(channelID)
	if ok && r.ChannelName != "" {
		return "#" + r.ChannelName
	}
	if name := s.Directory.ChannelName(ctx, r.GuildID, channelID); name != directory.Unknown {
		return "#" + name
	}
	return "#" + channelID
}

// defaultGuild returns the guild of the first configured channel, for
// requests that do not name one.
func defaultGuild(st store.State) string {
	ids := make([]string, 0, len(st.Channels))
	for id := range st.Channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if g := st.Channels[id].GuildID; g != "" {
			return g
		}
	}
	return ""
}

func (s *Server) roleName(ctx context.Context, guildID, roleID string) string {
	if guildID == "" {
		return roleID
	}
	if name := s.Directory.RoleName(ctx, guildID, roleID); name != directory.Unknown {
		return name
	}
	return roleID
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	st := s.Store.Snapshot()
	resp := statusResponse{
		Provider: s.Registry.Status(r.Context(), store.SettingsFrom(st)),
		Channels: s.channels(r.Context(), st),
	}
	if s.Bot != nil {
		resp.Bot = s.Bot.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	st := s.Store.Snapshot()
	users := make([]ignoredUser, 0, len(st.IgnoredUsers))
	for _, id := range st.IgnoredUsers {
		u := s.Directory.User(r.Context(), id)
		users = append(users, ignoredUser{ID: id, Username: u.Name, Avatar: u.Avatar})
	}
	writeJSON(w, http.StatusOK, configResponse{
		Channels:     s.channels(r.Context(), st),
		IgnoredUsers: users,
		AllowedRoles: st.AllowedRoles,
		OCRRoles:     st.OCRRoles,
		AdminRoles:   st.AdminRoles,
		AIProvider:   st.AIProvider,
		HasAPIKey:    st.AIAPIKey != "",
		AIBaseURL:    st.AIBaseURL,
	})
}

func (s *Server) settings() settingsView {
	st := s.Store.Snapshot()
	return settingsView{
		ShowDebug:       s.Store.ShowDebug(),
		LogChannel:      st.LogChannel,
		DebugLogChannel: st.DebugLogChannel,
		Model:           st.Model,
		OCRModel:        st.OCRModel,
		AIProvider:      st.AIProvider,
		HasAPIKey:       st.AIAPIKey != "",
		AIBaseURL:       st.AIBaseURL,
		OllamaURL:       st.OllamaURL,
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.settings())
	case http.MethodPut:
		s.updateSettings(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdate
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trim := func(p *string) {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	trim(req.LogChannel)
	trim(req.DebugLogChannel)
	trim(req.Model)
	trim(req.OCRModel)
	trim(req.AIBaseURL)
	trim(req.OllamaURL)
	if req.AIProvider != nil {
		*req.AIProvider = strings.ToLower(strings.TrimSpace(*req.AIProvider))
		if !s.Registry.Known(provider.ID(*req.AIProvider)) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown provider: %s", *req.AIProvider))
			return
		}
	}
	if req.Model != nil && *req.Model == "" {
		writeError(w, http.StatusBadRequest, "Model cannot be empty")
		return
	}

	before := s.Store.Snapshot()
	if req.ShowDebug != nil && *req.ShowDebug != s.Store.ShowDebug() {
		s.Store.SetShowDebug(*req.ShowDebug)
		if *req.ShowDebug {
			s.Events.Audit("Debug logging enabled via dashboard")
		} else {
			s.Events.Audit("Debug logging disabled via dashboard")
		}
	}
	s.Store.UpdateSettings(store.SettingsPatch{
		LogChannel:      req.LogChannel,
		DebugLogChannel: req.DebugLogChannel,
		Model:           req.Model,
		OCRModel:        req.OCRModel,
		AIProvider:      req.AIProvider,
		AIAPIKey:        req.AIAPIKey,
		AIBaseURL:       req.AIBaseURL,
		OllamaURL:       req.OllamaURL,
	})

	changed := func(p *string, old string) bool { return p != nil && *p != old }
	if changed(req.LogChannel, before.LogChannel) {
		s.auditChannelSetting("Log channel", *req.LogChannel)
	}
	if changed(req.DebugLogChannel, before.DebugLogChannel) {
		s.auditChannelSetting("Debug log channel", *req.DebugLogChannel)
	}
	if changed(req.Model, before.Model) {
		s.Events.Audit(fmt.Sprintf("Translation model changed to %s via dashboard", *req.Model))
	}
	if changed(req.OCRModel, before.OCRModel) {
		if *req.OCRModel == "" {
			s.Events.Audit("OCR model reset to default via dashboard")
		} else {
			s.Events.Audit(fmt.Sprintf("OCR model changed to %s via dashboard", *req.OCRModel))
		}
	}
	if changed(req.AIProvider, before.AIProvider) {
		s.Events.Audit(fmt.Sprintf("AI provider changed to %s via dashboard", *req.AIProvider))
	}
	if changed(req.AIAPIKey, before.AIAPIKey) {
		s.Events.Audit("AI API key updated via dashboard")
	}
	if changed(req.AIBaseURL, before.AIBaseURL) {
		s.Events.Audit(fmt.Sprintf("AI base URL changed to %q via dashboard", *req.AIBaseURL))
	}
	if changed(req.OllamaURL, before.OllamaURL) {
		s.Events.Audit(fmt.Sprintf("Ollama URL changed to %s via dashboard", *req.OllamaURL))
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		settingsView
	}{true, s.settings()})
}

func (s *Server) auditChannelSetting(what, channelID string) {
	if channelID == "" {
		s.Events.Audit(what + " removed via dashboard")
		return
	}
	s.Events.Audit(fmt.Sprintf("%s set to %s via dashboard", what, channelID))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.Events.List(logsLimit, s.Store.ShowDebug()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.History.List(historyLimit))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.Stats.Snapshot())
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	settings := s.Store.ProviderSettings()
	id := settings.Provider
	if id == "" {
		id = provider.LocalID
	}
	desc, _ := s.Registry.Descriptor(id)

	models, err := s.Registry.Models(r.Context(), settings)
	if err != nil {
		s.logger.Warn("dashboard: failed to list models", "provider", id, "err", err)
		name := desc.Name
		if name == "" {
			name = string(id)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     fmt.Sprintf("Failed to fetch models from %s", name),
			"available": false,
			"provider":  id,
		})
		return
	}
	if models == nil {
		models = []string{}
	}

	current := s.Registry.EffectiveModel(settings)
	ocrCurrent := settings.OCRModel
	if ocrCurrent == "" {
		ocrCurrent = current
	}
	writeJSON(w, http.StatusOK, modelsResponse{
		Provider:       id,
		Models:         models,
		Current:        current,
		OCRCurrent:     ocrCurrent,
		RequiresAPIKey: desc.RequiresKey,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := defaultAuditLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	if s.Audit != nil {
		entries, err := s.Audit.Events(r.Context(), eventlog.KindAudit, limit)
		if err != nil {
			s.logger.Error("dashboard: failed to read audit archive", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to read audit log")
			return
		}
		if entries == nil {
			entries = []eventlog.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	// Without an archive only the in-memory window is available.
	entries := []eventlog.Entry{}
	for _, e := range s.Events.List(eventlog.Capacity, false) {
		if e.Kind == eventlog.KindAudit {
			entries = append(entries, e)
		}
		if len(entries) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) adminRolesResponse(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"adminRoles": s.Store.Snapshot().AdminRoles,
	})
}

func (s *Server) handleAdminRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"adminRoles": s.Store.Snapshot().AdminRoles})
	case http.MethodPost:
		var req struct {
			RoleID  string `json:"roleId"`
			GuildID string `json:"guildId"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.RoleID == "" {
			writeError(w, http.StatusBadRequest, "roleId required")
			return
		}
		guildID := req.GuildID
		if guildID == "" {
			guildID = defaultGuild(s.Store.Snapshot())
		}
		name := s.roleName(r.Context(), guildID, req.RoleID)
		if s.Store.AddAdminRole(store.Role{ID: req.RoleID, Name: name}) {
			s.Events.Audit(fmt.Sprintf("Added admin role: %s", name))
		}
		s.adminRolesResponse(w)
	default:
		methodNotAllowed(w)
	}
}

// handleDeleteAdminRole handles DELETE /api/admin-roles/<roleId>.
func (s *Server) handleDeleteAdminRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	roleID := strings.TrimPrefix(r.URL.Path, "/api/admin-roles/")
	if roleID == "" || strings.Contains(roleID, "/") {
		writeError(w, http.StatusNotFound, "Role not found")
		return
	}
	if s.Store.RemoveAdminRole(roleID) {
		s.Events.Audit(fmt.Sprintf("Removed admin role: %s", roleID))
	}
	s.adminRolesResponse(w)
}

func (s *Server) handleAddChannel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		ChannelID string `json:"channelId"`
		Language  string `json:"language"`
		GuildID   string `json:"guildId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Language = strings.TrimSpace(req.Language)
	if req.ChannelID == "" || req.Language == "" {
		writeError(w, http.StatusBadRequest, "channelId and language required")
		return
	}

	name := s.Directory.ChannelName(r.Context(), req.GuildID, req.ChannelID)
	if name == directory.Unknown {
		name = ""
	}
	route := store.ChannelRoute{
		ChannelID:   req.ChannelID,
		Language:    req.Language,
		GuildID:     req.GuildID,
		ChannelName: name,
	}
	s.Store.SetRoute(route)

	label := "#" + req.ChannelID
	if name != "" {
		label = "#" + name
	}
	s.Events.Audit(fmt.Sprintf("Added translation channel via dashboard: %s → %s", label, req.Language))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "channel": toChannelInfo(route)})
}

func toChannelInfo(r store.ChannelRoute) channelInfo {
	return channelInfo{
		ID:          r.ChannelID,
		Language:    r.Language,
		GuildID:     r.GuildID,
		ChannelName: r.ChannelName,
		Enabled:     r.IsEnabled(),
		EnableOCR:   r.EnableOCR,
	}
}

// handleChannelRoute dispatches PUT and DELETE /api/channels/<id>.
func (s *Server) handleChannelRoute(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/channels/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "Channel not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		s.updateChannel(w, r, id)
	case http.MethodDelete:
		s.deleteChannel(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) updateChannel(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Language  *string `json:"language"`
		Enabled   *bool   `json:"enabled"`
		EnableOCR *bool   `json:"enableOcr"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Language != nil {
		*req.Language = strings.TrimSpace(*req.Language)
		if *req.Language == "" {
			writeError(w, http.StatusBadRequest, "language cannot be empty")
			return
		}
	}

	route, err := s.Store.UpdateRoute(id, store.RoutePatch{
		Language:  req.Language,
		Enabled:   req.Enabled,
		EnableOCR: req.EnableOCR,
	})
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Channel not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var changes []string
	if req.Language != nil {
		changes = append(changes, "language "+*req.Language)
	}
	if req.Enabled != nil {
		changes = append(changes, "enabled "+strconv.FormatBool(*req.Enabled))
	}
	if req.EnableOCR != nil {
		changes = append(changes, "OCR "+strconv.FormatBool(*req.EnableOCR))
	}
	if len(changes) > 0 {
		label := s.channelLabel(r.Context(), s.Store.Snapshot(), id)
		s.Events.Audit(fmt.Sprintf("Updated translation channel %s via dashboard: %s", label, strings.Join(changes, ", ")))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "channel": toChannelInfo(route)})
}

func (s *Server) deleteChannel(w http.ResponseWriter, r *http.Request, id string) {
	label := s.channelLabel(r.Context(), s.Store.Snapshot(), id)
	if _, ok := s.Store.RemoveRoute(id); !ok {
		writeError(w, http.StatusNotFound, "Channel not found")
		return
	}
	s.Events.Audit(fmt.Sprintf("Removed translation channel via dashboard: %s", label))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// roleHandler serves POST <prefix><channelId> and DELETE
// <prefix><channelId>/<roleId> for one role set.
func (s *Server) roleHandler(set store.RoleSet, prefix string) http.HandlerFunc {
	what := "allowed role"
	if set == store.OCRRoles {
		what = "OCR role"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, prefix), "/")
		switch {
		case r.Method == http.MethodPost && len(parts) == 1 && parts[0] != "":
			s.addRole(w, r, set, what, parts[0])
		case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] != "" && parts[1] != "":
			st := s.Store.Snapshot()
			if s.Store.RemoveRole(set, parts[0], parts[1]) {
				s.Events.Audit(fmt.Sprintf("Removed %s %s from %s via dashboard", what, parts[1], s.channelLabel(r.Context(), st, parts[0])))
			}
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		case r.Method == http.MethodPost, r.Method == http.MethodDelete:
			writeError(w, http.StatusNotFound, "not found")
		default:
			methodNotAllowed(w)
		}
	}
}

func (s *Server) addRole(w http.ResponseWriter, r *http.Request, set store.RoleSet, what, channelID string) {
	var req struct {
		RoleID  string `json:"roleId"`
		GuildID string `json:"guildId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RoleID == "" {
		writeError(w, http.StatusBadRequest, "roleId required")
		return
	}
	st := s.Store.Snapshot()
	guildID := req.GuildID
	if guildID == "" {
		if route, ok := st.Route(channelID); ok {
			guildID = route.GuildID
		}
	}
	name := s.roleName(r.Context(), guildID, req.RoleID)
	if s.Store.AddRole(set, channelID, store.Role{ID: req.RoleID, Name: name}) {
		s.Events.Audit(fmt.Sprintf("Added %s %s to %s via dashboard", what, name, s.channelLabel(r.Context(), st, channelID)))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleIgnore handles POST and DELETE /api/ignore/<userId>.
func (s *Server) handleIgnore(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/api/ignore/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	label := func() string {
		if u := s.Directory.User(r.Context(), userID); u.Name != directory.Unknown {
			return fmt.Sprintf("%s (%s)", u.Name, userID)
		}
		return userID
	}
	switch r.Method {
	case http.MethodPost:
		if s.Store.IgnoreUser(userID) {
			s.Events.Audit(fmt.Sprintf("Ignored user via dashboard: %s", label()))
		}
	case http.MethodDelete:
		if s.Store.UnignoreUser(userID) {
			s.Events.Audit(fmt.Sprintf("Unignored user via dashboard: %s", label()))
		}
	default:
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" || strings.TrimSpace(req.Language) == "" {
		writeError(w, http.StatusBadRequest, "Text and language required")
		return
	}

	translated, err := s.Pipeline.TranslateText(r.Context(), req.Text, req.Language)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"original":    req.Text,
		"translation": translated,
		"language":    req.Language,
	})
}

func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Image string `json:"image"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Image == "" {
		writeError(w, http.StatusBadRequest, "Image required (base64 encoded)")
		return
	}

	text, err := s.Pipeline.ExtractText(r.Context(), req.Image)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"extractedText": text})
}

func (s *Server) handleOCRTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Image    string `json:"image"`
		Language string `json:"language"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Image == "" || strings.TrimSpace(req.Language) == "" {
		writeError(w, http.StatusBadRequest, "Image and language required")
		return
	}

	extracted, translated, err := s.Pipeline.ExtractAndTranslate(r.Context(), req.Image, req.Language)
	if errors.Is(err, pipeline.ErrNoText) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"extractedText": extracted,
		"translation":   translated,
		"language":      req.Language,
	})
}
