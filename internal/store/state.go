package store

import (
	"maps"
	"slices"
)

// Defaults applied to a fresh or partially filled state.
const (
	DefaultModel     = "gemma3"
	DefaultProvider  = "ollama"
	DefaultOllamaURL = "http://localhost:11434"
)

// ChannelRoute binds a channel to a target language.
type ChannelRoute struct {
	ChannelID   string `json:"-"`
	Language    string `json:"language"`
	GuildID     string `json:"guildId,omitempty"`
	ChannelName string `json:"channelName,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
	EnableOCR   bool   `json:"enableOcr,omitempty"`
}

// IsEnabled reports whether the route is active. A route without an explicit
// flag is enabled.
func (r ChannelRoute) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Role is a role id with its cached display name.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// State is the persisted runtime configuration. Its JSON layout is the
// on-disk format.
type State struct {
	Channels        map[string]ChannelRoute `json:"channels"`
	IgnoredUsers    []string                `json:"ignoredUsers"`
	AllowedRoles    map[string][]Role       `json:"allowedRoles"`
	OCRRoles        map[string][]Role       `json:"ocrRoles"`
	AdminRoles      []Role                  `json:"adminRoles"`
	LogChannel      string                  `json:"logChannel,omitempty"`
	DebugLogChannel string                  `json:"debugLogChannel,omitempty"`
	Model           string                  `json:"model"`
	OCRModel        string                  `json:"ocrModel,omitempty"`
	AIProvider      string                  `json:"aiProvider"`
	AIAPIKey        string                  `json:"aiApiKey,omitempty"`
	AIBaseURL       string                  `json:"aiBaseUrl,omitempty"`
	OllamaURL       string                  `json:"ollamaUrl"`
}

// DefaultState returns an empty state with defaults applied.
func DefaultState() State {
	var s State
	s.normalize()
	return s
}

func (s *State) normalize() {
	if s.Channels == nil {
		s.Channels = make(map[string]ChannelRoute)
	}
	for id, r := range s.Channels {
		r.ChannelID = id
		s.Channels[id] = r
	}
	if s.IgnoredUsers == nil {
		s.IgnoredUsers = []string{}
	}
	if s.AllowedRoles == nil {
		s.AllowedRoles = make(map[string][]Role)
	}
	if s.OCRRoles == nil {
		s.OCRRoles = make(map[string][]Role)
	}
	if s.AdminRoles == nil {
		s.AdminRoles = []Role{}
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.AIProvider == "" {
		s.AIProvider = DefaultProvider
	}
	if s.OllamaURL == "" {
		s.OllamaURL = DefaultOllamaURL
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Channels = make(map[string]ChannelRoute, len(s.Channels))
	for id, r := range s.Channels {
		if r.Enabled != nil {
			v := *r.Enabled
			r.Enabled = &v
		}
		out.Channels[id] = r
	}
	out.IgnoredUsers = slices.Clone(s.IgnoredUsers)
	out.AllowedRoles = cloneRoleMap(s.AllowedRoles)
	out.OCRRoles = cloneRoleMap(s.OCRRoles)
	out.AdminRoles = slices.Clone(s.AdminRoles)
	return out
}

func cloneRoleMap(m map[string][]Role) map[string][]Role {
	out := maps.Clone(m)
	if out == nil {
		return make(map[string][]Role)
	}
	for k, v := range out {
		out[k] = slices.Clone(v)
	}
	return out
}

// Route returns the route for channelID.
func (s State) Route(channelID string) (ChannelRoute, bool) {
	r, ok := s.Channels[channelID]
	return r, ok
}

// IsIgnored reports whether userID is on the ignore list.
func (s State) IsIgnored(userID string) bool {
	return slices.Contains(s.IgnoredUsers, userID)
}

// RoleSet selects one of the per-channel role rule sets.
type RoleSet int

const (
	// AllowedRoles restricts who gets translated in a channel.
	AllowedRoles RoleSet = iota
	// OCRRoles restricts whose images are run through text extraction.
	OCRRoles
)

func (rs RoleSet) String() string {
	if rs == OCRRoles {
		return "ocr"
	}
	return "allowed"
}

// Roles returns the role rules of the given set for channelID.
func (s State) Roles(set RoleSet, channelID string) []Role {
	if set == OCRRoles {
		return s.OCRRoles[channelID]
	}
	return s.AllowedRoles[channelID]
}

// OCRModelOrDefault returns the OCR model, falling back to the translation model.
func (s State) OCRModelOrDefault() string {
	if s.OCRModel != "" {
		return s.OCRModel
	}
	return s.Model
}
