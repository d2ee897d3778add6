// Package store holds the mutable runtime configuration: channel routes,
// role rules, the ignore list and provider settings. Mutations are applied
// in memory immediately and persisted to a JSON file after a short idle
// window.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blikh/discord-translation-relay/internal/metrics"
	"github.com/blikh/discord-translation-relay/internal/provider"
)

// ErrNotFound is returned when a mutation targets a channel without a route.
var ErrNotFound = errors.New("store: route not found")

// Store is the process-wide configuration store. It is safe for concurrent use.
type Store struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	state     State
	showDebug bool

	writeMu sync.Mutex
	persist *persister
	writes  atomic.Int64
}

// New creates a store backed by the JSON file at path. An empty path keeps
// the state in memory only. Call Load to read the file.
func New(path string, flushDelay time.Duration, logger *slog.Logger) *Store {
	s := &Store{
		path:   path,
		logger: logger,
		state:  DefaultState(),
	}
	s.persist = newPersister(flushDelay, s.writeState, logger)
	return s
}

// Load reads the state file. A missing file keeps the defaults; a malformed
// one is logged and replaced by defaults on the next write.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("store: no state file, using defaults", "path", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read %q: %w", s.path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("store: malformed state file, resetting to defaults", "path", s.path, "err", err)
		st = State{}
	}
	st.normalize()

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	s.logger.Info("store: state loaded", "path", s.path, "channels", len(st.Channels))
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Route returns the route for channelID.
func (s *Store) Route(channelID string) (ChannelRoute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.Channels[channelID]
	if ok && r.Enabled != nil {
		v := *r.Enabled
		r.Enabled = &v
	}
	return r, ok
}

// mutate applies fn under the write lock and schedules a persist when fn
// reports a change.
func (s *Store) mutate(fn func(st *State) bool) bool {
	s.mu.Lock()
	changed := fn(&s.state)
	s.mu.Unlock()

	if changed {
		metrics.ConfigMutations.Inc()
		s.persist.schedule()
	}
	return changed
}

// SetRoute creates or replaces the route for route.ChannelID.
func (s *Store) SetRoute(route ChannelRoute) {
	s.mutate(func(st *State) bool {
		st.Channels[route.ChannelID] = route
		return true
	})
}

// RoutePatch lists route fields to update; nil fields are left as they are.
type RoutePatch struct {
	Language  *string
	Enabled   *bool
	EnableOCR *bool
}

// UpdateRoute applies patch to an existing route.
func (s *Store) UpdateRoute(channelID string, patch RoutePatch) (ChannelRoute, error) {
	var out ChannelRoute
	found := false
	s.mutate(func(st *State) bool {
		r, ok := st.Channels[channelID]
		if !ok {
			return false
		}
		found = true
		if patch.Language != nil {
			r.Language = *patch.Language
		}
		if patch.Enabled != nil {
			v := *patch.Enabled
			r.Enabled = &v
		}
		if patch.EnableOCR != nil {
			r.EnableOCR = *patch.EnableOCR
		}
		st.Channels[channelID] = r
		out = r
		return true
	})
	if !found {
		return ChannelRoute{}, ErrNotFound
	}
	return out, nil
}

// SetOCR toggles text extraction for an existing route.
func (s *Store) SetOCR(channelID string, enabled bool) error {
	_, err := s.UpdateRoute(channelID, RoutePatch{EnableOCR: &enabled})
	return err
}

// RemoveRoute deletes the route for channelID and returns it.
func (s *Store) RemoveRoute(channelID string) (ChannelRoute, bool) {
	var removed ChannelRoute
	ok := s.mutate(func(st *State) bool {
		r, exists := st.Channels[channelID]
		if !exists {
			return false
		}
		removed = r
		delete(st.Channels, channelID)
		return true
	})
	return removed, ok
}

// AddRole adds role to the given set for channelID. It returns false if the
// role id is already present.
func (s *Store) AddRole(set RoleSet, channelID string, role Role) bool {
	return s.mutate(func(st *State) bool {
		m := roleMap(st, set)
		if slices.ContainsFunc(m[channelID], func(r Role) bool { return r.ID == role.ID }) {
			return false
		}
		m[channelID] = append(m[channelID], role)
		return true
	})
}

// RemoveRole removes roleID from the given set for channelID.
func (s *Store) RemoveRole(set RoleSet, channelID, roleID string) bool {
	return s.mutate(func(st *State) bool {
		m := roleMap(st, set)
		before := len(m[channelID])
		roles := slices.DeleteFunc(m[channelID], func(r Role) bool { return r.ID == roleID })
		if len(roles) == before {
			return false
		}
		if len(roles) == 0 {
			delete(m, channelID)
		} else {
			m[channelID] = roles
		}
		return true
	})
}

func roleMap(st *State, set RoleSet) map[string][]Role {
	if set == OCRRoles {
		return st.OCRRoles
	}
	return st.AllowedRoles
}

// AddAdminRole adds a role allowed to run mutating chat commands.
func (s *Store) AddAdminRole(role Role) bool {
	return s.mutate(func(st *State) bool {
		if slices.ContainsFunc(st.AdminRoles, func(r Role) bool { return r.ID == role.ID }) {
			return false
		}
		st.AdminRoles = append(st.AdminRoles, role)
		return true
	})
}

// RemoveAdminRole removes roleID from the admin roles.
func (s *Store) RemoveAdminRole(roleID string) bool {
	return s.mutate(func(st *State) bool {
		before := len(st.AdminRoles)
		st.AdminRoles = slices.DeleteFunc(st.AdminRoles, func(r Role) bool { return r.ID == roleID })
		return len(st.AdminRoles) != before
	})
}

// IgnoreUser adds userID to the ignore list.
func (s *Store) IgnoreUser(userID string) bool {
	return s.mutate(func(st *State) bool {
		if slices.Contains(st.IgnoredUsers, userID) {
			return false
		}
		st.IgnoredUsers = append(st.IgnoredUsers, userID)
		return true
	})
}

// UnignoreUser removes userID from the ignore list.
func (s *Store) UnignoreUser(userID string) bool {
	return s.mutate(func(st *State) bool {
		before := len(st.IgnoredUsers)
		st.IgnoredUsers = slices.DeleteFunc(st.IgnoredUsers, func(id string) bool { return id == userID })
		return len(st.IgnoredUsers) != before
	})
}

// SetLogChannel sets the channel receiving mirrored log entries; an empty id disables it.
func (s *Store) SetLogChannel(channelID string) {
	s.UpdateSettings(SettingsPatch{LogChannel: &channelID})
}

// SetDebugLogChannel sets the channel receiving debug entries; an empty id disables it.
func (s *Store) SetDebugLogChannel(channelID string) {
	s.UpdateSettings(SettingsPatch{DebugLogChannel: &channelID})
}

// SettingsPatch lists global settings to update; nil fields are left as they are.
type SettingsPatch struct {
	LogChannel      *string
	DebugLogChannel *string
	Model           *string
	OCRModel        *string
	AIProvider      *string
	AIAPIKey        *string
	AIBaseURL       *string
	OllamaURL       *string
}

// UpdateSettings applies patch. Validation of the provider id is the
// caller's job.
func (s *Store) UpdateSettings(patch SettingsPatch) {
	s.mutate(func(st *State) bool {
		set := func(dst *string, src *string) bool {
			if src == nil {
				return false
			}
			*dst = *src
			return true
		}
		changed := false
		changed = set(&st.LogChannel, patch.LogChannel) || changed
		changed = set(&st.DebugLogChannel, patch.DebugLogChannel) || changed
		changed = set(&st.Model, patch.Model) || changed
		changed = set(&st.OCRModel, patch.OCRModel) || changed
		changed = set(&st.AIProvider, patch.AIProvider) || changed
		changed = set(&st.AIAPIKey, patch.AIAPIKey) || changed
		changed = set(&st.AIBaseURL, patch.AIBaseURL) || changed
		changed = set(&st.OllamaURL, patch.OllamaURL) || changed
		return changed
	})
}

// LogChannels returns the log and debug log channel ids.
func (s *Store) LogChannels() (logChannel, debugChannel string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LogChannel, s.state.DebugLogChannel
}

// SetShowDebug toggles whether debug entries are shown on the dashboard.
// The flag is not persisted.
func (s *Store) SetShowDebug(v bool) {
	s.mu.Lock()
	s.showDebug = v
	s.mu.Unlock()
}

// ShowDebug returns the in-memory debug display flag.
func (s *Store) ShowDebug() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.showDebug
}

// ProviderSettings returns the provider settings in effect.
func (s *Store) ProviderSettings() provider.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SettingsFrom(s.state)
}

// SettingsFrom derives provider settings from a state snapshot.
func SettingsFrom(st State) provider.Settings {
	return provider.Settings{
		Provider: provider.ID(st.AIProvider),
		APIKey:   st.AIAPIKey,
		BaseURL:  st.AIBaseURL,
		LocalURL: st.OllamaURL,
		Model:    st.Model,
		OCRModel: st.OCRModel,
	}
}

// Flush writes a pending change synchronously. It is a no-op when nothing
// is pending.
func (s *Store) Flush() error {
	return s.persist.flush()
}

// Pending reports whether a write is scheduled.
func (s *Store) Pending() bool {
	return s.persist.pending()
}

func (s *Store) writeState() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		metrics.ConfigWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("store: marshal state: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		metrics.ConfigWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("store: write %q: %w", s.path, err)
	}
	s.writes.Add(1)
	metrics.ConfigWrites.WithLabelValues("ok").Inc()
	s.logger.Debug("store: state persisted", "path", s.path, "bytes", len(data))
	return nil
}
