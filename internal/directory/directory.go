// Package directory resolves human-readable names for guild, channel, role
// and user identifiers. Every lookup goes through a TTL cache so the message
// hot path does not hit the platform API for names it has recently seen.
package directory

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/blikh/discord-translation-relay/internal/metrics"
	"github.com/blikh/discord-translation-relay/internal/ttlcache"
)

// Sentinel names returned when a lookup fails.
const (
	UnknownGuild = "Unknown Server"
	Unknown      = "Unknown"
)

// DefaultTTL is how long resolved (or failed) names are kept.
const DefaultTTL = 60 * time.Second

// User is the display information of a platform user.
type User struct {
	Name   string `json:"username"`
	Avatar string `json:"avatar"`
}

// Source performs the uncached lookups against the messaging platform.
type Source interface {
	GuildName(ctx context.Context, guildID string) (string, error)
	ChannelName(ctx context.Context, guildID, channelID string) (string, error)
	RoleName(ctx context.Context, guildID, roleID string) (string, error)
	User(ctx context.Context, userID string) (User, error)
}

// cached is a memoized lookup result; ok is false for a negative entry.
type cached[V any] struct {
	value V
	ok    bool
}

// Lookup is a cache-aside wrapper around a Source. It never returns errors:
// failed lookups yield a sentinel and are cached like successful ones, so a
// broken id is retried at most once per ttl.
type Lookup struct {
	source  Source
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	guilds   *ttlcache.Cache[string, cached[string]]
	channels *ttlcache.Cache[string, cached[string]]
	roles    *ttlcache.Cache[string, cached[string]]
	users    *ttlcache.Cache[string, cached[User]]
}

// New creates a Lookup with the given cache ttl.
func New(source Source, ttl time.Duration, logger *slog.Logger, opts ...ttlcache.Option) *Lookup {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lookup{
		source: source,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "directory",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("directory: circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		}),
		logger:   logger,
		guilds:   ttlcache.New[string, cached[string]](ttl, opts...),
		channels: ttlcache.New[string, cached[string]](ttl, opts...),
		roles:    ttlcache.New[string, cached[string]](ttl, opts...),
		users:    ttlcache.New[string, cached[User]](ttl, opts...),
	}
}

// GuildName returns the guild name or UnknownGuild.
func (l *Lookup) GuildName(ctx context.Context, guildID string) string {
	v, ok := resolve(l, "guild", l.guilds, guildID, func() (string, error) {
		return l.source.GuildName(ctx, guildID)
	})
	if !ok {
		return UnknownGuild
	}
	return v
}

// ChannelName returns the channel name or Unknown.
func (l *Lookup) ChannelName(ctx context.Context, guildID, channelID string) string {
	v, ok := resolve(l, "channel", l.channels, guildID+"/"+channelID, func() (string, error) {
		return l.source.ChannelName(ctx, guildID, channelID)
	})
	if !ok {
		return Unknown
	}
	return v
}

// RoleName returns the role name or Unknown.
func (l *Lookup) RoleName(ctx context.Context, guildID, roleID string) string {
	v, ok := resolve(l, "role", l.roles, guildID+"/"+roleID, func() (string, error) {
		return l.source.RoleName(ctx, guildID, roleID)
	})
	if !ok {
		return Unknown
	}
	return v
}

// User returns display information for userID. On failure the name is
// Unknown and the avatar is empty.
func (l *Lookup) User(ctx context.Context, userID string) User {
	v, ok := resolve(l, "user", l.users, userID, func() (User, error) {
		return l.source.User(ctx, userID)
	})
	if !ok {
		return User{Name: Unknown}
	}
	return v
}

func resolve[V any](l *Lookup, kind string, cache *ttlcache.Cache[string, cached[V]], key string, fetch func() (V, error)) (V, bool) {
	if c, ok := cache.Get(key); ok {
		metrics.DirectoryLookups.WithLabelValues(kind, "hit").Inc()
		return c.value, c.ok
	}

	res, err := l.breaker.Execute(func() (interface{}, error) {
		return fetch()
	})
	if err != nil {
		metrics.DirectoryLookups.WithLabelValues(kind, "error").Inc()
		l.logger.Debug("directory: lookup failed", "kind", kind, "key", key, "err", err)
		cache.Set(key, cached[V]{})
		var zero V
		return zero, false
	}

	metrics.DirectoryLookups.WithLabelValues(kind, "miss").Inc()
	v := res.(V)
	cache.Set(key, cached[V]{value: v, ok: true})
	return v, true
}
