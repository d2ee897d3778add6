package directory

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/blikh/discord-translation-relay/internal/ttlcache"
)

type fakeSource struct {
	calls  map[string]int
	fail   bool
	guilds map[string]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: make(map[string]int), guilds: map[string]string{"g1": "Guild One"}}
}

func (f *fakeSource) GuildName(_ context.Context, guildID string) (string, error) {
	f.calls["guild"]++
	if f.fail {
		return "", errors.New("boom")
	}
	name, ok := f.guilds[guildID]
	if !ok {
		return "", errors.New("unknown guild")
	}
	return name, nil
}

func (f *fakeSource) ChannelName(_ context.Context, _, channelID string) (string, error) {
	f.calls["channel"]++
	if f.fail {
		return "", errors.New("boom")
	}
	return "chan-" + channelID, nil
}

func (f *fakeSource) RoleName(_ context.Context, _, roleID string) (string, error) {
	f.calls["role"]++
	if f.fail {
		return "", errors.New("boom")
	}
	return "role-" + roleID, nil
}

func (f *fakeSource) User(_ context.Context, userID string) (User, error) {
	f.calls["user"]++
	if f.fail {
		return User{}, errors.New("boom")
	}
	return User{Name: "user-" + userID, Avatar: "https://cdn/" + userID}, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLookupCachesPositiveResults(t *testing.T) {
	src := newFakeSource()
	l := New(src, time.Minute, testLogger())
	ctx := context.Background()

	for range 3 {
		if got := l.GuildName(ctx, "g1"); got != "Guild One" {
			t.Fatalf("GuildName = %q", got)
		}
	}
	if src.calls["guild"] != 1 {
		t.Fatalf("source called %d times, want 1", src.calls["guild"])
	}
}

func TestLookupSentinelOnFailure(t *testing.T) {
	src := newFakeSource()
	src.fail = true
	l := New(src, time.Minute, testLogger())
	ctx := context.Background()

	if got := l.GuildName(ctx, "g1"); got != UnknownGuild {
		t.Fatalf("GuildName = %q, want %q", got, UnknownGuild)
	}
	if got := l.ChannelName(ctx, "g1", "c1"); got != Unknown {
		t.Fatalf("ChannelName = %q, want %q", got, Unknown)
	}
	if got := l.RoleName(ctx, "g1", "r1"); got != Unknown {
		t.Fatalf("RoleName = %q, want %q", got, Unknown)
	}
	if got := l.User(ctx, "u1"); got.Name != Unknown || got.Avatar != "" {
		t.Fatalf("User = %+v", got)
	}
}

func TestLookupNegativeEntryExpires(t *testing.T) {
	src := newFakeSource()
	src.fail = true
	clk := &clock{t: time.Unix(1000, 0)}
	l := New(src, time.Minute, testLogger(), ttlcache.WithClock(clk.now))
	ctx := context.Background()

	l.User(ctx, "u1")
	l.User(ctx, "u1")
	if src.calls["user"] != 1 {
		t.Fatalf("negative result not cached: %d calls", src.calls["user"])
	}

	src.fail = false
	clk.t = clk.t.Add(time.Minute)
	got := l.User(ctx, "u1")
	if got.Name != "user-u1" {
		t.Fatalf("User after expiry = %+v", got)
	}
	if src.calls["user"] != 2 {
		t.Fatalf("source called %d times, want 2", src.calls["user"])
	}
}

func TestLookupKeysAreScopedByGuild(t *testing.T) {
	src := newFakeSource()
	l := New(src, time.Minute, testLogger())
	ctx := context.Background()

	l.ChannelName(ctx, "g1", "c1")
	l.ChannelName(ctx, "g2", "c1")
	if src.calls["channel"] != 2 {
		t.Fatalf("source called %d times, want 2", src.calls["channel"])
	}
}
