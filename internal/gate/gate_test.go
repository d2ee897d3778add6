package gate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/blikh/discord-translation-relay/internal/chat"
	"github.com/blikh/discord-translation-relay/internal/store"
)

type fakeRoles struct {
	roles map[string][]string
	err   error
	calls int
}

func (f *fakeRoles) MemberRoles(_ context.Context, _, userID string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.roles[userID], nil
}

func testGate(roles *fakeRoles) *Gate {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New("$", roles, logger)
}

func baseState() store.State {
	st := store.DefaultState()
	st.Channels["c1"] = store.ChannelRoute{ChannelID: "c1", Language: "spanish", GuildID: "g1"}
	return st
}

func message(author string) chat.Message {
	return chat.Message{GuildID: "g1", ChannelID: "c1", AuthorID: author, AuthorName: author, Content: "hello"}
}

func withImage(m chat.Message) chat.Message {
	m.Attachments = []chat.Attachment{{URL: "https://cdn/img.png", ContentType: "image/png"}}
	return m
}

func TestEvaluateOrderedChecks(t *testing.T) {
	off := false
	tests := []struct {
		name   string
		msg    func() chat.Message
		state  func() store.State
		reason Reason
	}{
		{"bot author", func() chat.Message { m := message("u1"); m.AuthorIsBot = true; return m }, baseState, ReasonBotAuthor},
		{"self", func() chat.Message { m := message("u1"); m.FromSelf = true; return m }, baseState, ReasonBotAuthor},
		{"direct message", func() chat.Message { m := message("u1"); m.GuildID = ""; return m }, baseState, ReasonDirectMessage},
		{"command", func() chat.Message { m := message("u1"); m.Content = "$translate list"; return m }, baseState, ReasonCommand},
		{"unknown channel", func() chat.Message { m := message("u1"); m.ChannelID = "other"; return m }, baseState, ReasonNoRoute},
		{"disabled", func() chat.Message { return message("u1") }, func() store.State {
			st := baseState()
			r := st.Channels["c1"]
			r.Enabled = &off
			st.Channels["c1"] = r
			return st
		}, ReasonDisabled},
		{"ignored", func() chat.Message { return message("u1") }, func() store.State {
			st := baseState()
			st.IgnoredUsers = []string{"u1"}
			return st
		}, ReasonIgnoredUser},
		{"admitted", func() chat.Message { return message("u1") }, baseState, ReasonAdmitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles := &fakeRoles{}
			d := testGate(roles).Evaluate(context.Background(), tt.msg(), tt.state())
			if d.Reason != tt.reason {
				t.Fatalf("reason = %s, want %s", d.Reason, tt.reason)
			}
			if d.Proceed != (tt.reason == ReasonAdmitted) {
				t.Fatalf("proceed = %v", d.Proceed)
			}
			if roles.calls != 0 {
				t.Fatalf("roles fetched %d times without role rules", roles.calls)
			}
		})
	}
}

func TestUnknownChannelNeverProceeds(t *testing.T) {
	g := testGate(&fakeRoles{})
	st := baseState()
	for _, ch := range []string{"", "c2", "C1", "c1 "} {
		m := message("u1")
		m.ChannelID = ch
		if d := g.Evaluate(context.Background(), m, st); d.Proceed {
			t.Fatalf("channel %q admitted", ch)
		}
	}
}

func TestIgnoredUserRejectedRegardlessOfRoles(t *testing.T) {
	roles := &fakeRoles{roles: map[string][]string{"u1": {"r1"}}}
	st := baseState()
	st.IgnoredUsers = []string{"u1"}
	st.AllowedRoles["c1"] = []store.Role{{ID: "r1"}}

	d := testGate(roles).Evaluate(context.Background(), message("u1"), st)
	if d.Proceed || d.Reason != ReasonIgnoredUser {
		t.Fatalf("decision = %+v", d)
	}
}

func TestAllowedRoles(t *testing.T) {
	roles := &fakeRoles{roles: map[string][]string{"u1": {"r2"}}}
	st := baseState()
	st.AllowedRoles["c1"] = []store.Role{{ID: "r1", Name: "Translators"}}
	g := testGate(roles)

	d := g.Evaluate(context.Background(), message("u1"), st)
	if d.Proceed || d.Reason != ReasonMissingRole {
		t.Fatalf("without R1: %+v", d)
	}

	roles.roles["u1"] = []string{"r2", "r1"}
	d = g.Evaluate(context.Background(), message("u1"), st)
	if !d.Proceed {
		t.Fatalf("with R1: %+v", d)
	}
}

func TestRoleLookupFailureRejects(t *testing.T) {
	roles := &fakeRoles{err: errors.New("discord down")}
	st := baseState()
	st.AllowedRoles["c1"] = []store.Role{{ID: "r1"}}

	d := testGate(roles).Evaluate(context.Background(), message("u1"), st)
	if d.Proceed || d.Reason != ReasonRoleLookup {
		t.Fatalf("decision = %+v", d)
	}
}

func TestOCREligibility(t *testing.T) {
	tests := []struct {
		name      string
		image     bool
		enableOCR bool
		ocrRoles  []store.Role
		held      []string
		wantOCR   bool
	}{
		{"no image", false, true, nil, nil, false},
		{"ocr disabled", true, false, nil, nil, false},
		{"open to everyone", true, true, nil, nil, true},
		{"role required and held", true, true, []store.Role{{ID: "o1"}}, []string{"o1"}, true},
		{"role required and missing", true, true, []store.Role{{ID: "o1"}}, []string{"x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles := &fakeRoles{roles: map[string][]string{"u1": tt.held}}
			st := baseState()
			r := st.Channels["c1"]
			r.EnableOCR = tt.enableOCR
			st.Channels["c1"] = r
			if tt.ocrRoles != nil {
				st.OCRRoles["c1"] = tt.ocrRoles
			}
			m := message("u1")
			if tt.image {
				m = withImage(m)
			}

			d := testGate(roles).Evaluate(context.Background(), m, st)
			if !d.Proceed {
				t.Fatalf("not admitted: %+v", d)
			}
			if d.OCR != tt.wantOCR {
				t.Fatalf("OCR = %v, want %v", d.OCR, tt.wantOCR)
			}
		})
	}
}

func TestRolesFetchedOnce(t *testing.T) {
	roles := &fakeRoles{roles: map[string][]string{"u1": {"r1", "o1"}}}
	st := baseState()
	r := st.Channels["c1"]
	r.EnableOCR = true
	st.Channels["c1"] = r
	st.AllowedRoles["c1"] = []store.Role{{ID: "r1"}}
	st.OCRRoles["c1"] = []store.Role{{ID: "o1"}}

	d := testGate(roles).Evaluate(context.Background(), withImage(message("u1")), st)
	if !d.Proceed || !d.OCR {
		t.Fatalf("decision = %+v", d)
	}
	if roles.calls != 1 {
		t.Fatalf("roles fetched %d times, want 1", roles.calls)
	}
}
