package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blikh/discord-translation-relay/internal/chat"
	"github.com/blikh/discord-translation-relay/internal/directory"
	"github.com/blikh/discord-translation-relay/internal/eventlog"
	"github.com/blikh/discord-translation-relay/internal/gate"
	"github.com/blikh/discord-translation-relay/internal/history"
	"github.com/blikh/discord-translation-relay/internal/provider"
	"github.com/blikh/discord-translation-relay/internal/stats"
	"github.com/blikh/discord-translation-relay/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakePlatform struct {
	mu          sync.Mutex
	replies     []chat.Reply
	replyErr    error
	downloadErr error
}

func (f *fakePlatform) MemberRoles(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakePlatform) Download(context.Context, string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return []byte("png-bytes"), nil
}

func (f *fakePlatform) Reply(_ context.Context, _ chat.Message, r chat.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, r)
	return nil
}

type fakeArchive struct {
	mu   sync.Mutex
	recs []history.Record
}

func (f *fakeArchive) AddTranslation(_ context.Context, r history.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, r)
	return nil
}

type fakeUsers struct{}

func (fakeUsers) GuildName(context.Context, string) (string, error) { return "Guild", nil }
func (fakeUsers) ChannelName(context.Context, string, string) (string, error) {
	return "general", nil
}
func (fakeUsers) RoleName(context.Context, string, string) (string, error) { return "role", nil }
func (fakeUsers) User(context.Context, string) (directory.User, error) {
	return directory.User{Name: "alice", Avatar: "https://cdn/avatar.png"}, nil
}

// ollama fakes a local backend. Image requests fail when ocrFails is set and
// otherwise extract "Bonjour".
type ollama struct {
	ocrFails bool
	calls    int
	mu       sync.Mutex
}

func (o *ollama) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		o.calls++
		o.mu.Unlock()
		var req struct {
			Prompt string   `json:"prompt"`
			Images []string `json:"images"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if len(req.Images) > 0 {
			if o.ocrFails {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"model crashed"}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"response": "Bonjour\n"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "  Hola  \n"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	p        *Pipeline
	store    *store.Store
	history  *history.Log
	stats    *stats.Aggregator
	events   *eventlog.Log
	archive  *fakeArchive
	platform *fakePlatform
}

func newFixture(t *testing.T, backendURL string, withDirectory bool) *fixture {
	t.Helper()
	logger := testLogger()
	st := store.New("", time.Millisecond, logger)
	if err := st.Load(); err != nil {
		t.Fatal(err)
	}
	st.UpdateSettings(store.SettingsPatch{OllamaURL: &backendURL})
	st.SetRoute(store.ChannelRoute{ChannelID: "c1", GuildID: "g1", ChannelName: "general", Language: "spanish"})

	f := &fixture{
		store:    st,
		history:  history.New(),
		stats:    stats.New(time.Minute, stats.WithMemory(func() stats.Memory { return stats.Memory{} })),
		events:   eventlog.New(logger),
		archive:  &fakeArchive{},
		platform: &fakePlatform{},
	}
	deps := Deps{
		Store:    st,
		Gate:     gate.New("$", f.platform, logger),
		Registry: provider.NewDefaultRegistry(logger),
		History:  f.history,
		Stats:    f.stats,
		Events:   f.events,
		Archive:  f.archive,
		Platform: f.platform,
	}
	if withDirectory {
		deps.Directory = directory.New(fakeUsers{}, time.Minute, logger)
	}
	f.p = New(deps, logger)
	return f
}

func textMessage(content string) chat.Message {
	return chat.Message{ID: "m1", GuildID: "g1", ChannelID: "c1", AuthorID: "u1", AuthorName: "alice", Content: content}
}

func imageMessage(content string) chat.Message {
	m := textMessage(content)
	m.Attachments = []chat.Attachment{{URL: "https://cdn/pic.png", Filename: "pic.png", ContentType: "image/png"}}
	return m
}

func enableOCR(t *testing.T, s *store.Store) {
	t.Helper()
	if err := s.SetOCR("c1", true); err != nil {
		t.Fatal(err)
	}
}

func TestHandleTextMessage(t *testing.T) {
	backend := &ollama{}
	f := newFixture(t, backend.server(t).URL, true)

	if got := f.p.Handle(context.Background(), textMessage("Hello")); got != OutcomeDelivered {
		t.Fatalf("outcome = %s", got)
	}

	recs := f.history.List(0)
	if len(recs) != 1 || recs[0].Translated != "Hola" || recs[0].OCR || recs[0].Channel != "general" {
		t.Fatalf("history = %+v", recs)
	}
	if f.stats.Total() != 1 || len(f.archive.recs) != 1 {
		t.Fatalf("stats = %d archive = %d", f.stats.Total(), len(f.archive.recs))
	}

	if len(f.platform.replies) != 1 {
		t.Fatalf("replies = %d", len(f.platform.replies))
	}
	r := f.platform.replies[0]
	if r.AuthorName != "alice" || r.AuthorIcon != "https://cdn/avatar.png" {
		t.Fatalf("author = %q %q", r.AuthorName, r.AuthorIcon)
	}
	want := []chat.Field{{Name: "Original", Value: "Hello"}, {Name: "Translated (spanish)", Value: "Hola"}}
	if len(r.Fields) != 2 || r.Fields[0] != want[0] || r.Fields[1] != want[1] {
		t.Fatalf("fields = %+v", r.Fields)
	}

	entries := f.events.List(0, false)
	if len(entries) == 0 || entries[0].Kind != eventlog.KindTranslation || entries[0].Message != "#general: alice → spanish" {
		t.Fatalf("events = %+v", entries)
	}
}

func TestHandleSkipsRejectedMessages(t *testing.T) {
	backend := &ollama{}
	f := newFixture(t, backend.server(t).URL, false)

	m := textMessage("Hello")
	m.ChannelID = "unrouted"
	if got := f.p.Handle(context.Background(), m); got != OutcomeSkipped {
		t.Fatalf("outcome = %s", got)
	}
	if backend.calls != 0 || f.history.Len() != 0 || len(f.platform.replies) != 0 {
		t.Fatalf("rejected message had side effects")
	}
}

func TestHandleNothingToTranslate(t *testing.T) {
	backend := &ollama{}
	f := newFixture(t, backend.server(t).URL, false)
	if got := f.p.Handle(context.Background(), textMessage("")); got != OutcomeSkipped {
		t.Fatalf("outcome = %s", got)
	}
	if backend.calls != 0 {
		t.Fatalf("backend called %d times", backend.calls)
	}
}

func TestHandleWhitespaceOnlyContent(t *testing.T) {
	backend := &ollama{}
	f := newFixture(t, backend.server(t).URL, false)
	if got := f.p.Handle(context.Background(), textMessage("   \n  ")); got != OutcomeSkipped {
		t.Fatalf("outcome = %s", got)
	}
	if backend.calls != 0 || f.history.Len() != 0 || len(f.platform.replies) != 0 {
		t.Fatalf("blank message reached the provider: calls = %d", backend.calls)
	}
}

func TestHandleKeepsAdmissionSnapshot(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"response": "Hola"})
	}))
	t.Cleanup(srv.Close)
	f := newFixture(t, srv.URL, false)

	done := make(chan Outcome, 1)
	go func() { done <- f.p.Handle(context.Background(), textMessage("Hello")) }()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("backend never called")
	}
	disabled := false
	if _, err := f.store.UpdateRoute("c1", store.RoutePatch{Enabled: &disabled}); err != nil {
		t.Fatal(err)
	}
	openai := string(provider.IDOpenAI)
	f.store.UpdateSettings(store.SettingsPatch{AIProvider: &openai})
	close(release)

	select {
	case got := <-done:
		if got != OutcomeDelivered {
			t.Fatalf("outcome = %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Handle did not return")
	}
	if f.history.Len() != 1 || len(f.platform.replies) != 1 {
		t.Fatalf("history = %d replies = %d", f.history.Len(), len(f.platform.replies))
	}

	// New messages see the updated route.
	if got := f.p.Handle(context.Background(), textMessage("Hello")); got != OutcomeSkipped {
		t.Fatalf("outcome after disable = %s", got)
	}
}

func TestHandleImageAndText(t *testing.T) {
	backend := &ollama{}
	f := newFixture(t, backend.server(t).URL, false)
	enableOCR(t, f.store)

	if got := f.p.Handle(context.Background(), imageMessage("Hello")); got != OutcomeDelivered {
		t.Fatalf("outcome = %s", got)
	}
	if f.history.Len() != 2 || f.stats.Total() != 2 {
		t.Fatalf("history = %d stats = %d", f.history.Len(), f.stats.Total())
	}
	var ocr int
	for _, r := range f.history.List(0) {
		if r.OCR {
			ocr++
			if r.Original != "Bonjour" {
				t.Fatalf("ocr original = %q", r.Original)
			}
		}
	}
	if ocr != 1 {
		t.Fatalf("ocr records = %d", ocr)
	}

	names := fieldNames(f.platform.replies[0])
	want := []string{FieldExtracted, "📷 Translated (spanish)", FieldOriginal, "Translated (spanish)"}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Fatalf("fields = %v", names)
	}
}

func TestHandleOCRFailureStillTranslatesText(t *testing.T) {
	backend := &ollama{ocrFails: true}
	f := newFixture(t, backend.server(t).URL, false)
	enableOCR(t, f.store)

	if got := f.p.Handle(context.Background(), imageMessage("Hello")); got != OutcomeDelivered {
		t.Fatalf("outcome = %s", got)
	}
	names := fieldNames(f.platform.replies[0])
	if strings.Join(names, "|") != "Original|Translated (spanish)" {
		t.Fatalf("fields = %v", names)
	}
	if recs := f.history.List(0); len(recs) != 1 || recs[0].OCR {
		t.Fatalf("history = %+v", recs)
	}
}

func TestHandleOCRFailureWithoutText(t *testing.T) {
	backend := &ollama{}
	f := newFixture(t, backend.server(t).URL, false)
	enableOCR(t, f.store)
	f.platform.downloadErr = errors.New("cdn unavailable")

	if got := f.p.Handle(context.Background(), imageMessage("")); got != OutcomeFailed {
		t.Fatalf("outcome = %s", got)
	}
	if len(f.platform.replies) != 0 || f.history.Len() != 0 {
		t.Fatalf("failed message produced output")
	}
}

func TestHandleUndeliveredKeepsRecords(t *testing.T) {
	backend := &ollama{}
	f := newFixture(t, backend.server(t).URL, false)
	f.platform.replyErr = errors.New("missing permissions")

	if got := f.p.Handle(context.Background(), textMessage("Hello")); got != OutcomeUndelivered {
		t.Fatalf("outcome = %s", got)
	}
	if f.history.Len() != 1 || f.stats.Total() != 1 {
		t.Fatalf("records rolled back: history = %d stats = %d", f.history.Len(), f.stats.Total())
	}
}

func TestHandleTruncatesLongFields(t *testing.T) {
	backend := &ollama{}
	f := newFixture(t, backend.server(t).URL, false)

	if got := f.p.Handle(context.Background(), textMessage(strings.Repeat("a", 2000))); got != OutcomeDelivered {
		t.Fatalf("outcome = %s", got)
	}
	orig := f.platform.replies[0].Fields[0].Value
	if len([]rune(orig)) != chat.MaxFieldLength || !strings.HasSuffix(orig, "...") {
		t.Fatalf("original field has %d runes", len([]rune(orig)))
	}
	if recs := f.history.List(1); len(recs[0].Original) != 2000 {
		t.Fatalf("history should keep the full text")
	}
}

func TestUnconfiguredHostedProvider(t *testing.T) {
	backend := &ollama{}
	f := newFixture(t, backend.server(t).URL, false)
	openai := string(provider.IDOpenAI)
	f.store.UpdateSettings(store.SettingsPatch{AIProvider: &openai})

	_, err := f.p.TranslateText(context.Background(), "Hello", "spanish")
	if !provider.IsConfigError(err) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
	if f.history.Len() != 0 || f.stats.Total() != 0 {
		t.Fatalf("config error recorded a translation")
	}

	if got := f.p.Handle(context.Background(), textMessage("Hello")); got != OutcomeFailed {
		t.Fatalf("outcome = %s", got)
	}
	if f.history.Len() != 0 || f.stats.Total() != 0 || backend.calls != 0 {
		t.Fatalf("unexpected side effects")
	}
}

func TestTranslateTextRecordsDirectSource(t *testing.T) {
	backend := &ollama{}
	f := newFixture(t, backend.server(t).URL, false)

	out, err := f.p.TranslateText(context.Background(), "Hello", "spanish")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hola" {
		t.Fatalf("out = %q", out)
	}
	recs := f.history.List(0)
	if len(recs) != 1 || recs[0].OCR || recs[0].Channel != DirectSource || recs[0].Author != DirectSource {
		t.Fatalf("history = %+v", recs)
	}
}

func TestExtractAndTranslate(t *testing.T) {
	backend := &ollama{}
	f := newFixture(t, backend.server(t).URL, false)

	extracted, translated, err := f.p.ExtractAndTranslate(context.Background(), "aW1n", "spanish")
	if err != nil {
		t.Fatal(err)
	}
	if extracted != "Bonjour" || translated != "Hola" {
		t.Fatalf("got %q / %q", extracted, translated)
	}
	if recs := f.history.List(0); len(recs) != 1 || !recs[0].OCR {
		t.Fatalf("history = %+v", recs)
	}

	backend.ocrFails = true
	if _, err := f.p.ExtractText(context.Background(), "aW1n"); err == nil {
		t.Fatal("expected extraction error")
	}
}

func fieldNames(r chat.Reply) []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}
