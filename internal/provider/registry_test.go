package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decodeBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Errorf("read body: %v", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("decode body %q: %v", data, err)
	}
}

func newOllamaServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/api/generate":
			var req ollamaGenerateRequest
			decodeBody(t, r, &req)
			w.Header().Set("Content-Type", "application/json")
			if len(req.Images) > 0 {
				json.NewEncoder(w).Encode(map[string]string{"response": "  text from " + req.Model + "\n"})
				return
			}
			if !strings.Contains(req.Prompt, "to spanish") || !strings.HasSuffix(req.Prompt, "Hello") {
				t.Errorf("unexpected prompt %q", req.Prompt)
			}
			json.NewEncoder(w).Encode(map[string]string{"response": "  Hola (" + req.Model + ")\n"})
		case "/api/tags":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"models":[{"name":"gemma3"},{"name":"llava"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranslateLocal(t *testing.T) {
	var hits atomic.Int64
	srv := newOllamaServer(t, &hits)
	r := NewDefaultRegistry(testLogger())

	got, err := r.Translate(context.Background(), Settings{Provider: IDOllama, LocalURL: srv.URL}, "Hello", "spanish")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Hola (gemma3)" {
		t.Fatalf("got %q, want trimmed default-model translation", got)
	}
}

func TestTranslateLocalIgnoresResponseContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		switch r.URL.Path {
		case "/api/generate":
			w.Write([]byte(`{"response":" Hola "}`))
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"gemma3"}]}`))
		}
	}))
	defer srv.Close()
	r := NewDefaultRegistry(testLogger())
	s := Settings{Provider: IDOllama, LocalURL: srv.URL}

	got, err := r.Translate(context.Background(), s, "Hello", "spanish")
	if err != nil || got != "Hola" {
		t.Fatalf("Translate = %q, %v", got, err)
	}
	models, err := r.Models(context.Background(), s)
	if err != nil || len(models) != 1 || models[0] != "gemma3" {
		t.Fatalf("Models = %v, %v", models, err)
	}
}

func TestTranslateEmptyProviderDefaultsToLocal(t *testing.T) {
	var hits atomic.Int64
	srv := newOllamaServer(t, &hits)
	r := NewDefaultRegistry(testLogger())

	got, err := r.Translate(context.Background(), Settings{LocalURL: srv.URL, Model: "qwen"}, "Hello", "spanish")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Hola (qwen)" {
		t.Fatalf("got %q", got)
	}
}

func TestTranslateUnknownProvider(t *testing.T) {
	r := NewDefaultRegistry(testLogger())
	_, err := r.Translate(context.Background(), Settings{Provider: "nope"}, "Hello", "spanish")

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestTranslateMissingKeyFailsFast(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	r := NewDefaultRegistry(testLogger())
	for _, id := range []ID{IDOpenAI, IDAnthropic, IDGoogle, IDDeepSeek, IDXAI, IDMistral} {
		_, err := r.Translate(context.Background(), Settings{Provider: id, BaseURL: srv.URL}, "Hello", "spanish")
		if !IsConfigError(err) || !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("%s: expected not-configured ConfigError, got %v", id, err)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("network was touched %d times", hits.Load())
	}
}

func TestTranslateOpenAICompatible(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		decodeBody(t, r, &req)
		if req.Model != "deepseek-chat" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "Hello" {
			t.Errorf("messages = %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"deepseek-chat",
			"choices":[{"index":0,"message":{"role":"assistant","content":"\n Hola \n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	r := NewDefaultRegistry(testLogger())
	got, err := r.Translate(context.Background(), Settings{Provider: IDDeepSeek, APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, "Hello", "spanish")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Hola" {
		t.Fatalf("got %q", got)
	}
}

func TestTranslateAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "key" || r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("headers = %v", r.Header)
		}
		var req anthropicRequest
		decodeBody(t, r, &req)
		if req.MaxTokens != maxTokens || !strings.Contains(req.System, "french") {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":" Bonjour "}]}`))
	}))
	defer srv.Close()

	r := NewDefaultRegistry(testLogger())
	got, err := r.Translate(context.Background(), Settings{Provider: IDAnthropic, APIKey: "key", BaseURL: srv.URL}, "Hello", "french")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Bonjour" {
		t.Fatalf("got %q", got)
	}
}

func TestTranslateGoogle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-1.5-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "gk" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hallo\n"}]}}]}`))
	}))
	defer srv.Close()

	r := NewDefaultRegistry(testLogger())
	s := Settings{Provider: IDGoogle, APIKey: "gk", BaseURL: srv.URL, Model: "gemini-1.5-flash"}
	got, err := r.Translate(context.Background(), s, "Hello", "german")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Hallo" {
		t.Fatalf("got %q", got)
	}
}

func TestTranslateCallErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"down"}`},
		{"empty response", http.StatusOK, `{"response":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.payload))
			}))
			defer srv.Close()

			r := NewDefaultRegistry(testLogger())
			_, err := r.Translate(context.Background(), Settings{LocalURL: srv.URL}, "Hello", "spanish")
			var ce *CallError
			if !errors.As(err, &ce) {
				t.Fatalf("expected CallError, got %v", err)
			}
			if ce.Provider != IDOllama || ce.Op != "translate" {
				t.Fatalf("CallError = %+v", ce)
			}
		})
	}
}

func TestExtractTextFallsBackToLocal(t *testing.T) {
	var hits atomic.Int64
	srv := newOllamaServer(t, &hits)
	r := NewDefaultRegistry(testLogger())

	tests := []struct {
		name string
		s    Settings
		want string
	}{
		{"local active", Settings{Provider: IDOllama, LocalURL: srv.URL, Model: "llava"}, "text from llava"},
		{"ocr model wins", Settings{Provider: IDOllama, LocalURL: srv.URL, Model: "llava", OCRModel: "minicpm-v"}, "text from minicpm-v"},
		{"hosted active", Settings{Provider: IDOpenAI, APIKey: "k", LocalURL: srv.URL, Model: "gpt-4o"}, "text from gemma3"},
		{"hosted without key", Settings{Provider: IDAnthropic, LocalURL: srv.URL}, "text from gemma3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ExtractText(context.Background(), tt.s, "aW1hZ2U=")
			if err != nil {
				t.Fatalf("ExtractText: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	var hits atomic.Int64
	srv := newOllamaServer(t, &hits)
	r := NewDefaultRegistry(testLogger())
	ctx := context.Background()

	st := r.Status(ctx, Settings{Provider: IDOllama, LocalURL: srv.URL})
	if !st.Online || st.State != "online" || len(st.Models) != 2 {
		t.Fatalf("local status = %+v", st)
	}

	st = r.Status(ctx, Settings{Provider: IDOpenAI})
	if st.Online || st.State != "offline" || st.Error != "API key not configured" {
		t.Fatalf("hosted without key = %+v", st)
	}

	st = r.Status(ctx, Settings{Provider: IDOpenAI, APIKey: "k"})
	if !st.Online || st.State != "configured" || st.Name != "OpenAI" {
		t.Fatalf("hosted with key = %+v", st)
	}

	srv.Close()
	st = r.Status(ctx, Settings{Provider: IDOllama, LocalURL: srv.URL})
	if st.Online || st.State != "offline" {
		t.Fatalf("local offline = %+v", st)
	}
}

func TestModels(t *testing.T) {
	var hits atomic.Int64
	srv := newOllamaServer(t, &hits)
	r := NewDefaultRegistry(testLogger())
	ctx := context.Background()

	models, err := r.Models(ctx, Settings{Provider: IDOllama, LocalURL: srv.URL})
	if err != nil || len(models) != 2 || models[0] != "gemma3" {
		t.Fatalf("local models = %v, %v", models, err)
	}

	models, err = r.Models(ctx, Settings{Provider: IDMistral})
	if err != nil || len(models) != 3 {
		t.Fatalf("mistral models = %v, %v", models, err)
	}

	if _, err := r.Models(ctx, Settings{Provider: "nope"}); !IsConfigError(err) {
		t.Fatalf("unknown provider: %v", err)
	}
}

func TestDescriptorsOrder(t *testing.T) {
	r := NewDefaultRegistry(testLogger())
	ids := r.IDs()
	want := []ID{IDOllama, IDOpenAI, IDAnthropic, IDGoogle, IDDeepSeek, IDXAI, IDMistral}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
	if r.EffectiveModel(Settings{Provider: IDXAI}) != "grok-2-1212" {
		t.Fatalf("EffectiveModel = %q", r.EffectiveModel(Settings{Provider: IDXAI}))
	}
}
