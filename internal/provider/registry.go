package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/blikh/discord-translation-relay/internal/metrics"
)

// LocalID is the provider used for text extraction when the active provider
// cannot extract text itself.
const LocalID = IDOllama

// Registry maps provider ids to factories.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	factories map[ID]Factory
	order     []ID
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[ID]Factory),
	}
}

// NewDefaultRegistry creates a registry with every built-in provider.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.RegisterFactory(NewOllamaFactory())
	r.RegisterFactory(NewChatFactory(Descriptor{
		ID:             IDOpenAI,
		Name:           "OpenAI",
		RequiresKey:    true,
		DefaultBaseURL: "https://api.openai.com/v1",
		DefaultModel:   "gpt-4o",
		KnownModels:    []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo"},
	}))
	r.RegisterFactory(NewAnthropicFactory())
	r.RegisterFactory(NewGoogleFactory())
	r.RegisterFactory(NewChatFactory(Descriptor{
		ID:             IDDeepSeek,
		Name:           "DeepSeek",
		RequiresKey:    true,
		DefaultBaseURL: "https://api.deepseek.com/v1",
		DefaultModel:   "deepseek-chat",
		KnownModels:    []string{"deepseek-chat", "deepseek-coder"},
	}))
	r.RegisterFactory(NewChatFactory(Descriptor{
		ID:             IDXAI,
		Name:           "xAI (Grok)",
		RequiresKey:    true,
		DefaultBaseURL: "https://api.x.ai/v1",
		DefaultModel:   "grok-2-1212",
		KnownModels:    []string{"grok-2-1212", "grok-2", "grok-beta"},
	}))
	r.RegisterFactory(NewChatFactory(Descriptor{
		ID:             IDMistral,
		Name:           "Mistral AI",
		RequiresKey:    true,
		DefaultBaseURL: "https://api.mistral.ai/v1",
		DefaultModel:   "mistral-large-latest",
		KnownModels:    []string{"mistral-large-latest", "mistral-small-latest", "mistral-medium-latest"},
	}))
	return r
}

// RegisterFactory adds a factory, replacing any previous one with the same id.
func (r *Registry) RegisterFactory(f Factory) {
	id := f.Descriptor().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; !exists {
		r.order = append(r.order, id)
	}
	r.factories[id] = f
}

// Known reports whether id is registered.
func (r *Registry) Known(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// Descriptor returns the descriptor for id.
func (r *Registry) Descriptor(id ID) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[id]
	if !ok {
		return Descriptor{}, false
	}
	return f.Descriptor(), true
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.factories[id].Descriptor())
	}
	return out
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ID(nil), r.order...)
}

func (r *Registry) factory(id ID) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[id]
	return f, ok
}

// Resolve builds the backend selected by s. Unknown ids and missing
// credentials fail with a ConfigError before anything touches the network.
func (r *Registry) Resolve(s Settings) (Translator, Descriptor, error) {
	id := s.Provider
	if id == "" {
		id = LocalID
	}
	f, ok := r.factory(id)
	if !ok {
		return nil, Descriptor{}, &ConfigError{Provider: id, Err: ErrUnknownProvider}
	}
	desc := f.Descriptor()
	if desc.RequiresKey && s.APIKey == "" {
		return nil, desc, &ConfigError{Provider: id, Err: fmt.Errorf("API key %w", ErrNotConfigured)}
	}
	t, err := f.Build(s)
	if err != nil {
		return nil, desc, &ConfigError{Provider: id, Err: err}
	}
	return t, desc, nil
}

// Translate translates text with the provider selected by s.
func (r *Registry) Translate(ctx context.Context, s Settings, text, language string) (string, error) {
	t, desc, err := r.Resolve(s)
	if err != nil {
		observe(s.Provider, "translate", "config_error", 0)
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, TranslateTimeout)
	defer cancel()

	start := time.Now()
	out, err := t.Translate(ctx, text, language)
	out = strings.TrimSpace(out)
	if err == nil && out == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		observe(desc.ID, "translate", "error", time.Since(start))
		return "", asCallError(desc.ID, "translate", err)
	}
	observe(desc.ID, "translate", "ok", time.Since(start))
	r.logger.Debug("provider: translated", "provider", desc.ID, "language", language, "duration", time.Since(start))
	return out, nil
}

// ExtractText extracts text from a base64 image. The active provider is used
// when it can extract text; otherwise the request goes to the local backend.
func (r *Registry) ExtractText(ctx context.Context, s Settings, imageBase64 string) (string, error) {
	ex, id, err := r.extractor(s)
	if err != nil {
		observe(id, "extract", "config_error", 0)
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, ExtractTimeout)
	defer cancel()

	start := time.Now()
	out, err := ex.ExtractText(ctx, imageBase64)
	out = strings.TrimSpace(out)
	if err != nil {
		observe(id, "extract", "error", time.Since(start))
		return "", asCallError(id, "extract", err)
	}
	observe(id, "extract", "ok", time.Since(start))
	return out, nil
}

func (r *Registry) extractor(s Settings) (Extractor, ID, error) {
	if t, desc, err := r.Resolve(s); err == nil {
		if ex, ok := t.(Extractor); ok {
			return ex, desc.ID, nil
		}
	}

	local := Settings{Provider: LocalID, LocalURL: s.LocalURL, OCRModel: s.OCRModel}
	if s.Provider == LocalID || s.Provider == "" {
		local.Model = s.Model
	}
	t, _, err := r.Resolve(local)
	if err != nil {
		return nil, LocalID, err
	}
	ex, ok := t.(Extractor)
	if !ok {
		return nil, LocalID, &ConfigError{Provider: LocalID, Err: errors.New("text extraction not supported")}
	}
	return ex, LocalID, nil
}

// Status describes the health of the active provider.
type Status struct {
	Provider ID       `json:"provider"`
	Name     string   `json:"name"`
	Online   bool     `json:"available"`
	State    string   `json:"status"` // online, offline or configured
	Error    string   `json:"error,omitempty"`
	Models   []string `json:"models,omitempty"`
}

// Status probes the active provider. Backends that can be probed are asked
// to list their models within StatusTimeout; hosted backends only report
// whether a credential is present.
func (r *Registry) Status(ctx context.Context, s Settings) Status {
	id := s.Provider
	if id == "" {
		id = LocalID
	}
	st := Status{Provider: id, Name: string(id)}

	t, desc, err := r.Resolve(s)
	if desc.Name != "" {
		st.Name = desc.Name
	}
	if err != nil {
		st.State = "offline"
		st.Error = err.Error()
		if errors.Is(err, ErrNotConfigured) {
			st.Error = "API key not configured"
		}
		return st
	}

	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()

	if ml, ok := t.(ModelLister); ok {
		models, err := ml.ListModels(ctx)
		if err != nil {
			st.State = "offline"
			st.Error = err.Error()
			return st
		}
		st.Online = true
		st.State = "online"
		st.Models = models
		return st
	}
	if hc, ok := t.(HealthChecker); ok {
		if err := hc.Check(ctx); err != nil {
			st.State = "offline"
			st.Error = err.Error()
			return st
		}
	}
	st.Online = true
	st.State = "configured"
	return st
}

// Models lists models for the active provider: a live list when the backend
// can report one, the descriptor's known models otherwise.
func (r *Registry) Models(ctx context.Context, s Settings) ([]string, error) {
	id := s.Provider
	if id == "" {
		id = LocalID
	}
	f, ok := r.factory(id)
	if !ok {
		return nil, &ConfigError{Provider: id, Err: ErrUnknownProvider}
	}
	desc := f.Descriptor()

	// Listing does not need a credential for backends that only have a static list.
	t, err := f.Build(s)
	if err == nil {
		if ml, ok := t.(ModelLister); ok {
			ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
			defer cancel()
			models, err := ml.ListModels(ctx)
			if err != nil {
				return nil, asCallError(id, "list_models", err)
			}
			return models, nil
		}
	}
	return append([]string(nil), desc.KnownModels...), nil
}

// EffectiveModel returns the model a call with s would use.
func (r *Registry) EffectiveModel(s Settings) string {
	if s.Model != "" {
		return s.Model
	}
	id := s.Provider
	if id == "" {
		id = LocalID
	}
	if desc, ok := r.Descriptor(id); ok {
		return desc.DefaultModel
	}
	return ""
}

func asCallError(id ID, op string, err error) error {
	var ce *CallError
	if errors.As(err, &ce) {
		return err
	}
	var cfg *ConfigError
	if errors.As(err, &cfg) {
		return err
	}
	return &CallError{Provider: id, Op: op, Err: err}
}

func observe(id ID, op, result string, d time.Duration) {
	if id == "" {
		id = LocalID
	}
	metrics.ProviderRequests.WithLabelValues(string(id), op, result).Inc()
	if d > 0 {
		metrics.ProviderLatency.WithLabelValues(string(id), op).Observe(d.Seconds())
	}
}
