// Package provider dispatches translation and text-extraction requests to one
// of several AI backends. Each backend is a Factory registered under its ID;
// the registry resolves the active backend from Settings on every call, so a
// provider switch takes effect on the next request.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ID identifies a provider.
type ID string

const (
	IDOllama    ID = "ollama"
	IDOpenAI    ID = "openai"
	IDAnthropic ID = "anthropic"
	IDGoogle    ID = "google"
	IDDeepSeek  ID = "deepseek"
	IDXAI       ID = "xai"
	IDMistral   ID = "mistral"
)

// Per-call timeouts.
const (
	TranslateTimeout = 60 * time.Second
	ExtractTimeout   = 120 * time.Second
	StatusTimeout    = 5 * time.Second
)

const maxTokens = 4096

// Descriptor is the static description of a provider.
type Descriptor struct {
	ID             ID       `json:"id"`
	Name           string   `json:"name"`
	RequiresKey    bool     `json:"requiresApiKey"`
	DefaultBaseURL string   `json:"defaultBaseUrl"`
	DefaultModel   string   `json:"defaultModel"`
	KnownModels    []string `json:"knownModels,omitempty"`
}

// Settings is the provider configuration in effect for one call.
type Settings struct {
	Provider ID
	APIKey   string
	BaseURL  string // overrides Descriptor.DefaultBaseURL for hosted providers
	LocalURL string // base URL of the local backend
	Model    string
	OCRModel string // falls back to Model
}

// Translator translates text into a target language.
type Translator interface {
	Translate(ctx context.Context, text, language string) (string, error)
}

// Extractor extracts text from a base64-encoded image.
type Extractor interface {
	ExtractText(ctx context.Context, imageBase64 string) (string, error)
}

// ModelLister lists models available on a backend.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// HealthChecker probes a backend.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Factory builds a backend from Settings.
type Factory interface {
	Descriptor() Descriptor
	Build(s Settings) (Translator, error)
}

// ErrNotConfigured is wrapped by ConfigError when a required credential is missing.
var ErrNotConfigured = errors.New("not configured")

// ErrUnknownProvider is wrapped by ConfigError when the provider id is not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// ConfigError reports a provider selection or credential problem. It is
// returned before any network call is made.
type ConfigError struct {
	Provider ID
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CallError reports a failed request to a backend: transport error, timeout,
// non-2xx status or an unexpected response body.
type CallError struct {
	Provider ID
	Op       string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Instruction is the system instruction sent to chat-style backends.
func Instruction(language string) string {
	return fmt.Sprintf("Translate the following message to %s. Only respond with the translation, nothing else:", language)
}

// Prompt is the single-turn prompt sent to completion-style backends.
func Prompt(text, language string) string {
	return Instruction(language) + "\n\n" + text
}

// OCRPrompt is the instruction sent along with an image for text extraction.
const OCRPrompt = "Extract ALL text from this image. Preserve formatting as much as possible. Do not add any commentary, only output the extracted text."
