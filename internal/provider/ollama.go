package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	ollamaDefaultURL   = "http://localhost:11434"
	ollamaDefaultModel = "gemma3"
)

type ollamaFactory struct {
	http *resty.Client
}

// NewOllamaFactory returns the factory for a local Ollama server.
func NewOllamaFactory() Factory {
	return &ollamaFactory{http: resty.New()}
}

func (f *ollamaFactory) Descriptor() Descriptor {
	return Descriptor{
		ID:             IDOllama,
		Name:           "Ollama (Local)",
		DefaultBaseURL: ollamaDefaultURL,
		DefaultModel:   ollamaDefaultModel,
	}
}

func (f *ollamaFactory) Build(s Settings) (Translator, error) {
	base := s.LocalURL
	if base == "" {
		base = ollamaDefaultURL
	}
	model := s.Model
	if model == "" {
		model = ollamaDefaultModel
	}
	ocrModel := s.OCRModel
	if ocrModel == "" {
		ocrModel = model
	}
	return &Ollama{
		http:     f.http,
		baseURL:  strings.TrimRight(base, "/"),
		model:    model,
		ocrModel: ocrModel,
	}, nil
}

// Ollama talks to the generate endpoint of a local Ollama server. It is the
// only backend that accepts images.
type Ollama struct {
	http     *resty.Client
	baseURL  string
	model    string
	ocrModel string
}

type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	Images []string `json:"images,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func (o *Ollama) Translate(ctx context.Context, text, language string) (string, error) {
	return o.generate(ctx, ollamaGenerateRequest{
		Model:  o.model,
		Prompt: Prompt(text, language),
	})
}

func (o *Ollama) ExtractText(ctx context.Context, imageBase64 string) (string, error) {
	return o.generate(ctx, ollamaGenerateRequest{
		Model:  o.ocrModel,
		Prompt: OCRPrompt,
		Images: []string{imageBase64},
	})
}

func (o *Ollama) generate(ctx context.Context, body ollamaGenerateRequest) (string, error) {
	var resp ollamaGenerateResponse
	rr, err := o.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&resp).
		ForceContentType("application/json").
		Post(o.baseURL + "/api/generate")
	if err != nil {
		return "", err
	}
	if rr.IsError() {
		return "", fmt.Errorf("ollama generate: %s; body: %s", rr.Status(), rr.String())
	}
	return resp.Response, nil
}

// ListModels returns the names of locally installed models.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	rr, err := o.http.R().
		SetContext(ctx).
		SetResult(&resp).
		ForceContentType("application/json").
		Get(o.baseURL + "/api/tags")
	if err != nil {
		return nil, err
	}
	if rr.IsError() {
		return nil, fmt.Errorf("ollama list models: %s; body: %s", rr.Status(), rr.String())
	}
	out := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, m.Name)
	}
	return out, nil
}
