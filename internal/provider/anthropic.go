package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const anthropicVersion = "2023-06-01"

type anthropicFactory struct {
	http *resty.Client
}

// NewAnthropicFactory returns the factory for the Anthropic messages API.
func NewAnthropicFactory() Factory {
	return &anthropicFactory{http: resty.New()}
}

func (f *anthropicFactory) Descriptor() Descriptor {
	return Descriptor{
		ID:             IDAnthropic,
		Name:           "Anthropic (Claude)",
		RequiresKey:    true,
		DefaultBaseURL: "https://api.anthropic.com/v1",
		DefaultModel:   "claude-3-5-sonnet-20241022",
		KnownModels: []string{
			"claude-3-5-sonnet-20241022",
			"claude-3-5-sonnet-20240620",
			"claude-3-opus-20240229",
			"claude-3-sonnet-20240229",
			"claude-3-haiku-20240307",
		},
	}
}

func (f *anthropicFactory) Build(s Settings) (Translator, error) {
	desc := f.Descriptor()
	base := desc.DefaultBaseURL
	if s.BaseURL != "" {
		base = s.BaseURL
	}
	model := s.Model
	if model == "" {
		model = desc.DefaultModel
	}
	return &Anthropic{
		http:    f.http,
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  s.APIKey,
		model:   model,
	}, nil
}

// Anthropic is a backend for the Anthropic messages API.
type Anthropic struct {
	http    *resty.Client
	baseURL string
	apiKey  string
	model   string
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Anthropic) Translate(ctx context.Context, text, language string) (string, error) {
	var resp anthropicResponse
	rr, err := a.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", a.apiKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetBody(anthropicRequest{
			Model:     a.model,
			MaxTokens: maxTokens,
			System:    Instruction(language),
			Messages:  []anthropicMessage{{Role: "user", Content: text}},
		}).
		SetResult(&resp).
		ForceContentType("application/json").
		Post(a.baseURL + "/messages")
	if err != nil {
		return "", err
	}
	if rr.IsError() {
		return "", fmt.Errorf("anthropic messages: %s; body: %s", rr.Status(), rr.String())
	}
	if len(resp.Content) == 0 {
		return "", errors.New("no content returned")
	}
	return resp.Content[0].Text, nil
}
