package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
)

type googleFactory struct {
	http *resty.Client
}

// NewGoogleFactory returns the factory for the Gemini generateContent API.
func NewGoogleFactory() Factory {
	return &googleFactory{http: resty.New()}
}

func (f *googleFactory) Descriptor() Descriptor {
	return Descriptor{
		ID:             IDGoogle,
		Name:           "Google AI (Gemini)",
		RequiresKey:    true,
		DefaultBaseURL: "https://generativelanguage.googleapis.com/v1",
		DefaultModel:   "gemini-1.5-pro",
		KnownModels:    []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-1.5-flash-8b", "gemini-pro"},
	}
}

func (f *googleFactory) Build(s Settings) (Translator, error) {
	desc := f.Descriptor()
	base := desc.DefaultBaseURL
	if s.BaseURL != "" {
		base = s.BaseURL
	}
	model := s.Model
	if model == "" {
		model = desc.DefaultModel
	}
	return &Google{
		http:    f.http,
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  s.APIKey,
		model:   model,
	}, nil
}

// Google is a backend for the Gemini generateContent API. The key travels
// as a query parameter.
type Google struct {
	http    *resty.Client
	baseURL string
	apiKey  string
	model   string
}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googleRequest struct {
	Contents []googleContent `json:"contents"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (g *Google) Translate(ctx context.Context, text, language string) (string, error) {
	var resp googleResponse
	rr, err := g.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", g.apiKey).
		SetBody(googleRequest{
			Contents: []googleContent{{Parts: []googlePart{{Text: Prompt(text, language)}}}},
		}).
		SetResult(&resp).
		ForceContentType("application/json").
		Post(g.baseURL + "/models/" + url.PathEscape(g.model) + ":generateContent")
	if err != nil {
		return "", err
	}
	if rr.IsError() {
		return "", fmt.Errorf("google generateContent: %s; body: %s", rr.Status(), rr.String())
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no candidates returned")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
