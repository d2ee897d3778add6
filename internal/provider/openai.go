package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// chatFactory builds backends that speak the OpenAI chat-completions
// protocol. OpenAI, DeepSeek, xAI and Mistral differ only in base URL,
// default model and model list.
type chatFactory struct {
	desc       Descriptor
	httpClient *http.Client
}

// NewChatFactory returns a factory for an OpenAI-compatible provider.
func NewChatFactory(desc Descriptor) Factory {
	desc.RequiresKey = true
	return &chatFactory{desc: desc, httpClient: &http.Client{}}
}

func (f *chatFactory) Descriptor() Descriptor { return f.desc }

func (f *chatFactory) Build(s Settings) (Translator, error) {
	cfg := openai.DefaultConfig(s.APIKey)
	cfg.BaseURL = strings.TrimRight(f.desc.DefaultBaseURL, "/")
	if s.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(s.BaseURL, "/")
	}
	cfg.HTTPClient = f.httpClient

	model := s.Model
	if model == "" {
		model = f.desc.DefaultModel
	}
	return &Chat{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Chat is an OpenAI-compatible chat-completions backend.
type Chat struct {
	client *openai.Client
	model  string
}

func (c *Chat) Translate(ctx context.Context, text, language string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: Instruction(language)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
