// Package ai wraps the AI completion provider. Services depend on the
// Completer interface and treat its output as untrusted text: schema
// validation and fallback behavior live with the callers.
package ai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/tbourn/go-review-backend/internal/config"
)

// ErrEmptyCompletion is returned when the provider responds without any
// usable choice.
var ErrEmptyCompletion = errors.New("completion returned no content")

// Completer produces one completion for a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client is the OpenAI-backed Completer.
type Client struct {
	api         openai.Client
	model       string
	temperature float64
}

// NewClient builds a Client for the configured model.
func NewClient(cfg config.OpenAIConfig) *Client {
	return &Client{
		api:         openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Model returns the configured model tag, recorded alongside memoized replies.
func (c *Client) Model() string { return c.model }

// Complete implements Completer via the chat completions API.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}
