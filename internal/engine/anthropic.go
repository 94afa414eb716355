package engine

import (
	"context"

	"github.com/kalambet/tdgen/internal/anthropic"
)

// AnthropicEngine adapts the Messages API client to the Engine interface.
type AnthropicEngine struct {
	client *anthropic.Client
}

// NewAnthropicEngine creates an engine for the Anthropic Messages API.
// An empty baseURL selects the public endpoint.
func NewAnthropicEngine(apiKey, baseURL string) *AnthropicEngine {
	return &AnthropicEngine{client: anthropic.NewClientWithBaseURL(apiKey, baseURL)}
}

func (e *AnthropicEngine) Name() string { return "anthropic" }

func (e *AnthropicEngine) Chat(ctx context.Context, req Request) (string, error) {
	msgs := make([]anthropic.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = anthropic.Message{Role: m.Role, Content: m.Content}
	}
	resp, err := e.client.CreateMessage(ctx, anthropic.MessagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages:    msgs,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
