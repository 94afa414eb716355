package engine

import (
	"context"

	"github.com/kalambet/tdgen/internal/proxy"
)

// OpenRouterEngine adapts the OpenRouter client to the Engine interface.
type OpenRouterEngine struct {
	client *proxy.Client
}

// NewOpenRouterEngine creates an engine for OpenRouter's chat completions.
// An empty baseURL selects the public endpoint.
func NewOpenRouterEngine(apiKey, baseURL string) *OpenRouterEngine {
	return &OpenRouterEngine{client: proxy.NewClientWithBaseURL(apiKey, baseURL)}
}

func (e *OpenRouterEngine) Name() string { return "openrouter" }

func (e *OpenRouterEngine) Chat(ctx context.Context, req Request) (string, error) {
	msgs := make([]proxy.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, proxy.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, proxy.Message{Role: m.Role, Content: m.Content})
	}
	temp := req.Temperature
	return e.client.Chat(ctx, proxy.ChatRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: &temp,
	})
}
