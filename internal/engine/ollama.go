package engine

import (
	"context"
	"io"

	"github.com/kalambet/tdgen/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func (e *OllamaEngine) Name() string { return "ollama" }

func (e *OllamaEngine) Chat(ctx context.Context, req Request) (string, error) {
	msgs := make([]ollama.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	return e.client.Chat(ctx, ollama.ChatRequest{
		Model:    req.Model,
		System:   req.System,
		Messages: msgs,
		Options: &ollama.Options{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
}

// EnsureReady verifies the Ollama server and pulls model when missing.
func (e *OllamaEngine) EnsureReady(ctx context.Context, model string, w io.Writer) error {
	return ollama.EnsureReady(ctx, e.client, model, w)
}
