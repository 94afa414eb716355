package engine

import "context"

// Engine abstracts a text-generation backend (Anthropic, OpenRouter or a
// local Ollama server). The generator depends on this interface instead of
// a concrete client so tests can substitute a fake service.
type Engine interface {
	// Chat sends the request and returns the assistant's raw reply text.
	Chat(ctx context.Context, req Request) (string, error)

	// Name identifies the backend in logs and events.
	Name() string
}
