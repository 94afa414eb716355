package engine

import (
	"fmt"

	"github.com/kalambet/tdgen/internal/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// New returns the Engine for the configured generation provider.
func New(cfg config.GenerationConfig) (Engine, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicEngine(cfg.APIKey, cfg.BaseURL), nil
	case config.ProviderOpenRouter:
		return NewOpenRouterEngine(cfg.APIKey, cfg.BaseURL), nil
	case config.ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		return NewOllamaEngine(baseURL), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
