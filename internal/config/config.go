package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Generation GenerationConfig
	Pipeline   PipelineConfig
	Storage    StorageConfig
	Log        LogConfig
	Metrics    MetricsConfig
}

type GenerationConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	APIKey      string

	// RequestsPerMinute caps calls to the provider; 0 means no cap.
	RequestsPerMinute int
}

type PipelineConfig struct {
	PendingDir     string
	ProcessedDir   string
	DatasetPath    string
	MaxRetries     int
	RetryBackoff   string
	Pacing         string
	WriteThreshold int
	Watch          bool
	PollInterval   string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level       string
	AccessPath  string
	FailurePath string
}

type MetricsConfig struct {
	Addr  string
	Token string // optional bearer token for the HTTP endpoints
}

const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

const (
	defaultRetryBackoff = 10 * time.Second
	defaultPacing       = 3 * time.Second
	defaultPollInterval = 30 * time.Second
)

func defaults() Config {
	return Config{
		Generation: GenerationConfig{
			Provider:    ProviderAnthropic,
			Model:       "claude-3-5-haiku-20241022",
			MaxTokens:   8192,
			Temperature: 1.0,
		},
		Pipeline: PipelineConfig{
			PendingDir:     "sample_set",
			ProcessedDir:   "sample_processed",
			DatasetPath:    "training_data_new.csv",
			MaxRetries:     5,
			RetryBackoff:   defaultRetryBackoff.String(),
			Pacing:         defaultPacing.String(),
			WriteThreshold: 10,
			PollInterval:   defaultPollInterval.String(),
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend, TDGEN_* environment
// variables, and the secrets file.
//
// The backend lives at $XDG_CONFIG_HOME/tdgen/config.json (override with
// TDGEN_CONFIG_FILE). Environment variables override backend values. The
// generation API key is never read from the backend: it comes from
// TDGEN_API_KEY or $XDG_DATA_HOME/tdgen/secrets.json.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), newSecretsFile())
}

// LoadUnchecked is Load without the required-secret check. Read-only
// commands such as status use it so they work without credentials.
func LoadUnchecked() Config {
	cfg := defaults()
	if err := applyBackend(&cfg, newPlatformBackend()); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] %v. Using default values.\n", err)
	}
	applyEnvOverrides(&cfg)
	resolvePaths(&cfg)
	return cfg
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	resolvePaths(&cfg)

	switch cfg.Generation.Provider {
	case ProviderAnthropic, ProviderOpenRouter, ProviderOllama:
	default:
		return Config{}, fmt.Errorf("unknown generation provider %q (want %s, %s or %s)",
			cfg.Generation.Provider, ProviderAnthropic, ProviderOpenRouter, ProviderOllama)
	}

	if cfg.Generation.APIKey == "" {
		if key, err := secrets.Get("tdgen", "api_key"); err == nil && key != "" {
			cfg.Generation.APIKey = key
		}
	}

	if cfg.Generation.APIKey == "" && cfg.Generation.Provider != ProviderOllama {
		return Config{}, fmt.Errorf("missing required config: API key for provider %s. "+
			"Set it via environment variable TDGEN_API_KEY or %s", cfg.Generation.Provider, secretsFilePath())
	}

	if cfg.Pipeline.MaxRetries < 0 {
		return Config{}, fmt.Errorf("pipeline.max_retries must be >= 0, got %d", cfg.Pipeline.MaxRetries)
	}

	return cfg, nil
}

// resolvePaths fills log paths that default to locations under the data dir.
func resolvePaths(cfg *Config) {
	if cfg.Log.AccessPath == "" {
		cfg.Log.AccessPath = filepath.Join(cfg.Storage.DataDir, "access.log")
	}
	if cfg.Log.FailurePath == "" {
		cfg.Log.FailurePath = filepath.Join(cfg.Storage.DataDir, "failure.log")
	}
}

// RetryBackoffDuration returns the parsed retry backoff, falling back to the default
// for values that do not parse.
func (p PipelineConfig) RetryBackoffDuration() time.Duration {
	return parseDuration("pipeline.retry_backoff", p.RetryBackoff, defaultRetryBackoff)
}

// PacingDuration returns the parsed inter-record delay.
func (p PipelineConfig) PacingDuration() time.Duration {
	return parseDuration("pipeline.pacing", p.Pacing, defaultPacing)
}

// PollIntervalDuration returns how often watch mode re-scans the pending dir.
func (p PipelineConfig) PollIntervalDuration() time.Duration {
	d := parseDuration("pipeline.poll_interval", p.PollInterval, defaultPollInterval)
	if d == 0 {
		return defaultPollInterval
	}
	return d
}

func parseDuration(key, raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse duration %s=%q. Using default value %s.\n", key, raw, fallback)
		return fallback
	}
	return d
}
