package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "generation.provider", typ: kString, env: "TDGEN_GENERATION_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Generation.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Provider },
	},
	{
		key: "generation.model", typ: kString, env: "TDGEN_GENERATION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generation.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Model },
	},
	{
		key: "generation.base_url", typ: kString, env: "TDGEN_GENERATION_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Generation.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.BaseURL },
	},
	{
		key: "generation.max_tokens", typ: kInt, env: "TDGEN_GENERATION_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Generation.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.MaxTokens },
	},
	{
		key: "generation.temperature", typ: kFloat, env: "TDGEN_GENERATION_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Generation.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Generation.Temperature },
	},
	{
		key: "generation.requests_per_minute", typ: kInt, env: "TDGEN_GENERATION_REQUESTS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.Generation.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.RequestsPerMinute },
	},
	{
		key: "generation.api_key", typ: kString, env: "TDGEN_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Generation.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.APIKey },
	},
	{
		key: "pipeline.pending_dir", typ: kString, env: "TDGEN_PIPELINE_PENDING_DIR",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.PendingDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.PendingDir },
	},
	{
		key: "pipeline.processed_dir", typ: kString, env: "TDGEN_PIPELINE_PROCESSED_DIR",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.ProcessedDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.ProcessedDir },
	},
	{
		key: "pipeline.dataset_path", typ: kString, env: "TDGEN_PIPELINE_DATASET_PATH",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.DatasetPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.DatasetPath },
	},
	{
		key: "pipeline.max_retries", typ: kInt, env: "TDGEN_PIPELINE_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.MaxRetries },
	},
	{
		key: "pipeline.retry_backoff", typ: kString, env: "TDGEN_PIPELINE_RETRY_BACKOFF",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.RetryBackoff = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.RetryBackoff },
	},
	{
		key: "pipeline.pacing", typ: kString, env: "TDGEN_PIPELINE_PACING",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Pacing = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.Pacing },
	},
	{
		key: "pipeline.write_threshold", typ: kInt, env: "TDGEN_PIPELINE_WRITE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.WriteThreshold = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.WriteThreshold },
	},
	{
		key: "pipeline.watch", typ: kBool, env: "TDGEN_PIPELINE_WATCH",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Watch = v.(bool) },
		extract: func(cfg Config) any { return cfg.Pipeline.Watch },
	},
	{
		key: "pipeline.poll_interval", typ: kString, env: "TDGEN_PIPELINE_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.PollInterval },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TDGEN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "TDGEN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.access_path", typ: kString, env: "TDGEN_LOG_ACCESS_PATH",
		apply:   func(cfg *Config, v any) { cfg.Log.AccessPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.AccessPath },
	},
	{
		key: "log.failure_path", typ: kString, env: "TDGEN_LOG_FAILURE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Log.FailurePath = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.FailurePath },
	},
	{
		key: "metrics.addr", typ: kString, env: "TDGEN_METRICS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Metrics.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Metrics.Addr },
	},
	{
		key: "metrics.token", typ: kString, env: "TDGEN_METRICS_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Metrics.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Metrics.Token },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
