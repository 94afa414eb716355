package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockSecrets is a test double for the secretStore interface.
type mockSecrets struct {
	value string
	err   error
}

func (m mockSecrets) Get(service, account string) (string, error) {
	return m.value, m.err
}

var errNoSecret = errors.New("no secret")

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	t.Setenv("TDGEN_API_KEY", "test-key")
	b := writeTempConfig(t, `{}`)

	cfg, err := loadWith(b, mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Generation.Provider != ProviderAnthropic {
		t.Errorf("Generation.Provider = %q, want %q", cfg.Generation.Provider, ProviderAnthropic)
	}
	if cfg.Generation.Model != "claude-3-5-haiku-20241022" {
		t.Errorf("Generation.Model = %q", cfg.Generation.Model)
	}
	if cfg.Generation.MaxTokens != 8192 {
		t.Errorf("Generation.MaxTokens = %d, want 8192", cfg.Generation.MaxTokens)
	}
	if cfg.Pipeline.MaxRetries != 5 {
		t.Errorf("Pipeline.MaxRetries = %d, want 5", cfg.Pipeline.MaxRetries)
	}
	if cfg.Pipeline.WriteThreshold != 10 {
		t.Errorf("Pipeline.WriteThreshold = %d, want 10", cfg.Pipeline.WriteThreshold)
	}
	if got := cfg.Pipeline.RetryBackoffDuration(); got != 10*time.Second {
		t.Errorf("RetryBackoffDuration = %v, want 10s", got)
	}
	if got := cfg.Pipeline.PacingDuration(); got != 3*time.Second {
		t.Errorf("PacingDuration = %v, want 3s", got)
	}
	if cfg.Pipeline.PendingDir != "sample_set" || cfg.Pipeline.ProcessedDir != "sample_processed" {
		t.Errorf("dirs = %q/%q", cfg.Pipeline.PendingDir, cfg.Pipeline.ProcessedDir)
	}
	if cfg.Log.AccessPath != filepath.Join(cfg.Storage.DataDir, "access.log") {
		t.Errorf("Log.AccessPath = %q", cfg.Log.AccessPath)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	b := writeTempConfig(t, `{"pipeline.max_retries": 2, "generation.model": "file-model"}`)

	t.Setenv("TDGEN_API_KEY", "env-key")
	t.Setenv("TDGEN_GENERATION_MODEL", "env-model")

	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Generation.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want %q", cfg.Generation.APIKey, "env-key")
	}
	if cfg.Generation.Model != "env-model" {
		t.Errorf("Model = %q, want %q", cfg.Generation.Model, "env-model")
	}
	if cfg.Pipeline.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2 from file", cfg.Pipeline.MaxRetries)
	}
}

// TestMissingRequiredField verifies a clear error when the API key is missing everywhere.
func TestMissingRequiredField(t *testing.T) {
	b := writeTempConfig(t, `{}`)
	t.Setenv("TDGEN_API_KEY", "")

	_, err := loadWith(b, mockSecrets{err: errNoSecret})
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q, want it to mention missing required config", err.Error())
	}
}

func TestOllamaNeedsNoKey(t *testing.T) {
	b := writeTempConfig(t, `{"generation.provider": "ollama"}`)
	t.Setenv("TDGEN_API_KEY", "")

	cfg, err := loadWith(b, mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generation.Provider != ProviderOllama {
		t.Errorf("Provider = %q", cfg.Generation.Provider)
	}
}

func TestUnknownProvider(t *testing.T) {
	b := writeTempConfig(t, `{"generation.provider": "carrier-pigeon"}`)
	t.Setenv("TDGEN_API_KEY", "k")

	if _, err := loadWith(b, mockSecrets{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

// TestFileParsing verifies that typed fields are correctly read from the JSON file.
func TestFileParsing(t *testing.T) {
	b := writeTempConfig(t, `{
  "generation.temperature": 0.4,
  "generation.max_tokens": 1024,
  "pipeline.write_threshold": 3,
  "pipeline.pacing": "250ms",
  "pipeline.dataset_path": "/tmp/out.csv",
  "metrics.addr": ":9100"
}`)
	t.Setenv("TDGEN_API_KEY", "k")

	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generation.Temperature != 0.4 {
		t.Errorf("Temperature = %v, want 0.4", cfg.Generation.Temperature)
	}
	if cfg.Generation.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d", cfg.Generation.MaxTokens)
	}
	if cfg.Pipeline.WriteThreshold != 3 {
		t.Errorf("WriteThreshold = %d", cfg.Pipeline.WriteThreshold)
	}
	if got := cfg.Pipeline.PacingDuration(); got != 250*time.Millisecond {
		t.Errorf("PacingDuration = %v", got)
	}
	if cfg.Pipeline.DatasetPath != "/tmp/out.csv" {
		t.Errorf("DatasetPath = %q", cfg.Pipeline.DatasetPath)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
}

// TestSecretsFallback verifies the secrets file is consulted when no API key is in env.
func TestSecretsFallback(t *testing.T) {
	b := writeTempConfig(t, `{}`)
	t.Setenv("TDGEN_API_KEY", "")

	cfg, err := loadWith(b, mockSecrets{value: "stored-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generation.APIKey != "stored-secret" {
		t.Errorf("APIKey = %q, want %q", cfg.Generation.APIKey, "stored-secret")
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	p := PipelineConfig{RetryBackoff: "soon", Pacing: "-1s"}
	if got := p.RetryBackoffDuration(); got != defaultRetryBackoff {
		t.Errorf("RetryBackoffDuration = %v, want %v", got, defaultRetryBackoff)
	}
	if got := p.PacingDuration(); got != defaultPacing {
		t.Errorf("PacingDuration = %v, want %v", got, defaultPacing)
	}
}

func TestSetKey(t *testing.T) {
	b := writeTempConfig(t, `{}`)

	if err := setKeyWith(b, "pipeline.max_retries", "7"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if err := setKeyWith(b, "generation.temperature", "0.7"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if err := setKeyWith(b, "pipeline.max_retries", "many"); err == nil {
		t.Error("expected error for non-integer value")
	}
	if err := setKeyWith(b, "generation.api_key", "x"); err == nil {
		t.Error("expected error when setting a secret")
	}
	if err := setKeyWith(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	reloaded := newFileBackend(b.path)
	v, ok, err := reloaded.GetInt("pipeline.max_retries")
	if err != nil || !ok || v != 7 {
		t.Errorf("GetInt = %d, %v, %v; want 7, true, nil", v, ok, err)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Generation.APIKey = "hidden"
	for _, k := range ShowAll(cfg) {
		if k.Key == "generation.api_key" || k.Value == "hidden" {
			t.Errorf("ShowAll exposed secret key %q", k.Key)
		}
	}
}

func TestWatchAndPollInterval(t *testing.T) {
	t.Setenv("TDGEN_API_KEY", "test-key")
	t.Setenv("TDGEN_PIPELINE_WATCH", "true")
	b := writeTempConfig(t, `{"pipeline.poll_interval": "5s"}`)

	cfg, err := loadWith(b, mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Pipeline.Watch {
		t.Error("Pipeline.Watch = false, want true from env")
	}
	if got := cfg.Pipeline.PollIntervalDuration(); got != 5*time.Second {
		t.Errorf("PollIntervalDuration = %v, want 5s", got)
	}
}

func TestMetricsTokenFromEnvOnly(t *testing.T) {
	t.Setenv("TDGEN_API_KEY", "test-key")
	t.Setenv("TDGEN_METRICS_TOKEN", "scrape-token")
	b := writeTempConfig(t, `{}`)

	cfg, err := loadWith(b, mockSecrets{err: errNoSecret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Metrics.Token != "scrape-token" {
		t.Errorf("Metrics.Token = %q, want %q", cfg.Metrics.Token, "scrape-token")
	}
	for _, k := range ShowAll(cfg) {
		if k.Key == "metrics.token" {
			t.Error("ShowAll exposed metrics.token")
		}
	}
	if err := setKeyWith(b, "metrics.token", "x"); err == nil {
		t.Error("expected error setting a secret key through the backend")
	}
}
