package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/tdgen/internal/config"
	"github.com/kalambet/tdgen/internal/events"
	"github.com/kalambet/tdgen/internal/storage"
)

var ctx = context.Background()

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestBaseURLFor(t *testing.T) {
	cases := map[string]string{
		":9090":          "http://127.0.0.1:9090",
		"0.0.0.0:9090":   "http://127.0.0.1:9090",
		"localhost:8080": "http://localhost:8080",
		"[::]:9090":      "http://127.0.0.1:9090",
	}
	for addr, want := range cases {
		if got := baseURLFor(addr); got != want {
			t.Errorf("baseURLFor(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestNewAPIClient_DisabledWithoutAddr(t *testing.T) {
	if c := newAPIClient(config.Config{}); c != nil {
		t.Error("expected nil client when metrics.addr is empty")
	}
}

func TestAPIClientAuth(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, token: "my-secret-token", httpClient: srv.Client()}
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", auth)
	}
}

func TestAPIClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := &apiClient{baseURL: srv.URL, httpClient: srv.Client()}
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"authentication_error"}}`))
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, token: "bad-token", httpClient: srv.Client()}
	resp, err := client.get(ctx, "/runs")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Pipeline.WriteThreshold = 25
	cfg.Generation.APIKey = "sk-secret"

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "pipeline.write_threshold" && k.Value == "25" {
			found = true
		}
		if strings.Contains(k.Value, "sk-secret") {
			t.Errorf("secret leaked in %s", k.Key)
		}
	}
	if !found {
		t.Error("expected to find pipeline.write_threshold=25 in ShowAll output")
	}
}

func TestConfigSet_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"config", "set", "pipeline.pacing"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing value")
	}
	if !strings.Contains(err.Error(), "accepts 2 arg(s)") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("line one\nline two is long", 10); got != "line one …" {
		t.Errorf("truncate = %q", got)
	}
}

func TestRunCommandFlags(t *testing.T) {
	for _, name := range []string{"watch", "poll", "metrics-addr"} {
		if runCmd.Flags().Lookup(name) == nil {
			t.Errorf("run is missing --%s", name)
		}
	}
	for _, name := range []string{"failures", "record", "limit"} {
		if eventsCmd.Flags().Lookup(name) == nil {
			t.Errorf("events is missing --%s", name)
		}
	}
}

func replyWithPairs(n int) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `["search %d","For Review"]`, i)
	}
	sb.WriteString("]")
	return sb.String()
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Config{
		Generation: config.GenerationConfig{
			Provider:    config.ProviderOpenRouter,
			Model:       "test-model",
			BaseURL:     baseURL,
			MaxTokens:   512,
			Temperature: 1,
			APIKey:      "test-key",
		},
		Pipeline: config.PipelineConfig{
			PendingDir:     filepath.Join(root, "pending"),
			ProcessedDir:   filepath.Join(root, "processed"),
			DatasetPath:    filepath.Join(root, "out", "dataset.csv"),
			MaxRetries:     1,
			RetryBackoff:   "0s",
			Pacing:         "0s",
			WriteThreshold: 10,
			PollInterval:   "1s",
		},
		Storage: config.StorageConfig{DataDir: filepath.Join(root, "data")},
		Log: config.LogConfig{
			Level:       "error",
			AccessPath:  filepath.Join(root, "data", "access.log"),
			FailurePath: filepath.Join(root, "data", "failure.log"),
		},
	}
	os.MkdirAll(cfg.Pipeline.PendingDir, 0o755)
	return cfg
}

func TestRunPipeline_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		n := 15
		if strings.Contains(req.Messages[len(req.Messages)-1].Content, "tiny") {
			n = 4
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": replyWithPairs(n)}}},
		})
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	os.WriteFile(filepath.Join(cfg.Pipeline.PendingDir, "earbuds.json"), []byte(`{"title":"wireless earbuds"}`), 0o644)
	os.WriteFile(filepath.Join(cfg.Pipeline.PendingDir, "small.json"), []byte(`{"title":"tiny"}`), 0o644)
	os.WriteFile(filepath.Join(cfg.Pipeline.PendingDir, "bad.json"), []byte(`{"name":"no title"}`), 0o644)

	if err := runPipeline(cfg); err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.Pipeline.ProcessedDir, "earbuds.json")); err != nil {
		t.Error("earbuds.json should be processed")
	}
	for _, name := range []string{"small.json", "bad.json"} {
		if _, err := os.Stat(filepath.Join(cfg.Pipeline.PendingDir, name)); err != nil {
			t.Errorf("%s should stay pending", name)
		}
	}

	data, err := os.ReadFile(cfg.Pipeline.DatasetPath)
	if err != nil {
		t.Fatalf("reading dataset: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 16 {
		t.Errorf("dataset lines = %d, want 16", lines)
	}

	failureLog, _ := os.ReadFile(cfg.Log.FailurePath)
	if !strings.Contains(string(failureLog), "record=small.json") || !strings.Contains(string(failureLog), "record=bad.json") {
		t.Errorf("failure log missing entries:\n%s", failureLog)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	runs, _ := store.RecentRuns(1)
	if len(runs) != 1 || runs[0].Status != storage.RunCompleted || runs[0].Processed != 1 || runs[0].Failed != 1 || runs[0].Skipped != 1 {
		t.Errorf("run ledger = %+v", runs)
	}
	failures, _ := store.ListEvents(storage.EventFilter{Kind: events.KindFailure})
	if len(failures) != 2 {
		t.Errorf("failure events = %d, want 2", len(failures))
	}

	if err := showStatus(ctx, cfg); err != nil {
		t.Errorf("showStatus: %v", err)
	}
}
