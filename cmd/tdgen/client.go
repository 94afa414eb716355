package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/tdgen/internal/config"
)

// apiClient talks to the HTTP endpoints of a running `tdgen run`.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// newAPIClient returns a client for the configured metrics address, or nil
// when no address is configured.
var newAPIClient = func(cfg config.Config) *apiClient {
	if cfg.Metrics.Addr == "" {
		return nil
	}
	return &apiClient{
		baseURL:    baseURLFor(cfg.Metrics.Addr),
		token:      cfg.Metrics.Token,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

// baseURLFor turns a listen address such as ":9090" into a dialable URL.
func baseURLFor(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pipeline not reachable, is `tdgen run` serving on %s? (%w)", strings.TrimPrefix(c.baseURL, "http://"), err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
