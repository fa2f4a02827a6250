// Package remoteclient adapts pkg/httpclient's resilient transport into a
// small JSON-request helper shared by the remote STT adapter and both LLM
// adapters (§4.3, §4.4, §4.6). It owns nothing domain-specific: callers
// supply the path, request body, and response shape; this package owns
// retries, circuit-breaking, and decompression, the same separation the
// ancestor codebase draws between its generic resilient client and the
// service-specific callers that use it.
package remoteclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmylchreest/docweave/internal/config"
	"github.com/jmylchreest/docweave/pkg/httpclient"
)

// Client calls a single remote inference endpoint (a speech-to-text
// service, or an LLM completion service) with JSON in, JSON out.
type Client struct {
	http    *httpclient.Client
	baseURL string
	apiKey  string
}

// New builds a Client from a RemoteConfig, one per distinct remote service
// (remote STT, LLM) so each gets its own circuit breaker.
func New(cfg config.RemoteConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	breakerTimeout := time.Duration(cfg.BreakerCooldownSec) * time.Second
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}

	hcCfg := httpclient.DefaultConfig()
	hcCfg.Timeout = timeout
	hcCfg.RetryAttempts = cfg.MaxRetries
	hcCfg.CircuitThreshold = threshold
	hcCfg.CircuitTimeout = breakerTimeout

	return &Client{
		http:    httpclient.New(hcCfg),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// Available reports whether the circuit breaker currently allows requests,
// used by adapters' Available(ctx) health checks (§4.3).
func (c *Client) Available() bool {
	return c.http.CircuitState() != httpclient.CircuitOpen
}

// PostJSON marshals body, POSTs it to baseURL+path, and unmarshals the
// response into out. A non-2xx response is returned as an error carrying
// the response body for diagnostics.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("remote request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading remote response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote %s returned status %d: %s", path, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding remote response from %s: %w", path, err)
	}
	return nil
}
