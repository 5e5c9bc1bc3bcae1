// Package executorclient is the outbound HTTP client to the external
// executor service the Executor dispatches claimed QueueEntries to (spec
// §4.4). It knows nothing about persistence; it only encodes requests and
// decodes responses on the executor service's own wire contract.
package executorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SDKRequest is the quick-path payload for a single prompt/response task.
type SDKRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// SDKResult is the synchronous quick-path response.
type SDKResult struct {
	Success    bool   `json:"success"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// ContainerRequest is the async container-path payload for tasks that need
// a repository checkout.
type ContainerRequest struct {
	Task           string `json:"task"`
	Repo           string `json:"repo,omitempty"`
	Branch         string `json:"branch,omitempty"`
	TimeoutSeconds *int   `json:"timeout_seconds,omitempty"`
}

// ContainerResult is the container path's response. A container run that
// the executor service accepted and ran to completion reports Success here
// directly; the workflow identifier used to correlate an async callback
// arrives separately, via the callback body itself, not this response.
type ContainerResult struct {
	Success    bool   `json:"success"`
	Logs       string `json:"logs,omitempty"`
	Error      string `json:"error,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	DurationMs *int   `json:"duration_ms,omitempty"`
}

// HealthStatus reflects the executor service's self-reported health.
type HealthStatus struct {
	Status string `json:"status"`
}

// Healthy and Degraded are the statuses the core treats as usable; only
// Unhealthy should take the service out of rotation.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Client calls the external executor service.
type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a Client. requestTimeout bounds every call this client makes;
// the Executor's bulkhead and circuit breaker wrap calls above this layer.
func New(baseURL, bearerToken string, requestTimeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		httpClient:  &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExecuteSDK calls the synchronous quick path for a prompt/response task.
func (c *Client) ExecuteSDK(ctx context.Context, req SDKRequest) (*SDKResult, error) {
	var result SDKResult
	if err := c.post(ctx, "/execute/sdk", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecuteContainer calls the container path for tasks that need a
// repository checkout. It blocks for the container's duration; the
// Reconciler handles the case where the executor service instead replies
// out of band via a workflow callback.
func (c *Client) ExecuteContainer(ctx context.Context, req ContainerRequest) (*ContainerResult, error) {
	var result ContainerResult
	if err := c.post(ctx, "/execute", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health checks the executor service's liveness, treating both healthy and
// degraded as usable.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("executorclient: build health request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executorclient: health check: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("executorclient: read health response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("executorclient: health check returned status %d: %s", resp.StatusCode, string(body))
	}

	var health HealthStatus
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("executorclient: decode health response: %w", err)
	}
	if health.Status != StatusHealthy && health.Status != StatusDegraded {
		return fmt.Errorf("executorclient: executor service reports status %q", health.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("executorclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("executorclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.bearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executorclient: %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("executorclient: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("executorclient: %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("executorclient: decode response: %w", err)
	}
	return nil
}
