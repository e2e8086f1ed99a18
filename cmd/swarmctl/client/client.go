// Package client is a thin HTTP client for the swarm coordinator's control
// API, used by the swarmctl CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client talks to a running coordinator's HTTP control plane.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New constructs a Client pointed at baseURL.
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{}}
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Health checks the coordinator's liveness endpoint.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// RegisterAgent registers a single agent.
func (c *Client) RegisterAgent(ctx context.Context, agentType, domain string, capabilities map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodPost, "/api/agents", map[string]interface{}{
		"type": agentType, "domain": domain, "capabilities": capabilities,
	}, &out)
	return out, err
}

// SpawnHierarchy spawns the full 15-agent hierarchy.
func (c *Client) SpawnHierarchy(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodPost, "/api/agents/hierarchy", nil, &out)
	return out, err
}

// GetAgent fetches one agent's snapshot.
func (c *Client) GetAgent(ctx context.Context, id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/api/agents/"+id, nil, &out)
	return out, err
}

// SubmitTask submits a new task.
func (c *Client) SubmitTask(ctx context.Context, taskType, priority, domain string, input map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodPost, "/api/tasks", map[string]interface{}{
		"type": taskType, "priority": priority, "domain": domain, "input": input,
	}, &out)
	return out, err
}

// GetTask fetches one task's snapshot.
func (c *Client) GetTask(ctx context.Context, id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+id, nil, &out)
	return out, err
}

// CancelTask cancels a pending/in-flight task.
func (c *Client) CancelTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+id, nil, nil)
}

// ProposeConsensus submits a value for collective decision.
func (c *Client) ProposeConsensus(ctx context.Context, value interface{}, algorithm, decisionType string) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodPost, "/api/consensus", map[string]interface{}{
		"value": value, "algorithm": algorithm, "decisionType": decisionType,
	}, &out)
	return out, err
}

// GetStatus fetches the coordinator's coarse status.
func (c *Client) GetStatus(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// GetHealth fetches the queen's swarm-wide health report.
func (c *Client) GetHealth(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &out)
	return out, err
}

// GetTopology fetches the topology graph snapshot.
func (c *Client) GetTopology(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/api/topology", nil, &out)
	return out, err
}
