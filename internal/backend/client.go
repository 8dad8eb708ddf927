// Package backend wraps the remote execution backend's HTTP API.
//
// The backend is the source of truth for running agents; mctl only reads
// from it. Every call here is a suspension point: callers own the timeout
// policy via the request context, and any error is treated by the callers
// as a fetch failure subject to their fallback rules.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mctl-dev/mctl/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the backend API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout. token may be empty when
// the backend does not require authentication.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// GetAllActiveAgents fetches the authoritative cross-session list of
// currently-active agents. This is a single RPC across all sessions.
func (c *Client) GetAllActiveAgents(ctx context.Context) ([]models.Agent, error) {
	var agents []models.Agent
	if err := c.getJSON(ctx, "/api/agents/active", &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// ListExecutionsWithDetails fetches the backend's execution table.
func (c *Client) ListExecutionsWithDetails(ctx context.Context) ([]models.ExecutionInfo, error) {
	var execs []models.ExecutionInfo
	if err := c.getJSON(ctx, "/api/executions", &execs); err != nil {
		return nil, err
	}
	return execs, nil
}

// GetActivityFeed fetches up to limit recent events, most recent first.
func (c *Client) GetActivityFeed(ctx context.Context, limit int) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent
	path := "/api/activity?limit=" + strconv.Itoa(limit)
	if err := c.getJSON(ctx, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// PollCompleted asks the backend for agents that finished since the last
// poll. Best-effort; an empty result is success.
func (c *Client) PollCompleted(ctx context.Context) ([]string, error) {
	return c.postIDs(ctx, "/api/agents/poll-completed")
}

// CleanupStaleAgents asks the backend to reap agents it considers finished.
// Best-effort; an empty result is success.
func (c *Client) CleanupStaleAgents(ctx context.Context) ([]string, error) {
	return c.postIDs(ctx, "/api/agents/cleanup")
}

func (c *Client) postIDs(ctx context.Context, path string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s", string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// CheckHealth checks if the backend is reachable and healthy.
func (c *Client) CheckHealth(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
