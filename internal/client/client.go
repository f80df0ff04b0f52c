// Package client is a typed HTTP client for the wealthd REST API, used by
// the CLI commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/groblegark/wealthd/internal/model"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a wealthd server over HTTP/JSON.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// IngestResponse is the body returned by Ingest.
type IngestResponse struct {
	RawEventID   string `json:"raw_event_id"`
	JobID        string `json:"job_id,omitempty"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// Ingest submits a normalized provider payload for the given source.
func (c *Client) Ingest(ctx context.Context, source string, payload []byte) (*IngestResponse, error) {
	var resp IngestResponse
	err := c.doRaw(ctx, http.MethodPost, "/v1/ingest/"+url.PathEscape(source), payload, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSummary fetches the per-user summary projection.
func (c *Client) GetSummary(ctx context.Context, userID string) (*model.UserSummary, error) {
	var summary model.UserSummary
	if err := c.doJSON(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID)+"/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListAccounts fetches the per-account views for a user.
func (c *Client) ListAccounts(ctx context.Context, userID string) ([]*model.AccountView, error) {
	var views []*model.AccountView
	if err := c.doJSON(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID)+"/accounts", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// TimelineResponse is one page of a user's timeline.
type TimelineResponse struct {
	Entries    []*model.TimelineEntry `json:"entries"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// GetTimeline fetches one page of a user's timeline. An empty cursor starts
// at the newest entry.
func (c *Client) GetTimeline(ctx context.Context, userID string, limit int, cursor string) (*TimelineResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/v1/users/" + url.PathEscape(userID) + "/timeline"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp TimelineResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListJobs fetches queue entries matching the filter.
func (c *Client) ListJobs(ctx context.Context, status, jobType string, limit int) ([]*model.Job, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if jobType != "" {
		q.Set("type", jobType)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/v1/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var jobs []*model.Job
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ResetFailedJobs moves every FAILED job back to PENDING and returns how many
// were reset.
func (c *Client) ResetFailedJobs(ctx context.Context) (int, error) {
	var resp struct {
		Reset int `json:"reset"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/jobs/reset-failed", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Reset, nil
}

// Health checks the server health endpoint.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// doJSON marshals body (if any), performs the request, and unmarshals the
// response into result.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var raw []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		raw = data
	}
	return c.doRaw(ctx, method, path, raw, result)
}

// doRaw performs the request with a pre-encoded JSON body.
func (c *Client) doRaw(ctx context.Context, method, path string, body []byte, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
