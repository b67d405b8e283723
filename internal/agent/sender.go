package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/woozymasta/vitals/internal/models"
	"github.com/woozymasta/vitals/internal/vars"
)

// Collector API paths.
const (
	PathServerStatus = "/api/server_status"
	PathSessionJoin  = "/api/sessions/join"
	PathSessionLeave = "/api/sessions/leave"
)

// Sender delivers heartbeats to the collector.
type Sender interface {
	Send(ctx context.Context, hb models.Heartbeat) error
}

// EventSender delivers roster changes to the session ledger.
type EventSender interface {
	Join(ctx context.Context, ev models.SessionEvent) error
	Leave(ctx context.Context, ev models.SessionEvent) error
}

// HTTPClient posts heartbeats and session events to the collector HTTP API.
type HTTPClient struct {
	client *http.Client
	base   string
	token  string
}

// NewHTTPClient creates a client for the collector at baseURL.
// The timeout is a hard ceiling for a single request.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts one heartbeat.
func (c *HTTPClient) Send(ctx context.Context, hb models.Heartbeat) error {
	return c.post(ctx, PathServerStatus, hb)
}

// Join posts a join event.
func (c *HTTPClient) Join(ctx context.Context, ev models.SessionEvent) error {
	return c.post(ctx, PathSessionJoin, ev)
}

// Leave posts a leave event. A leave without an open session is not an error.
func (c *HTTPClient) Leave(ctx context.Context, ev models.SessionEvent) error {
	return c.post(ctx, PathSessionLeave, ev)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", vars.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("post %s: %s: %s (%s)", path, resp.Status, apiErr.Error, apiErr.Code)
		}
		return fmt.Errorf("post %s: %s", path, resp.Status)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
