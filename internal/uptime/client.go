// Package uptime is a thin, fire-and-forget-with-retries HTTP/JSON client
// for the uptime-tracker sink collaborator (spec.md §1, §6): simple RPC,
// out of scope beyond its contract. Grounded on the teacher's
// pkg/sdk/client.go REST shape and internal/webhooks/dispatcher.go's
// retry-with-backoff delivery worker, adapted from webhook HTTP delivery
// to a single fire-and-forget submission call.
package uptime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/architus/gateway-logs-pipeline/internal/backoff"
)

// BatchType mirrors internal/connection.BatchType for the wire payload,
// kept as its own type so this package has no dependency on internal
// connection-tracker internals.
type BatchType string

const (
	Online    BatchType = "Online"
	Offline   BatchType = "Offline"
	Heartbeat BatchType = "Heartbeat"
)

// Submission is the GatewaySubmit RPC payload (spec.md §6).
type Submission struct {
	Type      BatchType `json:"type"`
	Guilds    []uint64  `json:"guilds"`
	Timestamp uint64    `json:"timestamp"`
	Session   uint64    `json:"session"`
}

// Client posts Submissions to the uptime sink.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      backoff.Config
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   backoff.Config
}

// New builds an uptime Client. A zero Retry config defaults to three quick
// attempts, matching "fire-and-forget with retries" rather than the
// unbounded gateway-reconnect policy.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	retry := cfg.Retry
	if retry.Initial == 0 {
		retry = backoff.Config{Initial: 200 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2, MaxRetries: 3}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
	}
}

// GatewaySubmit fires-and-forgets a Submission, retrying transient
// failures per the configured backoff before giving up silently — the
// uptime sink is explicitly a best-effort collaborator (spec.md §1), so a
// permanent failure here must never block or fail the caller's pipeline.
func (c *Client) GatewaySubmit(ctx context.Context, sub Submission) {
	go func() {
		err := backoff.Retry(context.Background(), c.retry, func(ctx context.Context) error {
			return c.post(ctx, sub)
		})
		_ = err // best-effort: caller never observes failure, per contract
	}()
}

func (c *Client) post(ctx context.Context, sub Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("uptime: marshaling submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/gateway_submit", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("uptime: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uptime: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("uptime: server error %d", resp.StatusCode)
	}
	return nil
}
