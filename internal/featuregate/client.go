// Package featuregate is a thin HTTP/JSON client for the feature-gate
// collaborator (spec.md §1, §6): simple CRUD over a relational DB, out of
// scope here beyond its RPC contract. Grounded on the teacher's
// pkg/sdk/client.go REST-call shape (http.NewRequestWithContext + JSON
// body + bearer auth header), not reimplemented as a DB layer.
package featuregate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls the feature-gate service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New builds a feature-gate Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type checkResponse struct {
	HasFeature bool `json:"has_feature"`
}

// Check implements the feature-gate RPC's Check(feature_name, guild_id) ->
// {has_feature} call.
func (c *Client) Check(ctx context.Context, featureName string, guildID uint64) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/features/%s/check?guild_id=%d", c.baseURL, featureName, guildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("featuregate: building request: %w", err)
	}
	c.authorize(req)

	var resp checkResponse
	if err := c.doJSON(req, &resp); err != nil {
		return false, err
	}
	return resp.HasFeature, nil
}

type batchCheckRequest struct {
	FeatureName string   `json:"feature_name"`
	GuildIDs    []uint64 `json:"guild_ids"`
}

type batchCheckResponse struct {
	HasFeature []bool `json:"has_feature"`
}

// ErrLengthMismatch is returned by BatchCheck when the response array
// length doesn't match the request — the reconciler skips that chunk on
// this error rather than treating it as fatal (spec.md §8 scenario e).
var ErrLengthMismatch = fmt.Errorf("featuregate: batch response length mismatch")

// BatchCheck implements BatchCheck(feature_name, guild_ids[]) ->
// has_feature[] (order-preserving).
func (c *Client) BatchCheck(ctx context.Context, featureName string, guildIDs []uint64) ([]bool, error) {
	body, err := json.Marshal(batchCheckRequest{FeatureName: featureName, GuildIDs: guildIDs})
	if err != nil {
		return nil, fmt.Errorf("featuregate: marshaling batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/features/batch_check", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("featuregate: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	var resp batchCheckResponse
	if err := c.doJSON(req, &resp); err != nil {
		return nil, err
	}

	if len(resp.HasFeature) != len(guildIDs) {
		return nil, ErrLengthMismatch
	}
	return resp.HasFeature, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("featuregate: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("featuregate: reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("featuregate: status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("featuregate: decoding response: %w", err)
	}
	return nil
}
