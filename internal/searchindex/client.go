// Package searchindex is a thin HTTP/JSON client for the search index's
// mapping-create and bulk-upsert surface (spec.md §4.8). Grounded on the
// REST-call shape of pkg/sdk/client.go (http.NewRequestWithContext +
// JSON body + bearer auth header) before that package was dropped, and on
// internal/webhooks/dispatcher.go's signed-POST pattern for request
// construction.
package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/architus/gateway-logs-pipeline/internal/batcher"
)

// Client talks to the search index's REST surface.
type Client struct {
	baseURL    string
	index      string
	apiKey     string
	httpClient *http.Client
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Index   string
	APIKey  string
	Timeout time.Duration
}

// New builds a search index Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		index:      cfg.Index,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// EnsureMapping sends mapping once; a 2xx response or a
// resource_already_exists_exception error are both treated as success.
// It makes no retry: any other failure is returned to the caller.
func (c *Client) EnsureMapping(ctx context.Context, mapping json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/"+c.index, bytes.NewReader(mapping))
	if err != nil {
		return fmt.Errorf("searchindex: building mapping request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("searchindex: mapping request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return nil
	}

	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error.Type == "resource_already_exists_exception" {
		return nil
	}
	return fmt.Errorf("searchindex: mapping create failed: status %d, type %q", resp.StatusCode, body.Error.Type)
}

// Bulk implements batcher.BulkSender: POSTs the newline-delimited bulk
// body and parses per-item results, matched by `_id`.
func (c *Client) Bulk(ctx context.Context, body []byte) ([]batcher.ItemResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.index+"/_bulk", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("searchindex: building bulk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searchindex: bulk request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("searchindex: bulk server error: status %d", resp.StatusCode)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("searchindex: decoding bulk response: %w", err)
	}

	results := make([]batcher.ItemResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		action := item.Index
		if action == nil {
			action = item.Create
		}
		if action == nil {
			continue
		}
		r := batcher.ItemResult{ID: action.ID}
		if action.Status >= 300 {
			r.Err = fmt.Errorf("%s: %s", action.Error.Type, action.Error.Reason)
		}
		results = append(results, r)
	}
	return results, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

type bulkResponse struct {
	Items []bulkResponseItem `json:"items"`
}

type bulkResponseItem struct {
	Index  *bulkItemAction `json:"index"`
	Create *bulkItemAction `json:"create"`
}

type bulkItemAction struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}
