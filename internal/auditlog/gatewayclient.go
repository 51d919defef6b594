package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GatewayClient is a thin HTTP/JSON client over the upstream gateway's
// audit-log REST endpoint, grounded on the same pkg/sdk/client.go shape as
// internal/featuregate.Client. Its FetchPage method is a PageFetcher.
type GatewayClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// GatewayClientConfig configures a GatewayClient.
type GatewayClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewGatewayClient builds a GatewayClient for the upstream gateway's
// audit-log endpoint.
func NewGatewayClient(cfg GatewayClientConfig) *GatewayClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &GatewayClient{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type auditLogEntryDTO struct {
	ID         string `json:"id"`
	TargetID   string `json:"target_id"`
	UserID     string `json:"user_id"`
	ActionType string `json:"action_type"`
	Reason     string `json:"reason"`
}

type auditLogPageResponse struct {
	AuditLogEntries []json.RawMessage `json:"audit_log_entries"`
}

// FetchPage implements PageFetcher against GET
// /guilds/{guild_id}/audit-logs?action_type=&before=&limit=, the same
// cursor-pagination shape the upstream gateway exposes for every other
// paginated collection (channel messages, guild members, ...).
func (c *GatewayClient) FetchPage(ctx context.Context, guildID uint64, entryType string, before uint64, pageSize int) ([]Entry, error) {
	url := fmt.Sprintf("%s/guilds/%d/audit-logs?limit=%d", c.baseURL, guildID, pageSize)
	if entryType != "" {
		url += "&action_type=" + entryType
	}
	if before != 0 {
		url += fmt.Sprintf("&before=%d", before)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("auditlog: building request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bot "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auditlog: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("auditlog: reading response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, Unauthorized
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("auditlog: status %d: %s", resp.StatusCode, string(body))
	}

	var page auditLogPageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("auditlog: decoding response: %w", err)
	}

	entries := make([]Entry, 0, len(page.AuditLogEntries))
	for _, raw := range page.AuditLogEntries {
		var dto auditLogEntryDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, fmt.Errorf("auditlog: decoding entry: %w", err)
		}
		entries = append(entries, Entry{
			ID:         parseSnowflake(dto.ID),
			TargetID:   parseSnowflake(dto.TargetID),
			UserID:     parseSnowflake(dto.UserID),
			ActionType: dto.ActionType,
			Reason:     dto.Reason,
			Raw:        raw,
		})
	}
	return entries, nil
}

// parseSnowflake parses a Discord-style string-encoded u64 ID, defaulting
// to zero on a malformed or empty value rather than failing the whole page.
func parseSnowflake(s string) uint64 {
	var v uint64
	if s == "" {
		return 0
	}
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0
	}
	return v
}
