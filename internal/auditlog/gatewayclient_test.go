package auditlog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchPage_ParsesEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/guilds/100/audit-logs", r.URL.Path)
		require.Equal(t, "5", r.URL.Query().Get("limit"))
		require.Equal(t, "20", r.URL.Query().Get("before"))
		w.Write([]byte(`{"audit_log_entries":[
			{"id":"200","target_id":"300","user_id":"400","action_type":"MEMBER_BAN_ADD","reason":"spam"}
		]}`))
	}))
	defer srv.Close()

	c := NewGatewayClient(GatewayClientConfig{BaseURL: srv.URL})
	entries, err := c.FetchPage(context.Background(), 100, "", 20, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(200), entries[0].ID)
	require.Equal(t, uint64(300), entries[0].TargetID)
	require.Equal(t, uint64(400), entries[0].UserID)
	require.Equal(t, "MEMBER_BAN_ADD", entries[0].ActionType)
	require.Equal(t, "spam", entries[0].Reason)
}

func TestFetchPage_UnauthorizedIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewGatewayClient(GatewayClientConfig{BaseURL: srv.URL})
	_, err := c.FetchPage(context.Background(), 100, "", 0, 5)
	require.ErrorIs(t, err, Unauthorized)
}

func TestFetchPage_EmptyBeforeOmitsCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.URL.Query().Get("before"))
		w.Write([]byte(`{"audit_log_entries":[]}`))
	}))
	defer srv.Close()

	c := NewGatewayClient(GatewayClientConfig{BaseURL: srv.URL})
	entries, err := c.FetchPage(context.Background(), 100, "", 0, 5)
	require.NoError(t, err)
	require.Empty(t, entries)
}
