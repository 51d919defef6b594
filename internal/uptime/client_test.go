package uptime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/architus/gateway-logs-pipeline/internal/backoff"
)

func TestGatewaySubmit_PostsPayload(t *testing.T) {
	var received atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/gateway_submit", r.URL.Path)
		received.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Retry: backoff.Config{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, MaxRetries: 1}})
	c.GatewaySubmit(context.Background(), Submission{Type: Online, Guilds: []uint64{1}, Timestamp: 1000, Session: 42})

	require.Eventually(t, func() bool { return received.Load() }, time.Second, time.Millisecond)
}

func TestGatewaySubmit_NeverPanicsOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Retry: backoff.Config{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, MaxRetries: 2}})
	require.NotPanics(t, func() {
		c.GatewaySubmit(context.Background(), Submission{Type: Offline, Session: 1})
	})
	time.Sleep(20 * time.Millisecond)
}
