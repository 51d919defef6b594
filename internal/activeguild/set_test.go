package activeguild

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/architus/gateway-logs-pipeline/internal/backoff"
	"github.com/architus/gateway-logs-pipeline/internal/connection"
	"github.com/architus/gateway-logs-pipeline/internal/featuregate"
)

func fastBackoff() backoff.Config {
	return backoff.Config{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, MaxRetries: 2}
}

func TestIsActive_ConcurrentEagerLoad_OnlyOneRPC(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"has_feature":true}`))
	}))
	defer srv.Close()

	fg := featuregate.New(featuregate.Config{BaseURL: srv.URL})
	set := New(fg, Config{Feature: "search_index", EagerLoadBackoff: fastBackoff()})

	var wg sync.WaitGroup
	results := make([]bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = set.IsActive(context.Background(), 100)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.True(t, r)
	}
	require.EqualValues(t, 1, calls.Load())
}

func TestIsActive_DegradesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fg := featuregate.New(featuregate.Config{BaseURL: srv.URL})
	set := New(fg, Config{Feature: "search_index", EagerLoadBackoff: fastBackoff()})

	active := set.IsActive(context.Background(), 200)
	require.True(t, active, "feature-gate unreachable defaults is_active=true")
}

func TestApplyConnectionBatch_EmitsEdgeOnlyOnChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"has_feature":true}`))
	}))
	defer srv.Close()
	fg := featuregate.New(featuregate.Config{BaseURL: srv.URL})
	set := New(fg, Config{Feature: "x", EagerLoadBackoff: fastBackoff()})

	require.True(t, set.IsActive(context.Background(), 1))

	set.ApplyConnectionBatch(connection.Batch{Type: connection.Offline, Guilds: []uint64{1}})
	select {
	case e := <-set.Edges():
		require.False(t, e.Rising)
		require.Equal(t, uint64(1), e.GuildID)
	case <-time.After(time.Second):
		t.Fatal("expected falling edge")
	}

	set.ApplyConnectionBatch(connection.Batch{Type: connection.Online, Guilds: []uint64{1}})
	select {
	case e := <-set.Edges():
		require.True(t, e.Rising)
	case <-time.After(time.Second):
		t.Fatal("expected rising edge")
	}

	// Repeating Online must not emit a second rising edge.
	set.ApplyConnectionBatch(connection.Batch{Type: connection.Online, Guilds: []uint64{1}})
	select {
	case e := <-set.Edges():
		t.Fatalf("unexpected repeated edge %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeCache struct {
	mu    sync.Mutex
	vals  map[uint64]bool
	saves atomic.Int32
}

func newFakeCache() *fakeCache { return &fakeCache{vals: make(map[uint64]bool)} }

func (f *fakeCache) LoadActive(ctx context.Context, guildID uint64) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vals[guildID]
	return v, ok, nil
}

func (f *fakeCache) SaveActive(ctx context.Context, guildID uint64, isActive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vals[guildID] = isActive
	f.saves.Add(1)
	return nil
}

func TestIsActive_WriteThroughOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"has_feature":true}`))
	}))
	defer srv.Close()

	fg := featuregate.New(featuregate.Config{BaseURL: srv.URL})
	cache := newFakeCache()
	set := New(fg, Config{Feature: "x", EagerLoadBackoff: fastBackoff(), Cache: cache})

	require.True(t, set.IsActive(context.Background(), 42))
	require.EqualValues(t, 1, cache.saves.Load())
	v, found, err := cache.LoadActive(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, v)
}

func TestIsActive_ReadThroughOnDegrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fg := featuregate.New(featuregate.Config{BaseURL: srv.URL})
	cache := newFakeCache()
	cache.vals[42] = false // last-known value: inactive
	set := New(fg, Config{Feature: "x", EagerLoadBackoff: fastBackoff(), Cache: cache})

	active := set.IsActive(context.Background(), 42)
	require.False(t, active, "cached last-known value must win over the degraded default")
}

func TestReconcile_LengthMismatchSkipsChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"has_feature":[true,false]}`)) // wrong length for 3 guilds
	}))
	defer srv.Close()
	fg := featuregate.New(featuregate.Config{BaseURL: srv.URL})
	set := New(fg, Config{Feature: "x", BatchSize: 10, EagerLoadBackoff: fastBackoff()})

	set.IsActive(context.Background(), 1)
	set.IsActive(context.Background(), 2)
	set.IsActive(context.Background(), 3)

	require.NotPanics(t, func() { set.Reconcile(context.Background()) })
}
