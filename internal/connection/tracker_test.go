package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTracker_DebouncedRisingEdge(t *testing.T) {
	tr := New(42, 20*time.Millisecond)
	tr.SetOnline([]uint64{1, 2})

	select {
	case b := <-tr.Batches():
		require.Equal(t, Online, b.Type)
		require.Equal(t, []uint64{1, 2}, b.Guilds)
		require.Equal(t, uint64(42), b.Session)
	case <-time.After(time.Second):
		t.Fatal("expected rising edge")
	}
}

func TestTracker_FlapDuringDebounceSuppressesEdge(t *testing.T) {
	tr := New(1, 50*time.Millisecond)
	tr.SetOnline([]uint64{1})
	time.Sleep(5 * time.Millisecond)
	tr.SetOffline([]uint64{1}) // supersedes before the first debounce fires

	select {
	case b := <-tr.Batches():
		t.Fatalf("expected no edge yet, got %+v", b)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestTracker_OnlineThenOfflineEmitsBothEdges(t *testing.T) {
	tr := New(7, 10*time.Millisecond)
	tr.SetOnline([]uint64{9})

	var rising Batch
	select {
	case rising = <-tr.Batches():
	case <-time.After(time.Second):
		t.Fatal("missing rising edge")
	}
	require.Equal(t, Online, rising.Type)

	tr.SetOffline([]uint64{9})
	select {
	case falling := <-tr.Batches():
		require.Equal(t, Offline, falling.Type)
	case <-time.After(time.Second):
		t.Fatal("missing falling edge")
	}
}

func TestTracker_HeartbeatIsImmediate(t *testing.T) {
	tr := New(3, time.Hour)
	tr.Heartbeat([]uint64{1, 2, 3})

	select {
	case b := <-tr.Batches():
		require.Equal(t, Heartbeat, b.Type)
	case <-time.After(time.Second):
		t.Fatal("expected immediate heartbeat")
	}
}
