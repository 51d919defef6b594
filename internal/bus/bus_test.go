package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/architus/gateway-logs-pipeline/internal/rawframe"
)

func TestMemoryBus_PublishReceive(t *testing.T) {
	b := NewMemoryBus(4)
	frame := rawframe.Frame{IngressTimestamp: 1, EventType: "MessageCreate", GuildID: 100, Inner: []byte("{}")}

	require.NoError(t, b.Publish(context.Background(), frame))

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan rawframe.Frame, 1)
	go func() {
		_ = b.Receive(ctx, func(ctx context.Context, f rawframe.Frame) error {
			received <- f
			cancel()
			return nil
		})
	}()

	select {
	case got := <-received:
		require.Equal(t, frame, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestMemoryBus_HandlerErrorRequeues(t *testing.T) {
	b := NewMemoryBus(4)
	frame := rawframe.Frame{IngressTimestamp: 1, EventType: "MessageCreate", GuildID: 100, Inner: []byte("{}")}
	require.NoError(t, b.Publish(context.Background(), frame))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	attempts := 0
	_ = b.Receive(ctx, func(ctx context.Context, f rawframe.Frame) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		cancel()
		return nil
	})

	require.GreaterOrEqual(t, attempts, 2)
}

func TestMemoryBus_PublishAfterCloseFails(t *testing.T) {
	b := NewMemoryBus(1)
	require.NoError(t, b.Close())
	err := b.Publish(context.Background(), rawframe.Frame{GuildID: 1, EventType: "x"})
	require.ErrorIs(t, err, ErrClosed)
}
