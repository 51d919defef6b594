package publisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/architus/gateway-logs-pipeline/internal/backoff"
	"github.com/architus/gateway-logs-pipeline/internal/bus"
	"github.com/architus/gateway-logs-pipeline/internal/rawframe"
)

// failingPublisher fails Publish until armed to succeed, letting tests
// drive exactly when a reconnect should resolve.
type failingPublisher struct {
	shouldFail atomic.Bool
}

func (p *failingPublisher) Publish(ctx context.Context, frame rawframe.Frame) error {
	if p.shouldFail.Load() {
		return errors.New("simulated publish failure")
	}
	return nil
}
func (p *failingPublisher) Close() error { return nil }

func testBackoff() backoff.Config {
	return backoff.Config{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}
}

func TestFactory_PublishSucceedsAfterInitialConnect(t *testing.T) {
	dialCount := atomic.Int32{}
	dial := func(ctx context.Context) (bus.Publisher, error) {
		dialCount.Add(1)
		return &failingPublisher{}, nil
	}

	f := New(dial, 4, testBackoff())
	err := f.Publish(context.Background(), rawframe.Frame{GuildID: 1, EventType: "x"})
	require.NoError(t, err)
	require.EqualValues(t, 1, dialCount.Load())
	require.EqualValues(t, 1, f.Generation())
}

func TestFactory_ReconnectOnPublishFailure(t *testing.T) {
	attempt := atomic.Int32{}
	dial := func(ctx context.Context) (bus.Publisher, error) {
		n := attempt.Add(1)
		p := &failingPublisher{}
		if n == 1 {
			// first connection will fail its one publish, triggering reconnect
			p.shouldFail.Store(true)
		}
		return p, nil
	}

	f := New(dial, 4, testBackoff())

	// First publish fails against generation 1, triggers reconnect to
	// generation 2, then transparently retries and succeeds.
	err := f.Publish(context.Background(), rawframe.Frame{GuildID: 1, EventType: "x"})
	require.NoError(t, err)
	require.EqualValues(t, 2, f.Generation())
}

func TestFactory_ReconnectStorm_OneReconnectPerGeneration(t *testing.T) {
	var dialCount atomic.Int32
	var mu sync.Mutex
	var publishers []*failingPublisher

	dial := func(ctx context.Context) (bus.Publisher, error) {
		dialCount.Add(1)
		p := &failingPublisher{}
		mu.Lock()
		publishers = append(publishers, p)
		mu.Unlock()
		return p, nil
	}

	f := New(dial, 1000, testBackoff())

	// Wait for the initial connect (generation 1).
	require.Eventually(t, func() bool { return f.Generation() == 1 }, time.Second, time.Millisecond)

	mu.Lock()
	publishers[0].shouldFail.Store(true)
	mu.Unlock()

	const n = 1000
	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.Publish(context.Background(), rawframe.Frame{GuildID: 1, EventType: "x"}); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, n, succeeded.Load())
	require.EqualValues(t, 2, f.Generation())
	require.EqualValues(t, 2, dialCount.Load(), "exactly one reconnect dial for the whole storm")
}
