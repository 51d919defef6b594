// Package publisher implements the Handle Factory (spec.md §4.2): the
// hardest concurrency contract in the pipeline. Multiple publish callers
// race to acquire a slot from a pool rooted in one live bus connection; a
// single background reconnect coroutine is the only actor that mutates
// the pool. generation is a monotonically increasing token attached to
// each pool instance, following the same generation-token idiom as the
// teacher's CircuitBreaker (toNewGeneration, stale-generation results
// ignored in afterRequest) — adapted here from "discard a stale
// success/failure report" to "discard a stale reconnect trigger".
package publisher

import (
	"context"
	"fmt"
	"sync"

	"github.com/architus/gateway-logs-pipeline/internal/backoff"
	"github.com/architus/gateway-logs-pipeline/internal/bus"
	"github.com/architus/gateway-logs-pipeline/internal/rawframe"
)

// Dialer establishes (or re-establishes) the live bus connection,
// including idempotent topic declaration. Called by the reconnect
// coroutine, never directly by publish callers.
type Dialer func(ctx context.Context) (bus.Publisher, error)

// factoryState is the sealed state-machine type: either connecting (with a
// ready channel every waiter blocks on) or connected (with a live pool and
// its generation).
type factoryState interface{ isFactoryState() }

type connecting struct {
	// ready is closed exactly once, when the reconnect coroutine installs
	// the next connected state — a one-shot broadcast (closing a channel
	// wakes every waiter at once), the idiomatic Go substitute for a
	// condition-variable broadcast called out in spec.md §9.
	ready chan struct{}
}

func (connecting) isFactoryState() {}

type connected struct {
	pool       *pool
	generation uint64
}

func (connected) isFactoryState() {}

// pool bounds how many concurrent publishes may be in flight against one
// live bus connection (config publish_concurrency in spec.md §5).
type pool struct {
	publisher bus.Publisher
	slots     chan struct{}
}

func newPool(p bus.Publisher, concurrency int) *pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	slots := make(chan struct{}, concurrency)
	for i := 0; i < concurrency; i++ {
		slots <- struct{}{}
	}
	return &pool{publisher: p, slots: slots}
}

func (p *pool) acquire(ctx context.Context) error {
	select {
	case <-p.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pool) release() {
	select {
	case p.slots <- struct{}{}:
	default:
	}
}

// handle is a checked-out publish slot bound to the generation it was
// acquired under.
type handle struct {
	pool       *pool
	generation uint64
}

// Factory is the Handle Factory. The reconnect coroutine installs each
// connected state and notifyError swaps in connecting; both hold a plain
// sync.Mutex only across pointer swaps — never across a publish or dial,
// per spec.md §4.2/§5.
type Factory struct {
	dial            Dialer
	publishConcurrency int
	reconnectBackoff   backoff.Config

	mu    sync.Mutex
	state factoryState
}

// New constructs a Factory and immediately starts the first connection
// attempt (generation 1). publishConcurrency bounds in-flight publishes
// per live connection; reconnectBackoff has no effective upper bound on
// attempts — gateway events must not be lost (spec.md §4.2).
func New(dial Dialer, publishConcurrency int, reconnectBackoff backoff.Config) *Factory {
	f := &Factory{
		dial:               dial,
		publishConcurrency: publishConcurrency,
		reconnectBackoff:   reconnectBackoff,
	}
	ready := make(chan struct{})
	f.state = connecting{ready: ready}
	go f.reconnect(1, ready)
	return f
}

// reconnect is the sole reconnect coroutine for a given generation
// transition. It retries dial with unbounded exponential backoff, then
// installs the new connected state and broadcasts readiness.
func (f *Factory) reconnect(planned uint64, ready chan struct{}) {
	_ = backoff.Retry(context.Background(), f.reconnectBackoff, func(ctx context.Context) error {
		p, err := f.dial(ctx)
		if err != nil {
			return err
		}

		f.mu.Lock()
		f.state = connected{pool: newPool(p, f.publishConcurrency), generation: planned}
		f.mu.Unlock()

		close(ready)
		return nil
	})
}

// acquire blocks until a connected pool is available, then checks out one
// slot from it.
func (f *Factory) acquire(ctx context.Context) (*handle, error) {
	for {
		f.mu.Lock()
		state := f.state
		f.mu.Unlock()

		switch s := state.(type) {
		case connecting:
			select {
			case <-s.ready:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		case connected:
			if err := s.pool.acquire(ctx); err != nil {
				return nil, err
			}
			return &handle{pool: s.pool, generation: s.generation}, nil
		default:
			return nil, fmt.Errorf("publisher: unknown factory state %T", state)
		}
	}
}

// notifyError is the error-to-reconnect protocol (spec.md §4.2 steps 1-3).
// It is a no-op if the factory is already reconnecting, or if the
// reporting generation is already stale — in both cases another publisher
// already triggered (or is triggering) the next reconnect.
func (f *Factory) notifyError(generation uint64) {
	f.mu.Lock()
	s, ok := f.state.(connected)
	if !ok || generation < s.generation {
		f.mu.Unlock()
		return
	}

	planned := s.generation + 1
	ready := make(chan struct{})
	f.state = connecting{ready: ready}
	f.mu.Unlock()

	go f.reconnect(planned, ready)
}

// Publish acquires a slot, attempts the publish, and on failure triggers
// (or defers to an already-in-flight) reconnect before transparently
// retrying on the new generation. Messages are never dropped across a
// reconnect: a failed publish simply blocks in acquire() until the next
// generation is ready, then retries.
func (f *Factory) Publish(ctx context.Context, frame rawframe.Frame) error {
	for {
		h, err := f.acquire(ctx)
		if err != nil {
			return fmt.Errorf("publisher: acquire: %w", err)
		}

		pubErr := h.pool.publisher.Publish(ctx, frame)
		h.pool.release()

		if pubErr == nil {
			return nil
		}

		f.notifyError(h.generation)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		// loop: acquire() will now block on the new Connecting state until
		// the reconnect coroutine broadcasts readiness, then retry publish.
	}
}

// Generation reports the current live generation, or 0 while connecting.
// Exposed for tests; no HTTP route serves it.
func (f *Factory) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.state.(connected); ok {
		return c.generation
	}
	return 0
}
