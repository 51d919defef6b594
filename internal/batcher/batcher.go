// Package batcher implements the Submission Batcher (spec.md §4.7): a
// single owner goroutine drains a channel of (CanonicalEvent, completion
// handle) pairs into an in-memory queue, flushing on size or age, building
// a bulk-index body, and correlating per-item bulk results back to waiters
// by ID through a hash map rather than a linear scan. The worker/retry
// shape is grounded on the teacher's internal/webhooks/dispatcher.go
// (queue channel + owner goroutine + whole-job retry-with-backoff),
// adapted from per-subscriber webhook delivery to one shared bulk call.
package batcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/architus/gateway-logs-pipeline/internal/backoff"
	"github.com/architus/gateway-logs-pipeline/internal/canonical"
	"github.com/architus/gateway-logs-pipeline/pkg/gatewayapi"
)

// ErrFatal marks a per-event failure that must never be retried
// (serialization failure, or a non-transient per-item bulk rejection).
var ErrFatal = errors.New("batcher: fatal")

// ErrUnavailable marks a whole-batch failure after backoff exhaustion; the
// submission RPC maps this to Unavailable and the caller decides whether
// to requeue.
var ErrUnavailable = errors.New("batcher: unavailable")

// ErrDeadlineExceeded is returned by Submit when the context is canceled
// before a completion signal arrives.
var ErrDeadlineExceeded = errors.New("batcher: deadline exceeded")

// ItemResult is one bulk-response line's outcome, keyed by document ID.
type ItemResult struct {
	ID  string
	Err error // nil on success; non-nil is always non-transient (ErrFatal-shaped)
}

// BulkSender issues the newline-delimited bulk body and returns per-item
// results. Implemented by internal/searchindex.Client; declared here
// (rather than imported) so the batcher depends only on the shape it
// needs, not on the HTTP client's concrete type.
type BulkSender interface {
	Bulk(ctx context.Context, body []byte) ([]ItemResult, error)
}

type job struct {
	event      canonical.Event
	done       chan<- error
	enqueuedAt time.Time
}

// Batcher is the Submission Batcher's owner goroutine plus its public
// Submit entry point.
type Batcher struct {
	sender BulkSender
	logger *slog.Logger

	debounceSize   int
	debouncePeriod time.Duration
	bulkBackoff    backoff.Config

	incoming chan job
	done     chan struct{}
}

// Config configures a Batcher.
type Config struct {
	DebounceSize   int
	DebouncePeriod time.Duration
	BulkBackoff    backoff.Config
	Logger         *slog.Logger
}

// New builds a Batcher and starts its owner goroutine, so the zero-config
// case works without extra wiring.
func New(sender BulkSender, cfg Config) *Batcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounceSize := cfg.DebounceSize
	if debounceSize <= 0 {
		debounceSize = 50
	}
	debouncePeriod := cfg.DebouncePeriod
	if debouncePeriod <= 0 {
		debouncePeriod = 2 * time.Second
	}
	bulkBackoff := cfg.BulkBackoff
	if bulkBackoff.Initial == 0 {
		bulkBackoff = backoff.Config{Initial: 500 * time.Millisecond, Max: 10 * time.Second, Multiplier: 2, MaxElapsed: 30 * time.Second}
	}

	b := &Batcher{
		sender:         sender,
		logger:         logger.With("component", "batcher"),
		debounceSize:   debounceSize,
		debouncePeriod: debouncePeriod,
		bulkBackoff:    bulkBackoff,
		incoming:       make(chan job, debounceSize*4),
		done:           make(chan struct{}),
	}
	go b.owner()
	return b
}

// Submit enqueues event and blocks until its completion signal arrives or
// ctx is canceled (ErrDeadlineExceeded) — the caller is expected to retry
// with the same logical event on that path, which dedupes at the index by
// ID (spec.md §4.7 invariant).
func (b *Batcher) Submit(ctx context.Context, event canonical.Event) error {
	ch := make(chan error, 1)
	select {
	case b.incoming <- job{event: event, done: ch, enqueuedAt: time.Now()}:
	case <-ctx.Done():
		return ErrDeadlineExceeded
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ErrDeadlineExceeded
	}
}

// Close signals the owner goroutine to flush its pending batch and stop;
// it returns at once, without waiting for that flush to finish.
func (b *Batcher) Close() { close(b.done) }

func (b *Batcher) owner() {
	var pending []job
	timer := time.NewTimer(b.debouncePeriod)
	defer timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		b.flushBatch(batch)
	}

	for {
		select {
		case j := <-b.incoming:
			pending = append(pending, j)
			if len(pending) >= b.debounceSize {
				flush()
				timer.Reset(b.debouncePeriod)
			}
		case <-timer.C:
			if len(pending) > 0 && time.Since(pending[0].enqueuedAt) >= b.debouncePeriod {
				flush()
			}
			timer.Reset(b.debouncePeriod)
		case <-b.done:
			flush()
			return
		}
	}
}

func (b *Batcher) flushBatch(batch []job) {
	byID := make(map[string]job, len(batch))
	var lines [][]byte

	for _, j := range batch {
		line, err := buildBulkLines(j.event)
		if err != nil {
			j.done <- fmt.Errorf("%w: %v", ErrFatal, err)
			continue
		}
		byID[j.event.ID] = j
		lines = append(lines, line)
	}
	if len(byID) == 0 {
		return
	}

	body := joinLines(lines)

	var results []ItemResult
	err := backoff.Retry(context.Background(), b.bulkBackoff, func(ctx context.Context) error {
		r, sendErr := b.sender.Bulk(ctx, body)
		if sendErr != nil {
			return sendErr
		}
		results = r
		return nil
	})
	if err != nil {
		b.logger.Warn("bulk submission exhausted retries", "batch_size", len(byID), "error", err)
		for id, j := range byID {
			j.done <- fmt.Errorf("%w: %v", ErrUnavailable, err)
			delete(byID, id)
		}
		return
	}

	for _, r := range results {
		j, ok := byID[r.ID]
		if !ok {
			continue
		}
		delete(byID, r.ID)
		if r.Err != nil {
			j.done <- fmt.Errorf("%w: %v", ErrFatal, r.Err)
		} else {
			j.done <- nil
		}
	}

	// Any ID the bulk response didn't account for is itself a protocol
	// violation from the index, not a caller error — complete Unavailable
	// so the caller's retry-with-same-ID path dedupes correctly.
	for _, j := range byID {
		j.done <- fmt.Errorf("%w: id missing from bulk response", ErrUnavailable)
	}
}

// buildBulkLines renders one event's action-line + document-line pair
// (spec.md §4.7 item 4): {"index":{"_id":<id>}}\n{doc}.
func buildBulkLines(event canonical.Event) ([]byte, error) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling event: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(eventJSON, &fields); err != nil {
		return nil, fmt.Errorf("decoding event fields: %w", err)
	}
	delete(fields, "id") // top-level id duplicates this; inner omits it
	inner, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("re-marshaling inner: %w", err)
	}

	doc := gatewayapi.IngestedDocument{ID: event.ID, IngestionTimestamp: uint64(time.Now().UnixMilli()), Inner: inner}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling document: %w", err)
	}

	action := fmt.Sprintf(`{"index":{"_id":%q}}`, event.ID)
	return append([]byte(action+"\n"), append(docJSON, '\n')...), nil
}

func joinLines(lines [][]byte) []byte {
	var total int
	for _, l := range lines {
		total += len(l)
	}
	out := make([]byte, 0, total)
	for _, l := range lines {
		out = append(out, l...)
	}
	return out
}
