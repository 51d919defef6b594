package batcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/architus/gateway-logs-pipeline/internal/backoff"
	"github.com/architus/gateway-logs-pipeline/internal/canonical"
)

type fakeSender struct {
	calls   atomic.Int32
	fn      func(body []byte) ([]ItemResult, error)
}

func (f *fakeSender) Bulk(ctx context.Context, body []byte) ([]ItemResult, error) {
	f.calls.Add(1)
	return f.fn(body)
}

func testEvent(id string) canonical.Event {
	return canonical.Event{ID: id, GuildID: 1, Type: canonical.EventMessageSend, IDParams: []uint64{1}}
}

func testBackoff() backoff.Config {
	return backoff.Config{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2, MaxRetries: 2}
}

func TestBatcher_FlushesOnSize(t *testing.T) {
	sender := &fakeSender{fn: func(body []byte) ([]ItemResult, error) {
		return []ItemResult{{ID: "a"}, {ID: "b"}}, nil
	}}
	b := New(sender, Config{DebounceSize: 2, DebouncePeriod: time.Hour, BulkBackoff: testBackoff()})
	defer b.Close()

	errCh := make(chan error, 2)
	go func() { errCh <- b.Submit(context.Background(), testEvent("a")) }()
	go func() { errCh <- b.Submit(context.Background(), testEvent("b")) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for completion")
		}
	}
	require.EqualValues(t, 1, sender.calls.Load())
}

func TestBatcher_FlushesOnAge(t *testing.T) {
	sender := &fakeSender{fn: func(body []byte) ([]ItemResult, error) {
		return []ItemResult{{ID: "solo"}}, nil
	}}
	b := New(sender, Config{DebounceSize: 50, DebouncePeriod: 20 * time.Millisecond, BulkBackoff: testBackoff()})
	defer b.Close()

	err := b.Submit(context.Background(), testEvent("solo"))
	require.NoError(t, err)
}

func TestBatcher_PerItemFailureIsFatal(t *testing.T) {
	sender := &fakeSender{fn: func(body []byte) ([]ItemResult, error) {
		return []ItemResult{{ID: "bad", Err: errors.New("mapper_parsing_exception")}}, nil
	}}
	b := New(sender, Config{DebounceSize: 1, DebouncePeriod: time.Hour, BulkBackoff: testBackoff()})
	defer b.Close()

	err := b.Submit(context.Background(), testEvent("bad"))
	require.ErrorIs(t, err, ErrFatal)
}

func TestBatcher_WholeBatchFailureIsUnavailableAfterRetries(t *testing.T) {
	sender := &fakeSender{fn: func(body []byte) ([]ItemResult, error) {
		return nil, errors.New("connection refused")
	}}
	b := New(sender, Config{DebounceSize: 1, DebouncePeriod: time.Hour, BulkBackoff: testBackoff()})
	defer b.Close()

	err := b.Submit(context.Background(), testEvent("x"))
	require.ErrorIs(t, err, ErrUnavailable)
	require.GreaterOrEqual(t, int(sender.calls.Load()), 2)
}

func TestBatcher_DeadlineExceededOnCanceledContext(t *testing.T) {
	sender := &fakeSender{fn: func(body []byte) ([]ItemResult, error) {
		time.Sleep(50 * time.Millisecond)
		return []ItemResult{{ID: "slow"}}, nil
	}}
	b := New(sender, Config{DebounceSize: 50, DebouncePeriod: time.Hour, BulkBackoff: testBackoff()})
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := b.Submit(ctx, testEvent("slow"))
	require.ErrorIs(t, err, ErrDeadlineExceeded)
}
