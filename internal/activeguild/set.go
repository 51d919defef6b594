// Package activeguild implements the Active-Guild Set (spec.md §4.3): a
// cached, periodically-polled intersection of "currently online" guilds
// with "indexing-enabled" guilds, maintained via three write paths
// (periodic reconciler, eager loader, uptime stream handler) behind a
// single read-write lock whose write sections never block on a channel.
// Grounded on the teacher's ghostpool.PoolManager, which holds the same
// "never block while the lock is held" discipline for its pool map.
package activeguild

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/architus/gateway-logs-pipeline/internal/backoff"
	"github.com/architus/gateway-logs-pipeline/internal/connection"
	"github.com/architus/gateway-logs-pipeline/internal/featuregate"
)

// ConnState is a guild's online/offline connectivity, as tracked by the
// uptime stream handler.
type ConnState int

const (
	ConnOffline ConnState = iota
	ConnOnline
)

// entry is the map value: either loading (other callers await broadcast)
// or loaded (with the resolved is_active + connection state).
type entry struct {
	loading  bool
	ready    chan struct{} // closed when loading resolves; nil once loaded
	isActive bool
	conn     ConnState
	// sinceOffline is non-zero only while conn == ConnOffline; the
	// reconciler evicts entries offline longer than evictionDuration.
	sinceOffline time.Time
}

func (e entry) active() bool { return e.isActive && e.conn == ConnOnline }

// Set is the Active-Guild Set.
type Set struct {
	mu      sync.RWMutex
	guilds  map[uint64]*entry
	fgate   *featuregate.Client
	feature string
	cache   Cache

	batchSize        int
	evictionDuration time.Duration
	eagerLoadBackoff backoff.Config

	logger *slog.Logger

	// edges receives a rising/falling active-edge notification so a
	// caller can synthesize uptime events; buffered and best-effort.
	edges chan Edge
}

// Edge is an active-status transition.
type Edge struct {
	GuildID uint64
	Rising  bool // true = became active, false = became inactive
}

// Config configures a Set.
type Config struct {
	Feature          string
	BatchSize        int
	EvictionDuration time.Duration
	EagerLoadBackoff backoff.Config
	Logger           *slog.Logger
	// Cache is an optional cross-process persistence tier (see
	// RedisCache); nil disables it and every eager load hits the
	// feature-gate directly.
	Cache Cache
}

// New builds an empty Active-Guild Set.
func New(fgate *featuregate.Client, cfg Config) *Set {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Set{
		guilds:           make(map[uint64]*entry),
		fgate:            fgate,
		feature:          cfg.Feature,
		cache:            cfg.Cache,
		batchSize:        batchSize,
		evictionDuration: cfg.EvictionDuration,
		eagerLoadBackoff: cfg.EagerLoadBackoff,
		logger:           logger.With("component", "activeguild"),
		edges:            make(chan Edge, 256),
	}
}

// Edges returns the channel of active-status transitions. Sends are
// non-blocking, so an edge is dropped when the channel is full.
func (s *Set) Edges() <-chan Edge { return s.edges }

// IsActive implements the eager loader (spec.md §4.3): if Loaded, returns
// active immediately; if Loading, awaits the broadcast; if absent,
// installs a Loading marker under the write lock, releases the lock, then
// queries the feature-gate with backoff in a new goroutine. Concurrent
// calls for the same never-before-seen guild all observe the marker and
// await the same broadcast — only one RPC is sent (spec.md §8 boundary
// behavior).
func (s *Set) IsActive(ctx context.Context, guildID uint64) bool {
	s.mu.Lock()
	e, ok := s.guilds[guildID]
	if ok {
		if !e.loading {
			active := e.active()
			s.mu.Unlock()
			return active
		}
		ready := e.ready
		s.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			return true // Degraded default; ctx gave up waiting
		}
		return s.IsActive(ctx, guildID) // re-read now-resolved entry
	}

	ready := make(chan struct{})
	s.guilds[guildID] = &entry{loading: true, ready: ready}
	s.mu.Unlock()

	go s.resolveEagerLoad(guildID, ready)

	select {
	case <-ready:
	case <-ctx.Done():
		return true
	}
	return s.IsActive(ctx, guildID)
}

func (s *Set) resolveEagerLoad(guildID uint64, ready chan struct{}) {
	var isActive bool
	err := backoff.Retry(context.Background(), s.eagerLoadBackoff, func(ctx context.Context) error {
		has, err := s.fgate.Check(ctx, s.feature, guildID)
		if err != nil {
			return err
		}
		isActive = has
		return nil
	})

	if err != nil && s.cache != nil {
		if cached, found, cacheErr := s.cache.LoadActive(context.Background(), guildID); cacheErr == nil && found {
			s.logger.Info("eager load degraded: serving last-known value from cache", "guild_id", guildID)
			isActive = cached
			err = nil
		}
	}

	s.mu.Lock()
	if err != nil {
		// Degraded: default-open on feature-gate unreachable (and no cached
		// value to fall back on), and do not persist that default past
		// this round — the Open Question in spec.md §9 is resolved as
		// "re-tried each interval", so this entry is intentionally left
		// `loading`-resolved-but-not-cached: the next reconciliation round
		// re-queries it via batchCheck.
		s.logger.Warn("eager load degraded: defaulting is_active=true", "guild_id", guildID, "error", err)
		isActive = true
	}
	// A guild whose events are arriving is taken to be Online until the
	// uptime stream reports otherwise.
	s.guilds[guildID] = &entry{loading: false, isActive: isActive, conn: ConnOnline}
	s.mu.Unlock()

	if err == nil && s.cache != nil {
		if saveErr := s.cache.SaveActive(context.Background(), guildID, isActive); saveErr != nil {
			s.logger.Warn("activeguild: cache write-through failed", "guild_id", guildID, "error", saveErr)
		}
	}

	close(ready)
}

// Reconcile is the periodic reconciler (spec.md §4.3): snapshots
// currently-loaded guild IDs, batches them, and merges feature-gate
// results. A length mismatch aborts only that chunk (logged, not fatal).
func (s *Set) Reconcile(ctx context.Context) {
	ids := s.loadedGuildIDs()

	for start := 0; start < len(ids); start += s.batchSize {
		end := start + s.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		results, err := s.fgate.BatchCheck(ctx, s.feature, chunk)
		if err != nil {
			s.logger.Warn("reconcile: chunk skipped", "error", err, "chunk_size", len(chunk))
			continue
		}

		for i, guildID := range chunk {
			s.applyReconcileResult(guildID, results[i])
		}
	}

	s.evictStaleOffline()
}

func (s *Set) loadedGuildIDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.guilds))
	for id, e := range s.guilds {
		if !e.loading {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Set) applyReconcileResult(guildID uint64, isActive bool) {
	s.mu.Lock()
	e, ok := s.guilds[guildID]
	if !ok || e.loading {
		s.mu.Unlock()
		return
	}
	wasActive := e.active()
	e.isActive = isActive
	nowActive := e.active()
	s.mu.Unlock()

	s.emitEdgeIfChanged(guildID, wasActive, nowActive)
}

func (s *Set) emitEdgeIfChanged(guildID uint64, was, now bool) {
	if was == now {
		return
	}
	select {
	case s.edges <- Edge{GuildID: guildID, Rising: now}:
	default:
	}
}

func (s *Set) evictStaleOffline() {
	if s.evictionDuration <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.evictionDuration)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.guilds {
		if !e.loading && e.conn == ConnOffline && !e.sinceOffline.IsZero() && e.sinceOffline.Before(cutoff) {
			delete(s.guilds, id)
		}
	}
}

// ApplyConnectionBatch is the uptime stream handler (spec.md §4.3):
// updates each guild's connection state from a Connection Tracker batch
// and starts the eviction clock on transitions to Offline.
func (s *Set) ApplyConnectionBatch(b connection.Batch) {
	var target ConnState
	switch b.Type {
	case connection.Online, connection.Heartbeat:
		target = ConnOnline
	case connection.Offline:
		target = ConnOffline
	default:
		return
	}

	for _, guildID := range b.Guilds {
		s.mu.Lock()
		e, ok := s.guilds[guildID]
		if !ok {
			e = &entry{}
			s.guilds[guildID] = e
		}
		if e.loading {
			s.mu.Unlock()
			continue
		}
		wasActive := e.active()
		e.conn = target
		if target == ConnOffline {
			e.sinceOffline = time.Now()
		} else {
			e.sinceOffline = time.Time{}
		}
		nowActive := e.active()
		s.mu.Unlock()

		s.emitEdgeIfChanged(guildID, wasActive, nowActive)
	}
}

// Snapshot returns the total and active guild counts, served at
// /debug/activeguild.
func (s *Set) Snapshot() (total, active int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.guilds {
		total++
		if !e.loading && e.active() {
			active++
		}
	}
	return total, active
}
