// Package connection implements the per-process Connection Tracker
// (spec.md §2/§5): a small state machine over gateway/bus connectivity
// that emits debounced Online/Offline/Heartbeat batches consumed by the
// Active-Guild Set's uptime stream handler. Grounded on a connection
// watcher's named-registry-of-state-transitions shape from the example
// pack, repurposed here from HTTP health probing to gateway/bus
// connectivity edges with a debounce window instead of a fixed poll
// interval.
package connection

import (
	"sync"
	"time"
)

// BatchType is the kind of connectivity batch emitted to subscribers.
type BatchType string

const (
	Online    BatchType = "Online"
	Offline   BatchType = "Offline"
	Heartbeat BatchType = "Heartbeat"
)

// Batch is one connectivity event, matching the uptime RPC's
// GatewaySubmit shape (spec.md §6) so it can be forwarded with minimal
// translation.
type Batch struct {
	Type      BatchType
	Guilds    []uint64
	Timestamp uint64
	Session   uint64
}

// Tracker debounces rising/falling connectivity edges so a flapping
// connection doesn't spam Online/Offline batches (testable property 2:
// at most one rising and one falling edge per uninterrupted Online-then-
// Offline span, separated by the debounce delay).
type Tracker struct {
	mu       sync.Mutex
	session  uint64
	debounce time.Duration
	out      chan Batch

	generation   uint64 // bumped on every SetOnline/SetOffline to invalidate in-flight timers
	lastEmitted  BatchType
	pendingGuild []uint64
	now          func() uint64
}

// New creates a Tracker. session is the random per-process ID the uptime
// RPC contract requires; now defaults to the wall clock in milliseconds
// but is overridable for deterministic tests.
func New(session uint64, debounce time.Duration) *Tracker {
	return &Tracker{
		session:  session,
		debounce: debounce,
		out:      make(chan Batch, 16),
		now:      nowMs,
	}
}

func nowMs() uint64 { return uint64(time.Now().UnixMilli()) }

// Batches returns the channel subscribers read emitted batches from.
func (t *Tracker) Batches() <-chan Batch { return t.out }

// SetOnline requests a transition to Online for the given guilds, debounced
// by t.debounce: if SetOffline is called before the debounce window
// elapses, no Online batch is ever emitted for this request.
func (t *Tracker) SetOnline(guildIDs []uint64) {
	t.scheduleEdge(Online, guildIDs)
}

// SetOffline requests a transition to Offline, debounced the same way.
func (t *Tracker) SetOffline(guildIDs []uint64) {
	t.scheduleEdge(Offline, guildIDs)
}

func (t *Tracker) scheduleEdge(target BatchType, guildIDs []uint64) {
	t.mu.Lock()
	t.generation++
	gen := t.generation
	t.pendingGuild = guildIDs
	t.mu.Unlock()

	time.AfterFunc(t.debounce, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.generation != gen {
			return // superseded by a later request before the debounce elapsed
		}
		if t.lastEmitted == target {
			return // already in this state; not an edge
		}
		t.lastEmitted = target
		batch := Batch{Type: target, Guilds: t.pendingGuild, Timestamp: t.now(), Session: t.session}
		select {
		case t.out <- batch:
		default:
		}
	})
}

// Heartbeat emits an immediate, non-debounced Heartbeat batch listing the
// guilds currently considered connected — used for periodic liveness
// reporting independent of edge transitions.
func (t *Tracker) Heartbeat(guildIDs []uint64) {
	batch := Batch{Type: Heartbeat, Guilds: guildIDs, Timestamp: t.now(), Session: t.session}
	select {
	case t.out <- batch:
	default:
	}
}

// Close releases the output channel. Safe to call once after the tracker
// is no longer needed; subsequent SetOnline/SetOffline/Heartbeat calls
// after Close may panic on a send to a closed channel, matching a
// single-owner lifecycle (no further calls after shutdown).
func (t *Tracker) Close() {
	close(t.out)
}
