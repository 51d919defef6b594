// Package auditlog implements the Audit-Log Enricher (spec.md §4.5): a
// best-effort backoff search over the upstream audit log, for attaching
// moderator/reason metadata to gateway events that don't carry it inline
// (bans, kicks, channel deletes). The Searcher reaches processors through
// normalizer.Context, but no processor calls it. Grounded on internal/backoff for the
// retry shape and rate-limited with golang.org/x/time/rate, the same
// limiter package thrasher-corp-gocryptotrader uses to throttle outbound
// REST polling against exchange APIs.
package auditlog

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/architus/gateway-logs-pipeline/internal/idgen"
)

// Entry is one audit-log record as returned by the page fetcher.
type Entry struct {
	ID         uint64
	TargetID   uint64
	UserID     uint64
	ActionType string
	Reason     string
	Raw        []byte
}

// Unauthorized signals a permanent 401/403 from the upstream API: the
// search must stop immediately rather than retry.
var Unauthorized = errors.New("auditlog: unauthorized")

// ErrNoMatch is returned when the search exhausts its deadline or
// traversal threshold without finding an accepted entry.
var ErrNoMatch = errors.New("auditlog: no match found")

// PageFetcher fetches one page of audit-log entries, newest first, before
// the given entry ID cursor (zero means "from the most recent").
type PageFetcher func(ctx context.Context, guildID uint64, entryType string, before uint64, pageSize int) ([]Entry, error)

// Strategy decides whether a candidate Entry should be accepted.
type Strategy interface {
	Accept(candidate Entry, elapsed time.Duration) bool
}

// First accepts the first entry the match predicate lets through.
type First struct{}

func (First) Accept(Entry, time.Duration) bool { return true }

// GrowingInterval accepts only entries whose snowflake-extracted timestamp
// falls within ±delta of Target, where delta grows linearly with elapsed
// search time up to Max. This rejects stale matches that happen to satisfy
// the predicate but occurred long before the event being enriched.
type GrowingInterval struct {
	Target time.Duration // ms epoch, as a duration since Unix epoch
	Max    time.Duration
}

func (g GrowingInterval) Accept(candidate Entry, elapsed time.Duration) bool {
	delta := g.Max
	if elapsed < g.Max {
		delta = elapsed
	}
	entryMs := idgen.ExtractTimestampMs(candidate.ID)
	entryTime := time.Duration(entryMs) * time.Millisecond
	diff := entryTime - g.Target
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}

// Query parameterizes a search.
type Query struct {
	GuildID             uint64
	EntryType           string
	TargetTimestampMs   uint64
	UserID              uint64 // optional, 0 means any
	Match               func(Entry) bool
	Strategy            Strategy
	PageSize            int
	TimestampIgnoreAgo  time.Duration // traversal gives up once entries are this far before the target
}

// Searcher runs paginated, rate-limited, backoff-retried audit-log
// searches.
type Searcher struct {
	fetch      PageFetcher
	limiter    *rate.Limiter
	initial    time.Duration
	max        time.Duration
	deadline   time.Duration
	pageSize   int
	ignoreAgo  time.Duration
}

// Config configures a Searcher. Zero values take the spec.md §4.5
// defaults.
type Config struct {
	InitialBackoff     time.Duration // default 400ms
	MaxBackoff         time.Duration // default 4s
	Deadline           time.Duration // default 15s
	DefaultPageSize    int           // default 5
	IgnoreThreshold    time.Duration // default 60s
	RateLimitPerSecond float64       // default 5
	RateLimitBurst     int           // default 2
}

// New builds a Searcher over the given page fetcher.
func New(fetch PageFetcher, cfg Config) *Searcher {
	initial := cfg.InitialBackoff
	if initial == 0 {
		initial = 400 * time.Millisecond
	}
	max := cfg.MaxBackoff
	if max == 0 {
		max = 4 * time.Second
	}
	deadline := cfg.Deadline
	if deadline == 0 {
		deadline = 15 * time.Second
	}
	pageSize := cfg.DefaultPageSize
	if pageSize == 0 {
		pageSize = 5
	}
	ignoreAgo := cfg.IgnoreThreshold
	if ignoreAgo == 0 {
		ignoreAgo = 60 * time.Second
	}
	perSecond := cfg.RateLimitPerSecond
	if perSecond == 0 {
		perSecond = 5
	}
	burst := cfg.RateLimitBurst
	if burst == 0 {
		burst = 2
	}
	return &Searcher{
		fetch:     fetch,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
		initial:   initial,
		max:       max,
		deadline:  deadline,
		pageSize:  pageSize,
		ignoreAgo: ignoreAgo,
	}
}

// Search paginates newest-first until Match+Strategy accept an entry, the
// deadline elapses, traversal passes the ignore threshold before the
// target timestamp, or Unauthorized is returned by the fetcher (permanent,
// no retry).
func (s *Searcher) Search(ctx context.Context, q Query) (Entry, error) {
	pageSize := q.PageSize
	if pageSize == 0 {
		pageSize = s.pageSize
	}
	strategy := q.Strategy
	if strategy == nil {
		strategy = First{}
	}
	ignoreAgo := q.TimestampIgnoreAgo
	if ignoreAgo == 0 {
		ignoreAgo = s.ignoreAgo
	}

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	start := time.Now()
	var before uint64
	backoffWait := s.initial

	for {
		if err := ctx.Err(); err != nil {
			return Entry{}, ErrNoMatch
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return Entry{}, ErrNoMatch
		}

		entries, err := s.fetch(ctx, q.GuildID, q.EntryType, before, pageSize)
		if err != nil {
			if errors.Is(err, Unauthorized) {
				return Entry{}, Unauthorized
			}
			select {
			case <-time.After(backoffWait):
			case <-ctx.Done():
				return Entry{}, ErrNoMatch
			}
			backoffWait *= 2
			if backoffWait > s.max {
				backoffWait = s.max
			}
			continue
		}

		if len(entries) == 0 {
			return Entry{}, ErrNoMatch
		}

		elapsed := time.Since(start)
		for _, e := range entries {
			if q.UserID != 0 && e.UserID != q.UserID {
				continue
			}
			if q.Match != nil && !q.Match(e) {
				continue
			}
			if strategy.Accept(e, elapsed) {
				return e, nil
			}
		}

		oldest := entries[len(entries)-1]
		oldestMs := idgen.ExtractTimestampMs(oldest.ID)
		targetBoundary := int64(q.TargetTimestampMs) - ignoreAgo.Milliseconds()
		if targetBoundary > 0 && int64(oldestMs) < targetBoundary {
			return Entry{}, ErrNoMatch
		}

		before = oldest.ID
		backoffWait = s.initial
	}
}
