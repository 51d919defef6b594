// Package idgen derives the pipeline's two identifier schemes: snowflake
// timestamp extraction/synthesis over upstream platform IDs, and the
// KSUID-prefixed opaque string IDs used for normalized events.
package idgen

import "fmt"

// PlatformEpochMs is the offset subtracted from a snowflake's top 42 bits
// to recover a millisecond timestamp. Matches the upstream chat platform's
// documented epoch (Discord-style: 2015-01-01T00:00:00.000Z).
const PlatformEpochMs uint64 = 1420070400000

const timestampShift = 22

// ExtractTimestampMs recovers the millisecond timestamp encoded in the top
// 42 bits of a snowflake ID.
func ExtractTimestampMs(snowflake uint64) uint64 {
	return (snowflake >> timestampShift) + PlatformEpochMs
}

// SynthesizeBoundary builds a snowflake whose timestamp bits equal
// (ms - PlatformEpochMs) and whose low bits are zero, suitable for use as a
// range-query boundary (e.g. "give me everything after this instant").
// ms below the epoch clamps to zero rather than underflowing.
func SynthesizeBoundary(ms uint64) uint64 {
	if ms < PlatformEpochMs {
		return 0
	}
	return (ms - PlatformEpochMs) << timestampShift
}

// ErrTimestampBeforeEpoch indicates a call that would underflow the
// platform epoch offset.
var ErrTimestampBeforeEpoch = fmt.Errorf("idgen: timestamp precedes platform epoch")

// SynthesizeBoundaryChecked is SynthesizeBoundary but reports underflow
// instead of silently clamping, for callers that need to distinguish the
// two (range-query boundaries tolerate clamping; round-trip tests don't).
func SynthesizeBoundaryChecked(ms uint64) (uint64, error) {
	if ms < PlatformEpochMs {
		return 0, ErrTimestampBeforeEpoch
	}
	return (ms - PlatformEpochMs) << timestampShift, nil
}
