package idgen

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Deterministic derives the canonical event ID from (event_type, id_params)
// via a keyed hash, so that two replays of the same logical event converge
// on one index document. The key is a static per-deployment secret rather
// than crypto/rand, since the whole point is reproducibility across
// restarts — the opposite requirement from NewString's random payload.
type Deterministic struct {
	key []byte
}

// NewDeterministic builds a deterministic ID generator keyed by secret.
// secret must be non-empty; an empty key degrades HMAC to "no secret" and
// would make IDs guessable from event_type/id_params alone.
func NewDeterministic(secret []byte) (*Deterministic, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("idgen: deterministic ID secret must not be empty")
	}
	return &Deterministic{key: secret}, nil
}

// EventID computes the prefixed event ID for (eventType, idParams). idParams
// holds 1 to 3 u64 values per the contract in spec §4.6/§4.7; more or fewer
// is a caller bug, not a runtime condition, so it panics rather than erroring.
func (d *Deterministic) EventID(eventType string, idParams []uint64) string {
	if len(idParams) < 1 || len(idParams) > 3 {
		panic(fmt.Sprintf("idgen: id_params must have 1-3 elements, got %d", len(idParams)))
	}

	mac := hmac.New(sha256.New, d.key)
	mac.Write([]byte(eventType))
	for _, p := range idParams {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], p)
		mac.Write(buf[:])
	}
	digest := mac.Sum(nil) // 32 bytes; KSUID body needs 20

	return string(PrefixEvent) + "_" + encodeBase62(digest[:20])
}
