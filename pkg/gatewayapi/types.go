// Package gatewayapi holds the wire types shared with the downstream
// query surface that reads documents out of the search index: the
// Ingested Document shape (spec.md §3) callers can rely on regardless of
// the caller-supplied mapping's own fields.
package gatewayapi

import "encoding/json"

// IngestedDocument is the stable top-level document shape the search
// index stores (spec.md §6): id and ingestion_timestamp are guaranteed;
// inner holds the CanonicalEvent JSON minus its own id field.
type IngestedDocument struct {
	ID                 string          `json:"id"`
	IngestionTimestamp uint64          `json:"ingestion_timestamp"`
	Inner              json.RawMessage `json:"inner"`
}
