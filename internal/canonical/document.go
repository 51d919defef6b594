package canonical

// Document is the shape persisted to the search index: a CanonicalEvent
// plus the time it was included in a bulk batch. The document ID equals
// Event.ID.
type Document struct {
	Inner               Event  `json:"inner"`
	IngestionTimestamp  uint64 `json:"ingestion_timestamp"`
}

// ID returns the search-index document ID, which is always the wrapped
// event's deterministic ID.
func (d Document) ID() string { return d.Inner.ID }
