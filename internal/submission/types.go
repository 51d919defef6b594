// Package submission exposes the Submission RPC surface (spec.md §6,
// §4.12): SubmitIdempotent over a hand-rolled gRPC service description
// (no .proto compile step is available in this exercise, so the request/
// response types are plain Go structs carried over a JSON codec rather
// than generated protobuf messages — documented as a pragmatic
// simplification in DESIGN.md), plus an HTTP/JSON fallback handler
// grounded on internal/api/server.go's gorilla/mux router setup.
package submission

import "github.com/architus/gateway-logs-pipeline/internal/canonical"

// ErrorKind enumerates the error taxonomy spec.md §6 requires the RPC
// surface to report.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindInvalidArgument ErrorKind = "InvalidArgument"
	KindInternal        ErrorKind = "Internal"
	KindUnavailable     ErrorKind = "Unavailable"
	KindDeadlineExceeded ErrorKind = "DeadlineExceeded"
)

// SubmitRequest carries one already-normalized CanonicalEvent for
// idempotent submission.
type SubmitRequest struct {
	Event canonical.Event `json:"event"`
}

// SubmitResponse reports the outcome. Same input always produces the same
// DocumentID (spec.md §6 idempotency guarantee).
type SubmitResponse struct {
	DocumentID string    `json:"document_id,omitempty"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	ErrorMsg   string    `json:"error_message,omitempty"`
}
