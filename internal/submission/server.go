package submission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"google.golang.org/grpc"

	"github.com/architus/gateway-logs-pipeline/internal/batcher"
	"github.com/architus/gateway-logs-pipeline/internal/canonical"
)

// Service is implemented by whatever owns the Submission Batcher; Server
// (below) adapts it onto the gRPC ServiceDesc and an HTTP/JSON fallback.
type Service interface {
	SubmitIdempotent(ctx context.Context, event canonical.Event) SubmitResponse
}

// BatcherService adapts an internal/batcher.Batcher into a Service,
// translating its sentinel errors into the RPC error-kind taxonomy
// (spec.md §6).
type BatcherService struct {
	Batcher *batcher.Batcher
}

// SubmitIdempotent blocks on the batcher's completion signal and maps its
// outcome onto SubmitResponse.
func (s *BatcherService) SubmitIdempotent(ctx context.Context, event canonical.Event) SubmitResponse {
	if err := event.Validate(); err != nil {
		return SubmitResponse{ErrorKind: KindInvalidArgument, ErrorMsg: err.Error()}
	}

	err := s.Batcher.Submit(ctx, event)
	switch {
	case err == nil:
		return SubmitResponse{DocumentID: event.ID}
	case errors.Is(err, batcher.ErrDeadlineExceeded):
		return SubmitResponse{ErrorKind: KindDeadlineExceeded, ErrorMsg: err.Error()}
	case errors.Is(err, batcher.ErrUnavailable):
		return SubmitResponse{ErrorKind: KindUnavailable, ErrorMsg: err.Error()}
	default:
		return SubmitResponse{ErrorKind: KindInternal, ErrorMsg: err.Error()}
	}
}

// serviceDesc is the hand-built gRPC service description (no protoc
// step available — see the package doc comment).
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "architus.gatewaylogs.v1.Submission",
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitIdempotent",
			Handler:    submitIdempotentHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "submission.proto",
}

func submitIdempotentHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(SubmitRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Service).SubmitIdempotent(ctx, req.Event), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/architus.gatewaylogs.v1.Submission/SubmitIdempotent"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Service).SubmitIdempotent(ctx, req.(*SubmitRequest).Event), nil
	}
	return interceptor(ctx, req, info, handler)
}

// RegisterServer registers svc on gRPC server s under the hand-built
// ServiceDesc.
func RegisterServer(s *grpc.Server, svc Service) {
	s.RegisterService(&serviceDesc, svc)
}

// HTTPHandler exposes SubmitIdempotent over plain HTTP/JSON for local
// curl/testing, grounded on internal/api/server.go's handler style.
func HTTPHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(SubmitResponse{ErrorKind: KindInvalidArgument, ErrorMsg: err.Error()})
			return
		}

		resp := svc.SubmitIdempotent(r.Context(), req.Event)
		w.Header().Set("Content-Type", "application/json")
		if resp.ErrorKind != KindNone {
			w.WriteHeader(statusFor(resp.ErrorKind))
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func statusFor(kind ErrorKind) int {
	switch kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
