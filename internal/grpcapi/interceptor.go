package grpcapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hts/authsvc"
)

const requestIDHeader = "x-request-id"

// UnaryServerInterceptor tags each call with a request id, taken from the
// x-request-id metadata when present, echoes it in the response header and
// logs one line per call with the transport status and result code.
func UnaryServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "grpc", "layer", "adapter")

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := incomingRequestID(ctx)
		ctx = authsvc.WithRequestID(ctx, requestID)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []any{
			"operation", "grpc_request",
			"method", info.FullMethod,
			"status_code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
		}
		if out, ok := resp.(*structpb.Struct); ok {
			if code := out.GetFields()["code"].GetStringValue(); code != "" {
				fields = append(fields, "result_code", code)
			}
		}

		switch {
		case err != nil:
			logger.WarnContext(ctx, "grpc request rejected", append(fields, "outcome", "failure", "error", err.Error())...)
		default:
			logger.InfoContext(ctx, "grpc request completed", append(fields, "outcome", "success")...)
		}
		return resp, err
	}
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(requestIDHeader); len(vals) > 0 && vals[0] != "" {
			return vals[0]
		}
	}
	return uuid.NewString()
}
