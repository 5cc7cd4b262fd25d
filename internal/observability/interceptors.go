package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"voice-translation-viewer/internal/observability/metrics"
)

// UnaryServerInterceptor logs health Check and reflection calls at debug
// level, failures at warn.
func UnaryServerInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		ev := logger.Debug()
		if code != codes.OK {
			ev = logger.Warn()
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC unary call")

		return resp, err
	}
}

// StreamServerInterceptor tracks open streams, which are health Watch calls
// from orchestrators. A stream ended by its client counts as a success.
func StreamServerInterceptor(m *metrics.Metrics, logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		m.RecordGRPCStreamStart()

		err := handler(srv, ss)

		code := status.Code(err)
		success := code == codes.OK || code == codes.Canceled || ss.Context().Err() != nil
		m.RecordGRPCStreamEnd(success)

		logger.Info().
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Bool("success", success).
			Msg("gRPC stream closed")

		return err
	}
}
