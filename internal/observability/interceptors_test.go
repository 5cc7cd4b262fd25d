package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"voice-translation-viewer/internal/observability/metrics"
)

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s fakeStream) Context() context.Context { return s.ctx }

func TestUnaryServerInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	intercept := UnaryServerInterceptor(logger)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := intercept(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Errorf("expected passthrough, got %v (err=%v)", resp, err)
	}

	_, err = intercept(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})
	if status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"level":"debug"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected one debug and one warn line, got %s", out)
	}
}

func TestStreamServerInterceptor(t *testing.T) {
	m := metrics.DefaultMetrics
	intercept := StreamServerInterceptor(m, zerolog.Nop())
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		handler error
	}{
		{"clean end", context.Background(), nil},
		{"client went away", cancelled, status.Error(codes.Unavailable, "gone")},
		{"failure", context.Background(), errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := intercept(nil, fakeStream{ctx: tt.ctx}, info, func(srv any, ss grpc.ServerStream) error {
				return tt.handler
			})
			if !errors.Is(err, tt.handler) && err != tt.handler {
				t.Errorf("expected handler error %v, got %v", tt.handler, err)
			}
		})
	}
}
