package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/cwrk-planet/presence-service/pkg/httputil"
	"github.com/cwrk-planet/presence-service/pkg/logger"
)

const (
	defaultUnaryDeadline = 10 * time.Second

	// same header the HTTP side reads, lowercased as gRPC metadata keys are
	metadataRequestID = "x-request-id"
)

// UnaryServerInterceptor tags the call with a request id, bounds calls that arrive without a
// deadline, turns panics into codes.Internal and logs one line per call.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		ctx = withRequestID(ctx)
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultUnaryDeadline)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				callLogger(ctx, info.FullMethod).Error("grpc unary panic",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal server error")
			}
			logCall(ctx, "grpc unary", info.FullMethod, start, err)
		}()

		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart; health Watch streams go through it.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()
		ctx := context.Background()
		if ss != nil {
			ctx = withRequestID(ss.Context())
		}

		defer func() {
			if r := recover(); r != nil {
				callLogger(ctx, info.FullMethod).Error("grpc stream panic",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal server error")
			}
			logCall(ctx, "grpc stream", info.FullMethod, start, err)
		}()

		return handler(srv, ss)
	}
}

// withRequestID reuses the caller's x-request-id or mints one, and echoes it in the response header.
func withRequestID(ctx context.Context) context.Context {
	var id string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(metadataRequestID); len(vals) > 0 {
			id = strings.TrimSpace(vals[0])
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	// fails outside a real call, e.g. when the interceptor is invoked directly
	_ = grpc.SetHeader(ctx, metadata.Pairs(metadataRequestID, id))

	return httputil.WithRequestID(ctx, id)
}

func callLogger(ctx context.Context, method string) *slog.Logger {
	l := logger.FromCtx(ctx).With(slog.String("method", method))
	if id, ok := httputil.FromContext(ctx); ok {
		l = l.With(slog.String("request_id", id))
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		l = l.With(slog.String("peer", p.Addr.String()))
	}

	return l
}

func logCall(ctx context.Context, msg, method string, start time.Time, err error) {
	code := status.Code(err)
	level := slog.LevelDebug
	if code != codes.OK && code != codes.Canceled {
		level = slog.LevelWarn
	}
	callLogger(ctx, method).Log(ctx, level, msg,
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		slog.String("code", code.String()))
}
