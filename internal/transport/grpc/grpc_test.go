package grpcx_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	grpcx "github.com/cwrk-planet/presence-service/internal/transport/grpc"
	"github.com/cwrk-planet/presence-service/pkg/httputil"
)

func TestUnaryInterceptor_RecoversAndAddsDeadline(t *testing.T) {
	ic := grpcx.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Method"}

	_, err := ic(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))

	resp, err := ic(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestUnaryInterceptor_RequestID(t *testing.T) {
	ic := grpcx.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Method"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "req-42"))
	_, err := ic(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		id, ok := httputil.FromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, "req-42", id)
		return nil, nil
	})
	require.NoError(t, err)

	_, err = ic(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		id, ok := httputil.FromContext(ctx)
		assert.True(t, ok)
		assert.NotEmpty(t, id)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestStreamInterceptor_Recovers(t *testing.T) {
	ic := grpcx.StreamServerInterceptor()
	err := ic(nil, nil, &grpc.StreamServerInfo{FullMethod: "/test/Stream"}, func(any, grpc.ServerStream) error {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestHealth(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpcx.NewServer()

	var failing bool
	h := grpcx.RegisterHealth(srv, map[string]grpcx.Check{
		"store": func(context.Context) error {
			if failing {
				return errors.New("down")
			}
			return nil
		},
	})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: grpcx.ServiceName})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	var header metadata.MD
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "health-req-1")
	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"health-req-1"}, header.Get("x-request-id"))

	assert.True(t, h.CheckOnce(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	failing = true
	assert.False(t, h.CheckOnce(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}
