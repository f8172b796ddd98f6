package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nadzzz/voiceloop/internal/session"
)

type stubPipeline struct{ store *session.Store }

func (s stubPipeline) StartRecording(context.Context) (string, error) { return "", nil }
func (s stubPipeline) StopRecording() error                           { return nil }
func (s stubPipeline) PlayReply(context.Context) error                { return nil }
func (s stubPipeline) CopyTranscript() (string, error)                { return "", nil }
func (s stubPipeline) Snapshot() session.Snapshot                     { return s.store.Snapshot() }
func (s stubPipeline) Subscribe() (<-chan session.Snapshot, func())   { return s.store.Subscribe() }

func TestHealthServing(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	tr := New(0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Serve(ctx, lis, stubPipeline{store: session.NewStore()}) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()

	for _, svc := range []string{"", ServiceName} {
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: svc})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status, "service %q", svc)
	}

	_, err = client.Check(callCtx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Error(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
