package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/instance"
	"github.com/matheus3301/wppbridge/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func shortTempDir(t *testing.T) string {
	t.Helper()
	// Use a short path to avoid the 104-char Unix socket limit on macOS.
	dir, err := os.MkdirTemp("/tmp", "wpp-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TestModuleGraphIsComplete(t *testing.T) {
	p := Params{
		InstanceID: "main",
		Layout:     instance.Layout{Base: shortTempDir(t)},
		Config:     config.Default(),
	}
	if err := fx.ValidateApp(Module(p)); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

func TestHealthFollowsState(t *testing.T) {
	dir := shortTempDir(t)
	socketPath := filepath.Join(dir, "d.sock")

	b := bus.New()
	machine := status.NewMachine(b)
	srv, err := NewServer(Params{InstanceID: "main", SocketPath: socketPath}, machine, b, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket mode = %o, want 0600", perm)
	}

	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		return resp.Status
	}
	waitFor := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if check() == want {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("health never reached %v", want)
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("booting health = %v, want NOT_SERVING", got)
	}

	if err := machine.Walk(status.Connecting, status.Syncing, status.Ready); err != nil {
		t.Fatal(err)
	}
	waitFor(healthpb.HealthCheckResponse_SERVING)

	if err := machine.Transition(status.Reconnecting); err != nil {
		t.Fatal(err)
	}
	waitFor(healthpb.HealthCheckResponse_NOT_SERVING)
}

func TestStopRemovesSocket(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t), "d.sock")
	b := bus.New()
	srv, err := NewServer(Params{SocketPath: socketPath}, status.NewMachine(b), b, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	srv.Stop(context.Background())

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket still present after Stop: %v", err)
	}
}

func TestStaleSocketIsReplaced(t *testing.T) {
	socketPath := filepath.Join(shortTempDir(t), "d.sock")
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	srv, err := NewServer(Params{SocketPath: socketPath}, status.NewMachine(b), b, zap.NewNop())
	if err != nil {
		t.Fatalf("NewServer() with stale socket error = %v", err)
	}
	srv.Stop(context.Background())
}
