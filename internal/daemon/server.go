package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthService is the service name reported alongside the overall ("")
// status. Both follow the instance state: SERVING only while READY.
const HealthService = "wppbridge.Instance"

// Server exposes gRPC health and reflection on the instance's Unix socket.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	machine    *status.Machine
	bus        *bus.Bus
	logger     *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer binds the instance's Unix domain socket.
func NewServer(p Params, machine *status.Machine, b *bus.Bus, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = p.Layout.SocketPath(p.InstanceID)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		machine:    machine,
		bus:        b,
		logger:     logger.With(zap.String("component", "grpc")),
		done:       make(chan struct{}),
	}
	s.setServing(machine.Current())

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.follow(ctx)
	return s, nil
}

// follow keeps the health status in line with the instance state.
func (s *Server) follow(ctx context.Context) {
	defer close(s.done)
	ch, unsub := s.bus.Subscribe(bus.KindStatusChanged, 16)
	defer unsub()
	// A change between NewServer and Subscribe would otherwise be missed.
	s.setServing(s.machine.Current())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			// The bus is lossy, so read the machine rather than the payload.
			s.setServing(s.machine.Current())
		}
	}
}

// Start serves gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("gRPC server stopping")
	s.cancel()
	<-s.done
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}

func (s *Server) setServing(st status.State) {
	v := healthpb.HealthCheckResponse_NOT_SERVING
	if st == status.Ready {
		v = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", v)
	s.health.SetServingStatus(HealthService, v)
}
