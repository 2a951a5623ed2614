package observability

import (
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RelayService is the name reported to health checks for the chat listener.
const RelayService = "chat.relay"

// HealthServer exposes the standard gRPC health protocol next to the chat listener.
type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server

	mu sync.Mutex
	ln net.Listener
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus(RelayService, healthpb.HealthCheckResponse_NOT_SERVING)
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, h)
	return &HealthServer{log: log, server: s, health: h}
}

// Listen binds host:port. Port 0 picks a free port, see Addr.
func (h *HealthServer) Listen(host string, port int) error {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("%w on %s: %v", errors.ErrBind, address, err)
	}
	h.mu.Lock()
	h.ln = ln
	h.mu.Unlock()
	return nil
}

func (h *HealthServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln == nil {
		return nil
	}
	return h.ln.Addr()
}

// Serve blocks until Stop. Listen must have been called first.
func (h *HealthServer) Serve() error {
	h.mu.Lock()
	ln := h.ln
	h.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("health server is not listening")
	}
	h.log.Info("Starting health server", "address", ln.Addr().String())
	if err := h.server.Serve(ln); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("health server error: %w", err)
	}
	return nil
}

// SetServing flips the status reported for RelayService and the overall server.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(RelayService, status)
	h.health.SetServingStatus("", status)
}

func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
