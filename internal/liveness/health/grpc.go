package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer exposes the standard gRPC health checking protocol so
// orchestrators can probe the collector with grpc-health-probe.
type GRPCServer struct {
	server *grpc.Server
	hs     *grpchealth.Server
	mon    *Monitor
	port   int
	stop   chan struct{}
}

// NewGRPCServer creates a gRPC health server fed by the monitor.
func NewGRPCServer(mon *Monitor, port int) *GRPCServer {
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCServer{
		server: srv,
		hs:     hs,
		mon:    mon,
		port:   port,
		stop:   make(chan struct{}),
	}
}

// Start listens and serves, refreshing the serving status from the
// monitor every 15 seconds. Blocks until Stop.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	go g.refreshLoop()

	return g.server.Serve(lis)
}

// Stop gracefully stops the server.
func (g *GRPCServer) Stop() {
	close(g.stop)
	g.server.GracefulStop()
}

func (g *GRPCServer) refreshLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	g.refresh()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.refresh()
		}
	}
}

func (g *GRPCServer) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if g.mon.CheckHealth(ctx).Status == StatusCritical {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.hs.SetServingStatus("", status)
}
