package api

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"

	"github.com/jarvisvpn/jvpnd/internal/keygen"
	"github.com/jarvisvpn/jvpnd/internal/registry"
	"github.com/jarvisvpn/jvpnd/internal/xraymgr"
)

// Server wraps the admin gRPC server.
type Server struct {
	addr string
	gs   *grpc.Server
}

func NewServer(addr string, reg *registry.Registry, mgr *xraymgr.Manager, tokens *keygen.TokenSigner, domain string) *Server {
	gs := grpc.NewServer()
	s := &Server{
		addr: addr,
		gs:   gs,
	}
	RegisterVPNAdminServer(gs, &handler{
		reg:    reg,
		mgr:    mgr,
		tokens: tokens,
		domain: domain,
	})
	return s
}

// Run starts the gRPC server (blocking).
func (s *Server) Run() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	slog.Info("admin API listening", "addr", s.addr)
	return s.gs.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.gs.GracefulStop()
}
