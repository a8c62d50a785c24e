package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/rpc"

	"github.com/mihkeltiks/mpi-hello/logger"
)

type Registrator func(any) error

// Server serves net/rpc over HTTP on its own mux, so several servers can live
// in one process.
type Server struct {
	rpcServer  *rpc.Server
	listener   net.Listener
	httpServer *http.Server
}

func InitializeServer(address string, registerComponents func(Registrator) error) (*Server, error) {
	rpcServer := rpc.NewServer()

	// register components
	if err := registerComponents(rpcServer.Register); err != nil {
		return nil, fmt.Errorf("failed to register rpc components: %w", err)
	}

	// register heartbeat
	if err := rpcServer.Register(new(Health)); err != nil {
		return nil, fmt.Errorf("failed to register heartbeat: %w", err)
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("rpc server listen error: %w", err)
	}
	logger.Verbose("rpc server listening on address: %v", listener.Addr())

	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, rpcServer)

	return &Server{
		rpcServer:  rpcServer,
		listener:   listener,
		httpServer: &http.Server{Handler: mux},
	}, nil
}

// Addr is the address clients should dial, with the port resolved.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until Shutdown is called.
func (s *Server) Serve() error {
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections. Connections already hijacked by the
// rpc server stay open until their clients disconnect.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type Health int

func (h *Health) Heartbeat(args *int, reply *int) error {
	return nil
}
