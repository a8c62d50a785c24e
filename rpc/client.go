package rpc

import (
	"errors"
	"fmt"
	"net/rpc"
	"sync"

	"github.com/mihkeltiks/mpi-hello/logger"
)

var ErrNotConnected = errors.New("not connected to rpc server")

type RPCClient struct {
	mu         sync.Mutex
	connection *rpc.Client
	address    string
}

func Connect(serverAddress string) (*RPCClient, error) {
	logger.Debug("connecting to rpc server at %v", serverAddress)

	connection, err := rpc.DialHTTP("tcp", serverAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rpc server at %v: %w", serverAddress, err)
	}

	return &RPCClient{
		connection: connection,
		address:    serverAddress,
	}, nil
}

func (r *RPCClient) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connection == nil {
		logger.Debug("Already disconnected from rpc server at %v", r.address)
		return nil
	}

	err := r.connection.Close()
	r.connection = nil
	return err
}

func (r *RPCClient) Call(methodName string, args any, reply any) error {
	r.mu.Lock()
	connection := r.connection
	r.mu.Unlock()

	if connection == nil {
		return ErrNotConnected
	}

	return connection.Call(methodName, args, reply)
}

func (r *RPCClient) Heartbeat() error {
	if err := r.Call("Health.Heartbeat", new(int), new(int)); err != nil {
		return fmt.Errorf("heartbeat error: %w", err)
	}

	logger.Debug("Heartbeat ok (server %v)", r.address)
	return nil
}
