package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mihkeltiks/mpi-hello/logger"
)

// writeWait bounds how long one client may hold up a broadcast.
const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts job events to every connected websocket client.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	connected chan struct{}
	once      sync.Once
	writeWait time.Duration
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]struct{}),
		connected: make(chan struct{}),
		writeWait: writeWait,
	}
}

// Publish sends the message to every client. Clients that do not accept it
// within the write deadline are dropped.
func (h *Hub) Publish(messageType MessageType, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	message := Message{Type: messageType, Value: value}

	for c := range h.clients {
		err := c.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err == nil {
			err = c.WriteJSON(message)
		}
		if err != nil {
			logger.Warn("Error sending ws message: %v", err)
			c.Close()
			delete(h.clients, c)
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.once.Do(func() { close(h.connected) })

	logger.Verbose("client connected to websocket")

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.Close()
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Verbose("Client disconnected from websocket")
			} else {
				logger.Debug("ws read error: %v", err)
			}
			return
		}

		logger.Debug("unknown ws message: %s", message)
	}
}

// WaitForClientConnection blocks until the first client connects.
func (h *Hub) WaitForClientConnection(ctx context.Context) error {
	select {
	case <-h.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// InitServer serves the hub on address until ctx is done.
func InitServer(ctx context.Context, address string, hub *Hub) (string, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return "", err
	}

	server := &http.Server{Handler: hub}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("websocket server stopped: %v", err)
		}
	}()

	logger.Verbose("websocket event stream on ws://%v", listener.Addr())

	return listener.Addr().String(), nil
}
