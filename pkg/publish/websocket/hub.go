// Package websocket streams scanner messages to browser clients.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/barscan/pkg/framework"
	"github.com/robotalks/barscan/pkg/msgs"
)

// DefaultBacklog is the number of messages queued per client.
const DefaultBacklog = 16

// Hub broadcasts messages to all connected clients. A client which
// can't keep up loses messages instead of slowing down the others.
type Hub struct {
	Format       msgs.Format
	Backlog      int
	WriteTimeout time.Duration

	lock    sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub sending JSON text frames.
func NewHub() *Hub {
	return &Hub{
		Format:       msgs.FormatJSON,
		Backlog:      DefaultBacklog,
		WriteTimeout: 5 * time.Second,
		clients:      make(map[*client]struct{}),
	}
}

// Handler returns the http.Handler accepting client connections.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serve)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// Broadcast encodes m once and queues it for every client.
func (h *Hub) Broadcast(m proto.Message) error {
	payload, err := h.Format.Marshal(m)
	if err != nil {
		return err
	}
	h.lock.RLock()
	defer h.lock.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			glog.Warningf("websocket %s: backlog full, message dropped", c.conn.Request().RemoteAddr)
		}
	}
	return nil
}

// HandleMessage implements framework.MessageHandler.
func (h *Hub) HandleMessage(ctx context.Context, msg fx.Message) {
	m, ok := msg.(proto.Message)
	if !ok {
		return
	}
	if err := h.Broadcast(m); err != nil {
		glog.Errorf("websocket broadcast %T: %v", msg, err)
	}
}

// Close disconnects all clients.
func (h *Hub) Close() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.closed = true
	for c := range h.clients {
		c.conn.Close()
	}
	return nil
}

func (h *Hub) add(c *client) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.lock.Lock()
	delete(h.clients, c)
	h.lock.Unlock()
	close(c.send)
}

func (h *Hub) serve(conn *websocket.Conn) {
	backlog := h.Backlog
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	c := &client{conn: conn, send: make(chan []byte, backlog)}
	if !h.add(c) {
		conn.Close()
		return
	}
	addr := conn.Request().RemoteAddr
	glog.V(2).Infof("websocket %s connected", addr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.write(c)
	}()
	// clients aren't expected to send, reading detects disconnection.
	var discard []byte
	for websocket.Message.Receive(conn, &discard) == nil {
	}
	h.remove(c)
	conn.Close()
	<-done
	glog.V(2).Infof("websocket %s disconnected", addr)
}

func (h *Hub) write(c *client) {
	for payload := range c.send {
		if h.WriteTimeout > 0 {
			c.conn.SetWriteDeadline(time.Now().Add(h.WriteTimeout))
		}
		var err error
		if h.Format == msgs.FormatJSON {
			err = websocket.Message.Send(c.conn, string(payload))
		} else {
			err = websocket.Message.Send(c.conn, payload)
		}
		if err != nil {
			glog.V(2).Infof("websocket send: %v", err)
			c.conn.Close()
			return
		}
	}
}
