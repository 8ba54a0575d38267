package stream

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from arbitrary homelab hostnames
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var (
	errSendBufferFull = errors.New("client send buffer full")
	errClientClosed   = errors.New("client closed")
)

// Endpoint upgrades HTTP requests into streaming clients for one registry.
type Endpoint struct {
	registry     *Registry
	sendBuffer   int
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewEndpoint creates a websocket endpoint bound to a broadcast registry
func NewEndpoint(registry *Registry, sendBuffer int, writeTimeout time.Duration, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		registry:     registry,
		sendBuffer:   sendBuffer,
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "ws", "topic", registry.Topic()),
	}
}

// ServeHTTP handles a websocket upgrade and registers the client
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Error("failed to upgrade websocket", "error", err)
		return
	}

	client := &wsClient{
		id:           uuid.New().String(),
		conn:         conn,
		send:         make(chan []byte, e.sendBuffer),
		writeTimeout: e.writeTimeout,
	}

	e.registry.Register(client)

	go client.writePump(e.registry)
	go client.readPump(e.registry)
}

// wsClient is the websocket transport behind one Client handle. The send
// channel caps per-client buffering; Send fails instead of blocking when the
// buffer is full, and the registry then disconnects the client. The mutex
// serializes Send against Close so a broadcast racing a disconnect gets an
// error back instead of a send on a closed channel.
type wsClient struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (c *wsClient) ID() string {
	return c.id
}

func (c *wsClient) Send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientClosed
	}

	select {
	case c.send <- message:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *wsClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send channel onto the connection. A write error or
// timeout unregisters the client so the next broadcast skips it.
func (c *wsClient) writePump(registry *Registry) {
	defer c.conn.Close()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			registry.Unregister(c.id)
			return
		}
	}

	// Registry closed the channel; tell the peer we are done.
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump consumes inbound frames so close frames are processed. Viewers
// never send application data.
func (c *wsClient) readPump(registry *Registry) {
	defer registry.Unregister(c.id)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
