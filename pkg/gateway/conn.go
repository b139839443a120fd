package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harun/oracle/internal/observability"
)

// Conn is one client websocket. Writes are serialized; reads belong to the
// connection's reader goroutine.
type Conn struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	ws           *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
}

func newConn(id string, ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		ID:           id,
		RemoteAddr:   ws.RemoteAddr().String(),
		ConnectedAt:  time.Now(),
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

// Send writes one event frame.
func (c *Conn) Send(evt Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.ws.WriteJSON(evt); err != nil {
		return err
	}
	observability.RecordFrameSent(evt.Type)
	return nil
}

// Close sends a close frame when possible and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// ConnRegistry tracks live connections
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewConnRegistry creates an empty registry
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[string]*Conn)}
}

func (r *ConnRegistry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

func (r *ConnRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// GetAll returns a snapshot of the live connections
func (r *ConnRegistry) GetAll() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *ConnRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
