package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/registry"
	"github.com/zot/ui-data/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

const writeWait = 10 * time.Second

// eventConn is one websocket client following one store.
type eventConn struct {
	id      string
	store   string
	conn    *websocket.Conn
	batcher *OutgoingBatcher
	writeMu sync.Mutex
}

// Send writes a single frame.
func (c *eventConn) Send(f Frame) error {
	return c.write(f)
}

// SendBatch writes several frames as one JSON array.
func (c *eventConn) SendBatch(frames []Frame) error {
	return c.write(frames)
}

func (c *eventConn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// WebSocketEndpoint relays store and registry events to websocket clients.
type WebSocketEndpoint struct {
	config      *config.Config
	registry    *store.Registry
	connections map[string]*eventConn // connectionID -> conn
	mu          sync.RWMutex
}

// NewWebSocketEndpoint creates a new WebSocket endpoint.
func NewWebSocketEndpoint(cfg *config.Config, reg *store.Registry) *WebSocketEndpoint {
	return &WebSocketEndpoint{
		config:      cfg,
		registry:    reg,
		connections: make(map[string]*eventConn),
	}
}

// Log logs a message via the config.
func (ws *WebSocketEndpoint) Log(level int, format string, args ...any) {
	ws.config.Log(level, format, args...)
}

// awaitStore waits for storeID to be registered, bounded by the configured
// wait timeout and the request context.
func awaitStore(ctx context.Context, cfg *config.Config, reg *store.Registry, storeID string) (store.Store, error) {
	if timeout := cfg.WaitTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return reg.Wait(ctx, storeID, true)
}

// HandleWebSocket upgrades a request for /events?store=ID once the store is
// registered and streams its events until the client goes away.
func (ws *WebSocketEndpoint) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store")
	if storeID == "" {
		writeError(w, "missing store parameter", http.StatusBadRequest)
		return
	}
	if _, err := awaitStore(r.Context(), ws.config, ws.registry, storeID); err != nil {
		status := http.StatusGatewayTimeout
		if !errors.Is(err, registry.ErrCancelled) {
			status = http.StatusInternalServerError
		}
		writeError(w, err.Error(), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.Log(0, "WebSocket upgrade failed: %v", err)
		return
	}

	ec := &eventConn{
		id:    ulid.Make().String(),
		store: storeID,
		conn:  conn,
	}
	ec.batcher = NewOutgoingBatcher(ws.config, ec)

	ws.mu.Lock()
	ws.connections[ec.id] = ec
	ws.mu.Unlock()
	ws.Log(1, "WebSocket connected: store=%s conn=%s", storeID, ec.id)

	unsubscribe := subscribe(ws.registry, storeID, ec.batcher.Queue)
	// the first frame reports whether the store is registered now
	state := registry.EventUnregister
	if _, ok := ws.registry.Find(storeID); ok {
		state = registry.EventRegister
	}
	ec.batcher.Queue(registryFrame(state, storeID))
	ws.readPump(ec)

	unsubscribe()
	ec.batcher.Clear()
	ws.mu.Lock()
	delete(ws.connections, ec.id)
	ws.mu.Unlock()
	conn.Close()
	ws.Log(1, "WebSocket disconnected: store=%s conn=%s", storeID, ec.id)
}

// readPump discards client messages until the connection closes. Clients
// only listen; reading keeps control frames flowing.
func (ws *WebSocketEndpoint) readPump(ec *eventConn) {
	for {
		if _, _, err := ec.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.Log(2, "WebSocket read error: conn=%s: %v", ec.id, err)
			}
			return
		}
	}
}

// ConnectionCount returns the number of open connections.
func (ws *WebSocketEndpoint) ConnectionCount() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.connections)
}

// CloseAll closes every connection.
func (ws *WebSocketEndpoint) CloseAll() {
	ws.mu.RLock()
	conns := make([]*eventConn, 0, len(ws.connections))
	for _, c := range ws.connections {
		conns = append(conns, c)
	}
	ws.mu.RUnlock()
	for _, c := range conns {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}
