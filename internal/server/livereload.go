package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Live-reload clients are simple: no initial state to send, no
// incremental diffs, just an occasional "this bundle changed, reload
// it" notification. The keepalive constants and pump shape mirror the
// teacher's session websocket handling; the payload is reduced to a
// bare bundle name.
const (
	liveReloadWriteWait      = 10 * time.Second
	liveReloadPongWait       = 60 * time.Second
	liveReloadPingPeriod     = (liveReloadPongWait * 9) / 10
	liveReloadBroadcastDepth = 256
)

var liveReloadUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// liveReloadMessage is broadcast to every connected client whenever a
// bundle's active version changes.
type liveReloadMessage struct {
	Bundle string `json:"bundle"`
}

// liveReloadHub tracks connected browser clients and broadcasts bundle
// change notifications to all of them. It has no per-client state
// beyond the connection and its write mutex, since there is nothing to
// replay to a newly-connected client.
type liveReloadHub struct {
	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex

	broadcast chan liveReloadMessage

	ctx    chan struct{}
	closed bool
	mu     sync.Mutex
	wg     sync.WaitGroup // run() only

	// clientWg tracks the read/write pump goroutines, one pair per
	// connection. Waited on only after connections are force-closed
	// below, since the read pump blocks on conn.ReadMessage() until
	// the connection actually goes away.
	clientWg sync.WaitGroup
}

func newLiveReloadHub() *liveReloadHub {
	h := &liveReloadHub{
		clients:   make(map[*websocket.Conn]*sync.Mutex),
		broadcast: make(chan liveReloadMessage, liveReloadBroadcastDepth),
		ctx:       make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

// Broadcast notifies every connected client that name has a new
// version available. Non-blocking: a full broadcast channel drops the
// notification rather than stalling the caller (the watcher's
// debounce timer).
func (h *liveReloadHub) Broadcast(name string) {
	select {
	case h.broadcast <- liveReloadMessage{Bundle: name}:
	default:
	}
}

func (h *liveReloadHub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx:
			return
		case msg := <-h.broadcast:
			h.sendToAll(msg)
		}
	}
}

func (h *liveReloadHub) sendToAll(msg liveReloadMessage) {
	h.clientsMu.RLock()
	snapshot := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, mu := range h.clients {
		snapshot[conn] = mu
	}
	h.clientsMu.RUnlock()

	var failed []*websocket.Conn
	for conn, mu := range snapshot {
		mu.Lock()
		conn.SetWriteDeadline(time.Now().Add(liveReloadWriteWait))
		err := conn.WriteJSON(msg)
		mu.Unlock()
		if err != nil {
			failed = append(failed, conn)
		}
	}

	if len(failed) > 0 {
		h.clientsMu.Lock()
		for _, conn := range failed {
			delete(h.clients, conn)
		}
		h.clientsMu.Unlock()
	}
}

func (h *liveReloadHub) register(conn *websocket.Conn) *sync.Mutex {
	mu := &sync.Mutex{}
	h.clientsMu.Lock()
	h.clients[conn] = mu
	h.clientsMu.Unlock()
	return mu
}

func (h *liveReloadHub) remove(conn *websocket.Conn) {
	h.clientsMu.Lock()
	_, existed := h.clients[conn]
	delete(h.clients, conn)
	h.clientsMu.Unlock()
	if existed {
		conn.Close()
	}
}

// Close stops the broadcast loop, sends close frames to every client,
// then force-closes connections and waits for their pump goroutines
// to exit. The close-then-wait ordering matters: a read pump blocks on
// conn.ReadMessage() until the connection is actually closed, so
// waiting on clientWg before closing connections would deadlock.
func (h *liveReloadHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.ctx)
	h.mu.Unlock()
	h.wg.Wait()

	h.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clientsMu.RUnlock()

	closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
	}

	h.clientsMu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.clientsMu.Unlock()

	h.clientWg.Wait()
}

// handleLiveReload upgrades the request to a WebSocket and keeps it
// open until the client disconnects or the server shuts down.
func (s *Server) handleLiveReload(w http.ResponseWriter, r *http.Request) {
	conn, err := liveReloadUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("live-reload upgrade failed", "err", err)
		return
	}

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(liveReloadPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(liveReloadPongWait))
		return nil
	})

	mu := s.hub.register(conn)

	done := make(chan struct{})
	s.hub.clientWg.Add(2)
	go s.liveReloadReadPump(conn, done)
	go s.liveReloadWritePump(conn, mu, done)
}

func (s *Server) liveReloadReadPump(conn *websocket.Conn, done chan struct{}) {
	defer s.hub.clientWg.Done()
	defer s.hub.remove(conn)
	defer close(done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("live-reload client disconnected unexpectedly", "err", err)
			}
			return
		}
	}
}

func (s *Server) liveReloadWritePump(conn *websocket.Conn, mu *sync.Mutex, done chan struct{}) {
	defer s.hub.clientWg.Done()

	ticker := time.NewTicker(liveReloadPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(liveReloadWriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			mu.Unlock()
			if err != nil {
				s.hub.remove(conn)
				return
			}
		}
	}
}
