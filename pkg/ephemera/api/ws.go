package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/logging"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// Hub is the administrative WebSocket surface: every connected client
// receives a notification for each block whose Committed hook runs
// (NotifyingCallback), just before the block is persisted, the same
// role the original's WsBackend plays for its signature-gossip frontend
// (node/src/broadcast_protocol/backend/websocket/ws_backend.rs), rebuilt
// here over gorilla/websocket since the retrieval pack carries no websocket
// library of its own to ground the choice in.
type Hub struct {
	upgrader websocket.Upgrader
	log      logging.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub(log logging.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     log.Named("ws"),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers it as a subscriber until
// it closes or errors.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "err", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go h.readUntilClosed(conn)
}

// readUntilClosed discards inbound frames (this surface is push-only) and
// deregisters the client once the connection breaks.
func (h *Hub) readUntilClosed(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type blockDeliveredNotification struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

// NotifyDelivered pushes a delivered-block notification to every connected
// client, best-effort: a slow or dead client is dropped rather than
// blocking the broadcast engine.
func (h *Hub) NotifyDelivered(blk types.Block) {
	data, err := json.Marshal(blockDeliveredNotification{
		Height: blk.Header.Height,
		Hash:   hex.EncodeToString(blk.Header.Hash[:]),
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(h.clients, conn)
			conn.Close()
		}
	}
}
