package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"oddsflow/logger"
	"oddsflow/models"
)

const (
	hubBroadcastBuffer = 16
	clientSendBuffer   = 8
	pongWait           = 60 * time.Second
	pingPeriod         = 30 * time.Second
	writeWait          = 10 * time.Second
)

// hubMessage is the frame pushed to websocket clients after every snapshot.
type hubMessage struct {
	Type     string          `json:"type"`
	Snapshot models.Snapshot `json:"snapshot"`
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes every snapshot to connected websocket clients. It is registered
// with the consumer as the "websocket" sink. Slow clients are disconnected
// rather than allowed to hold back the broadcast.
type Hub struct {
	clients    map[*hubClient]struct{}
	broadcast  chan []byte
	register   chan *hubClient
	unregister chan *hubClient
	done       chan struct{}
	mu         sync.RWMutex
	running    atomic.Bool
	dropped    atomic.Int64
	log        *logger.Log
}

func NewHub(log *logger.Log) *Hub {
	return &Hub{
		clients:    make(map[*hubClient]struct{}),
		broadcast:  make(chan []byte, hubBroadcastBuffer),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) Name() string { return "websocket" }

// Export queues the snapshot for broadcast. A full queue drops the snapshot;
// the next tick carries the complete state anyway.
func (h *Hub) Export(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(hubMessage{Type: "snapshot", Snapshot: snap})
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		h.dropped.Add(1)
		return fmt.Errorf("websocket broadcast queue full, snapshot %s dropped", snap.ID)
	}
}

// Clients reports the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped reports how many snapshots were discarded because the queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Run is the hub event loop. It returns when ctx is cancelled, closing every
// client connection.
func (h *Hub) Run(ctx context.Context) {
	if h.running.Swap(true) {
		return
	}
	defer close(h.done)

	log := h.log.WithComponent("ws_hub")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			log.WithFields(logger.Fields{"clients": total}).Info("websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
					log.Warn("disconnecting slow websocket client")
				}
			}
			h.mu.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS upgrades the request and attaches the connection to the hub.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithComponent("ws_hub").WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &hubClient{conn: conn, send: make(chan []byte, clientSendBuffer)}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) readPump(c *hubClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
