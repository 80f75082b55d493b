// Package control serves the loopback control channel the desktop UI shell
// connects to: a gorilla/websocket hub that accepts command requests and
// pushes the lifecycle and stats events the host's main loop broadcasts,
// without the UI needing to poll. This process is only the server side of
// the channel; it has no reconnecting client of its own.
package control

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kelocube/mirror-host/internal/logging"
)

var log = logging.L("control")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Request is one command invocation sent by a connected UI client.
type Request struct {
	ID      string          `json:"id"`
	Verb    string          `json:"verb"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers a Request by ID, carrying either a result or an error.
type Response struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Event is an unsolicited push notification broadcast to every connected
// client: a lifecycle transition, a stats tick, a FrameDone update, and so
// on, named by Type.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Dispatcher executes one named verb with a raw JSON payload and returns a
// result value or an error. internal/command implements this.
type Dispatcher interface {
	Dispatch(verb string, payload json.RawMessage) (any, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans out Events to every connected client and routes inbound
// Requests to a Dispatcher.
type Hub struct {
	dispatcher Dispatcher

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub returns a Hub that routes command requests to dispatcher.
func NewHub(dispatcher Dispatcher) *Hub {
	return &Hub{
		dispatcher: dispatcher,
		clients:    make(map[*client]struct{}),
	}
}

// Broadcast pushes ev to every currently connected client. Slow or gone
// clients are dropped rather than allowed to block the broadcaster.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error("marshal event", logging.KeyError, err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.sendChan <- data:
		default:
			log.Warn("dropping slow control client")
			h.removeLocked(c)
			c.conn.Close()
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and runs its
// read/write pumps until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("upgrade", logging.KeyError, err.Error())
		return
	}

	c := &client{
		hub:      h,
		conn:     conn,
		sendChan: make(chan []byte, 64),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	c.readPump()
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.done)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	sendChan chan []byte
	done     chan struct{}
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			log.Warn("malformed control request", logging.KeyError, err.Error())
			continue
		}
		go c.handle(req)
	}
}

func (c *client) handle(req Request) {
	result, err := c.hub.dispatcher.Dispatch(req.Verb, req.Payload)
	resp := Response{ID: req.ID}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Result = result
	}

	data, err := json.Marshal(resp)
	if err != nil {
		log.Error("marshal response", logging.KeyError, err.Error())
		return
	}

	select {
	case c.sendChan <- data:
	case <-c.done:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
