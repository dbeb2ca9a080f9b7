package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/op/go-logging.v1"
)

const (
	sendQueue  = 64
	writeWait  = 10 * time.Second
	maxMessage = 1 << 20
)

// Hub fans frames out to every subscriber of a topic.
type Hub struct {
	// Token, when set, must match the token query parameter.
	Token string

	upgrader websocket.Upgrader
	log      *logging.Logger

	mu     sync.Mutex
	topics map[string]map[*client]struct{}
}

type client struct {
	topic  string
	connID string
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *client) stop() { c.once.Do(func() { close(c.done) }) }

// NewHub returns an empty hub.
func NewHub(token string, log *logging.Logger) *Hub {
	return &Hub{
		Token: token,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:    log,
		topics: make(map[string]map[*client]struct{}),
	}
}

// Subscribers returns the number of live subscribers of topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Total returns the number of live subscribers across topics.
func (h *Hub) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, subs := range h.topics {
		n += len(subs)
	}
	return n
}

// ServeHTTP upgrades the request and serves the subscriber until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topic := q.Get("topic")
	if topic == "" {
		http.Error(w, "topic required", http.StatusBadRequest)
		return
	}
	if h.Token != "" && q.Get("token") != h.Token {
		http.Error(w, "bad token", http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		topic:  topic,
		connID: q.Get("conn_id"),
		send:   make(chan []byte, sendQueue),
		done:   make(chan struct{}),
	}
	h.join(c)
	if h.log != nil {
		h.log.Infof("join %s conn=%s", topic, c.connID)
	}
	go h.writer(ws, c)
	h.reader(ws, c)

	h.leave(c)
	c.stop()
	_ = ws.Close()
	if h.log != nil {
		h.log.Infof("leave %s conn=%s", topic, c.connID)
	}
}

func (h *Hub) join(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[c.topic]
	if subs == nil {
		subs = make(map[*client]struct{})
		h.topics[c.topic] = subs
	}
	subs[c] = struct{}{}
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics[c.topic], c)
	if len(h.topics[c.topic]) == 0 {
		delete(h.topics, c.topic)
	}
}

func (h *Hub) reader(ws *websocket.Conn, c *client) {
	ws.SetReadLimit(maxMessage)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var msg map[string]any
		if err := dec.Decode(&msg); err != nil {
			continue
		}
		if msg["type"] == "ping" {
			pong, _ := json.Marshal(map[string]any{"type": "pong", "ts": time.Now().UnixMilli()})
			h.deliver(c, pong)
			continue
		}
		h.Publish(c.topic, stamp(msg, c.connID))
	}
}

// stamp records the sending connection unless the sender already did.
func stamp(msg map[string]any, connID string) []byte {
	if connID != "" {
		meta, _ := msg["meta"].(map[string]any)
		if meta == nil {
			meta = map[string]any{}
			msg["meta"] = meta
		}
		if _, ok := meta["origin_conn_id"]; !ok {
			meta["origin_conn_id"] = connID
		}
	}
	b, _ := json.Marshal(msg)
	return b
}

// Publish sends data to every subscriber of topic. Slow subscribers drop
// frames rather than block the hub.
func (h *Hub) Publish(topic string, data []byte) {
	h.mu.Lock()
	subs := make([]*client, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		subs = append(subs, c)
	}
	h.mu.Unlock()
	for _, c := range subs {
		h.deliver(c, data)
	}
}

func (h *Hub) deliver(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		if h.log != nil {
			h.log.Warningf("drop frame for slow subscriber %s", c.connID)
		}
	}
}

func (h *Hub) writer(ws *websocket.Conn, c *client) {
	for {
		select {
		case <-c.done:
			_ = ws.Close()
			return
		case data := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}

// Kick closes every subscriber connection, as a server restart would.
func (h *Hub) Kick() {
	h.mu.Lock()
	var all []*client
	for _, subs := range h.topics {
		for c := range subs {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		c.stop()
	}
}
