// Package gateway streams bot events to websocket clients.
//
// The Hub is a notification sink: every alert handed to Send is wrapped in
// an envelope and fanned out to connected clients. Late joiners receive the
// recent envelopes from a replay buffer so a dashboard opened mid-session
// still shows the last trades and failures.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"binance-signalbot/internal/notification"
)

const (
	ChannelAlert    = "alert"
	ChannelActivity = "activity"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub manages websocket clients and fans envelopes out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	replay  *ReplayBuffer
	log     zerolog.Logger
	now     func() time.Time
}

// NewHub creates a hub keeping the last replaySize envelopes for new clients.
func NewHub(replaySize int, log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
		log:     log.With().Str("component", "ws").Logger(),
		now:     time.Now,
	}
}

// Send implements notification.Notifier.
func (h *Hub) Send(ctx context.Context, alert notification.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	h.Broadcast(ChannelAlert, data)
	return nil
}

// Broadcast wraps data in an envelope and queues it to every client.
// Slow clients whose send buffer is full miss the envelope.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	// Hand-built envelope: {"channel":"...","data":...,"ts":"...","seq":N}
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')

	h.replay.Push(seq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
		}
	}
}

// ServeHTTP upgrades the request and registers the client. The optional
// last_seq query parameter limits the replay to envelopes after that seq.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	var after int64
	if v := r.URL.Query().Get("last_seq"); v != "" {
		after, _ = strconv.ParseInt(v, 10, 64)
	}
	h.register(conn, after)
}

func (h *Hub) register(conn *websocket.Conn, after int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	// replay is queued under the lock so no live envelope can overtake it
	h.mu.Lock()
	for _, env := range h.replay.Since(after) {
		select {
		case client.send <- env:
		default:
		}
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", count).Msg("ws client connected")

	go client.writePump()
	go client.readPump()
}

// RemoveClient unregisters a client and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()
	for c := range clients {
		close(c.send)
	}
}
