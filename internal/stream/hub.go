// Package stream pushes device status changes to websocket clients.
package stream

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/log"
	"github.com/doridoridoriand/pingalert/internal/state"
)

const (
	writeTimeout     = 5 * time.Second
	clientBufferSize = 64
)

// Event types.
const (
	TypeSnapshot = "snapshot"
	TypeStatus   = "status"
	TypeStopped  = "stopped"
)

// DeviceView is one device in a snapshot event.
type DeviceView struct {
	IP            string `json:"ip"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	SuccessStreak int    `json:"success_streak"`
}

// Event is the JSON payload sent to clients.
type Event struct {
	Type    string       `json:"type"`
	IP      string       `json:"ip,omitempty"`
	Name    string       `json:"name,omitempty"`
	From    string       `json:"from,omitempty"`
	To      string       `json:"to,omitempty"`
	At      time.Time    `json:"at"`
	Devices []DeviceView `json:"devices,omitempty"`
}

// SnapshotSource provides the state sent to newly connected clients.
type SnapshotSource interface {
	Snapshot() []state.DeviceStatus
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(r.Host), strings.TrimSpace(u.Host))
	},
}

type client struct {
	send chan Event
}

// Hub fans events out to connected clients. A client whose buffer fills up
// is disconnected rather than slowing the monitor down.
type Hub struct {
	source SnapshotSource
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub. source may be nil, in which case new clients get an
// empty snapshot.
func NewHub(source SnapshotSource, logger *log.Logger) *Hub {
	return &Hub{
		source:  source,
		logger:  log.OrNop(logger),
		now:     time.Now,
		clients: make(map[*client]struct{}),
	}
}

// SetSource replaces the snapshot source. Call it before serving clients.
func (h *Hub) SetSource(source SnapshotSource) {
	h.source = source
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) OnStatusChanged(device config.Device, from, to state.Status) {
	h.broadcast(Event{
		Type: TypeStatus,
		IP:   device.IP,
		Name: device.Name,
		From: string(from),
		To:   string(to),
		At:   h.now(),
	})
}

func (h *Hub) OnMonitoringStopped(devices []config.Device) {
	views := make([]DeviceView, len(devices))
	for i, d := range devices {
		views[i] = DeviceView{IP: d.IP, Name: d.Name, Status: string(state.StatusNeutral)}
	}
	h.broadcast(Event{Type: TypeStopped, At: h.now(), Devices: views})
}

func (h *Hub) snapshotEvent() Event {
	ev := Event{Type: TypeSnapshot, At: h.now(), Devices: []DeviceView{}}
	if h.source == nil {
		return ev
	}
	for _, d := range h.source.Snapshot() {
		ev.Devices = append(ev.Devices, DeviceView{
			IP:            d.Device.IP,
			Name:          d.Device.Name,
			Status:        string(d.Status),
			SuccessStreak: d.SuccessStreak,
		})
	}
	return ev
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("dropping slow stream client", map[string]interface{}{"event": ev.Type})
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) register() *client {
	c := &client{send: make(chan Event, clientBufferSize)}
	snap := h.snapshotEvent()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	c.send <- snap
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c := h.register()
	if c == nil {
		writeClose(conn)
		return
	}
	defer h.unregister(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				writeClose(conn)
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(ev)
}

func writeClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
