package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cabin-dispatch/internal/dispatch"
	"github.com/cabin-dispatch/internal/instruction"
	"github.com/cabin-dispatch/internal/messaging"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	// Pages send a heartbeat well inside this window
	readTimeout = 90 * time.Second

	defaultSource = "websocket"
)

// Processor parses and dispatches one instruction code
type Processor interface {
	Process(ctx context.Context, code, source string) (*instruction.Parsed, dispatch.Outcome, error)
}

// Subscriber is the subscribe side of a broker
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (<-chan messaging.Delivery, error)
}

// ClientTracker is told when pages connect and disconnect
type ClientTracker interface {
	ClientConnected()
	ClientDisconnected()
}

// inbound is a frame sent by a page or recognizer
type inbound struct {
	Type   string `json:"type"`
	Code   string `json:"code,omitempty"`
	Source string `json:"source,omitempty"`
}

// InstructionResponse answers an instruction frame
type InstructionResponse struct {
	Type    string              `json:"type"`
	Outcome dispatch.Outcome    `json:"outcome,omitempty"`
	Parsed  *instruction.Parsed `json:"parsed,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Push wraps a published payload for the pages
type Push struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type client struct {
	out  chan []byte
	addr string
}

// Hub connects pages over websocket. It pushes every broker delivery to
// every page and accepts heartbeat and instruction frames.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	processor Processor
	tracker   ClientTracker
	upgrader  websocket.Upgrader
	log       logrus.FieldLogger
}

// NewHub creates a hub. tracker may be nil.
func NewHub(processor Processor, tracker ClientTracker, log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:   make(map[*client]struct{}),
		processor: processor,
		tracker:   tracker,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			// Pages are served from the head unit itself
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run relays deliveries on channels to every client until ctx is done
func (h *Hub) Run(ctx context.Context, sub Subscriber, channels ...string) error {
	deliveries, err := sub.Subscribe(ctx, channels...)
	if err != nil {
		return err
	}

	go func() {
		for d := range deliveries {
			frame, err := json.Marshal(Push{Type: "publish", Channel: d.Channel, Data: d.Payload})
			if err != nil {
				h.log.WithError(err).WithField("channel", d.Channel).Warn("Dropping undeliverable payload")
				continue
			}
			h.Broadcast(frame)
		}
	}()
	return nil
}

// Broadcast queues frame for every client. Slow clients miss frames.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.out <- frame:
		default:
			h.log.WithField("client", c.addr).Warn("Client send buffer full, dropping frame")
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handler upgrades the request and serves the connection
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			h.log.WithError(err).Debug("Websocket upgrade failed")
			return
		}
		defer conn.Close()

		c := &client{out: make(chan []byte, sendBuffer), addr: r.RemoteAddr}
		h.register(c)
		defer h.unregister(c)

		logger := h.log.WithField("client", c.addr)
		logger.Info("Websocket client connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go h.writeLoop(ctx, cancel, conn, c)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if reply := h.handleFrame(ctx, msg); reply != nil {
				h.send(c, reply)
			}
		}
		logger.Info("Websocket client disconnected")
	}
}

func (h *Hub) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-c.out:
			if !ok {
				// Hub closed; unblock the reader
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				cancel()
				return
			}
		}
	}
}

func (h *Hub) handleFrame(ctx context.Context, msg []byte) interface{} {
	var in inbound
	if err := json.Unmarshal(msg, &in); err != nil {
		return map[string]string{"error": "invalid json"}
	}

	switch in.Type {
	case "heartbeat":
		return map[string]string{"type": "heartbeat", "status": "alive"}

	case "instruction":
		source := in.Source
		if source == "" {
			source = defaultSource
		}
		parsed, outcome, err := h.processor.Process(ctx, in.Code, source)
		resp := InstructionResponse{Type: "instruction_response", Outcome: outcome, Parsed: parsed}
		if err != nil {
			resp.Error = err.Error()
		}
		return resp

	default:
		return map[string]string{"error": "unknown message type"}
	}
}

func (h *Hub) send(c *client, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).Warn("Failed to encode websocket reply")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.out <- b:
	default:
		h.log.WithField("client", c.addr).Warn("Client send buffer full, dropping reply")
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.tracker != nil {
		h.tracker.ClientConnected()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.out)
	}
	h.mu.Unlock()
	if h.tracker != nil {
		h.tracker.ClientDisconnected()
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.out)
	}
}
