package feed

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// SocketConfig tunes websocket subscribers.
type SocketConfig struct {
	// Buffer is the per-subscriber outbound queue; a full queue drops the subscriber.
	Buffer         int
	WriteWait      time.Duration
	PingInterval   time.Duration
	AllowedOrigins []string
}

func (c SocketConfig) withDefaults() SocketConfig {
	if c.Buffer <= 0 {
		c.Buffer = 32
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	return c
}

// pongWait must exceed the ping interval so a healthy peer always answers in time.
func (c SocketConfig) pongWait() time.Duration {
	return c.PingInterval * 2
}

// SocketHandler upgrades requests and registers them with the relay.
type SocketHandler struct {
	relay    *Relay
	cfg      SocketConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewSocketHandler constructs a SocketHandler.
func NewSocketHandler(relay *Relay, cfg SocketConfig, logger *slog.Logger) *SocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	h := &SocketHandler{relay: relay, cfg: cfg, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(cfg.AllowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return lo.Contains(cfg.AllowedOrigins, "*") || lo.Contains(cfg.AllowedOrigins, r.Header.Get("Origin"))
		}
	}
	return h
}

// ServeHTTP upgrades the connection and serves it until the peer goes away.
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	sub := newSocketSubscriber(conn, h.cfg)
	go sub.writePump()
	if !h.relay.Register(sub) {
		sub.Close()
		return
	}
	sub.readPump()
	h.relay.Deregister(sub)
	sub.Close()
}

// socketSubscriber queues events for one websocket peer.
type socketSubscriber struct {
	id    string
	conn  *websocket.Conn
	cfg   SocketConfig
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func newSocketSubscriber(conn *websocket.Conn, cfg SocketConfig) *socketSubscriber {
	return &socketSubscriber{
		id:    uuid.NewString(),
		conn:  conn,
		cfg:   cfg,
		queue: make(chan []byte, cfg.Buffer),
		done:  make(chan struct{}),
	}
}

func (s *socketSubscriber) ID() string { return s.id }

func (s *socketSubscriber) Send(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- payload:
		return true
	default:
		return false
	}
}

func (s *socketSubscriber) Close() {
	s.once.Do(func() { close(s.done) })
}

// writePump owns all writes to the connection.
func (s *socketSubscriber) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case payload := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(s.cfg.WriteWait))
			return
		}
	}
}

// readPump discards client frames and returns when the peer disconnects.
func (s *socketSubscriber) readPump() {
	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.pongWait()))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.pongWait()))
	})
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}
