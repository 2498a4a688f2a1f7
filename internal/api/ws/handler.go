package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bryanreynaldy/social-media-api/internal/domain/coordinator"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/logging"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/monitoring"
)

const (
	// subscriberBuffer is how many events a client may fall behind before
	// the hub starts dropping frames for it.
	subscriberBuffer = 64

	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second // must stay under pongTimeout
	maxFrameSize = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Cross-origin dashboards are expected
	},
}

// Handler streams task lifecycle events to WebSocket subscribers.
type Handler struct {
	hub     *coordinator.Hub
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a WebSocket handler fed by the coordinator's event hub.
func NewHandler(hub *coordinator.Hub, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{hub: hub, logger: logger}
}

// WithMetrics attaches metrics collection.
func (h *Handler) WithMetrics(m *monitoring.Metrics) *Handler {
	h.metrics = m
	return h
}

// HandleConnection upgrades the request and streams events until the client
// goes away. gorilla/websocket allows one concurrent writer per connection,
// so every outbound frame is funneled through the select loop below.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	events, cancel := h.hub.Subscribe(subscriberBuffer)
	defer cancel()

	remote := conn.RemoteAddr().String()
	h.logger.Debug("WebSocket subscriber connected", zap.String("remote", remote))

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	// The read loop owns inbound frames; closing conn on exit unblocks it.
	done := make(chan struct{})
	replies := make(chan interface{}, 4)
	go h.readLoop(conn, done, replies)

	if err := h.write(conn, gin.H{
		"type":    "system",
		"message": "Connected to task event stream",
	}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			h.logger.Debug("WebSocket subscriber disconnected", zap.String("remote", remote))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(conn, ev); err != nil {
				return
			}
			if h.metrics != nil {
				h.metrics.RecordWSMessage("out", ev.Type)
			}
		case reply := <-replies:
			if err := h.write(conn, reply); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains inbound frames: it feeds the pong handler, answers
// application-level pings, and signals done when the peer disconnects.
func (h *Handler) readLoop(conn *websocket.Conn, done chan<- struct{}, replies chan<- interface{}) {
	defer close(done)
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", msg.Type)
		}
		if msg.Type == "ping" {
			select {
			case replies <- gin.H{"type": "pong", "timestamp": time.Now().Unix()}:
			default:
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, data interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(data); err != nil {
		h.logger.Debug("WebSocket write failed", zap.Error(err))
		return err
	}
	return nil
}
