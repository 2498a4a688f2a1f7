package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanreynaldy/social-media-api/internal/domain/coordinator"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/monitoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func dialStream(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()

	r := gin.New()
	r.GET("/stream", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]interface{}
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestHandleConnectionWelcome(t *testing.T) {
	hub := coordinator.NewHub()
	conn := dialStream(t, NewHandler(hub, nil))

	frame := readFrame(t, conn)
	assert.Equal(t, "system", frame["type"])
	assert.Contains(t, frame["message"], "task event stream")
}

func TestHandleConnectionStreamsEvents(t *testing.T) {
	hub := coordinator.NewHub()
	conn := dialStream(t, NewHandler(hub, nil))
	readFrame(t, conn) // welcome

	hub.Publish(coordinator.Event{
		Type:   coordinator.EventTaskQueued,
		TaskID: "task_01",
	})
	hub.Publish(coordinator.Event{
		Type:    coordinator.EventTaskFinished,
		TaskID:  "task_01",
		Outcome: "success",
	})

	queued := readFrame(t, conn)
	assert.Equal(t, "task.queued", queued["type"])
	assert.Equal(t, "task_01", queued["task_id"])
	assert.NotEmpty(t, queued["at"])

	finished := readFrame(t, conn)
	assert.Equal(t, "task.finished", finished["type"])
	assert.Equal(t, "success", finished["outcome"])
}

func TestHandleConnectionPing(t *testing.T) {
	hub := coordinator.NewHub()
	metrics := monitoring.NewMetricsWithRegistry(prometheus.NewRegistry())
	conn := dialStream(t, NewHandler(hub, nil).WithMetrics(metrics))
	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	frame := readFrame(t, conn)
	assert.Equal(t, "pong", frame["type"])
	assert.NotZero(t, frame["timestamp"])
}

func TestHandleConnectionUnsubscribesOnClose(t *testing.T) {
	hub := coordinator.NewHub()
	conn := dialStream(t, NewHandler(hub, nil))
	readFrame(t, conn) // welcome

	require.Equal(t, 1, hub.Subscribers())
	conn.Close()

	require.Eventually(t, func() bool {
		return hub.Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleConnectionSurvivesEventBurst(t *testing.T) {
	hub := coordinator.NewHub()
	conn := dialStream(t, NewHandler(hub, nil))
	readFrame(t, conn) // welcome

	// More events than the subscriber buffer; the client reads slowly and
	// must still get a prefix of the stream in order.
	for i := 0; i < subscriberBuffer*2; i++ {
		hub.Publish(coordinator.Event{Type: coordinator.EventTaskQueued, TaskID: "task_burst"})
	}

	first := readFrame(t, conn)
	assert.Equal(t, "task.queued", first["type"])
	assert.Equal(t, "task_burst", first["task_id"])
}
