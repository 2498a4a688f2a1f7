package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// MetricsJSON reports an aggregated snapshot of service health for
// dashboards that do not scrape Prometheus
func (h *Handlers) MetricsJSON(c *gin.Context) {
	snap := h.metrics.GetSnapshot()

	errorRate := 0.0
	if snap.TotalRequests > 0 {
		errorRate = float64(snap.TotalErrors) / float64(snap.TotalRequests)
	}
	avgLatencyMS := 0.0
	if snap.RequestCount > 0 {
		avgLatencyMS = snap.TotalDuration / float64(snap.RequestCount) * 1000
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp":      time.Now().UTC(),
		"uptime_seconds": h.metrics.GetUptimeSeconds(),
		"requests": gin.H{
			"total":              snap.TotalRequests,
			"errors":             snap.TotalErrors,
			"error_rate":         errorRate,
			"average_latency_ms": avgLatencyMS,
		},
		"tasks": gin.H{
			"executed": snap.TasksExecuted,
			"failed":   snap.TasksFailed,
		},
		"sessions": gin.H{
			"active": snap.ActiveSessions,
			"pool":   h.coordinator.PoolStats(),
		},
		"ws_connections": snap.ActiveConnections,
	})
}
