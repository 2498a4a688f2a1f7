// Package ws streams task lifecycle events to WebSocket clients.
//
// Each connection subscribes to the coordinator's event hub and receives
// every task transition as a JSON frame. Subscribers that stop reading
// fall behind their buffer and have frames dropped rather than stalling
// the publishers.
//
// Message Types (Client → Server):
//   - ping: Application-level keep-alive
//
// Message Types (Server → Client):
//   - system: Connection banner
//   - task.queued: Task accepted and waiting for a session
//   - task.started: Task leased a browser session
//   - task.finished: Task completed with an outcome
//   - pong: Reply to a client ping
//
// Protocol-level ping/pong runs alongside the application frames to detect
// dead peers.
//
// Example Usage:
//
//	handler := ws.NewHandler(coord.Events(), logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
