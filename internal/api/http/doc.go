// Package http provides HTTP handlers for the metrics extraction REST API.
//
// This package implements all HTTP endpoints using the Gin framework,
// including health checks, raw task submission, batch and single-URL
// extraction, and task history lookup.
//
// Endpoints:
//   - Health: / and /health
//   - Platforms: /platforms
//   - Tasks: /task, /tasks, /tasks/:id
//   - Extraction: /extract, /extract-single
//   - Metrics: /metrics/json
//
// Status codes follow one rule: 400 means the request itself was bad,
// 503 with Retry-After means the service is out of browser capacity,
// and 422 means the task ran and failed for a reason a retry will not
// fix. Batch extraction always answers 200 and reports per-row errors.
//
// Example Usage:
//
//	handlers := http.NewHandlers(coord, fetcher, cacheStore, metrics, cfg)
//	router.GET("/health", handlers.Health)
//	router.POST("/extract", handlers.Extract)
package http
