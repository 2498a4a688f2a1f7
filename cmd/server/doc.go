// Package main is the entry point for the social media metrics service.
//
// The server accepts post URLs (or raw browser task descriptors) over
// HTTP, drives a bounded pool of headless Chrome processes through the
// DevTools protocol, and returns extracted engagement metrics.
//
// Data flow:
//
//	HTTP request → Coordinator → Pool.Acquire → Executor.Run → Pool.Release → response
//
// The server provides:
//   - REST API for task submission and metric extraction
//   - WebSocket streaming of task lifecycle events
//   - Session pooling with failure recycling and idle reaping
//   - Task history persistence and optional result caching
//   - Rate limiting, metrics, and tracing
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional YAML/TOML config file (-config or CONFIG_FILE)
//   - CLI flags (override both)
//
// Usage:
//
//	# Production mode
//	./server -port 5000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown (drain HTTP, close the pool)
package main
