/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the
extraction service, tracking HTTP requests, browser tasks, pool health,
platform extractions, and system metrics.

# Features

- HTTP request metrics (latency, throughput, size)
- Browser task metrics (outcomes, step durations)
- Session pool metrics (states, waiters, recycles, crashes)
- Platform extraction metrics (per-platform latency and status)
- Static fetch and circuit breaker metrics
- WebSocket connection metrics
- System metrics (uptime)

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record custom metrics
	metrics.RecordTask("success", elapsed)
	metrics.IncSessionsRecycled("idle")

	// Time operations
	timer := monitoring.NewTimer(metrics, "tiktok")
	// ... perform extraction ...
	timer.Stop("success")

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
