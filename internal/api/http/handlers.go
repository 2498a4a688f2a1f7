package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bryanreynaldy/social-media-api/internal/cache"
	"github.com/bryanreynaldy/social-media-api/internal/domain/coordinator"
	"github.com/bryanreynaldy/social-media-api/internal/fetch"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/config"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/monitoring"
)

const serviceName = "Social Media Metrics API"

// Handlers contains all HTTP handlers
type Handlers struct {
	coordinator *coordinator.Coordinator
	fetcher     *fetch.Client
	cache       cache.Cache
	metrics     *monitoring.Metrics
	config      *config.Config
}

// NewHandlers creates a new handler set
func NewHandlers(
	coord *coordinator.Coordinator,
	fetcher *fetch.Client,
	cacheStore cache.Cache,
	metrics *monitoring.Metrics,
	cfg *config.Config,
) *Handlers {
	if cacheStore == nil {
		cacheStore = cache.Noop{}
	}
	return &Handlers{
		coordinator: coord,
		fetcher:     fetcher,
		cache:       cacheStore,
		metrics:     metrics,
		config:      cfg,
	}
}

// Root handles the service banner with the endpoint map
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": serviceName,
		"version": "1.0.0",
		"endpoints": []string{
			"GET /health",
			"GET /platforms",
			"POST /task",
			"POST /extract",
			"POST /extract-single",
			"GET /tasks",
			"GET /tasks/:id",
			"GET /stream (websocket)",
			"GET /metrics",
			"GET /metrics/json",
		},
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	cacheState := gin.H{"enabled": h.config.Cache.Enabled}
	if h.config.Cache.Enabled {
		if err := h.cache.Ping(c.Request.Context()); err != nil {
			cacheState["status"] = "unreachable"
		} else {
			cacheState["status"] = "ok"
		}
	}

	health := gin.H{
		"status":  "healthy",
		"pool":    h.coordinator.PoolStats(),
		"cache":   cacheState,
		"history": gin.H{"enabled": h.config.History.Enabled},
	}
	if h.fetcher != nil {
		health["fetch"] = gin.H{"breaker": h.fetcher.BreakerState().String()}
	}
	if h.metrics != nil {
		health["uptime_seconds"] = h.metrics.GetUptimeSeconds()
	}

	c.JSON(http.StatusOK, health)
}

// Platforms lists supported platforms with the limits the gate enforces
func (h *Handlers) Platforms(c *gin.Context) {
	reg := h.coordinator.Registry()
	gate := h.coordinator.Gate()

	supported := reg.Platforms()
	platforms := make([]gin.H, 0, len(supported))
	for _, p := range supported {
		lim := gate.Limits(p)
		platforms = append(platforms, gin.H{
			"platform":            string(p),
			"display_name":        p.DisplayName(),
			"requests_per_minute": lim.PerMinute,
			"min_delay_ms":        lim.MinDelay.Milliseconds(),
			"max_retries":         lim.MaxRetries,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"platforms": platforms,
		"count":     len(platforms),
	})
}
