package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bryanreynaldy/social-media-api/internal/domain/platform"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/config"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/logging"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/monitoring"
)

// ErrMiss is returned when no row is cached for a URL.
var ErrMiss = errors.New("cache miss")

const keyPrefix = "metrics:"

// Cache stores extraction rows keyed by post URL so repeated requests
// within the TTL skip the browser entirely.
type Cache interface {
	GetRow(ctx context.Context, url string) (*platform.Metrics, error)
	SetRow(ctx context.Context, url string, row *platform.Metrics) error
	Ping(ctx context.Context) error
	Close() error
}

// New builds the configured cache. A disabled config yields a noop
// implementation so callers never branch on whether caching is on.
func New(cfg config.CacheConfig, logger *logging.Logger, m *monitoring.Metrics) (Cache, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("Result cache enabled",
		zap.String("addr", cfg.RedisAddr),
		zap.Duration("ttl", cfg.TTL))

	return &Manager{
		client:  client,
		ttl:     cfg.TTL,
		logger:  logger,
		metrics: m,
	}, nil
}

// Manager is the redis-backed cache.
type Manager struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// GetRow returns the cached row for a URL, or ErrMiss.
func (c *Manager) GetRow(ctx context.Context, url string) (*platform.Metrics, error) {
	val, err := c.client.Get(ctx, keyPrefix+url).Result()
	if errors.Is(err, redis.Nil) {
		c.record("miss")
		return nil, ErrMiss
	}
	if err != nil {
		c.record("error")
		c.logger.Warn("Cache get failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var row platform.Metrics
	if err := sonic.UnmarshalString(val, &row); err != nil {
		c.record("error")
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	c.record("hit")
	return &row, nil
}

// SetRow stores a row under the URL key. Failed rows are skipped: a
// transient block must not be re-served for the full TTL.
func (c *Manager) SetRow(ctx context.Context, url string, row *platform.Metrics) error {
	if row == nil || row.Failed() {
		return nil
	}

	payload, err := sonic.MarshalString(row)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+url, payload, c.ttl).Err(); err != nil {
		c.record("error")
		c.logger.Warn("Cache set failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("cache set: %w", err)
	}
	c.record("store")
	return nil
}

// Ping checks the redis connection for health reporting.
func (c *Manager) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the redis client.
func (c *Manager) Close() error {
	return c.client.Close()
}

func (c *Manager) record(event string) {
	if c.metrics != nil {
		c.metrics.RecordCacheEvent(event)
	}
}

// Noop is the cache used when caching is disabled: every lookup
// misses and every store is dropped.
type Noop struct{}

func (Noop) GetRow(context.Context, string) (*platform.Metrics, error) { return nil, ErrMiss }

func (Noop) SetRow(context.Context, string, *platform.Metrics) error { return nil }

func (Noop) Ping(context.Context) error { return nil }

func (Noop) Close() error { return nil }
