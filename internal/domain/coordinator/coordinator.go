package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/bryanreynaldy/social-media-api/internal/cache"
	"github.com/bryanreynaldy/social-media-api/internal/domain/browser"
	"github.com/bryanreynaldy/social-media-api/internal/domain/platform"
	"github.com/bryanreynaldy/social-media-api/internal/domain/pool"
	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/config"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/logging"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/monitoring"
	"github.com/bryanreynaldy/social-media-api/internal/shared/id"
	"github.com/bryanreynaldy/social-media-api/internal/storage/history"
)

const historyWriteTimeout = 5 * time.Second

// SessionPool is the slice of the pool the coordinator drives.
type SessionPool interface {
	Acquire(ctx context.Context) (pool.Session, error)
	Release(s pool.Session, outcome task.Outcome)
	Stats() pool.Stats
}

// Runner executes a descriptor against a leased session.
type Runner interface {
	Run(ctx context.Context, sess task.Session, d task.Descriptor) task.Result
}

// Options tune the coordinator independent of its collaborators.
type Options struct {
	AcquireTimeout   time.Duration
	RetryTransient   bool
	AllowedHosts     []string
	BatchConcurrency int
}

// OptionsFromConfig pulls the coordinator's knobs out of the service
// configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AcquireTimeout:   cfg.Pool.AcquireTimeout,
		RetryTransient:   cfg.Executor.RetryTransient,
		AllowedHosts:     cfg.Server.AllowedHosts,
		BatchConcurrency: cfg.Pool.MaxSessions,
	}
}

// Coordinator is the front door between transport and the browser core:
// it validates requests, leases sessions, runs tasks, and drives the
// extraction pipeline. It holds no browser state of its own.
type Coordinator struct {
	opts     Options
	pool     SessionPool
	executor Runner
	registry *platform.Registry
	gate     *platform.Gate
	cache    cache.Cache
	history  history.Store
	hub      *Hub
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// New wires a coordinator. Cache and history default to their noop
// forms; attach real ones with the With methods.
func New(opts Options, p SessionPool, e Runner, reg *platform.Registry, logger *logging.Logger) *Coordinator {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 30 * time.Second
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 4
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		opts:     opts,
		pool:     p,
		executor: e,
		registry: reg,
		gate:     platform.NewGate(),
		cache:    cache.Noop{},
		history:  history.Noop{},
		hub:      NewHub(),
		logger:   logger,
	}
}

// WithGate swaps the per-platform rate gate, typically for custom
// limits.
func (c *Coordinator) WithGate(g *platform.Gate) *Coordinator {
	if g != nil {
		c.gate = g
	}
	return c
}

// WithCache attaches the result cache.
func (c *Coordinator) WithCache(store cache.Cache) *Coordinator {
	if store != nil {
		c.cache = store
	}
	return c
}

// WithHistory attaches the task history store.
func (c *Coordinator) WithHistory(store history.Store) *Coordinator {
	if store != nil {
		c.history = store
	}
	return c
}

// WithMetrics attaches extraction instrumentation.
func (c *Coordinator) WithMetrics(m *monitoring.Metrics) *Coordinator {
	c.metrics = m
	return c
}

// Events exposes the task lifecycle stream for the WebSocket layer.
func (c *Coordinator) Events() *Hub { return c.hub }

// Gate exposes the per-platform limits for the /platforms endpoint.
func (c *Coordinator) Gate() *platform.Gate { return c.gate }

// Registry exposes the platform registry for presentation.
func (c *Coordinator) Registry() *platform.Registry { return c.registry }

// PoolStats reports the pool view for health checks.
func (c *Coordinator) PoolStats() pool.Stats { return c.pool.Stats() }

// History exposes the record store for the /tasks endpoints.
func (c *Coordinator) History() history.Store { return c.history }

// SubmitTask validates and runs a raw task. Invalid requests never
// consume pool capacity. The returned result always carries a terminal
// outcome or an error kind the transport can map to a status.
func (c *Coordinator) SubmitTask(ctx context.Context, steps []task.Step, timeout time.Duration) (task.Result, error) {
	d := task.Descriptor{ID: id.NewTaskID(), Steps: steps, Timeout: timeout}
	if err := c.validateTask(d); err != nil {
		return task.Result{
			TaskID:     d.ID,
			ErrorKind:  task.KindInvalid,
			FailedStep: -1,
			Reason:     err.Error(),
		}, err
	}

	res, err := c.runTask(ctx, d)
	if err == nil {
		c.recordTaskHistory(d, res)
	}
	return res, err
}

// runTask leases a session, runs the descriptor, and retries once on a
// transient outcome. Acquire failures come back as errors with the kind
// set; task failures come back in the result.
func (c *Coordinator) runTask(ctx context.Context, d task.Descriptor) (task.Result, error) {
	c.hub.Publish(Event{Type: EventTaskQueued, TaskID: d.ID.String()})

	res, err := c.leaseAndRun(ctx, d)
	if err != nil {
		kind := ClassifyAcquire(err)
		c.hub.Publish(Event{Type: EventTaskFinished, TaskID: d.ID.String(), Kind: string(kind)})
		return task.Result{
			TaskID:     d.ID,
			ErrorKind:  kind,
			FailedStep: -1,
			Reason:     err.Error(),
		}, err
	}

	if c.opts.RetryTransient && res.ErrorKind.Transient() && ctx.Err() == nil {
		c.logger.Info("Retrying task on a fresh session",
			zap.String("task_id", d.ID.String()),
			zap.String("kind", string(res.ErrorKind)),
		)
		if retried, rerr := c.leaseAndRun(ctx, d); rerr == nil {
			res = retried
		}
	}

	c.hub.Publish(Event{
		Type:    EventTaskFinished,
		TaskID:  d.ID.String(),
		Outcome: string(res.Outcome),
		Kind:    string(res.ErrorKind),
	})
	return res, nil
}

// leaseAndRun performs exactly one acquire/run/release cycle. The
// release outcome is captured pessimistically so a panic inside the
// run still recycles the session.
func (c *Coordinator) leaseAndRun(ctx context.Context, d task.Descriptor) (task.Result, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, c.opts.AcquireTimeout)
	sess, err := c.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return task.Result{}, err
	}

	outcome := task.OutcomeCrashed
	defer func() { c.pool.Release(sess, outcome) }()

	c.hub.Publish(Event{
		Type:      EventTaskStarted,
		TaskID:    d.ID.String(),
		SessionID: sess.ID().String(),
	})

	res := c.executor.Run(ctx, sess, d)
	outcome = res.Outcome
	return res, nil
}

// ClassifyAcquire maps acquire failures onto the busy kinds. Every
// startup failure reads as a startup timeout to the caller: either way
// no session materialized in time.
func ClassifyAcquire(err error) task.ErrorKind {
	switch {
	case errors.Is(err, pool.ErrPoolExhausted), errors.Is(err, pool.ErrPoolClosed):
		return task.KindPoolExhausted
	case errors.Is(err, browser.ErrStartupTimeout):
		return task.KindStartupTimeout
	default:
		return task.KindStartupTimeout
	}
}

// validateTask layers transport-level URL rules on top of descriptor
// validation: navigate targets must be absolute http(s) URLs inside the
// host allowlist.
func (c *Coordinator) validateTask(d task.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	for i, s := range d.Steps {
		if s.Kind != task.StepNavigate {
			continue
		}
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: step %d: navigate url %q must be absolute http(s)", task.ErrInvalid, i, s.URL)
		}
		if !c.hostAllowed(u.Hostname()) {
			return fmt.Errorf("%w: step %d: host %q not in allowlist", task.ErrInvalid, i, u.Hostname())
		}
	}
	return nil
}

// hostAllowed matches a hostname against the configured glob patterns.
// An empty allowlist allows everything, matching the config default.
func (c *Coordinator) hostAllowed(host string) bool {
	if len(c.opts.AllowedHosts) == 0 {
		return true
	}
	for _, pat := range c.opts.AllowedHosts {
		if pat == "*" {
			return true
		}
		if ok, err := doublestar.Match(pat, host); err == nil && ok {
			return true
		}
	}
	return false
}

func (c *Coordinator) recordTaskHistory(d task.Descriptor, res task.Result) {
	navURL := firstNavigateURL(d.Steps)
	rec := &history.TaskRecord{
		TaskID:    d.ID.String(),
		URL:       navURL,
		Platform:  string(platform.Detect(navURL)),
		Outcome:   string(res.Outcome),
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	if res.FailedStep >= 0 {
		step := res.FailedStep
		rec.FailedStep = &step
	}
	if res.Reason != "" {
		reason := res.Reason
		rec.Reason = &reason
	}
	if len(res.Payload) > 0 {
		if payload, err := sonic.MarshalString(res.Payload); err == nil {
			rec.Payload = payload
		}
	}
	c.writeHistory(rec)
}

// writeHistory persists a record off the request path; the response is
// already decided, so failures only warn.
func (c *Coordinator) writeHistory(rec *history.TaskRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		defer cancel()
		if err := c.history.Record(ctx, rec); err != nil {
			c.logger.Warn("History write failed",
				zap.String("task_id", rec.TaskID),
				zap.Error(err),
			)
		}
	}()
}

func firstNavigateURL(steps []task.Step) string {
	for _, s := range steps {
		if s.Kind == task.StepNavigate {
			return s.URL
		}
	}
	return ""
}
