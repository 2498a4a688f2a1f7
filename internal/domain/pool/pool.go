package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/config"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/logging"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/monitoring"
	"github.com/bryanreynaldy/social-media-api/internal/shared/id"
)

var (
	// ErrPoolClosed marks an acquire or release on a shut-down pool.
	ErrPoolClosed = errors.New("session pool is closed")

	// ErrPoolExhausted marks an acquire that waited out its budget with
	// every session leased. The caller should retry later.
	ErrPoolExhausted = errors.New("session pool exhausted")
)

const (
	resetTimeout = 5 * time.Second
	minSweep     = time.Second
	drainPoll    = 50 * time.Millisecond
)

// Session is the pooled resource: a leased browser handle plus the
// lifecycle hooks the pool drives between leases.
type Session interface {
	task.Session
	Alive() bool
	Reset(ctx context.Context) error
	Terminate()
	MarkLeased()
	MarkIdle()
}

// Launcher starts replacement sessions on demand.
type Launcher interface {
	Start(ctx context.Context) (Session, error)
}

// LauncherFunc adapts a plain function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (Session, error)

func (f LauncherFunc) Start(ctx context.Context) (Session, error) { return f(ctx) }

type entry struct {
	sess     Session
	failures int
	lastUsed time.Time
	leased   bool
}

// grant is what a queued waiter receives: a leased session or the
// startup error that should end its wait early.
type grant struct {
	sess Session
	err  error
}

type waiter struct {
	ch   chan grant
	elem *list.Element
}

// Pool hands exclusive browser sessions to tasks. Sessions start
// lazily up to the configured maximum; acquires beyond that queue FIFO
// until a release or a timeout. Release outcomes drive health: clean
// results reset the page and requeue, repeated timeouts and crashes
// recycle the process.
type Pool struct {
	cfg      config.PoolConfig
	launcher Launcher
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	sweep    time.Duration

	mu       sync.Mutex
	entries  map[id.SessionID]*entry
	idle     []*entry
	waiters  *list.List
	starting int
	closed   bool

	created  int64
	recycled int64
	crashes  int64

	stopReaper chan struct{}
	reaperDone chan struct{}
}

// New creates a pool and starts its idle reaper. No sessions launch
// until the first acquire (or an explicit Warm).
func New(cfg config.PoolConfig, launcher Launcher, logger *logging.Logger) *Pool {
	return newPool(cfg, launcher, logger, sweepInterval(cfg.IdleTimeout))
}

func newPool(cfg config.PoolConfig, launcher Launcher, logger *logging.Logger, sweep time.Duration) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pool{
		cfg:        cfg,
		launcher:   launcher,
		logger:     logger,
		sweep:      sweep,
		entries:    make(map[id.SessionID]*entry),
		waiters:    list.New(),
		stopReaper: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	go p.reap()
	return p
}

func sweepInterval(idle time.Duration) time.Duration {
	s := idle / 4
	if s < minSweep {
		s = minSweep
	}
	return s
}

// WithMetrics attaches pool instrumentation.
func (p *Pool) WithMetrics(m *monitoring.Metrics) *Pool {
	p.metrics = m
	return p
}

// Warm starts sessions ahead of demand, stopping at the first startup
// failure. Boot calls this so the first request does not pay the
// browser startup cost.
func (p *Pool) Warm(ctx context.Context) error {
	for i := 0; i < p.cfg.WarmSessions; i++ {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrPoolClosed
		}
		if len(p.entries)+p.starting >= p.cfg.MaxSessions {
			p.mu.Unlock()
			return nil
		}
		p.starting++
		p.updateGaugesLocked()
		p.mu.Unlock()

		sess, err := p.launcher.Start(ctx)

		p.mu.Lock()
		p.starting--
		if err != nil {
			p.updateGaugesLocked()
			p.mu.Unlock()
			return fmt.Errorf("warm session %d: %w", i, err)
		}
		if p.closed {
			p.mu.Unlock()
			sess.Terminate()
			return ErrPoolClosed
		}
		e := &entry{sess: sess, lastUsed: time.Now()}
		p.entries[sess.ID()] = e
		p.created++
		p.idle = append(p.idle, e)
		if p.metrics != nil {
			p.metrics.IncSessionsCreated()
		}
		p.updateGaugesLocked()
		p.mu.Unlock()
	}
	return nil
}

// Acquire leases a session: idle first, then a fresh start within
// capacity, then a FIFO wait bounded by ctx. Queued acquires never
// overtake older ones.
func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	start := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	if p.waiters.Len() == 0 {
		// Reuse an idle session, discarding any that died while parked.
		var dead []Session
		for {
			e := p.popIdleLocked()
			if e == nil {
				break
			}
			if !e.sess.Alive() {
				delete(p.entries, e.sess.ID())
				p.crashes++
				dead = append(dead, e.sess)
				continue
			}
			e.leased = true
			e.lastUsed = time.Now()
			p.updateGaugesLocked()
			p.mu.Unlock()
			p.terminateAll(dead, "crash")
			e.sess.MarkLeased()
			p.recordAcquire("reuse", start)
			return e.sess, nil
		}

		if len(p.entries)+p.starting < p.cfg.MaxSessions {
			p.starting++
			p.updateGaugesLocked()
			p.mu.Unlock()
			p.terminateAll(dead, "crash")

			sess, err := p.launcher.Start(ctx)

			p.mu.Lock()
			p.starting--
			if err != nil {
				p.updateGaugesLocked()
				p.mu.Unlock()
				p.recordAcquire("startup_failed", start)
				return nil, err
			}
			if p.closed {
				p.updateGaugesLocked()
				p.mu.Unlock()
				sess.Terminate()
				return nil, ErrPoolClosed
			}
			e := &entry{sess: sess, leased: true, lastUsed: time.Now()}
			p.entries[sess.ID()] = e
			p.created++
			if p.metrics != nil {
				p.metrics.IncSessionsCreated()
			}
			p.updateGaugesLocked()
			p.mu.Unlock()
			sess.MarkLeased()
			p.recordAcquire("fresh", start)
			return sess, nil
		}
		p.terminateAllLocked(dead)
	}

	// Everything is leased: queue up.
	w := &waiter{ch: make(chan grant, 1)}
	w.elem = p.waiters.PushBack(w)
	p.maybeStartLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()

	select {
	case g := <-w.ch:
		if g.err != nil {
			p.recordAcquire("startup_failed", start)
			return nil, g.err
		}
		p.recordAcquire("queued", start)
		return g.sess, nil

	case <-ctx.Done():
		p.mu.Lock()
		granted := w.elem == nil
		if !granted {
			p.waiters.Remove(w.elem)
			w.elem = nil
		}
		p.updateGaugesLocked()
		p.mu.Unlock()

		if granted {
			// A release granted us a session in the same instant the
			// deadline fired. Hand it to the next waiter instead of
			// leaking the lease.
			g := <-w.ch
			if g.err == nil {
				p.putBack(g.sess)
			}
		}
		p.recordAcquire("timeout", start)
		return nil, fmt.Errorf("%w: %v", ErrPoolExhausted, ctx.Err())
	}
}

// Release returns a leased session with the outcome of its task. The
// outcome decides the session's future:
//
//	success:     failure counter resets, page resets, session requeues
//	step_failed: page resets, session requeues, counter untouched
//	timeout:     counter increments; past the threshold the session is
//	             replaced, below it a failed reset replaces it anyway
//	crashed:     session is removed immediately
//
// Unknown sessions (already recycled) are terminated defensively.
func (p *Pool) Release(s Session, outcome task.Outcome) {
	p.mu.Lock()
	e, ok := p.entries[s.ID()]
	if !ok || p.closed {
		delete(p.entries, s.ID())
		p.updateGaugesLocked()
		p.mu.Unlock()
		s.Terminate()
		return
	}

	switch outcome {
	case task.OutcomeCrashed:
		p.removeLocked(e)
		p.crashes++
		p.maybeStartLocked()
		p.updateGaugesLocked()
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.IncSessionCrashes()
			p.metrics.IncSessionsRecycled("crash")
		}
		s.Terminate()
		p.logger.Warn("Session removed after crash",
			zap.String("session_id", s.ID().String()),
		)
		return

	case task.OutcomeTimeout:
		e.failures++
		if e.failures > p.cfg.MaxFailuresBeforeRecycle {
			failures := e.failures
			p.removeLocked(e)
			p.recycled++
			p.maybeStartLocked()
			p.updateGaugesLocked()
			p.mu.Unlock()
			if p.metrics != nil {
				p.metrics.IncSessionsRecycled("failures")
			}
			s.Terminate()
			p.logger.Info("Session recycled after repeated timeouts",
				zap.String("session_id", s.ID().String()),
				zap.Int("failures", failures),
			)
			return
		}

	case task.OutcomeSuccess:
		e.failures = 0

	case task.OutcomeStepFailed:
		// Page-level failure: says nothing about session health.
	}
	p.mu.Unlock()

	// Reset the page before readmission; a session that cannot reach
	// about:blank is not worth keeping.
	resetCtx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	resetErr := s.Reset(resetCtx)
	cancel()

	p.mu.Lock()
	e, ok = p.entries[s.ID()]
	if !ok || p.closed {
		delete(p.entries, s.ID())
		p.updateGaugesLocked()
		p.mu.Unlock()
		s.Terminate()
		return
	}
	if resetErr != nil {
		p.removeLocked(e)
		p.recycled++
		p.maybeStartLocked()
		p.updateGaugesLocked()
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.IncSessionsRecycled("reset_failed")
		}
		s.Terminate()
		p.logger.Info("Session failed page reset, recycled",
			zap.String("session_id", s.ID().String()),
			zap.Error(resetErr),
		)
		return
	}

	p.handOffOrParkLocked(e)
	p.mu.Unlock()
}

// putBack requeues a session that was granted to a waiter that already
// gave up. The page was reset during release, so no second reset.
func (p *Pool) putBack(s Session) {
	p.mu.Lock()
	e, ok := p.entries[s.ID()]
	if !ok || p.closed {
		delete(p.entries, s.ID())
		p.updateGaugesLocked()
		p.mu.Unlock()
		s.Terminate()
		return
	}
	p.handOffOrParkLocked(e)
	p.mu.Unlock()
}

// handOffOrParkLocked gives the entry to the oldest waiter, or parks it
// idle when nobody is queued.
func (p *Pool) handOffOrParkLocked(e *entry) {
	if w := p.popWaiterLocked(); w != nil {
		e.leased = true
		e.lastUsed = time.Now()
		e.sess.MarkLeased()
		w.ch <- grant{sess: e.sess}
		p.updateGaugesLocked()
		return
	}
	e.leased = false
	e.lastUsed = time.Now()
	e.sess.MarkIdle()
	p.idle = append(p.idle, e)
	p.updateGaugesLocked()
}

func (p *Pool) popWaiterLocked() *waiter {
	front := p.waiters.Front()
	if front == nil {
		return nil
	}
	w := front.Value.(*waiter)
	p.waiters.Remove(front)
	w.elem = nil
	return w
}

// popIdleLocked takes the most recently used idle session so warm
// pages stay warm and cold ones age out.
func (p *Pool) popIdleLocked() *entry {
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	e := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return e
}

func (p *Pool) removeLocked(e *entry) {
	delete(p.entries, e.sess.ID())
	for i, other := range p.idle {
		if other == e {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
}

// maybeStartLocked launches a replacement when waiters outnumber the
// starts already in flight and capacity allows. Keeps queued acquires
// from starving after a recycle frees a slot.
func (p *Pool) maybeStartLocked() {
	if p.closed {
		return
	}
	if p.waiters.Len() <= p.starting {
		return
	}
	if len(p.entries)+p.starting >= p.cfg.MaxSessions {
		return
	}
	p.starting++
	go p.startForWaiter()
}

func (p *Pool) startForWaiter() {
	sess, err := p.launcher.Start(context.Background())

	p.mu.Lock()
	p.starting--
	if err != nil {
		// Fail the oldest waiter promptly rather than letting it sit
		// out its full acquire budget.
		if w := p.popWaiterLocked(); w != nil {
			w.ch <- grant{err: err}
		}
		p.updateGaugesLocked()
		p.mu.Unlock()
		return
	}
	if p.closed {
		p.mu.Unlock()
		sess.Terminate()
		return
	}
	e := &entry{sess: sess, lastUsed: time.Now()}
	p.entries[sess.ID()] = e
	p.created++
	if p.metrics != nil {
		p.metrics.IncSessionsCreated()
	}
	p.handOffOrParkLocked(e)
	p.mu.Unlock()
}

// reap prunes idle sessions that outlived the idle timeout or died
// while parked.
func (p *Pool) reap() {
	defer close(p.reaperDone)
	ticker := time.NewTicker(p.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopReaper:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

func (p *Pool) sweepIdle() {
	now := time.Now()
	var aged, dead []Session

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	kept := p.idle[:0]
	for _, e := range p.idle {
		switch {
		case !e.sess.Alive():
			delete(p.entries, e.sess.ID())
			p.crashes++
			dead = append(dead, e.sess)
		case now.Sub(e.lastUsed) >= p.cfg.IdleTimeout:
			delete(p.entries, e.sess.ID())
			p.recycled++
			aged = append(aged, e.sess)
		default:
			kept = append(kept, e)
		}
	}
	p.idle = kept
	p.updateGaugesLocked()
	p.mu.Unlock()

	p.terminateAll(aged, "idle")
	p.terminateAll(dead, "crash")
	if len(aged) > 0 {
		p.logger.Debug("Idle sessions reaped", zap.Int("count", len(aged)))
	}
}

func (p *Pool) terminateAll(sessions []Session, reason string) {
	for _, s := range sessions {
		s.Terminate()
		if p.metrics != nil {
			p.metrics.IncSessionsRecycled(reason)
			if reason == "crash" {
				p.metrics.IncSessionCrashes()
			}
		}
	}
}

// terminateAllLocked defers termination until after the lock is
// released; used on paths that keep holding mu.
func (p *Pool) terminateAllLocked(sessions []Session) {
	if len(sessions) == 0 {
		return
	}
	go p.terminateAll(sessions, "crash")
}

// Close rejects new work, fails queued waiters, terminates idle
// sessions, and waits for leased ones to be released until ctx expires.
// Stragglers are killed on the way out.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopReaper)

	for {
		w := p.popWaiterLocked()
		if w == nil {
			break
		}
		w.ch <- grant{err: ErrPoolClosed}
	}

	victims := make([]Session, 0, len(p.idle))
	for _, e := range p.idle {
		delete(p.entries, e.sess.ID())
		victims = append(victims, e.sess)
	}
	p.idle = nil
	p.updateGaugesLocked()
	p.mu.Unlock()

	for _, s := range victims {
		s.Terminate()
	}
	<-p.reaperDone

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		if len(p.entries) == 0 {
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			p.mu.Lock()
			leftovers := make([]Session, 0, len(p.entries))
			for _, e := range p.entries {
				leftovers = append(leftovers, e.sess)
			}
			p.entries = make(map[id.SessionID]*entry)
			p.updateGaugesLocked()
			p.mu.Unlock()
			for _, s := range leftovers {
				s.Terminate()
			}
			p.logger.Warn("Pool closed with sessions still leased",
				zap.Int("terminated", len(leftovers)),
			)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats reports a point-in-time view for health checks.
type Stats struct {
	Ready    int   `json:"ready"`
	Busy     int   `json:"busy"`
	Starting int   `json:"starting"`
	Waiters  int   `json:"waiters"`
	Capacity int   `json:"capacity"`
	Created  int64 `json:"created"`
	Recycled int64 `json:"recycled"`
	Crashes  int64 `json:"crashes"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	busy := 0
	for _, e := range p.entries {
		if e.leased {
			busy++
		}
	}
	return Stats{
		Ready:    len(p.idle),
		Busy:     busy,
		Starting: p.starting,
		Waiters:  p.waiters.Len(),
		Capacity: p.cfg.MaxSessions,
		Created:  p.created,
		Recycled: p.recycled,
		Crashes:  p.crashes,
	}
}

func (p *Pool) updateGaugesLocked() {
	if p.metrics == nil {
		return
	}
	busy := 0
	for _, e := range p.entries {
		if e.leased {
			busy++
		}
	}
	p.metrics.SetPoolSessions("ready", len(p.idle))
	p.metrics.SetPoolSessions("busy", busy)
	p.metrics.SetPoolSessions("starting", p.starting)
	p.metrics.SetPoolWaiters(p.waiters.Len())
	p.metrics.SetActiveSessions(busy)
}

func (p *Pool) recordAcquire(result string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordAcquire(result, time.Since(start))
	}
}
