package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/config"
	"github.com/bryanreynaldy/social-media-api/internal/shared/id"
)

type fakeSess struct {
	sid id.SessionID

	mu         sync.Mutex
	alive      bool
	leased     bool
	terminated bool
	resets     int
	resetErr   error
}

func newFakeSess() *fakeSess {
	return &fakeSess{sid: id.NewSessionID(), alive: true}
}

func (f *fakeSess) ID() id.SessionID { return f.sid }

func (f *fakeSess) Execute(context.Context, task.Step) (string, error) { return "", nil }

func (f *fakeSess) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeSess) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetErr
}

func (f *fakeSess) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
	f.alive = false
}

func (f *fakeSess) MarkLeased() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leased = true
}

func (f *fakeSess) MarkIdle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leased = false
}

func (f *fakeSess) isTerminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

func (f *fakeSess) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func (f *fakeSess) kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
}

type fakeLauncher struct {
	mu      sync.Mutex
	started []*fakeSess
	err     error
}

func (l *fakeLauncher) Start(context.Context) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	s := newFakeSess()
	l.started = append(l.started, s)
	return s, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.started)
}

func testConfig() config.PoolConfig {
	return config.PoolConfig{
		MaxSessions:              2,
		AcquireTimeout:           time.Second,
		IdleTimeout:              time.Minute,
		MaxFailuresBeforeRecycle: 1,
	}
}

func testPool(t *testing.T, cfg config.PoolConfig, l Launcher) *Pool {
	t.Helper()
	p := newPool(cfg, l, nil, time.Hour)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Close(ctx)
	})
	return p
}

func TestAcquireStartsLazily(t *testing.T) {
	launcher := &fakeLauncher{}
	p := testPool(t, testConfig(), launcher)

	assert.Equal(t, 0, launcher.count(), "no sessions before first acquire")

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, launcher.count())
	assert.True(t, launcher.started[0].leased)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Busy)
	assert.Equal(t, 0, stats.Ready)
	assert.Equal(t, int64(1), stats.Created)

	p.Release(sess, task.OutcomeSuccess)
}

func TestReleaseSuccessRequeues(t *testing.T) {
	launcher := &fakeLauncher{}
	p := testPool(t, testConfig(), launcher)

	s1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(s1, task.OutcomeSuccess)

	assert.Equal(t, 1, launcher.started[0].resetCount(), "page reset before requeue")
	assert.Equal(t, 1, p.Stats().Ready)

	s2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s1.ID(), s2.ID(), "idle session reused")
	assert.Equal(t, 1, launcher.count(), "no second launch")
	p.Release(s2, task.OutcomeSuccess)
}

func TestAcquireQueuesFIFO(t *testing.T) {
	launcher := &fakeLauncher{}
	cfg := testConfig()
	cfg.MaxSessions = 1
	p := testPool(t, cfg, launcher)

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)

	type got struct {
		order int
		sess  Session
	}
	results := make(chan got, 2)

	acquire := func(order int) {
		s, err := p.Acquire(context.Background())
		require.NoError(t, err)
		results <- got{order: order, sess: s}
	}

	go acquire(1)
	require.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, 5*time.Millisecond)
	go acquire(2)
	require.Eventually(t, func() bool { return p.Stats().Waiters == 2 }, time.Second, 5*time.Millisecond)

	p.Release(first, task.OutcomeSuccess)
	g1 := <-results
	assert.Equal(t, 1, g1.order, "oldest waiter served first")

	p.Release(g1.sess, task.OutcomeSuccess)
	g2 := <-results
	assert.Equal(t, 2, g2.order)
	p.Release(g2.sess, task.OutcomeSuccess)

	assert.Equal(t, 1, launcher.count(), "single session served all three acquires")
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	launcher := &fakeLauncher{}
	cfg := testConfig()
	cfg.MaxSessions = 1
	p := testPool(t, cfg, launcher)

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPoolExhausted))

	p.Release(sess, task.OutcomeSuccess)
}

func TestExpiredWaiterGrantIsRequeued(t *testing.T) {
	// A release can grant a waiter in the same instant its deadline
	// fires. Whichever way that race lands, the session must come back
	// to the pool rather than leak with a leased mark. Iterate to give
	// both interleavings a chance.
	launcher := &fakeLauncher{}
	cfg := testConfig()
	cfg.MaxSessions = 1
	p := testPool(t, cfg, launcher)

	for i := 0; i < 50; i++ {
		owner, err := p.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			if s, err := p.Acquire(ctx); err == nil {
				p.Release(s, task.OutcomeSuccess)
			}
			close(done)
		}()
		require.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, time.Millisecond)

		cancel()
		p.Release(owner, task.OutcomeSuccess)
		<-done

		// the single session must be immediately reacquirable
		verifyCtx, verifyCancel := context.WithTimeout(context.Background(), time.Second)
		s, err := p.Acquire(verifyCtx)
		verifyCancel()
		require.NoError(t, err, "iteration %d leaked the session", i)
		p.Release(s, task.OutcomeSuccess)
	}

	stats := p.Stats()
	assert.Equal(t, 0, stats.Busy)
	assert.Equal(t, 0, stats.Waiters)
	assert.Equal(t, 1, launcher.count(), "race must never mint extra sessions")
}

func TestLeaseMutualExclusion(t *testing.T) {
	launcher := &fakeLauncher{}
	cfg := testConfig()
	cfg.MaxSessions = 3
	cfg.AcquireTimeout = 5 * time.Second
	p := testPool(t, cfg, launcher)

	var (
		mu     sync.Mutex
		held   = make(map[id.SessionID]bool)
		doubly int
	)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				s, err := p.Acquire(context.Background())
				if err != nil {
					continue
				}

				mu.Lock()
				if held[s.ID()] {
					doubly++
				}
				held[s.ID()] = true
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				held[s.ID()] = false
				mu.Unlock()
				p.Release(s, task.OutcomeSuccess)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, doubly, "a session was leased to two tasks at once")
	assert.LessOrEqual(t, launcher.count(), 3)
	assert.Equal(t, 0, p.Stats().Busy)
}

func TestReleaseCrashRemovesSession(t *testing.T) {
	launcher := &fakeLauncher{}
	p := testPool(t, testConfig(), launcher)

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.Release(sess, task.OutcomeCrashed)

	assert.True(t, launcher.started[0].isTerminated())
	stats := p.Stats()
	assert.Equal(t, 0, stats.Ready+stats.Busy)
	assert.Equal(t, int64(1), stats.Crashes)

	// replacement is lazy: only the next acquire starts a new browser
	assert.Equal(t, 1, launcher.count())
	s2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, launcher.count())
	assert.NotEqual(t, sess.ID(), s2.ID())
	p.Release(s2, task.OutcomeSuccess)
}

func TestCrashWithWaiterStartsReplacement(t *testing.T) {
	launcher := &fakeLauncher{}
	cfg := testConfig()
	cfg.MaxSessions = 1
	p := testPool(t, cfg, launcher)

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)

	results := make(chan Session, 1)
	go func() {
		s, err := p.Acquire(context.Background())
		require.NoError(t, err)
		results <- s
	}()
	require.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, 5*time.Millisecond)

	p.Release(first, task.OutcomeCrashed)

	var granted Session
	select {
	case granted = <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never granted a replacement session")
	}
	assert.NotEqual(t, first.ID(), granted.ID())
	assert.Equal(t, 2, launcher.count())
	p.Release(granted, task.OutcomeSuccess)
}

func TestTimeoutRecyclesPastThreshold(t *testing.T) {
	launcher := &fakeLauncher{}
	p := testPool(t, testConfig(), launcher)

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)
	orig := launcher.started[0]

	// first timeout stays below the threshold: health reset, requeued
	p.Release(sess, task.OutcomeTimeout)
	assert.False(t, orig.isTerminated())
	assert.Equal(t, 1, orig.resetCount())
	assert.Equal(t, 1, p.Stats().Ready)

	// second consecutive timeout crosses it: terminated
	sess, err = p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(sess, task.OutcomeTimeout)
	assert.True(t, orig.isTerminated())
	assert.Equal(t, int64(1), p.Stats().Recycled)
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	launcher := &fakeLauncher{}
	p := testPool(t, testConfig(), launcher)

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)
	orig := launcher.started[0]

	p.Release(sess, task.OutcomeTimeout)
	sess, err = p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(sess, task.OutcomeSuccess)

	// counter was cleared, so this timeout is the first again
	sess, err = p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(sess, task.OutcomeTimeout)

	assert.False(t, orig.isTerminated())
	p.Release(mustAcquire(t, p), task.OutcomeSuccess)
}

func TestStepFailedLeavesCounterAlone(t *testing.T) {
	launcher := &fakeLauncher{}
	p := testPool(t, testConfig(), launcher)

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)
	orig := launcher.started[0]

	p.Release(sess, task.OutcomeTimeout)                 // failures: 1
	p.Release(mustAcquire(t, p), task.OutcomeStepFailed) // failures still 1
	assert.False(t, orig.isTerminated())

	p.Release(mustAcquire(t, p), task.OutcomeTimeout) // failures: 2, recycled
	assert.True(t, orig.isTerminated())
}

func TestFailedResetRecyclesBelowThreshold(t *testing.T) {
	launcher := &fakeLauncher{}
	p := testPool(t, testConfig(), launcher)

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)
	orig := launcher.started[0]
	orig.mu.Lock()
	orig.resetErr = errors.New("page unreachable")
	orig.mu.Unlock()

	p.Release(sess, task.OutcomeTimeout)

	assert.True(t, orig.isTerminated(), "session that cannot reset is not readmitted")
	assert.Equal(t, 0, p.Stats().Ready)
}

func TestDeadIdleSessionSkippedOnAcquire(t *testing.T) {
	launcher := &fakeLauncher{}
	p := testPool(t, testConfig(), launcher)

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(sess, task.OutcomeSuccess)

	launcher.started[0].kill()

	s2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID(), s2.ID())
	assert.Equal(t, 2, launcher.count())
	require.Eventually(t, func() bool { return launcher.started[0].isTerminated() }, time.Second, 5*time.Millisecond)
	p.Release(s2, task.OutcomeSuccess)
}

func TestIdleReaper(t *testing.T) {
	launcher := &fakeLauncher{}
	cfg := testConfig()
	cfg.IdleTimeout = 30 * time.Millisecond
	p := newPool(cfg, launcher, nil, 10*time.Millisecond)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Close(ctx)
	})

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(sess, task.OutcomeSuccess)

	require.Eventually(t, func() bool {
		return launcher.started[0].isTerminated() && p.Stats().Ready == 0
	}, time.Second, 5*time.Millisecond, "idle session reaped after idle timeout")
}

func TestWarmStartsSessions(t *testing.T) {
	launcher := &fakeLauncher{}
	cfg := testConfig()
	cfg.WarmSessions = 2
	p := testPool(t, cfg, launcher)

	require.NoError(t, p.Warm(context.Background()))

	assert.Equal(t, 2, launcher.count())
	assert.Equal(t, 2, p.Stats().Ready)
}

func TestStartupErrorSurfacesToAcquire(t *testing.T) {
	boom := errors.New("browser refused to start")
	launcher := &fakeLauncher{err: boom}
	p := testPool(t, testConfig(), launcher)

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestCloseFailsWaitersAndRejectsAcquires(t *testing.T) {
	launcher := &fakeLauncher{}
	cfg := testConfig()
	cfg.MaxSessions = 1
	p := newPool(cfg, launcher, nil, time.Hour)

	sess, err := p.Acquire(context.Background())
	require.NoError(t, err)

	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		waiterErr <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, 5*time.Millisecond)

	closeDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		closeDone <- p.Close(ctx)
	}()

	assert.True(t, errors.Is(<-waiterErr, ErrPoolClosed))

	// leased session surrenders on release, letting Close finish
	p.Release(sess, task.OutcomeSuccess)
	require.NoError(t, <-closeDone)
	assert.True(t, launcher.started[0].isTerminated())

	_, err = p.Acquire(context.Background())
	assert.True(t, errors.Is(err, ErrPoolClosed))
}

func TestCloseForceTerminatesStragglers(t *testing.T) {
	launcher := &fakeLauncher{}
	p := newPool(testConfig(), launcher, nil, time.Hour)

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	err = p.Close(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, launcher.started[0].isTerminated())
}

func TestReleaseUnknownSessionTerminates(t *testing.T) {
	launcher := &fakeLauncher{}
	p := testPool(t, testConfig(), launcher)

	stray := newFakeSess()
	p.Release(stray, task.OutcomeSuccess)
	assert.True(t, stray.isTerminated())
}

func mustAcquire(t *testing.T, p *Pool) Session {
	t.Helper()
	s, err := p.Acquire(context.Background())
	require.NoError(t, err)
	return s
}
