package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanreynaldy/social-media-api/internal/domain/browser"
	"github.com/bryanreynaldy/social-media-api/internal/domain/platform"
	"github.com/bryanreynaldy/social-media-api/internal/domain/pool"
	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
	"github.com/bryanreynaldy/social-media-api/internal/shared/id"
)

type coordSess struct{ sid id.SessionID }

func newCoordSess() *coordSess { return &coordSess{sid: id.NewSessionID()} }

func (s *coordSess) ID() id.SessionID                                   { return s.sid }
func (s *coordSess) Execute(context.Context, task.Step) (string, error) { return "", nil }
func (s *coordSess) Alive() bool                                        { return true }
func (s *coordSess) Reset(context.Context) error                        { return nil }
func (s *coordSess) Terminate()                                         {}
func (s *coordSess) MarkLeased()                                        {}
func (s *coordSess) MarkIdle()                                          {}

type fakePool struct {
	mu       sync.Mutex
	acquires int
	releases []task.Outcome
	err      error
}

func (p *fakePool) Acquire(context.Context) (pool.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquires++
	if p.err != nil {
		return nil, p.err
	}
	return newCoordSess(), nil
}

func (p *fakePool) Release(_ pool.Session, outcome task.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases = append(p.releases, outcome)
}

func (p *fakePool) Stats() pool.Stats { return pool.Stats{Capacity: 2} }

func (p *fakePool) acquireCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquires
}

func (p *fakePool) released() []task.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]task.Outcome(nil), p.releases...)
}

type fakeRunner struct {
	mu      sync.Mutex
	results []task.Result
	ran     []task.Descriptor
	// behave, when set, replaces the scripted results entirely
	behave func(ctx context.Context, d task.Descriptor) task.Result
}

func (r *fakeRunner) Run(ctx context.Context, _ task.Session, d task.Descriptor) task.Result {
	r.mu.Lock()
	r.ran = append(r.ran, d)
	behave := r.behave
	r.mu.Unlock()
	if behave != nil {
		res := behave(ctx, d)
		res.TaskID = d.ID
		return res
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	res := task.Result{Outcome: task.OutcomeSuccess, FailedStep: -1}
	if len(r.results) > 0 {
		res = r.results[0]
		if len(r.results) > 1 {
			r.results = r.results[1:]
		}
	}
	res.TaskID = d.ID
	return res
}

func (r *fakeRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

func successResult(doc string) task.Result {
	return task.Result{
		Outcome:    task.OutcomeSuccess,
		FailedStep: -1,
		Payload:    []task.Extraction{{StepIndex: 0, Data: doc}},
		StepsRun:   1,
		Elapsed:    10 * time.Millisecond,
	}
}

func failedResult(outcome task.Outcome, kind task.ErrorKind, reason string) task.Result {
	return task.Result{
		Outcome:    outcome,
		ErrorKind:  kind,
		FailedStep: 0,
		Reason:     reason,
		Elapsed:    10 * time.Millisecond,
	}
}

func fastLimits() map[platform.Platform]platform.Limits {
	fast := platform.Limits{PerMinute: 600000, MinDelay: time.Microsecond, MaxRetries: 2}
	return map[platform.Platform]platform.Limits{
		platform.PlatformX:         fast,
		platform.PlatformYouTube:   fast,
		platform.PlatformTikTok:    fast,
		platform.PlatformStockbit:  fast,
		platform.PlatformInstagram: fast,
		platform.PlatformLinkedIn:  fast,
	}
}

func testCoordinator(p *fakePool, r *fakeRunner, opts Options, exts ...platform.Extractor) *Coordinator {
	if opts.AcquireTimeout == 0 {
		opts.AcquireTimeout = time.Second
	}
	c := New(opts, p, r, platform.NewRegistry(exts...), nil)
	c.WithGate(platform.NewGateWithLimits(fastLimits()))
	return c
}

func navSteps(url string) []task.Step {
	return []task.Step{
		{Kind: task.StepNavigate, URL: url},
		{Kind: task.StepExtract},
	}
}

func TestSubmitTaskSuccess(t *testing.T) {
	p := &fakePool{}
	r := &fakeRunner{results: []task.Result{successResult("<html>ok</html>")}}
	c := testCoordinator(p, r, Options{})

	events, cancel := c.Events().Subscribe(8)
	defer cancel()

	res, err := c.SubmitTask(context.Background(), navSteps("https://x.com/user/status/1"), 0)
	require.NoError(t, err)
	assert.Equal(t, task.OutcomeSuccess, res.Outcome)
	require.Len(t, res.Payload, 1)
	assert.Equal(t, "<html>ok</html>", res.Payload[0].Data)
	assert.False(t, res.TaskID.String() == "")

	assert.Equal(t, 1, p.acquireCount())
	assert.Equal(t, []task.Outcome{task.OutcomeSuccess}, p.released())

	types := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
			assert.Equal(t, res.TaskID.String(), ev.TaskID)
			assert.False(t, ev.At.IsZero())
		case <-time.After(time.Second):
			t.Fatal("missing lifecycle event")
		}
	}
	assert.Equal(t, []string{EventTaskQueued, EventTaskStarted, EventTaskFinished}, types)
}

func TestSubmitTaskInvalid(t *testing.T) {
	p := &fakePool{}
	c := testCoordinator(p, &fakeRunner{}, Options{})

	res, err := c.SubmitTask(context.Background(), nil, 0)
	require.ErrorIs(t, err, task.ErrInvalid)
	assert.Equal(t, task.KindInvalid, res.ErrorKind)
	assert.Equal(t, 0, p.acquireCount(), "invalid tasks must not touch the pool")
}

func TestSubmitTaskRejectsBadNavigateURL(t *testing.T) {
	p := &fakePool{}
	c := testCoordinator(p, &fakeRunner{}, Options{})

	// no scheme, wrong scheme, no host
	cases := []string{"x.com/user/status/1", "ftp://files.x.com/a", "https://"}
	for _, raw := range cases {
		_, err := c.SubmitTask(context.Background(), navSteps(raw), 0)
		assert.ErrorIs(t, err, task.ErrInvalid, raw)
	}
	assert.Equal(t, 0, p.acquireCount())
}

func TestSubmitTaskHostAllowlist(t *testing.T) {
	p := &fakePool{}
	r := &fakeRunner{results: []task.Result{successResult("doc")}}
	c := testCoordinator(p, r, Options{AllowedHosts: []string{"x.com", "*.x.com"}})

	_, err := c.SubmitTask(context.Background(), navSteps("https://evil.example/p"), 0)
	require.ErrorIs(t, err, task.ErrInvalid)
	assert.Contains(t, err.Error(), "allowlist")

	_, err = c.SubmitTask(context.Background(), navSteps("https://www.x.com/user/status/1"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.acquireCount())
}

func TestSubmitTaskBusy(t *testing.T) {
	p := &fakePool{err: pool.ErrPoolExhausted}
	c := testCoordinator(p, &fakeRunner{}, Options{})

	res, err := c.SubmitTask(context.Background(), navSteps("https://x.com/u/status/2"), 0)
	require.Error(t, err)
	assert.Equal(t, task.KindPoolExhausted, res.ErrorKind)
	assert.True(t, res.ErrorKind.Busy())
	assert.Empty(t, p.released(), "nothing to release when acquire fails")
}

func TestSubmitTaskRetriesTransientOnce(t *testing.T) {
	p := &fakePool{}
	r := &fakeRunner{results: []task.Result{
		failedResult(task.OutcomeTimeout, task.KindStepTimeout, "step deadline"),
		successResult("doc"),
	}}
	c := testCoordinator(p, r, Options{RetryTransient: true})

	res, err := c.SubmitTask(context.Background(), navSteps("https://x.com/u/status/3"), 0)
	require.NoError(t, err)
	assert.Equal(t, task.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, p.acquireCount())
	assert.Equal(t, []task.Outcome{task.OutcomeTimeout, task.OutcomeSuccess}, p.released())
}

func TestSubmitTaskRetryIsExactlyOnce(t *testing.T) {
	p := &fakePool{}
	r := &fakeRunner{results: []task.Result{
		failedResult(task.OutcomeCrashed, task.KindCrashDetected, "connection lost"),
	}}
	c := testCoordinator(p, r, Options{RetryTransient: true})

	res, err := c.SubmitTask(context.Background(), navSteps("https://x.com/u/status/4"), 0)
	require.NoError(t, err)
	assert.Equal(t, task.OutcomeCrashed, res.Outcome)
	assert.Equal(t, 2, p.acquireCount(), "one retry, then give up")
}

func TestSubmitTaskNeverRetriesStepFailed(t *testing.T) {
	p := &fakePool{}
	r := &fakeRunner{results: []task.Result{
		failedResult(task.OutcomeStepFailed, task.KindStepFailed, "selector not found: article"),
	}}
	c := testCoordinator(p, r, Options{RetryTransient: true})

	res, err := c.SubmitTask(context.Background(), navSteps("https://x.com/u/status/5"), 0)
	require.NoError(t, err)
	assert.Equal(t, task.OutcomeStepFailed, res.Outcome)
	assert.Equal(t, 1, p.acquireCount())
}

func TestSubmitTaskRetryDisabled(t *testing.T) {
	p := &fakePool{}
	r := &fakeRunner{results: []task.Result{
		failedResult(task.OutcomeTimeout, task.KindTaskTimeout, "budget exceeded"),
	}}
	c := testCoordinator(p, r, Options{RetryTransient: false})

	res, err := c.SubmitTask(context.Background(), navSteps("https://x.com/u/status/6"), 0)
	require.NoError(t, err)
	assert.Equal(t, task.OutcomeTimeout, res.Outcome)
	assert.Equal(t, 1, p.acquireCount())
}

func TestSubmitTaskReleasesOnRunnerPanic(t *testing.T) {
	p := &fakePool{}
	r := &fakeRunner{behave: func(context.Context, task.Descriptor) task.Result {
		panic("step handler blew up")
	}}
	c := testCoordinator(p, r, Options{})

	require.Panics(t, func() {
		_, _ = c.SubmitTask(context.Background(), navSteps("https://x.com/u/status/7"), 0)
	})

	// the lease must not leak; the pessimistic outcome recycles the session
	assert.Equal(t, []task.Outcome{task.OutcomeCrashed}, p.released())
}

func TestSubmitTaskReleasesOnCallerCancel(t *testing.T) {
	p := &fakePool{}
	r := &fakeRunner{behave: func(ctx context.Context, _ task.Descriptor) task.Result {
		<-ctx.Done()
		return failedResult(task.OutcomeTimeout, task.KindTaskTimeout, ctx.Err().Error())
	}}
	c := testCoordinator(p, r, Options{RetryTransient: true})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := c.SubmitTask(ctx, navSteps("https://x.com/u/status/8"), 0)
	require.NoError(t, err)
	assert.Equal(t, task.OutcomeTimeout, res.Outcome)

	// released exactly once with the run outcome, and a dead caller
	// context suppresses the transient retry
	assert.Equal(t, 1, p.acquireCount())
	assert.Equal(t, []task.Outcome{task.OutcomeTimeout}, p.released())
}

func TestClassifyAcquire(t *testing.T) {
	assert.Equal(t, task.KindPoolExhausted, ClassifyAcquire(pool.ErrPoolExhausted))
	assert.Equal(t, task.KindPoolExhausted, ClassifyAcquire(pool.ErrPoolClosed))
	assert.Equal(t, task.KindStartupTimeout, ClassifyAcquire(browser.ErrStartupTimeout))
	assert.Equal(t, task.KindStartupTimeout, ClassifyAcquire(errors.New("spawn: fork failed")))
}

func TestHostAllowed(t *testing.T) {
	c := testCoordinator(&fakePool{}, &fakeRunner{}, Options{})
	assert.True(t, c.hostAllowed("anything.example"), "empty allowlist allows all")

	c = testCoordinator(&fakePool{}, &fakeRunner{}, Options{AllowedHosts: []string{"*"}})
	assert.True(t, c.hostAllowed("anything.example"))

	c = testCoordinator(&fakePool{}, &fakeRunner{}, Options{
		AllowedHosts: []string{"x.com", "*.tiktok.com"},
	})
	assert.True(t, c.hostAllowed("x.com"))
	assert.True(t, c.hostAllowed("www.tiktok.com"))
	assert.False(t, c.hostAllowed("tiktok.com.evil.example"))
	assert.False(t, c.hostAllowed("youtube.com"))
}
