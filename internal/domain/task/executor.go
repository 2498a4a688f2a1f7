package task

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/logging"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/monitoring"
)

// Executor runs descriptors against a leased session, one step at a
// time, stopping at the first failure. It owns deadline arithmetic and
// outcome classification; it never touches pool bookkeeping.
type Executor struct {
	stepTimeout time.Duration
	taskTimeout time.Duration
	logger      *logging.Logger
	metrics     *monitoring.Metrics
}

// NewExecutor creates an executor with default per-step and overall
// budgets. Descriptors and steps may override them downward or upward.
func NewExecutor(stepTimeout, taskTimeout time.Duration, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		stepTimeout: stepTimeout,
		taskTimeout: taskTimeout,
		logger:      logger,
	}
}

// WithMetrics attaches step and task instrumentation.
func (e *Executor) WithMetrics(m *monitoring.Metrics) *Executor {
	e.metrics = m
	return e
}

// Run executes the descriptor on sess. The returned result always has a
// terminal outcome; Run never panics the session back to the pool. The
// caller releases the session with the result's outcome.
func (e *Executor) Run(ctx context.Context, sess Session, d Descriptor) Result {
	start := time.Now()
	res := Result{
		TaskID:     d.ID,
		Outcome:    OutcomeSuccess,
		FailedStep: -1,
	}

	overall := d.Timeout
	if overall <= 0 {
		overall = e.taskTimeout
	}
	taskCtx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	log := e.logger.With(
		zap.String("task_id", d.ID.String()),
		zap.String("session_id", sess.ID().String()),
	)
	log.Debug("Task started", zap.Int("steps", len(d.Steps)))

	for i, step := range d.Steps {
		budget := step.Timeout
		if budget <= 0 {
			budget = e.stepTimeout
		}
		stepCtx, stepCancel := context.WithTimeout(taskCtx, budget)
		stepStart := time.Now()
		payload, err := sess.Execute(stepCtx, step)
		stepCancel()
		elapsed := time.Since(stepStart)

		if err != nil {
			res.StepsRun = i
			res.FailedStep = i
			res.Reason = err.Error()
			res.Payload = nil
			res.Outcome, res.ErrorKind = e.classify(taskCtx, err)
			res.Elapsed = time.Since(start)
			e.record(step.Kind, string(res.Outcome), elapsed)
			e.recordTask(res)
			log.Warn("Task step failed",
				zap.Int("step", i),
				zap.String("kind", string(step.Kind)),
				zap.String("outcome", string(res.Outcome)),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
			return res
		}

		if step.Kind == StepExtract {
			res.Payload = append(res.Payload, Extraction{StepIndex: i, Data: payload})
		}
		res.StepsRun = i + 1
		e.record(step.Kind, "ok", elapsed)
	}

	res.Elapsed = time.Since(start)
	e.recordTask(res)
	log.Debug("Task completed",
		zap.Int("steps", res.StepsRun),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res
}

// classify maps a step error to a terminal outcome. Crash identity
// wins over everything; after that the overall deadline wins over a
// step-level failure report, because a wait step interrupted by the
// whole-task clock surfaces as ErrStepFailed even though the session
// never answered.
func (e *Executor) classify(taskCtx context.Context, err error) (Outcome, ErrorKind) {
	switch {
	case errors.Is(err, ErrCrashed):
		return OutcomeCrashed, KindCrashDetected
	case taskCtx.Err() != nil:
		// Overall budget exhausted, or the caller abandoned the task.
		// Either way the page state is unknown.
		return OutcomeTimeout, KindTaskTimeout
	case errors.Is(err, ErrStepFailed):
		return OutcomeStepFailed, KindStepFailed
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout, KindStepTimeout
	default:
		// Unclassified channel errors leave the session in an unknown
		// state; treat them like a step timeout so the pool health
		// checks the handle before reuse.
		return OutcomeTimeout, KindStepTimeout
	}
}

func (e *Executor) record(kind StepKind, status string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordStep(string(kind), status, d)
	}
}

func (e *Executor) recordTask(r Result) {
	if e.metrics != nil {
		e.metrics.RecordTask(string(r.Outcome), r.Elapsed)
	}
}
