package task

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the execution path. Producers wrap these
// with %w so callers classify with errors.Is regardless of depth.
var (
	// ErrInvalid marks a descriptor that failed validation.
	ErrInvalid = errors.New("invalid task")

	// ErrCrashed marks a browser process that died while leased. The
	// session is unusable and must be removed from the pool.
	ErrCrashed = errors.New("browser crashed")

	// ErrStepFailed marks an application-level failure: a selector that
	// never appeared, a script that threw, an extract that matched
	// nothing. The browser itself is healthy.
	ErrStepFailed = errors.New("step failed")
)

// FailStep wraps ErrStepFailed with a human-readable reason.
func FailStep(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStepFailed, fmt.Sprintf(format, args...))
}

// ErrorKind is the stable classification exposed on results and over
// the API. Kinds are coarser than Go errors: retry decisions and HTTP
// status mapping key off these.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindInvalid        ErrorKind = "invalid_task"
	KindStartupTimeout ErrorKind = "startup_timeout"
	KindPoolExhausted  ErrorKind = "pool_exhausted"
	KindStepTimeout    ErrorKind = "step_timeout"
	KindTaskTimeout    ErrorKind = "task_timeout"
	KindStepFailed     ErrorKind = "step_failed"
	KindCrashDetected  ErrorKind = "crash_detected"
)

// Transient reports whether a retry on a fresh session could plausibly
// succeed. Application-level failures are deterministic and excluded.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindStepTimeout, KindTaskTimeout, KindCrashDetected:
		return true
	default:
		return false
	}
}

// Busy reports whether the kind signals capacity pressure rather than a
// problem with the task itself.
func (k ErrorKind) Busy() bool {
	return k == KindStartupTimeout || k == KindPoolExhausted
}
