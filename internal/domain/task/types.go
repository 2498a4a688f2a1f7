package task

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanreynaldy/social-media-api/internal/shared/id"
)

// StepKind identifies one browser instruction.
type StepKind string

const (
	StepNavigate StepKind = "navigate"
	StepWait     StepKind = "wait"
	StepExtract  StepKind = "extract"
	StepEval     StepKind = "eval"
	StepScroll   StepKind = "scroll"
	StepSleep    StepKind = "sleep"
)

// Step is a single instruction executed on a leased browser session.
// Fields are interpreted per kind:
//   - navigate: URL
//   - wait:     Selector (Timeout bounds the poll)
//   - extract:  Selector; empty selector extracts the whole document
//   - eval:     Script, result serialized as JSON
//   - scroll:   Pixels (vertical offset)
//   - sleep:    Duration, capped by the step budget
type Step struct {
	Kind     StepKind
	URL      string
	Selector string
	Script   string
	Pixels   int
	Duration time.Duration

	// Timeout bounds this step; zero uses the executor default.
	Timeout time.Duration
}

// Descriptor is a validated, ordered unit of browser work.
type Descriptor struct {
	ID    id.TaskID
	Steps []Step

	// Timeout bounds the whole task; zero uses the executor default.
	Timeout time.Duration
}

// Validate rejects descriptors the executor would not be able to run.
// Invalid descriptors must never consume pool capacity.
func (d Descriptor) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: task has no steps", ErrInvalid)
	}
	if d.Timeout < 0 {
		return fmt.Errorf("%w: negative task timeout", ErrInvalid)
	}
	for i, s := range d.Steps {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalid, i, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	if s.Timeout < 0 {
		return fmt.Errorf("negative timeout")
	}
	switch s.Kind {
	case StepNavigate:
		if s.URL == "" {
			return fmt.Errorf("navigate requires a url")
		}
	case StepWait:
		if s.Selector == "" {
			return fmt.Errorf("wait requires a selector")
		}
	case StepExtract:
		// empty selector extracts the document
	case StepEval:
		if s.Script == "" {
			return fmt.Errorf("eval requires a script")
		}
	case StepScroll:
		if s.Pixels < 0 {
			return fmt.Errorf("scroll requires a non-negative pixel offset")
		}
	case StepSleep:
		if s.Duration <= 0 {
			return fmt.Errorf("sleep requires a positive duration")
		}
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	return nil
}

// Outcome classifies how a task finished.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeStepFailed Outcome = "step_failed"
	OutcomeCrashed    Outcome = "crashed"
)

// Extraction holds the payload produced by one extract step.
type Extraction struct {
	StepIndex int    `json:"step_index"`
	Data      string `json:"data"`
}

// Result reports a finished task. Payload is populated only on success.
type Result struct {
	TaskID     id.TaskID
	Outcome    Outcome
	ErrorKind  ErrorKind
	Payload    []Extraction
	FailedStep int // index of the failing step, -1 when none
	Reason     string
	StepsRun   int
	Elapsed    time.Duration
}

// Succeeded reports whether the task completed all steps.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Document returns the payload of the last extract step, which by
// convention carries the page document for platform parsing.
func (r Result) Document() (string, bool) {
	if len(r.Payload) == 0 {
		return "", false
	}
	return r.Payload[len(r.Payload)-1].Data, true
}

// Session is the slice of a pooled browser handle the executor drives.
type Session interface {
	ID() id.SessionID
	Execute(ctx context.Context, step Step) (string, error)
}
