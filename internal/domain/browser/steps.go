package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
)

const waitPollInterval = 100 * time.Millisecond

// Execute runs one step on the leased handle. The returned string is
// only meaningful for extract (element or document HTML) and eval
// (JSON-serialized result). Errors wrap task sentinels so the executor
// can classify them without knowing devtools details.
func (h *Handle) Execute(ctx context.Context, step task.Step) (string, error) {
	switch h.Status() {
	case StatusBusy:
	case StatusTerminated:
		return "", ErrTerminated
	default:
		return "", ErrNotLeased
	}
	if !h.Alive() {
		return "", fmt.Errorf("%w: process exited", task.ErrCrashed)
	}

	switch step.Kind {
	case task.StepNavigate:
		return "", h.navigate(ctx, step.URL)
	case task.StepWait:
		return "", h.waitFor(ctx, step.Selector)
	case task.StepExtract:
		return h.extract(ctx, step.Selector)
	case task.StepEval:
		return h.eval(ctx, step.Script)
	case task.StepScroll:
		return "", h.scroll(ctx, step.Pixels)
	case task.StepSleep:
		return "", h.sleep(ctx, step.Duration)
	default:
		return "", task.FailStep("unknown step kind %q", step.Kind)
	}
}

// navigate loads the URL and blocks until the load event fires. The
// event stream is subscribed before navigation so a fast load cannot
// slip past.
func (h *Handle) navigate(ctx context.Context, url string) error {
	loaded, err := h.client.Page.LoadEventFired(ctx)
	if err != nil {
		return h.channelErr(err)
	}
	defer loaded.Close()

	nav, err := h.client.Page.Navigate(ctx, page.NewNavigateArgs(url))
	if err != nil {
		return h.channelErr(err)
	}
	if nav.ErrorText != nil && *nav.ErrorText != "" {
		return task.FailStep("navigation to %s failed: %s", url, *nav.ErrorText)
	}

	if _, err := loaded.Recv(); err != nil {
		return h.channelErr(err)
	}
	return nil
}

// waitFor polls for a selector until it appears or the step budget
// runs out. Budget expiry is an application failure, not a timeout:
// the page answered, the element just never showed up. The executor
// reclassifies when the whole-task clock lapsed instead.
func (h *Handle) waitFor(ctx context.Context, selector string) error {
	expr := fmt.Sprintf("document.querySelector(%q) !== null", selector)

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		raw, err := h.evaluate(ctx, expr)
		if err != nil {
			if ctx.Err() != nil {
				return task.FailStep("selector %q did not appear", selector)
			}
			return err
		}
		if string(raw) == "true" {
			return nil
		}
		select {
		case <-ctx.Done():
			return task.FailStep("selector %q did not appear", selector)
		case <-h.exited:
			return fmt.Errorf("%w: process exited", task.ErrCrashed)
		case <-ticker.C:
		}
	}
}

// extract returns the outer HTML of the first match, or the whole
// document when the selector is empty.
func (h *Handle) extract(ctx context.Context, selector string) (string, error) {
	expr := "document.documentElement.outerHTML"
	if selector != "" {
		expr = fmt.Sprintf(
			"(() => { const el = document.querySelector(%q); return el ? el.outerHTML : null; })()",
			selector,
		)
	}

	raw, err := h.evaluate(ctx, expr)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", task.FailStep("no element matches selector %q", selector)
	}

	var html string
	if err := sonic.Unmarshal(raw, &html); err != nil {
		return "", task.FailStep("extract returned a non-string value")
	}
	return html, nil
}

// eval runs arbitrary script and returns the JSON-serialized result.
func (h *Handle) eval(ctx context.Context, script string) (string, error) {
	raw, err := h.evaluate(ctx, script)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "null", nil
	}
	return string(raw), nil
}

func (h *Handle) scroll(ctx context.Context, pixels int) error {
	_, err := h.evaluate(ctx, fmt.Sprintf("window.scrollTo(0, %d); window.scrollY", pixels))
	return err
}

// sleep waits in-process; no devtools round trip. A dead browser still
// interrupts it so crashes surface promptly.
func (h *Handle) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.exited:
		return fmt.Errorf("%w: process exited", task.ErrCrashed)
	case <-timer.C:
		return nil
	}
}

// evaluate is the shared devtools call: returns by value, awaits
// promises, and converts page exceptions to step failures.
func (h *Handle) evaluate(ctx context.Context, expr string) (json.RawMessage, error) {
	args := runtime.NewEvaluateArgs(expr).SetReturnByValue(true).SetAwaitPromise(true)
	reply, err := h.client.Runtime.Evaluate(ctx, args)
	if err != nil {
		return nil, h.channelErr(err)
	}
	if reply.ExceptionDetails != nil {
		return nil, task.FailStep("script threw: %s", exceptionText(reply.ExceptionDetails))
	}
	return reply.Result.Value, nil
}

func exceptionText(details *runtime.ExceptionDetails) string {
	if details.Exception != nil && details.Exception.Description != nil {
		return *details.Exception.Description
	}
	return details.Text
}
