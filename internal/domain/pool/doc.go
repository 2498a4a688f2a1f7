/*
Package pool multiplexes a small fleet of browser sessions across
concurrent tasks.

# Lifecycle

Sessions start lazily: the first acquire beyond the idle set launches a
browser, up to the configured maximum. Acquires past the maximum queue
FIFO and are served strictly in arrival order. An idle reaper terminates
sessions that sit unused past the idle timeout, so a quiet service
converges back to zero browser processes.

# Release Outcomes

The pool never inspects task payloads; the release outcome is its only
health signal:

  - success:     failure counter resets, page resets, session requeues
  - step_failed: page resets and the session requeues unchanged
  - timeout:     the failure counter increments; past the threshold the
    process is replaced, below it the page reset doubles as
    a health check
  - crashed:     the session is removed at once, replacements start only
    when someone is waiting

# Concurrency

One mutex guards all bookkeeping. Handoffs to waiters happen under the
lock through buffered channels, so releases never block on slow
acquirers, and a waiter that times out in the same instant it is granted
a session pushes the grant back instead of leaking it.

Example Usage:

	p := pool.New(cfg.Pool, pool.LauncherFunc(start), logger).WithMetrics(metrics)
	sess, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	result := exec.Run(ctx, sess, desc)
	p.Release(sess, result.Outcome)
*/
package pool
