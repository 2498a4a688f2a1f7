// Package task defines browser work units and the executor that runs them.
//
// A Descriptor is an ordered list of steps (navigate, wait, extract, eval,
// scroll, sleep) executed on a single leased session. Execution is strictly
// sequential and stops at the first failure.
//
// Deadlines:
//   - Each step runs under min(step budget, remaining task budget)
//   - Step budget defaults to the executor's per-step timeout
//   - Task budget defaults to the executor's overall timeout
//
// Outcomes:
//   - success:     all steps completed, extract payloads attached
//   - timeout:     a budget expired (step_timeout vs task_timeout kinds)
//   - step_failed: deterministic application failure, browser healthy
//   - crashed:     the browser process died mid-task
//
// The executor never releases sessions itself; callers hand the outcome to
// the pool, which decides between reuse, health check, and recycle.
//
// Example Usage:
//
//	exec := task.NewExecutor(10*time.Second, 60*time.Second, logger)
//	result := exec.Run(ctx, sess, task.Descriptor{
//		ID: id.NewTaskID(),
//		Steps: []task.Step{
//			{Kind: task.StepNavigate, URL: "https://example.com"},
//			{Kind: task.StepWait, Selector: "main"},
//			{Kind: task.StepExtract},
//		},
//	})
package task
