// Package browser manages headless Chrome processes over the devtools
// protocol.
//
// Each Handle owns one process, one profile directory, and one devtools
// websocket. The Launcher spawns handles: it resolves the binary once,
// allocates a debugging port, starts the process, and polls the devtools
// endpoint until it answers or the startup budget expires.
//
// Crash Detection:
//   - A watcher goroutine reaps the process and closes the exited channel
//   - Every step checks the channel before and after devtools calls
//   - rpcc connection-closing errors are folded into the same signal
//
// Step Execution:
//   - navigate: Page.Navigate, then block on the load event
//   - wait:     poll document.querySelector every 100ms
//   - extract:  outerHTML of the first match, or the document
//   - eval:     Runtime.Evaluate with return-by-value and await-promise
//   - scroll:   window.scrollTo
//   - sleep:    in-process timer, interrupted by crash or deadline
//
// Handles are not safe for concurrent step execution; the session pool
// guarantees one lease at a time.
package browser
