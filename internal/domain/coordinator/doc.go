/*
Package coordinator sits between transport and the browser core. It
owns the request lifecycle that the HTTP layer should not: validation,
session leasing, retry-once on transient outcomes, and the guaranteed
single release of every acquired session.

Two entry points cover the API surface. SubmitTask runs a caller-built
step list and reports the task result with a classified error kind.
ExtractPost (and its batch fan-out) runs the platform pipeline: detect,
rate-gate, cache, plan, drive the browser or the static fetcher, parse,
follow up, store, record.

Task lifecycle events fan out through the Hub to WebSocket subscribers;
publishing never blocks on a slow client.
*/
package coordinator
