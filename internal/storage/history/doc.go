// Package history persists finished tasks and extractions to a local
// SQLite database (pure-Go driver, no cgo) so results survive restarts
// and feed the /tasks endpoints. Writes happen after the response is
// already decided; a history failure never fails the request.
package history
