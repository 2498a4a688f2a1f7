// Package cache keeps recent extraction rows in redis so repeat
// requests for the same post URL are answered without spending a
// browser session. Rows live under "metrics:<url>" for a configured
// TTL; error rows are never cached. When caching is disabled the
// package degrades to a noop that always misses.
package cache
