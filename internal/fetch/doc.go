/*
Package fetch retrieves pages over plain HTTP for platforms that ship
their data embedded in the served HTML, so no browser session is spent
on them.

The client layers three protections in front of every request: a retry
transport for transient network failures, a token-bucket limiter so
batches cannot burst, and a circuit breaker that sheds load once a host
fails consistently. Responses are gunzipped when needed, rejected when
the content type is not HTML-ish, and decoded to UTF-8 using charset
detection before handing the body to parsers.
*/
package fetch
