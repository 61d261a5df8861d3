/*
Package health aggregates liveness checks for the /healthz endpoint.

Checkers probe one subsystem each; the Registry runs them with a per-check
timeout and reports "ok" only when every subsystem is healthy. The backend
checker does a full write/read/delete round trip through the state backend
rather than just pinging it, so a wedged serializer or a read-only store
shows up as degraded.
*/
package health
