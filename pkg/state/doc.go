/*
Package state provides the namespaced key/value store behind every LocalZure
service.

The Backend interface is implemented three times with identical semantics:

	┌────────────────── STATE BACKENDS ──────────────────┐
	│                                                      │
	│  MemoryBackend   map[ns]map[key]entry, one mutex     │
	│  RedisBackend    <prefix><ns>:<key>, SCAN + MULTI    │
	│  BoltBackend     one bbolt bucket per namespace      │
	│                                                      │
	│  shared: serializer tags, glob listing, lazy TTL     │
	│  eviction, buffered atomic transactions              │
	└──────────────────────────────────────────────────────┘

Keys are opaque strings partitioned by namespace; namespaces appear on first
write and disappear only through ClearNamespace. Expired keys are
indistinguishable from absent ones: every read path evicts them on encounter.

Values round-trip through the serializer package, so a value written through
one backend deserializes identically from any other. That property is what
lets the snapshot engine move the whole emulator world between backends.

Transactions buffer Set/Delete operations and apply them atomically on
Commit; reads inside a transaction see committed state only. The Redis
backend retries transient faults with exponential backoff before surfacing a
BackendError; serialization failures are never retried.
*/
package state
