/*
Package events provides an in-process publish/subscribe broker for emulator
lifecycle events.

The Key Vault engine and the token endpoint publish lifecycle events
through a shared Broker; subscribers receive them on buffered channels. The
server attaches a StartLogSink subscriber so every event becomes one
structured log line. Delivery is best-effort: a subscriber whose buffer is
full misses the event rather than blocking the publisher.
*/
package events
