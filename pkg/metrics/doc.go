/*
Package metrics defines LocalZure's Prometheus metrics and a background
collector.

Counters and histograms (HTTP traffic, issued tokens, snapshot activity) are
incremented inline by the packages that own them. Gauges (secret counts, keys
per state namespace) are sampled by the Collector on a fixed interval so the
hot paths never pay for counting.

All metrics are registered with the default registry; Handler exposes them
for the /metrics endpoint.
*/
package metrics
