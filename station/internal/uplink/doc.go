// Package uplink publishes station telemetry to an MQTT broker.
//
// Publish* calls are non-blocking: payloads are JSON-encoded pkg/types
// values placed in a bounded channel. When the buffer is full the oldest
// message is evicted so the latest readings always survive an outage.
//
// Uplink.Run drains the buffer, reconnecting with truncated exponential
// backoff (1s→60s, ±25% jitter) after a failed connect or publish. A message
// whose publish failed is put back when there is room.
//
// Topics are {prefix}/{station}/readings, /events and /status; status is
// published retained so a new subscriber sees the last one immediately.
package uplink
