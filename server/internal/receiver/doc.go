// Package receiver subscribes to station telemetry on the MQTT broker and
// fans each message out to the server's consumers.
//
// Topics follow {prefix}/{station}/{kind}. A status message replaces the
// station's entry in the store and is evaluated by the alert engine; a
// reading is folded into the stored status; readings and events are queued
// for the archive. Every accepted message is broadcast to WebSocket clients.
//
// Messages whose payload names a different station than the topic are
// rejected, as are unknown kinds and malformed JSON.
package receiver
