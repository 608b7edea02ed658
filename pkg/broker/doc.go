// Package broker holds the MQTT connection settings and topic layout
// shared by the station uplink and the server receiver.
//
// Station telemetry lives under {prefix}/{station}/{kind} where kind is
// readings, events or status.
package broker
