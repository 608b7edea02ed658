// Package types defines the wire types shared by the station and the server.
// Stations publish them as JSON over MQTT; the server stores, archives and
// serves them unchanged.
package types
