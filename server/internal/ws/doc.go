// Package ws is the live WebSocket feed of the server.
//
// New(store, interval) creates a Hub. Clients get a snapshot of all live
// stations on connect and every interval, and each status, event and alert
// the receiver pushes through Broadcast:
//
//	{"event": "snapshot", "data": {"stations": [...], "generated_at": "..."}}
//	{"event": "status",   "data": { /* types.StationStatus */ }}
//	{"event": "event",    "data": { /* types.Event */ }}
//	{"event": "alert",    "data": { /* alerts.Alert */ }}
//
// A client connecting with ?station=ID receives only that station's
// snapshot entries and updates. The upgrader accepts all origins. It is
// mounted at /ws/stream.
package ws
