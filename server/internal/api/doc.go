// Package api implements the HTTP REST API for hydrostack-server.
//
// New(store, opts) returns an http.Handler that serves:
//
//	GET /api/v1/health                  overall state and per-level station counts
//	GET /api/v1/stations                all live stations ([]StationResponse)
//	GET /api/v1/stations/{id}           single station; 404 if unknown or stale
//	GET /api/v1/stations/{id}/readings  archived readings for ?label= in [?from, ?to]
//	GET /api/v1/alerts                  firing and recently resolved alerts
//	GET /api/v1/snapshot                all live stations, alerts and generated_at
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for non-GET methods
//   - Read live entries from the store (stale entries excluded from lists)
//
// Each station carries diagnostic hints derived from its latest status.
// JSON types are defined in types.go. No external HTTP framework is used.
package api
