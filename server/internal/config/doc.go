// Package config loads the server configuration from the `server:` section
// of server.yaml.
//
// Config fields:
//   - HTTPPort      port for the REST API and WebSocket hub (default 8080)
//   - Auth          pkg/auth settings guarding /api/v1/* and /ws
//   - MQTT          broker URL, credentials, TLS and topic prefix
//   - Status.TTL    how long a silent station stays live (default 15m)
//   - WSInterval    WebSocket snapshot period (default 5s)
//   - Archive       Postgres DSN env var, batch size and flush interval
//   - Alerts        rules and webhook targets
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
