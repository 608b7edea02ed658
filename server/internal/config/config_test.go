package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeConfig(t, `server:
  mqtt:
    url: tcp://localhost:1883
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.Status.TTL != DefaultStatusTTL {
		t.Errorf("status.ttl: got %v, want %v", s.Status.TTL, DefaultStatusTTL)
	}
	if s.MQTT.TopicPrefix != "hydrostack" {
		t.Errorf("topic_prefix: got %q", s.MQTT.TopicPrefix)
	}
	if s.Archive.BatchSize != DefaultBatchSize || s.Archive.DSN() != "" {
		t.Errorf("archive: got %+v", s.Archive)
	}
}

func TestLoad_FullServer(t *testing.T) {
	t.Setenv("ARCHIVE_DSN", "postgres://hydro@db/hydro?sslmode=disable")
	p := writeConfig(t, `server:
  http_port: 9091
  auth:
    mode: apikey
    key_env: MY_KEY
    header: X-Hydro-Key
  mqtt:
    url: ssl://broker:8883
    username: server
    qos: 1
    topic_prefix: lab
  status:
    ttl: 10m
  archive:
    dsn_env: ARCHIVE_DSN
    batch_size: 100
  alerts:
    rules:
      - name: high-stage
        condition: reading.Level > 2.5
        severity: critical
        stations: [CC01]
    webhooks:
      - type: slack
        url_env: SLACK_URL
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != 9091 || s.Auth.Header != "X-Hydro-Key" {
		t.Errorf("server: got %+v", s)
	}
	if s.MQTT.URL != "ssl://broker:8883" || s.MQTT.QoS != 1 || s.MQTT.TopicPrefix != "lab" {
		t.Errorf("mqtt: got %+v", s.MQTT)
	}
	if s.Status.TTL != 10*time.Minute {
		t.Errorf("status.ttl: got %v", s.Status.TTL)
	}
	if s.Archive.DSN() == "" || s.Archive.BatchSize != 100 {
		t.Errorf("archive: got %+v", s.Archive)
	}
	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Stations[0] != "CC01" {
		t.Errorf("rules: got %+v", s.Alerts.Rules)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no broker", "server: {}", "server.mqtt"},
		{"bad auth", "server: {mqtt: {url: tcp://b:1883}, auth: {mode: oauth2}}", "auth.mode"},
		{"bad port", "server: {mqtt: {url: tcp://b:1883}, http_port: 70000}", "http_port"},
		{"bad condition", "server:\n  mqtt: {url: tcp://b:1883}\n  alerts:\n    rules:\n      - {name: r, condition: level high}", "field op value"},
		{"unnamed rule", "server:\n  mqtt: {url: tcp://b:1883}\n  alerts:\n    rules:\n      - {condition: uptime_sec < 60}", "name is required"},
		{"bad webhook", "server:\n  mqtt: {url: tcp://b:1883}\n  alerts:\n    webhooks:\n      - {type: pagerduty}", "unknown type"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("TEAMS_URL", "https://teams.example.com/webhook")
	w := WebhookConfig{Type: "teams", URLEnv: "TEAMS_URL"}
	if got := w.URL(); got != "https://teams.example.com/webhook" {
		t.Errorf("URL(): got %q", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/server.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
