package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hydrostack/hydrostack/pkg/auth"
	"github.com/hydrostack/hydrostack/pkg/broker"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is "field op value" over a station status, e.g.
	// "reading.Level > 2.5", "pacing.failures >= 3", "camera.no_sd > 0".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`

	// Stations limits the rule to the named stations; empty means all.
	Stations []string `yaml:"stations"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort      = 8080
	DefaultStatusTTL     = 15 * time.Minute
	DefaultWSInterval    = 5 * time.Second
	DefaultBatchSize     = 500
	DefaultFlushInterval = 5 * time.Second
)

// Config holds the server configuration parsed from the `server:` section.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth guards the REST API and WebSocket hub. /api/v1/health stays open.
	Auth auth.Config `yaml:"auth"`

	// MQTT is the broker stations publish to.
	MQTT MQTTConfig `yaml:"mqtt"`

	// Status controls in-memory station status retention.
	Status StatusConfig `yaml:"status"`

	// WSInterval is how often the hub pushes a full snapshot.
	WSInterval time.Duration `yaml:"ws_interval"`

	// Archive is disabled unless a DSN is configured.
	Archive ArchiveConfig `yaml:"archive"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// MQTTConfig selects the broker and the telemetry topic prefix.
type MQTTConfig struct {
	broker.Config `yaml:",inline"`

	// TopicPrefix defaults to "hydrostack".
	TopicPrefix string `yaml:"topic_prefix"`
}

// StatusConfig controls in-memory station status retention.
type StatusConfig struct {
	// TTL is how long a station stays live after its last message.
	// Default: 15m.
	TTL time.Duration `yaml:"ttl"`
}

// ArchiveConfig configures the Postgres archive of readings and events.
type ArchiveConfig struct {
	// DSNEnv names the env var holding the lib/pq connection string.
	DSNEnv string `yaml:"dsn_env"`

	// BatchSize rows are inserted per transaction (default 500).
	BatchSize int `yaml:"batch_size"`

	// FlushInterval bounds how long a partial batch waits (default 5s).
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DSN returns the connection string resolved from the environment.
func (a ArchiveConfig) DSN() string {
	if a.DSNEnv == "" {
		return ""
	}
	return os.Getenv(a.DSNEnv)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:   DefaultHTTPPort,
			MQTT:       MQTTConfig{TopicPrefix: broker.DefaultPrefix},
			Status:     StatusConfig{TTL: DefaultStatusTTL},
			WSInterval: DefaultWSInterval,
			Archive: ArchiveConfig{
				BatchSize:     DefaultBatchSize,
				FlushInterval: DefaultFlushInterval,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if err := s.MQTT.Validate(); err != nil {
		return fmt.Errorf("server.mqtt: %w", err)
	}
	if s.Status.TTL <= 0 {
		return fmt.Errorf("server.status.ttl must be positive")
	}
	if s.WSInterval <= 0 {
		return fmt.Errorf("server.ws_interval must be positive")
	}
	if s.Archive.BatchSize <= 0 || s.Archive.FlushInterval <= 0 {
		return fmt.Errorf("server.archive: batch_size and flush_interval must be positive")
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("server.alerts.rules[%d] %q: condition %q is not \"field op value\"", i, r.Name, r.Condition)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
