package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// DefaultPrefix is the first topic level of all station telemetry.
const DefaultPrefix = "hydrostack"

const connectTimeout = 10 * time.Second

// Topic kinds.
const (
	KindReadings = "readings"
	KindEvents   = "events"
	KindStatus   = "status"
)

// Topic returns {prefix}/{station}/{kind}.
func Topic(prefix, station, kind string) string {
	return prefix + "/" + station + "/" + kind
}

// Filter returns the subscription matching every station and kind.
func Filter(prefix string) string {
	return prefix + "/+/+"
}

// ParseTopic splits a telemetry topic into station and kind.
func ParseTopic(topic string) (station, kind string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return "", "", false
	}
	station, kind = parts[len(parts)-2], parts[len(parts)-1]
	if station == "" {
		return "", "", false
	}
	switch kind {
	case KindReadings, KindEvents, KindStatus:
		return station, kind, true
	}
	return "", "", false
}

// Config selects a broker and how to authenticate to it.
type Config struct {
	// URL is a paho URL such as tcp://broker:1883 or ssl://broker:8883.
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	// PasswordEnv names the env var holding the broker password.
	PasswordEnv string    `yaml:"password_env"`
	TLS         TLSConfig `yaml:"tls"`
	QoS         byte      `yaml:"qos"`
}

// Password reads the password from PasswordEnv.
func (c Config) Password() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// Validate checks the fields every client needs.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2")
	}
	return nil
}

// Options builds paho client options. Without a ClientID the client is
// named {idPrefix}-{random}. Paho's auto-reconnect is off; callers own
// reconnection.
func (c Config) Options(idPrefix string) (*mqtt.ClientOptions, error) {
	id := c.ClientID
	if id == "" {
		id = idPrefix + "-" + uuid.NewString()[:8]
	}
	opts := mqtt.NewClientOptions().
		AddBroker(c.URL).
		SetClientID(id).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(connectTimeout)
	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password())
	}
	if c.TLS.Enabled() {
		tc, err := c.TLS.Build()
		if err != nil {
			return nil, fmt.Errorf("broker: tls: %w", err)
		}
		opts.SetTLSConfig(tc)
	}
	return opts, nil
}

// Wait blocks until tok completes or ctx is done.
func Wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tok.Done():
		return tok.Error()
	}
}

// TLSConfig selects broker TLS. A client certificate enables mutual TLS.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Enabled reports whether any TLS setting is present.
func (t TLSConfig) Enabled() bool {
	return t.CAFile != "" || t.CertFile != "" || t.InsecureSkipVerify
}

// Build loads the files named in t.
func (t TLSConfig) Build() (*tls.Config, error) {
	tc := &tls.Config{
		InsecureSkipVerify: t.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if t.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	if t.CAFile != "" {
		caPEM, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", t.CAFile)
		}
		tc.RootCAs = pool
	}
	return tc, nil
}
