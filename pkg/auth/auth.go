package auth

import (
	"crypto/subtle"
	"net/http"
	"os"
)

// DefaultHeader carries the key when Config.Header is empty.
const DefaultHeader = "X-API-Key"

// Config selects the authentication mode.
type Config struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv names the env var holding the key.
	KeyEnv string `yaml:"key_env"`

	// Header defaults to X-API-Key.
	Header string `yaml:"header"`
}

// Key resolves the key from KeyEnv.
func (c Config) Key() string {
	if c.KeyEnv == "" {
		return ""
	}
	return os.Getenv(c.KeyEnv)
}

// Middleware returns the APIKey middleware for c.
func (c Config) Middleware() func(http.Handler) http.Handler {
	h := c.Header
	if h == "" {
		h = DefaultHeader
	}
	return func(next http.Handler) http.Handler {
		return APIKey(c.Mode, h, c.Key(), next)
	}
}

// APIKey enforces key on every request to next.
func APIKey(mode, header, key string, next http.Handler) http.Handler {
	if mode != "apikey" || key == "" {
		return next
	}
	want := []byte(key)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(header)
		if got == "" {
			got = r.URL.Query().Get("api_key")
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid api key"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
