package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeStation(t *testing.T, path, name string) {
	t.Helper()
	content := []byte("station:\n  name: " + name + "\ncamera:\n  port: {name: /dev/ttyS1}\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.yaml")
	writeStation(t, path, "CC01")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { got <- c.Station.Name })
	}()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	writeStation(t, path, "CC02")

	select {
	case name := <-got:
		if name != "CC02" {
			t.Errorf("reloaded station = %q, want CC02", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	// rewriting identical content does not reload
	writeStation(t, path, "CC02")
	select {
	case name := <-got:
		t.Errorf("unchanged file reloaded as %q", name)
	case <-time.After(2 * reloadDelay):
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}

func TestWatch_BadReloadKeepsWatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.yaml")
	writeStation(t, path, "CC01")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan string, 4)
	go func() { _ = Watch(ctx, path, func(c *Config) { got <- c.Station.Name }) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("station: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case name := <-got:
		t.Fatalf("invalid file reloaded as %q", name)
	case <-time.After(2 * reloadDelay):
	}

	writeStation(t, path, "CC03")
	select {
	case name := <-got:
		if name != "CC03" {
			t.Errorf("reloaded station = %q", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher stopped after a bad reload")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "station.yaml"), func(*Config) {})
	if err == nil {
		t.Error("Watch succeeded on a missing directory")
	}
}
