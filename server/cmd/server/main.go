package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hydrostack/hydrostack/server/internal/alerts"
	"github.com/hydrostack/hydrostack/server/internal/api"
	"github.com/hydrostack/hydrostack/server/internal/archive"
	"github.com/hydrostack/hydrostack/server/internal/config"
	"github.com/hydrostack/hydrostack/server/internal/metrics"
	"github.com/hydrostack/hydrostack/server/internal/receiver"
	"github.com/hydrostack/hydrostack/server/internal/store"
	"github.com/hydrostack/hydrostack/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "server.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard static files from this directory; leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("hydrostack-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	s := cfg.Server

	slog.Info("config loaded",
		"http_port", s.HTTPPort,
		"auth_mode", s.Auth.Mode,
		"broker", s.MQTT.URL,
		"topic_prefix", s.MQTT.TopicPrefix,
		"status_ttl", s.Status.TTL,
		"archive", s.Archive.DSN() != "",
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// Status store with background TTL eviction.
	st := store.New(s.Status.TTL)
	spawn(func() { st.Run(ctx) })

	// WebSocket hub: snapshots every WSInterval plus pushed updates.
	hub := ws.New(st, s.WSInterval)
	spawn(func() { hub.Run(ctx) })

	m := metrics.New(st.Count, hub.Count)

	// Alert engine evaluates rules on every incoming status.
	alertEngine := alerts.New(s.Alerts)
	alertEngine.OnChange = func(a alerts.Alert) {
		m.ObserveAlert(a.RuleName, a.State)
		hub.Broadcast(a.Station, ws.EventAlert, a)
	}

	apiOpt := api.Options{Alerts: alertEngine}
	recOpt := receiver.Options{Alerts: alertEngine, Hub: hub, OnMessage: m.ObserveMessage}

	// Optional Postgres archive.
	if dsn := s.Archive.DSN(); dsn != "" {
		arc, err := openArchive(ctx, dsn, s.Archive)
		if err != nil {
			slog.Error("failed to open archive", "err", err)
			os.Exit(1)
		}
		defer arc.Close() //nolint:errcheck
		arc.OnDrop = m.ArchiveDropped
		spawn(func() { arc.Run(ctx) })
		apiOpt.Archive = arc
		recOpt.Archive = arc
	}

	rec := receiver.New(st, recOpt)
	spawn(func() {
		if err := rec.Run(ctx, s.MQTT); err != nil {
			slog.Error("receiver stopped", "err", err)
			cancel()
		}
	})

	// Combined HTTP server: REST API, WebSocket hub and metrics on HTTPPort.
	// Health stays open for load balancer probes.
	guard := s.Auth.Middleware()
	apiHandler := api.New(st, apiOpt)
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/v1/health", apiHandler)
	httpMux.Handle("/api/", guard(apiHandler))
	httpMux.Handle("/ws/stream", guard(hub))
	httpMux.Handle("/metrics", m.Handler())

	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", s.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("hydrostack-server shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	wg.Wait()
}

func openArchive(ctx context.Context, dsn string, cfg config.ArchiveConfig) (*archive.Archive, error) {
	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	db, err := archive.Open(openCtx, dsn)
	if err != nil {
		return nil, err
	}
	arc := archive.New(db, cfg.BatchSize, cfg.FlushInterval)
	if err := arc.Init(openCtx); err != nil {
		arc.Close() //nolint:errcheck
		return nil, err
	}
	slog.Info("archive ready", "batch_size", cfg.BatchSize, "flush_interval", cfg.FlushInterval)
	return arc, nil
}
