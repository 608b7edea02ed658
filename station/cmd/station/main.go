package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hydrostack/hydrostack/station/internal/config"
)

func main() {
	configPath := flag.String("config", "station.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("hydrostack-station starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"station", cfg.Station.Name,
		"measurements", len(cfg.Measurements),
		"pacing_mode", cfg.Pacing.Mode,
		"sampler", cfg.Sampler.Type,
		"uplink", cfg.Uplink != nil,
	)

	st, err := newStation(cfg)
	if err != nil {
		slog.Error("failed to start station", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := config.Watch(ctx, *configPath, st.reload); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	st.run(ctx)
	slog.Info("hydrostack-station shut down")
}
