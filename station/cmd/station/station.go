package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/station/internal/camera"
	"github.com/hydrostack/hydrostack/station/internal/config"
	"github.com/hydrostack/hydrostack/station/internal/control"
	"github.com/hydrostack/hydrostack/station/internal/datalog"
	"github.com/hydrostack/hydrostack/station/internal/digital"
	"github.com/hydrostack/hydrostack/station/internal/flowmeter"
	"github.com/hydrostack/hydrostack/station/internal/gpvar"
	"github.com/hydrostack/hydrostack/station/internal/measure"
	"github.com/hydrostack/hydrostack/station/internal/metrics"
	"github.com/hydrostack/hydrostack/station/internal/pacing"
	"github.com/hydrostack/hydrostack/station/internal/sampler"
	"github.com/hydrostack/hydrostack/station/internal/uplink"
)

var errNoSampler = errors.New("station: no sampler configured")

// station owns every long-lived component of the daemon.
type station struct {
	cfg     *config.Config
	started time.Time

	log     *datalog.Log
	vars    *gpvar.Store
	metrics *metrics.Metrics
	up      *uplink.Uplink
	engine  *pacing.Engine
	sched   *measure.Scheduler
	meter   *flowmeter.AV9000
	cam     *camera.Camera
	pump    control.Pump

	mu         sync.Mutex // guards lastStatus
	lastStatus time.Time

	pictureNow chan struct{}
}

func newStation(cfg *config.Config) (*station, error) {
	s := &station{
		cfg:        cfg,
		started:    time.Now(),
		metrics:    metrics.New(),
		pictureNow: make(chan struct{}, 1),
	}

	if err := os.MkdirAll(cfg.Station.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("station: data dir: %w", err)
	}
	var err error
	if s.vars, err = gpvar.Open(cfg.Station.VarsFile, gpvar.WithDefaults(cfg.Vars)); err != nil {
		return nil, err
	}
	if s.log, err = datalog.Open(cfg.Station.Datalog); err != nil {
		return nil, err
	}

	if cfg.Uplink != nil {
		s.up = uplink.New(*cfg.Uplink)
		s.up.OnDrop = s.metrics.IncUplinkDropped
	}

	trig, err := s.buildSampler()
	if err != nil {
		s.log.Close()
		return nil, err
	}
	rec := &recorder{station: cfg.Station.Name, log: s.log, obs: s.metrics}
	if s.up != nil {
		rec.up = s.up
	}
	s.engine, err = pacing.New(pacing.Config{
		Mode:     cfg.Pacing.Mode,
		Units:    cfg.Pacing.Units,
		Vars:     s.vars,
		Sampler:  trig,
		Recorder: rec,
		OnStart: func(context.Context) {
			slog.Info("sampling on: measurements switch to sampling intervals")
			select {
			case s.pictureNow <- struct{}{}:
			default:
			}
		},
		OnStop: func(context.Context) {
			slog.Info("sampling off: measurements return to normal intervals")
		},
	})
	if err != nil {
		s.log.Close()
		return nil, err
	}

	s.sched = measure.NewScheduler(s.log, s.engine)
	s.sched.Resolution = cfg.Station.Resolution
	s.sched.AddSink(s.sink)
	s.sched.OnCycle = s.cycle

	ms, err := s.buildMeasurements(cfg)
	if err != nil {
		s.log.Close()
		return nil, err
	}
	s.sched.Add(ms...)

	if fc := cfg.FlowMeter; fc != nil {
		power, err := openLine(fc.PowerLine)
		if err != nil {
			s.log.Close()
			return nil, err
		}
		s.meter = flowmeter.NewAV9000(fc.AV9000Config, nil, power)
		s.meter.OnRetry = func(int, error) { s.metrics.IncRetry("av9000") }
	}
	if cc := cfg.Camera; cc != nil {
		power, err := openLine(cc.PowerLine)
		if err != nil {
			s.log.Close()
			return nil, err
		}
		s.cam = camera.New(cc.Config, nil, power, slog.Default())
	}
	return s, nil
}

func (s *station) buildSampler() (pacing.Sampler, error) {
	sc := s.cfg.Sampler
	switch sc.Type {
	case "sd900":
		d := sampler.NewSD900(sc.SD900, nil)
		d.OnRetry = func(int, error) { s.metrics.IncRetry("sd900") }
		s.pump = d
		d.Volume = func() int {
			v, err := s.vars.Get(gpvar.AliquotVolML)
			if err != nil {
				return 0
			}
			return int(v)
		}
		return d, nil
	case "pulse":
		line, err := openLine(sc.PulseLine)
		if err != nil {
			return nil, err
		}
		return &sampler.Pulse{Line: line, Duration: sc.PulseDuration}, nil
	}
	return pacing.SamplerFunc(func(context.Context) error { return errNoSampler }), nil
}

// buildMeasurements wires cfg's measurements against a fresh environment.
func (s *station) buildMeasurements(cfg *config.Config) ([]*measure.Measurement, error) {
	tables, err := cfg.RatingTables()
	if err != nil {
		return nil, err
	}
	env := measure.Env{
		Tables:  tables,
		Vars:    s.vars,
		History: s.log,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Latest:  s.sched.Latest,
		OnRetry: func(label string) { s.metrics.IncRetry(label) },
	}
	ms := make([]*measure.Measurement, 0, len(cfg.Measurements))
	for _, mc := range cfg.Measurements {
		m, err := measure.Build(mc, env)
		if err != nil {
			return nil, fmt.Errorf("station: %w", err)
		}
		ms = append(ms, m)
	}
	return ms, nil
}

func openLine(name string) (digital.Line, error) {
	if name == "" {
		return nil, nil
	}
	return digital.Open(name)
}

// sink forwards every reading to metrics and the uplink.
func (s *station) sink(_ context.Context, r datalog.Reading) {
	s.metrics.ObserveReading(r.Label, r.Value, r.Good())
	if s.up == nil {
		return
	}
	if err := s.up.PublishReading(control.Reading(s.cfg.Station.Name, r)); err != nil {
		slog.Error("uplink: encode reading", "label", r.Label, "err", err)
	}
}

// cycle runs after each scheduler tick with readings.
func (s *station) cycle(_ context.Context, _ []datalog.Reading) {
	s.metrics.ObservePacing(s.engine.Snapshot())
	if s.up == nil {
		return
	}
	now := time.Now()
	s.mu.Lock()
	due := now.Sub(s.lastStatus) >= s.cfg.Station.StatusEvery
	if due {
		s.lastStatus = now
	}
	s.mu.Unlock()
	if !due {
		return
	}
	if err := s.up.PublishStatus(s.status()); err != nil {
		slog.Error("uplink: encode status", "err", err)
	}
}

func (s *station) status() types.StationStatus {
	snap := control.Snapshot{
		Station:  s.cfg.Station.Name,
		Started:  s.started,
		Pacing:   s.engine.Snapshot(),
		Readings: s.sched.LatestAll(),
	}
	if s.cam != nil {
		st := s.cam.Stats()
		snap.Camera = &st
	}
	return snap.Status(time.Now())
}

// handler serves /metrics and the control API.
func (s *station) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	opt := control.Options{
		Station: s.cfg.Station.Name,
		Program: s.engine,
		Vars:    s.vars,
		Log:     s.log,
		Pump:    s.pump,
		Status:  s.status,
	}
	if s.cam != nil {
		opt.Resolutions = camera.Resolutions()
	}
	api := control.New(opt)
	mux.Handle("/api/", s.cfg.Station.Auth.Middleware()(api))
	return mux
}

// run starts every loop and blocks until ctx is cancelled.
func (s *station) run(ctx context.Context) {
	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if s.up != nil {
		spawn(func() { s.up.Run(ctx) })
	}
	if s.meter != nil {
		spawn(func() {
			if err := s.meter.Setup(ctx, time.Now()); err != nil {
				slog.Error("av9000 setup failed, meter keeps its previous settings", "err", err)
			}
		})
	}
	if s.cam != nil {
		spawn(func() { s.cameraLoop(ctx) })
	}
	spawn(func() {
		if err := s.sched.Run(ctx); err != nil {
			slog.Error("scheduler stopped", "err", err)
		}
	})

	if addr := s.cfg.Station.HTTPAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: s.handler(), ReadHeaderTimeout: 10 * time.Second}
		spawn(func() {
			slog.Info("http listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		})
		spawn(func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	<-ctx.Done()
	wg.Wait()
	if err := s.log.Close(); err != nil {
		slog.Error("datalog close", "err", err)
	}
}

// cameraLoop takes a picture on every period boundary and whenever
// sampling starts.
func (s *station) cameraLoop(ctx context.Context) {
	cc := s.cfg.Camera
	preset := camera.Presets[cc.Preset]
	for {
		every := cc.Every
		if cc.SamplingEvery > 0 && s.engine.Snapshot().On {
			every = cc.SamplingEvery
		}
		now := time.Now()
		wait := now.Truncate(every).Add(every).Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.pictureNow:
			timer.Stop()
		case <-timer.C:
		}
		_, err := s.cam.TakePicture(ctx, preset)
		s.metrics.ObservePicture(err)
		if err != nil && ctx.Err() == nil {
			e := datalog.Event{Time: time.Now(), Label: "CameraFail", Message: err.Error()}
			if lerr := s.log.AppendEvent(ctx, e); lerr != nil {
				slog.Error("datalog: append event", "label", e.Label, "err", lerr)
			}
		}
	}
}

// reload applies a changed config. Measurements and the pacing mode switch
// live; device, storage and uplink settings need a restart.
func (s *station) reload(cfg *config.Config) {
	ms, err := s.buildMeasurements(cfg)
	if err != nil {
		slog.Error("config reload: measurements rejected, keeping previous set", "err", err)
		return
	}
	s.sched.Replace(ms...)
	if err := s.engine.SetMode(cfg.Pacing.Mode, cfg.Pacing.Units); err != nil {
		slog.Error("config reload: pacing mode rejected", "err", err)
	}
	slog.Info("config reload applied", "measurements", len(ms), "pacing_mode", cfg.Pacing.Mode)
}
