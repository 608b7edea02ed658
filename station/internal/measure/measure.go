package measure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hydrostack/hydrostack/pkg/rating"
	"github.com/hydrostack/hydrostack/station/internal/datalog"
	"github.com/hydrostack/hydrostack/station/internal/serialport"
)

// BadValue is logged in place of a value that could not be measured.
const BadValue = -99999

// Pacing hooks.
const (
	PacingFlow = "flow"
	PacingTime = "time"
)

// Config describes one measurement.
type Config struct {
	Label string `yaml:"label"`
	Units string `yaml:"units"`
	// Interval defaults to 5m. SamplingInterval, when set, applies while
	// sampling is on.
	Interval         time.Duration     `yaml:"interval"`
	SamplingInterval time.Duration     `yaml:"sampling_interval"`
	Source           SourceConfig      `yaml:"source"`
	Transforms       []TransformConfig `yaml:"transforms"`
	// NoLog keeps the reading out of the datalog; it is still published.
	NoLog bool `yaml:"no_log"`
	// Pacing feeds the pacing engine: flow passes the value as the flow
	// rate, time counts down by the interval.
	Pacing string `yaml:"pacing"`
	// PacingLabel, when set with Pacing, logs the engine's running total
	// under that label.
	PacingLabel string `yaml:"pacing_label"`
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	return c
}

func (c Config) validate() error {
	if c.Label == "" {
		return fmt.Errorf("measure: label is required")
	}
	switch c.Pacing {
	case "", PacingFlow, PacingTime:
	default:
		return fmt.Errorf("measure %q: pacing %q unknown: want flow|time", c.Label, c.Pacing)
	}
	if c.SamplingInterval < 0 {
		return fmt.Errorf("measure %q: sampling_interval must not be negative", c.Label)
	}
	return nil
}

// Vars is the read side of the GP variable bank.
type Vars interface {
	Get(label string) (float64, error)
}

// Env holds what sources and transforms need from the rest of the station.
type Env struct {
	Tables  map[string]*rating.Table
	Vars    Vars
	History datalog.Querier
	Open    serialport.Opener
	Client  *http.Client
	// Latest returns the last reading produced for label.
	Latest func(label string) (datalog.Reading, bool)
	// OnRetry is told the label of a measurement whose device retried.
	OnRetry func(label string)
}

func (e Env) latest(label string) (float64, error) {
	if e.Latest == nil {
		return 0, fmt.Errorf("%w: %q not measured", ErrNoValue, label)
	}
	r, ok := e.Latest(label)
	if !ok {
		return 0, fmt.Errorf("%w: %q not measured", ErrNoValue, label)
	}
	if !r.Good() {
		return 0, fmt.Errorf("%w: %q has bad quality", ErrNoValue, label)
	}
	return r.Value, nil
}

// Measurement is one configured measurement ready to run.
type Measurement struct {
	cfg   Config
	src   Source
	chain []Transform
}

// Build validates cfg and wires its source and transforms against env.
func Build(cfg Config, env Env) (*Measurement, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	src, err := buildSource(cfg.Label, cfg.Source, env)
	if err != nil {
		return nil, fmt.Errorf("measure %q: source: %w", cfg.Label, err)
	}
	m := &Measurement{cfg: cfg, src: src}
	for i, tc := range cfg.Transforms {
		t, err := buildTransform(tc, env)
		if err != nil {
			return nil, fmt.Errorf("measure %q: transform %d: %w", cfg.Label, i, err)
		}
		m.chain = append(m.chain, t)
	}
	return m, nil
}

// New wraps an already built source and chain. It is mainly for callers
// with sources not expressible in Config.
func New(cfg Config, src Source, chain ...Transform) (*Measurement, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Measurement{cfg: cfg, src: src, chain: chain}, nil
}

// Label returns the measurement label.
func (m *Measurement) Label() string { return m.cfg.Label }

// Config returns the measurement settings with defaults applied.
func (m *Measurement) Config() Config { return m.cfg }

// Interval returns the active interval.
func (m *Measurement) Interval(sampling bool) time.Duration {
	if sampling && m.cfg.SamplingInterval > 0 {
		return m.cfg.SamplingInterval
	}
	return m.cfg.Interval
}

// Measure reads the source and applies the chain. Errors are folded into a
// bad-quality reading rather than returned.
func (m *Measurement) Measure(ctx context.Context, at time.Time) datalog.Reading {
	r := datalog.Reading{Time: at, Label: m.cfg.Label, Units: m.cfg.Units, Quality: datalog.Good}
	v, err := m.src.Read(ctx)
	for i := 0; err == nil && i < len(m.chain); i++ {
		v, err = m.chain[i].Apply(ctx, v, at)
	}
	if err != nil {
		slog.Warn("measure: reading failed", "label", m.cfg.Label, "err", err)
		r.Value = BadValue
		r.Quality = datalog.Bad
		return r
	}
	r.Value = v
	return r
}
