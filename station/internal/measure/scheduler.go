package measure

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hydrostack/hydrostack/station/internal/datalog"
	"github.com/hydrostack/hydrostack/station/internal/pacing"
)

// Pacer is the part of the pacing engine the scheduler drives.
type Pacer interface {
	FlowTick(ctx context.Context, rate float64, interval time.Duration) (float64, error)
	TimeTick(ctx context.Context, interval time.Duration) (float64, error)
	Snapshot() pacing.State
}

// Appender writes readings to the datalog.
type Appender interface {
	AppendReading(ctx context.Context, r datalog.Reading) error
}

// Sink receives every reading the scheduler produces.
type Sink func(ctx context.Context, r datalog.Reading)

// Scheduler runs measurements on their intervals.
type Scheduler struct {
	log   Appender
	pacer Pacer
	sinks []Sink

	// OnCycle is called after every tick that produced readings.
	OnCycle func(ctx context.Context, rs []datalog.Reading)
	// Resolution is the wake-up period; defaults to 1s.
	Resolution time.Duration
	Now        func() time.Time

	mu     sync.RWMutex
	ms     []*Measurement
	latest map[string]datalog.Reading
	due    map[string]time.Time
}

// NewScheduler returns an empty scheduler. log and pacer may be nil.
func NewScheduler(log Appender, pacer Pacer) *Scheduler {
	return &Scheduler{
		log:        log,
		pacer:      pacer,
		Resolution: time.Second,
		Now:        time.Now,
		latest:     make(map[string]datalog.Reading),
		due:        make(map[string]time.Time),
	}
}

// Add appends measurements; they run in the order added.
func (s *Scheduler) Add(ms ...*Measurement) {
	s.mu.Lock()
	s.ms = append(s.ms, ms...)
	s.mu.Unlock()
}

// Replace swaps the measurement set. Labels that survive keep their next
// run time; the schedule of removed labels is forgotten.
func (s *Scheduler) Replace(ms ...*Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := make(map[string]bool, len(ms))
	for _, m := range ms {
		keep[m.Label()] = true
	}
	for label := range s.due {
		if !keep[label] {
			delete(s.due, label)
		}
	}
	s.ms = append([]*Measurement(nil), ms...)
}

// AddSink registers fn for every reading.
func (s *Scheduler) AddSink(fn Sink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, fn)
	s.mu.Unlock()
}

// Latest returns the last reading for label.
func (s *Scheduler) Latest(label string) (datalog.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[label]
	return r, ok
}

// LatestAll returns a copy of the last reading of every label.
func (s *Scheduler) LatestAll() map[string]datalog.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]datalog.Reading, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	res := s.Resolution
	if res <= 0 {
		res = time.Second
	}
	t := time.NewTicker(res)
	defer t.Stop()

	s.Tick(ctx, s.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Tick(ctx, s.Now())
		}
	}
}

// Tick runs every measurement due at now and returns the readings made.
// A measurement runs on its first tick and then at interval boundaries.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []datalog.Reading {
	sampling := s.pacer != nil && s.pacer.Snapshot().On

	s.mu.RLock()
	ms := append([]*Measurement(nil), s.ms...)
	s.mu.RUnlock()

	var out []datalog.Reading
	for _, m := range ms {
		iv := m.Interval(sampling)
		if !s.isDue(m.Label(), now, iv) {
			continue
		}
		r := m.Measure(ctx, now)
		s.record(ctx, m, r)
		out = append(out, r)
		if pr, ok := s.pace(ctx, m, r, iv); ok {
			s.record(ctx, m, pr)
			out = append(out, pr)
		}
	}
	if len(out) > 0 && s.OnCycle != nil {
		s.OnCycle(ctx, out)
	}
	return out
}

// isDue reports whether label should run at now and books its next run.
// A shorter interval pulls a pending run forward.
func (s *Scheduler) isDue(label string, now time.Time, iv time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	following := now.Truncate(iv).Add(iv)
	next, seen := s.due[label]
	if seen {
		if next.After(following) {
			next = following
			s.due[label] = next
		}
		if now.Before(next) {
			return false
		}
	}
	s.due[label] = following
	return true
}

func (s *Scheduler) pace(ctx context.Context, m *Measurement, r datalog.Reading, iv time.Duration) (datalog.Reading, bool) {
	cfg := m.Config()
	if s.pacer == nil || cfg.Pacing == "" {
		return datalog.Reading{}, false
	}
	var (
		total float64
		err   error
	)
	switch cfg.Pacing {
	case PacingFlow:
		if !r.Good() {
			return datalog.Reading{}, false
		}
		total, err = s.pacer.FlowTick(ctx, r.Value, iv)
	case PacingTime:
		total, err = s.pacer.TimeTick(ctx, iv)
	}
	if err != nil {
		slog.Error("measure: pacing tick", "label", cfg.Label, "err", err)
	}
	if cfg.PacingLabel == "" {
		return datalog.Reading{}, false
	}
	pr := datalog.Reading{Time: r.Time, Label: cfg.PacingLabel, Value: total, Quality: datalog.Good}
	if err != nil {
		pr.Quality = datalog.Bad
	}
	return pr, true
}

func (s *Scheduler) record(ctx context.Context, m *Measurement, r datalog.Reading) {
	s.mu.Lock()
	s.latest[r.Label] = r
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	if s.log != nil && !m.Config().NoLog {
		if err := s.log.AppendReading(ctx, r); err != nil {
			slog.Error("measure: datalog append", "label", r.Label, "err", err)
		}
	}
	for _, fn := range sinks {
		fn(ctx, r)
	}
}
