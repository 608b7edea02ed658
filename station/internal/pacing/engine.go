package pacing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hydrostack/hydrostack/station/internal/gpvar"
)

// sampleLogSize is the number of recent SampleRecords kept for display.
const sampleLogSize = 100

// ErrAlreadyOn is returned by Start when sampling is already running.
var ErrAlreadyOn = errors.New("pacing: sampling already on")

// Config wires an Engine.
type Config struct {
	Mode  Mode
	Units Units

	Vars     Vars
	Sampler  Sampler
	Recorder Recorder

	// OnStart and OnStop run after sampling is switched on or off. The
	// station uses them to change measurement intervals.
	OnStart func(ctx context.Context)
	OnStop  func(ctx context.Context)

	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine runs one sampler program. All exported methods are safe for
// concurrent use; operations are serialised so a slow sampler blocks the
// next tick rather than racing it.
type Engine struct {
	cfg Config

	op sync.Mutex // serialises operations

	mu      sync.Mutex // guards state and samples
	state   State
	samples []SampleRecord
}

// New returns an Engine with its state loaded from the variable bank.
func New(cfg Config) (*Engine, error) {
	if cfg.Vars == nil || cfg.Sampler == nil {
		return nil, fmt.Errorf("pacing: vars and sampler are required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeNone
	}
	if cfg.Mode == ModeFlow && !cfg.Units.Valid() {
		return nil, fmt.Errorf("pacing: flow units %q unknown: want cfs|gpm|m3s", cfg.Units)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{cfg: cfg}

	st := State{Mode: cfg.Mode}
	if err := e.refresh(&st); err != nil {
		return nil, err
	}
	pacing, bottle, err := e.readPacing()
	if err != nil {
		return nil, err
	}
	st.Pacing, st.Bottle = pacing, bottle
	st.Total = e.initialTotal(st)
	e.commit(st)
	return e, nil
}

// Snapshot returns a copy of the current State.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Samples returns the most recent sample records, oldest first.
func (e *Engine) Samples() []SampleRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SampleRecord, len(e.samples))
	copy(out, e.samples)
	return out
}

// SetMode changes the pacing mode, e.g. after a config reload. The running
// total restarts for the new mode.
func (e *Engine) SetMode(m Mode, u Units) error {
	if m == ModeFlow && !u.Valid() {
		return fmt.Errorf("pacing: flow units %q unknown: want cfs|gpm|m3s", u)
	}
	e.op.Lock()
	defer e.op.Unlock()
	e.cfg.Mode, e.cfg.Units = m, u
	st := e.Snapshot()
	st.Mode = m
	st.Total = e.initialTotal(st)
	e.commit(st)
	return nil
}

// Start switches sampling on and resets the event counters. In time mode
// the first aliquot is taken immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.op.Lock()
	defer e.op.Unlock()

	st := e.Snapshot()
	if err := e.refresh(&st); err != nil {
		return err
	}
	if st.On {
		slog.Info("pacing: start requested but sampling already on")
		return ErrAlreadyOn
	}
	if err := e.cfg.Vars.Set(gpvar.SamplingOn, 1); err != nil {
		return fmt.Errorf("pacing: start: %w", err)
	}
	pacing, bottle, err := e.readPacing()
	if err != nil {
		return err
	}
	st.On = true
	st.Pacing, st.Bottle = pacing, bottle
	st.TotalAliquots, st.AliquotsInBottle, st.BottleVolumeML = 0, 0, 0
	st.Total = 0

	e.record(ctx, Event{Label: EventStarted, Value: pacing})
	if e.cfg.OnStart != nil {
		e.cfg.OnStart(ctx)
	}

	if st.Mode == ModeTime {
		if err := e.trigger(ctx, &st); err != nil {
			slog.Warn("pacing: initial time-paced aliquot failed", "err", err)
		}
		st.Total = st.Pacing
	}
	e.commit(st)
	return nil
}

// Stop switches sampling off.
func (e *Engine) Stop(ctx context.Context) error {
	e.op.Lock()
	defer e.op.Unlock()

	if err := e.cfg.Vars.Set(gpvar.SamplingOn, 0); err != nil {
		return fmt.Errorf("pacing: stop: %w", err)
	}
	st := e.Snapshot()
	st.On = false
	e.commit(st)

	e.record(ctx, Event{Label: EventStopped, Value: float64(st.TotalAliquots)})
	if e.cfg.OnStop != nil {
		e.cfg.OnStop(ctx)
	}
	return nil
}

// FlowTick accumulates rate over interval and triggers the sampler when the
// running volume reaches the pacing volume. It returns the running total
// before any pacing volume is subtracted.
//
// Only one aliquot is taken per tick; the excess carries into the next.
// A failed trigger leaves the total untouched so the next tick retries.
func (e *Engine) FlowTick(ctx context.Context, rate float64, interval time.Duration) (float64, error) {
	e.op.Lock()
	defer e.op.Unlock()

	st := e.Snapshot()
	if err := e.refresh(&st); err != nil {
		return st.Total, err
	}
	if !st.On || st.Mode != ModeFlow {
		e.commit(st)
		return st.Total, nil
	}

	if rate > 0 {
		st.Total += e.cfg.Units.Volume(rate, interval)
	}
	if err := e.checkPacing(ctx, &st); err != nil {
		e.commit(st)
		return st.Total, err
	}

	total := st.Total
	var err error
	if st.Pacing > 0 && st.Total >= st.Pacing {
		if err = e.trigger(ctx, &st); err == nil {
			e.record(ctx, Event{Label: EventVolumeTrig, Value: st.Total})
			st.Total -= st.Pacing
		}
	}
	e.commit(st)
	return total, err
}

// TimeTick counts the running total down by interval and triggers the
// sampler when it reaches zero. It returns the minutes to the next aliquot.
func (e *Engine) TimeTick(ctx context.Context, interval time.Duration) (float64, error) {
	e.op.Lock()
	defer e.op.Unlock()

	st := e.Snapshot()
	if err := e.refresh(&st); err != nil {
		return st.Total, err
	}
	pacing, _, err := e.readPacing()
	if err != nil {
		return st.Total, err
	}
	st.Pacing = pacing
	if !st.On || st.Mode != ModeTime {
		e.commit(st)
		return st.Total, nil
	}

	st.Total -= interval.Minutes()
	if st.Total <= 0 {
		if err = e.trigger(ctx, &st); err == nil {
			e.record(ctx, Event{Label: EventTimeTrig, Value: st.Total})
			st.Total = st.Pacing
		}
	}
	if bottle, berr := e.cfg.Vars.Get(gpvar.BottleNum); berr == nil {
		st.Bottle = int(bottle)
	}
	e.commit(st)
	return st.Total, err
}

// ResetParams reloads pacing and bottle from the variable bank and zeroes
// the counters and sample log.
func (e *Engine) ResetParams(ctx context.Context) error {
	e.op.Lock()
	defer e.op.Unlock()

	st := e.Snapshot()
	if err := e.refresh(&st); err != nil {
		return err
	}
	pacing, bottle, err := e.readPacing()
	if err != nil {
		return err
	}
	st.Pacing, st.Bottle = pacing, bottle
	st.Total = e.initialTotal(st)
	st.TotalAliquots, st.AliquotsInBottle, st.BottleVolumeML = 0, 0, 0

	e.mu.Lock()
	e.samples = nil
	e.mu.Unlock()
	e.commit(st)
	slog.Info("pacing: parameters reset", "pacing", pacing, "bottle", bottle)
	return nil
}

// ResetCarousel returns the carousel to bottle 1.
func (e *Engine) ResetCarousel(ctx context.Context) error {
	e.op.Lock()
	defer e.op.Unlock()

	if err := e.cfg.Vars.Set(gpvar.BottleNum, 1); err != nil {
		return fmt.Errorf("pacing: reset carousel: %w", err)
	}
	st := e.Snapshot()
	st.Bottle = 1
	e.commit(st)
	return nil
}

// ManualTrigger fires the sampler outside the program. Counters are not
// changed.
func (e *Engine) ManualTrigger(ctx context.Context) error {
	e.op.Lock()
	defer e.op.Unlock()

	if err := e.cfg.Sampler.Trigger(ctx); err != nil {
		e.record(ctx, Event{Label: EventTriggerFail, Value: 0, Message: err.Error()})
		return fmt.Errorf("pacing: manual trigger: %w", err)
	}
	e.record(ctx, Event{Label: EventManual, Value: 1})
	return nil
}

// checkPacing applies operator changes to sample_pacing and bottle_num.
func (e *Engine) checkPacing(ctx context.Context, st *State) error {
	pacing, bottle, err := e.readPacing()
	if err != nil {
		return err
	}
	if pacing != st.Pacing {
		if bottle != st.Bottle {
			st.Bottle = bottle
			st.AliquotsInBottle = 0
			st.BottleVolumeML = 0
		} else if st.Pacing > 0 && pacing > 0 {
			st.BottleVolumeML /= pacing / st.Pacing
		}
		st.Pacing = pacing
		e.record(ctx, Event{
			Label:   EventNewPacing,
			Value:   float64(st.Bottle),
			Message: newPacingMessage(pacing, st.Bottle),
		})
		return nil
	}
	if st.Composite && bottle != st.Bottle {
		slog.Info("pacing: new bottle", "previous", st.Bottle, "bottle", bottle)
		st.Bottle = bottle
		st.AliquotsInBottle = 0
		st.BottleVolumeML = 0
	}
	return nil
}

// trigger fires the sampler and, on success, updates the aliquot counters.
func (e *Engine) trigger(ctx context.Context, st *State) error {
	if err := e.cfg.Sampler.Trigger(ctx); err != nil {
		st.Failures++
		e.record(ctx, Event{Label: EventTriggerFail, Value: st.Total, Message: err.Error()})
		return fmt.Errorf("pacing: trigger: %w", err)
	}

	st.TotalAliquots++
	if st.Composite {
		st.AliquotsInBottle++
		st.BottleVolumeML += st.AliquotML
	} else {
		st.Bottle++
		if err := e.cfg.Vars.Set(gpvar.BottleNum, float64(st.Bottle)); err != nil {
			slog.Warn("pacing: persist bottle number", "bottle", st.Bottle, "err", err)
		}
	}
	st.Triggers++
	now := e.cfg.Now()
	st.LastSample = now

	e.record(ctx, Event{Time: now, Label: EventTriggered, Value: float64(st.TotalAliquots)})
	rec := SampleRecord{
		Time:          now,
		Pacing:        st.Pacing,
		Bottle:        st.Bottle,
		Aliquot:       st.AliquotsInBottle,
		TotalAliquots: st.TotalAliquots,
	}
	e.cfg.Recorder.Sample(ctx, rec)

	e.mu.Lock()
	e.samples = append(e.samples, rec)
	if len(e.samples) > sampleLogSize {
		e.samples = e.samples[len(e.samples)-sampleLogSize:]
	}
	e.mu.Unlock()
	return nil
}

// refresh reads the per-tick parameters from the variable bank.
func (e *Engine) refresh(st *State) error {
	on, err := e.cfg.Vars.Get(gpvar.SamplingOn)
	if err != nil {
		return fmt.Errorf("pacing: %w", err)
	}
	aliquot, err := e.cfg.Vars.Get(gpvar.AliquotVolML)
	if err != nil {
		return fmt.Errorf("pacing: %w", err)
	}
	size, err := e.cfg.Vars.Get(gpvar.BottleSizeL)
	if err != nil {
		return fmt.Errorf("pacing: %w", err)
	}
	comp, err := e.cfg.Vars.Get(gpvar.CarouselOrComp)
	if err != nil {
		return fmt.Errorf("pacing: %w", err)
	}
	st.On = on == 1
	st.AliquotML = aliquot
	st.BottleSizeL = size
	st.Composite = comp == 1
	st.Mode = e.cfg.Mode
	return nil
}

func (e *Engine) readPacing() (float64, int, error) {
	pacing, err := e.cfg.Vars.Get(gpvar.SamplePacing)
	if err != nil {
		return 0, 0, fmt.Errorf("pacing: %w", err)
	}
	bottle, err := e.cfg.Vars.Get(gpvar.BottleNum)
	if err != nil {
		return 0, 0, fmt.Errorf("pacing: %w", err)
	}
	return pacing, int(bottle), nil
}

func (e *Engine) initialTotal(st State) float64 {
	if st.Mode == ModeFlow {
		return 0
	}
	return st.Pacing
}

func (e *Engine) commit(st State) {
	e.mu.Lock()
	e.state = st
	e.mu.Unlock()
}

func (e *Engine) record(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.cfg.Now()
	}
	e.cfg.Recorder.Event(ctx, ev)
}

type nopRecorder struct{}

func (nopRecorder) Event(context.Context, Event)         {}
func (nopRecorder) Sample(context.Context, SampleRecord) {}
