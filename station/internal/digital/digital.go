// Package digital drives the station's digital outputs and switched power
// lines through periph.io.
package digital

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Line is one output.
type Line interface {
	Out(high bool) error
	Name() string
}

var initOnce struct {
	sync.Once
	err error
}

// Init loads the host drivers. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			initOnce.err = fmt.Errorf("digital: host init: %w", err)
		}
	})
	return initOnce.err
}

type pinLine struct {
	pin gpio.PinIO
}

func (l pinLine) Out(high bool) error {
	lvl := gpio.Low
	if high {
		lvl = gpio.High
	}
	if err := l.pin.Out(lvl); err != nil {
		return fmt.Errorf("digital: %s: %w", l.pin.Name(), err)
	}
	return nil
}

func (l pinLine) Name() string { return l.pin.Name() }

// Open returns the GPIO line registered under name, e.g. "GPIO17".
func Open(name string) (Line, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("digital: no gpio named %q", name)
	}
	return pinLine{pin: p}, nil
}

// Pulse drives l high for d, then low. The line is driven low even when ctx
// is cancelled mid-pulse.
func Pulse(ctx context.Context, l Line, d time.Duration) error {
	if err := l.Out(true); err != nil {
		return err
	}
	werr := wait(ctx, d)
	if err := l.Out(false); err != nil {
		return err
	}
	return werr
}

// PowerCycle switches l off, waits off, switches it on and waits on.
func PowerCycle(ctx context.Context, l Line, off, on time.Duration) error {
	if err := l.Out(false); err != nil {
		return err
	}
	if err := wait(ctx, off); err != nil {
		return err
	}
	if err := l.Out(true); err != nil {
		return err
	}
	return wait(ctx, on)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Recorder is a Line that remembers every level written. Drivers use it in
// tests and when a line is configured as "none".
type Recorder struct {
	mu     sync.Mutex
	label  string
	Levels []bool
}

// NewRecorder returns a Recorder named label.
func NewRecorder(label string) *Recorder { return &Recorder{label: label} }

func (r *Recorder) Out(high bool) error {
	r.mu.Lock()
	r.Levels = append(r.Levels, high)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Name() string { return r.label }

// History returns a copy of the levels written.
func (r *Recorder) History() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.Levels...)
}
