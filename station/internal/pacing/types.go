package pacing

import (
	"context"
	"fmt"
	"time"
)

// Mode selects how aliquots are paced.
type Mode string

const (
	ModeFlow Mode = "flow"
	ModeTime Mode = "time"
	ModeNone Mode = "none"
)

// Units is the unit of the flow measurement feeding a flow-paced program.
type Units string

const (
	CFS Units = "cfs"
	GPM Units = "gpm"
	M3S Units = "m3s"
)

// VolumeUnits returns the unit pacing volumes are expressed in.
func (u Units) VolumeUnits() string {
	switch u {
	case CFS:
		return "cf"
	case GPM:
		return "gal"
	case M3S:
		return "m3"
	}
	return ""
}

// Volume returns the volume passed at rate over d.
func (u Units) Volume(rate float64, d time.Duration) float64 {
	switch u {
	case GPM:
		return rate * d.Minutes()
	default:
		return rate * d.Seconds()
	}
}

// Valid reports whether u is a known flow unit.
func (u Units) Valid() bool {
	switch u {
	case CFS, GPM, M3S:
		return true
	}
	return false
}

// Sampler takes one aliquot.
type Sampler interface {
	Trigger(ctx context.Context) error
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) error

// Trigger calls f.
func (f SamplerFunc) Trigger(ctx context.Context) error { return f(ctx) }

// Vars is the GP variable bank.
type Vars interface {
	Get(label string) (float64, error)
	Set(label string, v float64) error
}

// Event labels recorded by the engine.
const (
	EventVolumeTrig  = "VolumeTrig"
	EventTimeTrig    = "TimeTrig"
	EventTriggered   = "Triggered Sampler"
	EventManual      = "Trigger Manually"
	EventNewPacing   = "NewPacing"
	EventTriggerFail = "TriggerFail"
	EventStarted     = "SamplingOn"
	EventStopped     = "SamplingOff"
)

// Event is a program event worth logging.
type Event struct {
	Time    time.Time
	Label   string
	Value   float64
	Message string
}

// SampleRecord describes one aliquot taken.
type SampleRecord struct {
	Time          time.Time
	Pacing        float64
	Bottle        int
	Aliquot       int
	TotalAliquots int
}

// Recorder receives events and sample records.
type Recorder interface {
	Event(ctx context.Context, e Event)
	Sample(ctx context.Context, s SampleRecord)
}

// State is the program state. Snapshot returns a copy.
type State struct {
	On               bool
	Mode             Mode
	Composite        bool
	Pacing           float64
	Total            float64
	Bottle           int
	AliquotsInBottle int
	TotalAliquots    int
	AliquotML        float64
	BottleSizeL      float64
	BottleVolumeML   float64
	LastSample       time.Time
	Triggers         int
	Failures         int
}

// Capacity returns how many aliquots fit in one bottle.
func (s State) Capacity() float64 {
	if s.AliquotML <= 0 {
		return 0
	}
	return s.BottleSizeL / (s.AliquotML / 1000)
}

// Full reports whether the current bottle has reached capacity.
func (s State) Full() bool {
	c := s.Capacity()
	return c > 0 && float64(s.AliquotsInBottle) >= c
}

func newPacingMessage(pacing float64, bottle int) string {
	return fmt.Sprintf("NewPacing: %.0f NewBottle: %d", pacing, bottle)
}
