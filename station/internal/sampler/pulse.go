package sampler

import (
	"context"
	"time"

	"github.com/hydrostack/hydrostack/station/internal/digital"
)

// DefaultPulse is the contact-closure length most samplers accept.
const DefaultPulse = 500 * time.Millisecond

// Pulse triggers a sampler by pulsing a digital output.
type Pulse struct {
	Line     digital.Line
	Duration time.Duration
}

// Trigger pulses the line.
func (p *Pulse) Trigger(ctx context.Context) error {
	d := p.Duration
	if d <= 0 {
		d = DefaultPulse
	}
	return digital.Pulse(ctx, p.Line, d)
}
