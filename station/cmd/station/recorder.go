package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/station/internal/datalog"
	"github.com/hydrostack/hydrostack/station/internal/pacing"
)

type eventLog interface {
	AppendEvent(ctx context.Context, e datalog.Event) error
	AppendSample(ctx context.Context, s datalog.Sample) error
}

type eventPublisher interface {
	PublishEvent(e types.Event) error
}

type triggerObserver interface {
	ObserveTrigger(err error)
}

// recorder fans pacing events out to the datalog, the uplink and metrics.
// up and obs may be nil.
type recorder struct {
	station string
	log     eventLog
	up      eventPublisher
	obs     triggerObserver
}

func (r *recorder) Event(ctx context.Context, e pacing.Event) {
	slog.Info("pacing event", "label", e.Label, "value", e.Value, "message", e.Message)
	if err := r.log.AppendEvent(ctx, datalog.Event{Time: e.Time, Label: e.Label, Value: e.Value, Message: e.Message}); err != nil {
		slog.Error("datalog: append event", "label", e.Label, "err", err)
	}
	if r.obs != nil {
		switch e.Label {
		case pacing.EventTriggered, pacing.EventManual:
			r.obs.ObserveTrigger(nil)
		case pacing.EventTriggerFail:
			r.obs.ObserveTrigger(errors.New(e.Message))
		}
	}
	if r.up != nil {
		err := r.up.PublishEvent(types.Event{
			ID:      uuid.NewString(),
			Station: r.station,
			Label:   e.Label,
			Value:   e.Value,
			Message: e.Message,
			Time:    e.Time.UTC(),
		})
		if err != nil {
			slog.Error("uplink: encode event", "label", e.Label, "err", err)
		}
	}
}

func (r *recorder) Sample(ctx context.Context, s pacing.SampleRecord) {
	if err := r.log.AppendSample(ctx, datalog.Sample{Time: s.Time, Pacing: s.Pacing, Bottle: s.Bottle, Aliquot: s.Aliquot}); err != nil {
		slog.Error("datalog: append sample", "bottle", s.Bottle, "err", err)
	}
}
