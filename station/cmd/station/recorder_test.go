package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/station/internal/datalog"
	"github.com/hydrostack/hydrostack/station/internal/pacing"
)

type memLog struct {
	events  []datalog.Event
	samples []datalog.Sample
}

func (l *memLog) AppendEvent(_ context.Context, e datalog.Event) error {
	l.events = append(l.events, e)
	return nil
}

func (l *memLog) AppendSample(_ context.Context, s datalog.Sample) error {
	l.samples = append(l.samples, s)
	return nil
}

type memUplink struct{ events []types.Event }

func (u *memUplink) PublishEvent(e types.Event) error {
	u.events = append(u.events, e)
	return nil
}

type countTriggers struct{ ok, failed int }

func (c *countTriggers) ObserveTrigger(err error) {
	if err != nil {
		c.failed++
		return
	}
	c.ok++
}

func TestRecorder_FansOut(t *testing.T) {
	log, up, obs := &memLog{}, &memUplink{}, &countTriggers{}
	r := &recorder{station: "CC01", log: log, up: up, obs: obs}
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r.Event(ctx, pacing.Event{Time: ts, Label: pacing.EventTriggered, Value: 1})
	r.Event(ctx, pacing.Event{Time: ts, Label: pacing.EventTriggerFail, Value: 1200, Message: "could not trigger sampler"})
	r.Event(ctx, pacing.Event{Time: ts, Label: pacing.EventVolumeTrig, Value: 1200})
	r.Sample(ctx, pacing.SampleRecord{Time: ts, Pacing: 1000, Bottle: 2, Aliquot: 3})

	if len(log.events) != 3 || log.events[1].Message != "could not trigger sampler" {
		t.Errorf("logged events = %+v", log.events)
	}
	if len(log.samples) != 1 || log.samples[0].Bottle != 2 {
		t.Errorf("logged samples = %+v", log.samples)
	}
	if obs.ok != 1 || obs.failed != 1 {
		t.Errorf("triggers ok=%d failed=%d", obs.ok, obs.failed)
	}
	if len(up.events) != 3 {
		t.Fatalf("published %d events", len(up.events))
	}
	e := up.events[0]
	if e.Station != "CC01" || e.Label != pacing.EventTriggered || !e.Time.Equal(ts) {
		t.Errorf("event = %+v", e)
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		t.Errorf("event id %q: %v", e.ID, err)
	}
	if up.events[1].ID == e.ID {
		t.Error("event ids repeat")
	}
}

func TestRecorder_NoUplink(t *testing.T) {
	log := &memLog{}
	r := &recorder{station: "CC01", log: log}
	r.Event(context.Background(), pacing.Event{Label: pacing.EventStarted})
	if len(log.events) != 1 {
		t.Errorf("logged %d events", len(log.events))
	}
}
