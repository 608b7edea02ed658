package receiver_test

import (
	"errors"
	"testing"
	"time"

	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/server/internal/receiver"
	"github.com/hydrostack/hydrostack/server/internal/store"
)

type fakeAlerts struct{ got []types.StationStatus }

func (f *fakeAlerts) Evaluate(st types.StationStatus) { f.got = append(f.got, st) }

type fakeHub struct{ events []string }

func (f *fakeHub) Broadcast(_, event string, _ any) { f.events = append(f.events, event) }

type fakeArchive struct {
	readings []types.Reading
	events   []types.Event
}

func (f *fakeArchive) AddReading(r types.Reading) { f.readings = append(f.readings, r) }
func (f *fakeArchive) AddEvent(e types.Event)     { f.events = append(f.events, e) }

type harness struct {
	rec     *receiver.Receiver
	store   *store.Store
	alerts  *fakeAlerts
	hub     *fakeHub
	archive *fakeArchive
}

func newHarness() *harness {
	h := &harness{
		store:   store.New(5 * time.Minute),
		alerts:  &fakeAlerts{},
		hub:     &fakeHub{},
		archive: &fakeArchive{},
	}
	h.rec = receiver.New(h.store, receiver.Options{Alerts: h.alerts, Hub: h.hub, Archive: h.archive})
	return h
}

func TestHandle_StatusStoredAndEvaluated(t *testing.T) {
	h := newHarness()
	err := h.rec.Handle("hydrostack/CC01/status",
		[]byte(`{"station":"CC01","pacing":{"on":true,"mode":"flow","bottle":2},"uptime_sec":60}`))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	e, ok := h.store.Get("CC01")
	if !ok {
		t.Fatal("store.Get: expected entry, got none")
	}
	if !e.Status.Pacing.On || e.Status.Pacing.Bottle != 2 {
		t.Errorf("pacing: got %+v", e.Status.Pacing)
	}
	if len(h.alerts.got) != 1 {
		t.Errorf("alerts evaluated %d times, want 1", len(h.alerts.got))
	}
	if len(h.hub.events) != 1 || h.hub.events[0] != "status" {
		t.Errorf("broadcasts: got %v", h.hub.events)
	}
}

func TestHandle_StationFilledFromTopic(t *testing.T) {
	h := newHarness()
	if err := h.rec.Handle("lab/CC02/readings", []byte(`{"label":"Level","value":1.5,"quality":"G"}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(h.archive.readings) != 1 || h.archive.readings[0].Station != "CC02" {
		t.Errorf("archived: got %+v", h.archive.readings)
	}
	e, ok := h.store.Get("CC02")
	if !ok || e.Status.Readings["Level"].Value != 1.5 {
		t.Errorf("store entry: got %+v, %v", e, ok)
	}
}

func TestHandle_EventArchivedAndBroadcast(t *testing.T) {
	h := newHarness()
	payload := `{"id":"e1","station":"CC01","label":"Triggered Sampler","value":3,"time":"2026-05-01T08:00:00Z"}`
	if err := h.rec.Handle("hydrostack/CC01/events", []byte(payload)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(h.archive.events) != 1 || h.archive.events[0].Label != "Triggered Sampler" {
		t.Errorf("archived events: got %+v", h.archive.events)
	}
	if len(h.hub.events) != 1 || h.hub.events[0] != "event" {
		t.Errorf("broadcasts: got %v", h.hub.events)
	}
	if h.store.Count() != 0 {
		t.Errorf("events should not create store entries")
	}
}

func TestHandle_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"short topic", "CC01/status", `{}`},
		{"unknown kind", "hydrostack/CC01/config", `{}`},
		{"bad json", "hydrostack/CC01/status", `{"station":`},
		{"station mismatch", "hydrostack/CC01/status", `{"station":"CC09"}`},
		{"reading without label", "hydrostack/CC01/readings", `{"value":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			if err := h.rec.Handle(tc.topic, []byte(tc.payload)); err == nil {
				t.Fatal("Handle succeeded, want error")
			}
			if h.store.Count() != 0 || len(h.hub.events) != 0 {
				t.Errorf("rejected message reached consumers")
			}
		})
	}
}

func TestHandle_BadTopicError(t *testing.T) {
	h := newHarness()
	for _, topic := range []string{"stations", "hydrostack//status"} {
		if err := h.rec.Handle(topic, []byte(`{}`)); !errors.Is(err, receiver.ErrBadTopic) {
			t.Errorf("Handle(%q) err = %v, want ErrBadTopic", topic, err)
		}
	}
	if h.store.Count() != 0 {
		t.Errorf("store holds %d stations after rejected topics", h.store.Count())
	}
}

func TestHandle_NilConsumers(t *testing.T) {
	st := store.New(time.Minute)
	rec := receiver.New(st, receiver.Options{})
	if err := rec.Handle("hydrostack/CC01/status", []byte(`{"station":"CC01"}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := rec.Handle("hydrostack/CC01/events", []byte(`{"label":"Sampling On"}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if st.Count() != 1 {
		t.Errorf("store.Count: got %d, want 1", st.Count())
	}
}
