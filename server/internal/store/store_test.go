package store

import (
	"context"
	"testing"
	"time"

	"github.com/hydrostack/hydrostack/pkg/types"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(ttl time.Duration) (*Store, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := New(ttl)
	s.now = c.now
	return s, c
}

func TestPutGetList(t *testing.T) {
	s, _ := newTestStore(5 * time.Minute)
	s.Put(types.StationStatus{Station: "CC02", UptimeSec: 2})
	s.Put(types.StationStatus{Station: "CC01", UptimeSec: 1})

	e, ok := s.Get("CC01")
	if !ok || e.Status.UptimeSec != 1 {
		t.Fatalf("Get = %+v, %v", e, ok)
	}
	list := s.List()
	if len(list) != 2 || list[0].Status.Station != "CC01" {
		t.Errorf("List order = %+v", list)
	}
	if _, ok := s.Get("nope"); ok {
		t.Error("Get found unknown station")
	}
}

func TestPutReading(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	s.Put(types.StationStatus{Station: "CC01", Readings: map[string]types.Reading{"Level": {Label: "Level", Value: 1}}})
	s.PutReading(types.Reading{Station: "CC01", Label: "Flow", Value: 2.5})
	s.PutReading(types.Reading{Station: "CC09", Label: "Flow", Value: 7})

	e, _ := s.Get("CC01")
	if len(e.Status.Readings) != 2 || e.Status.Readings["Flow"].Value != 2.5 {
		t.Errorf("readings = %+v", e.Status.Readings)
	}
	e, ok := s.Get("CC09")
	if !ok || e.Status.Readings["Flow"].Value != 7 {
		t.Errorf("new station = %+v %v", e, ok)
	}
}

func TestTTL(t *testing.T) {
	s, c := newTestStore(time.Minute)
	s.Put(types.StationStatus{Station: "old"})
	c.t = c.t.Add(45 * time.Second)
	s.Put(types.StationStatus{Station: "new"})
	c.t = c.t.Add(30 * time.Second)

	if list := s.List(); len(list) != 1 || list[0].Status.Station != "new" {
		t.Errorf("List = %+v", list)
	}
	e, _ := s.Get("old")
	if s.Fresh(e) {
		t.Error("old entry reported fresh")
	}
	if n := s.Evict(c.t); n != 1 {
		t.Errorf("Evict removed %d, want 1", n)
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d", s.Count())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
