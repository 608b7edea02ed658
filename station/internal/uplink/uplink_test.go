package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hydrostack/hydrostack/pkg/broker"
	"github.com/hydrostack/hydrostack/pkg/types"
)

type fakePublisher struct {
	mu       sync.Mutex
	got      []Message
	failNext int
	closed   bool
}

func (p *fakePublisher) Publish(_ context.Context, m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return errors.New("broker went away")
	}
	p.got = append(p.got, m)
	return nil
}

func (p *fakePublisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *fakePublisher) messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.got...)
}

func newTestUplink(pub *fakePublisher) (*Uplink, *atomic.Int32) {
	u := New(Config{Broker: broker.Config{URL: "tcp://unused:1883"}, Station: "CC01", BufferSize: 10})
	dials := new(atomic.Int32)
	u.dialFn = func(context.Context, Config) (Publisher, error) {
		dials.Add(1)
		return pub, nil
	}
	return u, dials
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestUplink_DeliversReading(t *testing.T) {
	pub := &fakePublisher{}
	u, _ := newTestUplink(pub)

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	go u.Run(ctx)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := u.PublishReading(types.Reading{Label: "Flow", Value: 2.5, Units: "cfs", Quality: "G", Time: ts}); err != nil {
		t.Fatalf("PublishReading: %v", err)
	}
	waitFor(t, func() bool { return len(pub.messages()) == 1 })

	m := pub.messages()[0]
	if m.Topic != "hydrostack/CC01/readings" || m.Retained {
		t.Errorf("message = %+v", m)
	}
	var r types.Reading
	if err := json.Unmarshal(m.Payload, &r); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if r.Station != "CC01" || r.Value != 2.5 || !r.Time.Equal(ts) {
		t.Errorf("reading = %+v", r)
	}
}

func TestUplink_StatusIsRetained(t *testing.T) {
	u := New(Config{Station: "CC01", TopicPrefix: "lab"})
	if err := u.PublishStatus(types.StationStatus{UptimeSec: 5}); err != nil {
		t.Fatal(err)
	}
	m := <-u.buf
	if m.Topic != "lab/CC01/status" || !m.Retained {
		t.Errorf("message = %+v", m)
	}
	if !strings.Contains(string(m.Payload), `"station":"CC01"`) {
		t.Errorf("payload = %s", m.Payload)
	}
}

func TestUplink_BufferEvictsOldest(t *testing.T) {
	u := New(Config{Station: "CC01", BufferSize: 3})
	drops := 0
	u.OnDrop = func() { drops++ }

	for i := 0; i < 5; i++ {
		u.PublishEvent(types.Event{Label: "Triggered Sampler", Value: float64(i)})
	}

	var vals []float64
	for u.Pending() > 0 {
		var e types.Event
		if err := json.Unmarshal((<-u.buf).Payload, &e); err != nil {
			t.Fatal(err)
		}
		vals = append(vals, e.Value)
	}
	if len(vals) != 3 {
		t.Fatalf("buffer has %d items, want 3", len(vals))
	}
	for i, want := range []float64{2, 3, 4} {
		if vals[i] != want {
			t.Errorf("vals[%d] = %.0f, want %.0f", i, vals[i], want)
		}
	}
	if drops != 2 {
		t.Errorf("drops = %d, want 2", drops)
	}
}

func TestUplink_RequeuesAfterFailedPublish(t *testing.T) {
	pub := &fakePublisher{failNext: 1}
	u, dials := newTestUplink(pub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u.PublishEvent(types.Event{Label: "Volume Triggered Sample", Value: 1})
	go u.Run(ctx)

	waitFor(t, func() bool { return len(pub.messages()) == 1 })
	if n := dials.Load(); n < 2 {
		t.Errorf("dials = %d, want a reconnect", n)
	}
}

func TestUplink_GracefulShutdown(t *testing.T) {
	u, _ := newTestUplink(&fakePublisher{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		u.Run(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	b := newBackoff()
	for i := 0; i < 50; i++ {
		if d := b.next(); d > backoffMax*2 {
			t.Errorf("backoff[%d] = %v, exceeds 2×max", i, d)
		}
	}
	b.reset()
	if d := b.next(); d > 2*time.Second {
		t.Errorf("backoff after reset = %v", d)
	}
}

func TestClientOptions(t *testing.T) {
	opts, err := ClientOptions(Config{Broker: broker.Config{URL: "tcp://broker:1883"}, Station: "CC01"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(opts.ClientID, "hydrostack-CC01-") {
		t.Errorf("client id = %q", opts.ClientID)
	}
	if _, err := ClientOptions(Config{Broker: broker.Config{URL: "ssl://b:8883", TLS: broker.TLSConfig{CertFile: "/nonexistent.pem"}}}); err == nil {
		t.Error("missing client cert accepted")
	}
}
