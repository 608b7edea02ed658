package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hydrostack/hydrostack/station/internal/pacing"
)

func TestObserveReading(t *testing.T) {
	m := New()
	m.ObserveReading("Flow", 1.5, true)
	m.ObserveReading("Flow", 9, false)

	if got := testutil.ToFloat64(m.reading.WithLabelValues("Flow")); got != 1.5 {
		t.Errorf("reading = %v, want last good value 1.5", got)
	}
	if got := testutil.ToFloat64(m.readingErrors.WithLabelValues("Flow")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestObservePacing(t *testing.T) {
	m := New()
	m.ObservePacing(pacing.State{On: true, Total: 120, Pacing: 500, Bottle: 4, TotalAliquots: 7})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"on", testutil.ToFloat64(m.pacingOn), 1},
		{"total", testutil.ToFloat64(m.pacingTotal), 120},
		{"threshold", testutil.ToFloat64(m.pacingTarget), 500},
		{"bottle", testutil.ToFloat64(m.bottle), 4},
		{"aliquots", testutil.ToFloat64(m.aliquots), 7},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveTrigger(nil)
	m.ObserveTrigger(nil)
	m.ObserveTrigger(errors.New("no ack"))
	m.IncRetry("sd900")
	m.ObservePicture(nil)
	m.ObservePicture(errors.New("camera"))
	m.IncUplinkDropped()

	if got := testutil.ToFloat64(m.triggers); got != 2 {
		t.Errorf("triggers = %v", got)
	}
	if got := testutil.ToFloat64(m.triggerFails); got != 1 {
		t.Errorf("trigger failures = %v", got)
	}
	if got := testutil.ToFloat64(m.deviceRetries.WithLabelValues("sd900")); got != 1 {
		t.Errorf("retries = %v", got)
	}
	if got := testutil.ToFloat64(m.pictures.WithLabelValues("fail")); got != 1 {
		t.Errorf("picture failures = %v", got)
	}
	if got := testutil.ToFloat64(m.uplinkDropped); got != 1 {
		t.Errorf("dropped = %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveReading("Level", 3.25, true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `hydrostack_reading{label="Level"} 3.25`) {
		t.Errorf("exposition missing reading:\n%s", body)
	}
}
