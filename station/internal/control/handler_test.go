package control_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/station/internal/camera"
	"github.com/hydrostack/hydrostack/station/internal/control"
	"github.com/hydrostack/hydrostack/station/internal/datalog"
	"github.com/hydrostack/hydrostack/station/internal/gpvar"
	"github.com/hydrostack/hydrostack/station/internal/pacing"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeProgram struct {
	state pacing.State
	calls []string
	err   error
}

func (p *fakeProgram) Snapshot() pacing.State { return p.state }
func (p *fakeProgram) Samples() []pacing.SampleRecord {
	return []pacing.SampleRecord{{Time: t0, Pacing: 2000, Bottle: 3, Aliquot: 1, TotalAliquots: 4}}
}
func (p *fakeProgram) op(name string) error {
	p.calls = append(p.calls, name)
	return p.err
}
func (p *fakeProgram) Start(context.Context) error {
	if err := p.op("start"); err != nil {
		return err
	}
	p.state.On = true
	return nil
}
func (p *fakeProgram) Stop(context.Context) error          { return p.op("stop") }
func (p *fakeProgram) ManualTrigger(context.Context) error { return p.op("trigger") }
func (p *fakeProgram) ResetParams(context.Context) error   { return p.op("reset") }
func (p *fakeProgram) ResetCarousel(context.Context) error { return p.op("reset-carousel") }

type fakeExporter struct{ from, to time.Time }

func (e *fakeExporter) ExportCSV(_ context.Context, w io.Writer, station string, from, to time.Time) error {
	e.from, e.to = from, to
	_, err := fmt.Fprintf(w, "station,%s\n", station)
	return err
}

type fakePump struct {
	reverse []bool
	code    uint16
	err     error
}

func (p *fakePump) Pump(_ context.Context, reverse bool) error {
	p.reverse = append(p.reverse, reverse)
	return p.err
}

func (p *fakePump) ReadResult(context.Context) (uint16, error) { return p.code, p.err }

func newHandler(t *testing.T, p *fakeProgram, exp *fakeExporter) http.Handler {
	t.Helper()
	vars, err := gpvar.Open("", []gpvar.Var{{Label: gpvar.SamplePacing, Value: 2000}, {Label: gpvar.BottleNum, Value: 1}})
	if err != nil {
		t.Fatal(err)
	}
	return control.New(control.Options{
		Station: "CC01",
		Program: p,
		Vars:    vars,
		Log:     exp,
		Now:     func() time.Time { return t0 },
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func TestStatus_FallsBackToProgram(t *testing.T) {
	h := newHandler(t, &fakeProgram{state: pacing.State{On: true, Mode: pacing.ModeFlow, Pacing: 2000}}, &fakeExporter{})
	rr := do(t, h, http.MethodGet, "/api/v1/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var st types.StationStatus
	decode(t, rr, &st)
	if st.Station != "CC01" || !st.Pacing.On || st.Pacing.Mode != "flow" {
		t.Errorf("status = %+v", st)
	}
}

func TestCommands(t *testing.T) {
	p := &fakeProgram{}
	h := newHandler(t, p, &fakeExporter{})
	for _, cmd := range []string{"start", "stop", "trigger", "reset", "reset-carousel"} {
		if rr := do(t, h, http.MethodPost, "/api/v1/sampling/"+cmd, ""); rr.Code != http.StatusOK {
			t.Errorf("%s: status %d body %s", cmd, rr.Code, rr.Body)
		}
	}
	if got := strings.Join(p.calls, ","); got != "start,stop,trigger,reset,reset-carousel" {
		t.Errorf("calls = %s", got)
	}
	if rr := do(t, h, http.MethodPost, "/api/v1/sampling/explode", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown command: status %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/api/v1/sampling/start", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET start: status %d", rr.Code)
	}
}

func TestCommands_AlreadyOnIsConflict(t *testing.T) {
	h := newHandler(t, &fakeProgram{err: pacing.ErrAlreadyOn}, &fakeExporter{})
	if rr := do(t, h, http.MethodPost, "/api/v1/sampling/start", ""); rr.Code != http.StatusConflict {
		t.Errorf("status %d, want 409", rr.Code)
	}
	h = newHandler(t, &fakeProgram{err: errors.New("sampler offline")}, &fakeExporter{})
	if rr := do(t, h, http.MethodPost, "/api/v1/sampling/trigger", ""); rr.Code != http.StatusInternalServerError {
		t.Errorf("status %d, want 500", rr.Code)
	}
}

func TestSamples(t *testing.T) {
	h := newHandler(t, &fakeProgram{}, &fakeExporter{})
	var out []map[string]interface{}
	decode(t, do(t, h, http.MethodGet, "/api/v1/samples", ""), &out)
	if len(out) != 1 || out[0]["bottle"].(float64) != 3 {
		t.Errorf("samples = %v", out)
	}
}

func TestVars(t *testing.T) {
	h := newHandler(t, &fakeProgram{}, &fakeExporter{})

	var list []map[string]interface{}
	decode(t, do(t, h, http.MethodGet, "/api/v1/vars", ""), &list)
	if len(list) != 2 {
		t.Fatalf("vars = %v", list)
	}

	rr := do(t, h, http.MethodPut, "/api/v1/vars/sample_pacing", `{"value": 1500}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT: status %d body %s", rr.Code, rr.Body)
	}
	var v map[string]interface{}
	decode(t, do(t, h, http.MethodGet, "/api/v1/vars/sample_pacing", ""), &v)
	if v["value"].(float64) != 1500 {
		t.Errorf("value = %v", v["value"])
	}

	if rr := do(t, h, http.MethodPut, "/api/v1/vars/nope", `{"value": 1}`); rr.Code != http.StatusNotFound {
		t.Errorf("unknown label: status %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPut, "/api/v1/vars/bottle_num", `{}`); rr.Code != http.StatusBadRequest {
		t.Errorf("missing value: status %d", rr.Code)
	}
}

func TestExport(t *testing.T) {
	exp := &fakeExporter{}
	h := newHandler(t, &fakeProgram{}, exp)

	rr := do(t, h, http.MethodGet, "/api/v1/export", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "station,CC01\n" {
		t.Fatalf("export: %d %q", rr.Code, rr.Body)
	}
	if !exp.to.Equal(t0) || !exp.from.Equal(t0.Add(-24*time.Hour)) {
		t.Errorf("default range = %v..%v", exp.from, exp.to)
	}

	do(t, h, http.MethodGet, "/api/v1/export?from=2026-02-01T00:00:00Z&to=2026-02-02T00:00:00Z", "")
	if exp.from.Day() != 1 || exp.to.Day() != 2 {
		t.Errorf("range = %v..%v", exp.from, exp.to)
	}
	if rr := do(t, h, http.MethodGet, "/api/v1/export?from=yesterday", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad from: status %d", rr.Code)
	}
}

func TestSnapshotStatus(t *testing.T) {
	stats := camera.Stats{Pictures: 4, Fails: 1}
	s := control.Snapshot{
		Station: "CC01",
		Started: t0.Add(-90 * time.Second),
		Pacing:  pacing.State{On: true, Bottle: 2},
		Readings: map[string]datalog.Reading{
			"Flow": {Time: t0, Label: "Flow", Value: 2.5, Units: "cfs", Quality: datalog.Good},
		},
		Camera: &stats,
	}
	st := s.Status(t0)
	if st.UptimeSec != 90 || st.Pacing.Bottle != 2 {
		t.Errorf("status = %+v", st)
	}
	if r := st.Readings["Flow"]; r.Station != "CC01" || r.Value != 2.5 {
		t.Errorf("reading = %+v", r)
	}
	if v, ok := st.Field("camera.pictures"); !ok || v != 4 {
		t.Errorf("camera.pictures = %v, %v", v, ok)
	}
}

func TestSamplerPump(t *testing.T) {
	pump := &fakePump{code: 2}
	h := control.New(control.Options{Station: "CC01", Program: &fakeProgram{}, Pump: pump})

	rr := do(t, h, http.MethodPost, "/api/v1/sampler/pump?reverse=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reverse: status %d body %s", rr.Code, rr.Body)
	}
	var out map[string]string
	decode(t, rr, &out)
	if out["direction"] != "reverse" {
		t.Errorf("direction = %q", out["direction"])
	}
	if rr := do(t, h, http.MethodPost, "/api/v1/sampler/pump", ""); rr.Code != http.StatusOK {
		t.Errorf("forward: status %d", rr.Code)
	}
	if len(pump.reverse) != 2 || !pump.reverse[0] || pump.reverse[1] {
		t.Errorf("pump calls = %v, want [true false]", pump.reverse)
	}
	if rr := do(t, h, http.MethodPost, "/api/v1/sampler/pump?reverse=sideways", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad reverse: status %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/api/v1/sampler/pump", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET pump: status %d", rr.Code)
	}

	var res map[string]int
	decode(t, do(t, h, http.MethodGet, "/api/v1/sampler/result", ""), &res)
	if res["code"] != 2 {
		t.Errorf("result = %v", res)
	}

	pump.err = errors.New("sampler: no valid response")
	if rr := do(t, h, http.MethodGet, "/api/v1/sampler/result", ""); rr.Code != http.StatusBadGateway {
		t.Errorf("failed read: status %d, want 502", rr.Code)
	}
}

func TestSamplerPump_NotConfigured(t *testing.T) {
	h := newHandler(t, &fakeProgram{}, &fakeExporter{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/sampler/pump"},
		{http.MethodGet, "/api/v1/sampler/result"},
		{http.MethodGet, "/api/v1/camera/resolutions"},
	} {
		if rr := do(t, h, tc.method, tc.path, ""); rr.Code != http.StatusNotFound {
			t.Errorf("%s %s: status %d, want 404", tc.method, tc.path, rr.Code)
		}
	}
}

func TestCameraResolutions(t *testing.T) {
	h := control.New(control.Options{Station: "CC01", Program: &fakeProgram{}, Resolutions: camera.Resolutions()})
	var out []string
	decode(t, do(t, h, http.MethodGet, "/api/v1/camera/resolutions", ""), &out)
	if len(out) == 0 {
		t.Fatal("no resolutions")
	}
	found := false
	for _, r := range out {
		found = found || r == "1280x720"
	}
	if !found {
		t.Errorf("resolutions = %v, want 1280x720 listed", out)
	}
}
