package api

import (
	"testing"

	"github.com/hydrostack/hydrostack/pkg/types"
)

func keys(hints []DiagnosticHint) []string {
	out := make([]string, len(hints))
	for i, h := range hints {
		out[i] = h.Key
	}
	return out
}

func TestComputeDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		st   types.StationStatus
		want []string
	}{
		{
			name: "all clear",
			st:   types.StationStatus{UptimeSec: 7200},
			want: []string{"healthy"},
		},
		{
			name: "critical before warning before info",
			st: types.StationStatus{
				UptimeSec: 30,
				Pacing:    types.PacingStatus{On: true, Pacing: 1000, Total: 500, Failures: 1},
				Camera:    &types.CameraStatus{NoSD: 1},
			},
			want: []string{"camera_no_sd", "sampler_failures", "sampling", "recent_restart"},
		},
		{
			name: "bad reading",
			st: types.StationStatus{
				UptimeSec: 7200,
				Readings:  map[string]types.Reading{"Level": {Quality: types.QualityBad}, "Flow": {Quality: types.QualityGood}},
			},
			want: []string{"bad_readings"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keys(computeDiagnostics(&tt.st))
			if len(got) != len(tt.want) {
				t.Fatalf("keys = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("keys = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestComputeDiagnostics_SamplingProgress(t *testing.T) {
	st := types.StationStatus{UptimeSec: 7200, Pacing: types.PacingStatus{On: true, Mode: "flow", Pacing: 1000, Total: 250}}
	hints := computeDiagnostics(&st)
	if len(hints) != 1 || hints[0].Value == nil || *hints[0].Value != 25 {
		t.Errorf("hints = %+v", hints)
	}
}

func TestComputeDiagnostics_FailureSeverity(t *testing.T) {
	st := types.StationStatus{UptimeSec: 7200, Pacing: types.PacingStatus{Failures: 3}}
	if lvl := worstLevel(computeDiagnostics(&st)); lvl != levelCritical {
		t.Errorf("level = %q, want critical", lvl)
	}
}
