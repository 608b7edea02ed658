package rating

import "testing"

func TestPipeFlow(t *testing.T) {
	cases := []struct {
		name              string
		d, stage, v       float64
		wantArea, wantCFS float64
		wantGPM           float64
	}{
		{"half full", 12, 6, 2, 0.392699, 0.785398, 352.512047},
		{"full", 12, 12, 1, 0.785398, 0.785398, 352.512047},
		{"quarter depth", 12, 3, 1.5, 0.153546, 0.230319, 103.374745},
		{"over full clamps", 12, 30, 1, 0.785398, 0.785398, 352.512047},
		{"negative stage clamps", 12, -2, 1, 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PipeFlow(tc.d, tc.stage, tc.v)
			if !almostEqual(got.AreaSqFt, tc.wantArea, 1e-5) {
				t.Errorf("AreaSqFt = %v, want %v", got.AreaSqFt, tc.wantArea)
			}
			if !almostEqual(got.CFS, tc.wantCFS, 1e-5) {
				t.Errorf("CFS = %v, want %v", got.CFS, tc.wantCFS)
			}
			if !almostEqual(got.GPM, tc.wantGPM, 1e-3) {
				t.Errorf("GPM = %v, want %v", got.GPM, tc.wantGPM)
			}
		})
	}
}

func TestPipeFlow_ZeroDiameter(t *testing.T) {
	if got := PipeFlow(0, 1, 1); got != (PipeFlowResult{}) {
		t.Errorf("PipeFlow(0,...) = %+v, want zero", got)
	}
}

func TestCompoundWeir_GPM(t *testing.T) {
	w := DefaultCompoundWeir
	cases := []struct {
		level, want float64
	}{
		{0, 0},
		{-1, 0},
		{6, 199.165},
		{12, 1119.308},
		{18, 11892.501},
	}
	for _, tc := range cases {
		if got := w.GPM(tc.level); !almostEqual(got, tc.want, 0.0015) {
			t.Errorf("GPM(%v) = %v, want %v", tc.level, got, tc.want)
		}
	}
}
