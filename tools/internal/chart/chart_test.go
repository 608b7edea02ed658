package chart

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hydrostack/hydrostack/pkg/rating"
	"github.com/hydrostack/hydrostack/tools/internal/logcsv"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func series(label, units string, vals ...float64) logcsv.Series {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := logcsv.Series{Label: label, Units: units}
	for i, v := range vals {
		s.Times = append(s.Times, t0.Add(time.Duration(i)*5*time.Minute))
		s.Values = append(s.Values, v)
	}
	return s
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read chart: %v", err)
	}
	if !bytes.HasPrefix(b, pngMagic) {
		t.Errorf("%s is not a PNG", path)
	}
}

func TestSegments(t *testing.T) {
	segs := segments(series("Level", "in", 1, 2, math.NaN(), 3, math.NaN(), math.NaN(), 4, 5))
	if len(segs) != 3 || len(segs[0]) != 2 || len(segs[1]) != 1 || len(segs[2]) != 2 {
		t.Errorf("segments = %v", segs)
	}
	if segs := segments(series("Level", "in", math.NaN())); len(segs) != 0 {
		t.Errorf("all-missing series gave %d segments", len(segs))
	}
}

func TestTimeSeries(t *testing.T) {
	out := filepath.Join(t.TempDir(), "levels.png")
	err := TimeSeries(out, "CC01",
		series("Level", "in", 1, 1.5, math.NaN(), 2),
		series("Flow", "cfs", 0.1, 0.2, 0.3, 0.4),
	)
	if err != nil {
		t.Fatalf("TimeSeries: %v", err)
	}
	assertPNG(t, out)
}

func TestTimeSeries_Errors(t *testing.T) {
	dir := t.TempDir()
	if err := TimeSeries(filepath.Join(dir, "a.png"), "none"); err == nil {
		t.Error("empty series list accepted")
	}
	if err := TimeSeries(filepath.Join(dir, "a.bmp"), "x", series("Level", "in", 1, 2)); err == nil {
		t.Error("unsupported format accepted")
	}
}

func TestRatingCurves(t *testing.T) {
	out := filepath.Join(t.TempDir(), "rating.png")
	orig := []rating.Point{{Stage: 0, Flow: 0}, {Stage: 1, Flow: 10}, {Stage: 2, Flow: 30}}
	resampled := []rating.Point{{Stage: 0, Flow: 0}, {Stage: 1, Flow: 10}, {Stage: 2, Flow: 30}}
	if err := RatingCurves(out, "Flume", "in", "cfs", []string{"original", "resampled"}, orig, resampled); err != nil {
		t.Fatalf("RatingCurves: %v", err)
	}
	assertPNG(t, out)

	if err := RatingCurves(out, "x", "in", "cfs", []string{"one"}, orig, resampled); err == nil {
		t.Error("name count mismatch accepted")
	}
}
