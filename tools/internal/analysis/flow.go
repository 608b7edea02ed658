package analysis

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hydrostack/hydrostack/pkg/rating"
	"github.com/hydrostack/hydrostack/tools/internal/logcsv"
)

// Recompute returns a flow series computed from stage through tbl. Missing
// stage stays missing.
func Recompute(stage logcsv.Series, tbl *rating.Table, label, units string) logcsv.Series {
	out := logcsv.Series{
		Label:  label,
		Units:  units,
		Times:  stage.Times,
		Values: make([]float64, len(stage.Values)),
	}
	for i, s := range stage.Values {
		if math.IsNaN(s) {
			out.Values[i] = math.NaN()
			continue
		}
		out.Values[i] = tbl.Flow(s)
	}
	return out
}

// Volume is an integrated flow total.
type Volume struct {
	Total float64
	Units string
	// Gaps counts intervals skipped because an end was missing.
	Gaps int
}

// RatePeriod returns the time unit of a flow rate and the matching volume
// unit: gpm integrates to gallons, cfs to cubic feet.
func RatePeriod(units string) (time.Duration, string, error) {
	switch strings.ToLower(units) {
	case "gpm":
		return time.Minute, "gal", nil
	case "cfs":
		return time.Second, "ft3", nil
	case "lps", "l/s":
		return time.Second, "L", nil
	case "mgd":
		return 24 * time.Hour, "MG", nil
	}
	return 0, "", fmt.Errorf("analysis: unknown flow units %q", units)
}

// Integrate sums flow × dt with the trapezoid rule over s. Intervals with a
// missing end are skipped and counted as gaps.
func Integrate(s logcsv.Series) (Volume, error) {
	per, vu, err := RatePeriod(s.Units)
	if err != nil {
		return Volume{}, err
	}
	if s.Len() < 2 {
		return Volume{}, ErrTooFewPoints
	}
	v := Volume{Units: vu}
	for i := 1; i < s.Len(); i++ {
		a, b := s.Values[i-1], s.Values[i]
		if math.IsNaN(a) || math.IsNaN(b) {
			v.Gaps++
			continue
		}
		dt := float64(s.Times[i].Sub(s.Times[i-1])) / float64(per)
		v.Total += (a + b) / 2 * dt
	}
	return v, nil
}
