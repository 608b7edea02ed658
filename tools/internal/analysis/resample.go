package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/hydrostack/hydrostack/pkg/rating"
)

// ErrTooFewPoints is returned when an operation needs more data.
var ErrTooFewPoints = errors.New("analysis: too few points")

// Round returns v rounded to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Dedupe rounds stages to 0.01 and flows to 0.001, sorts by stage and keeps
// the first row of each stage.
func Dedupe(points []rating.Point) []rating.Point {
	rounded := make([]rating.Point, len(points))
	for i, p := range points {
		rounded[i] = rating.Point{Stage: Round(p.Stage, 2), Flow: Round(p.Flow, 3)}
	}
	sort.SliceStable(rounded, func(i, j int) bool { return rounded[i].Stage < rounded[j].Stage })

	out := rounded[:0]
	for i, p := range rounded {
		if i > 0 && p.Stage == out[len(out)-1].Stage {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Resample interpolates points onto an even stage grid from the first to
// the last stage with the given step, keeps every Nth grid row and rounds
// the result to 0.01 stage and 0.001 flow. The last surveyed stage is
// always kept.
func Resample(points []rating.Point, step float64, every int) ([]rating.Point, error) {
	if step <= 0 {
		return nil, fmt.Errorf("analysis: step must be positive")
	}
	if every < 1 {
		every = 1
	}
	pts := Dedupe(points)
	if len(pts) < 2 {
		return nil, ErrTooFewPoints
	}

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.Stage, p.Flow
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("analysis: fit table: %w", err)
	}

	first, last := xs[0], xs[len(xs)-1]
	n := int(math.Floor((last-first)/step + 1e-9))
	var out []rating.Point
	for i := 0; i <= n; i += every {
		s := Round(first+float64(i)*step, 2)
		out = append(out, rating.Point{Stage: s, Flow: Round(pl.Predict(s), 3)})
	}
	if out[len(out)-1].Stage < last {
		out = append(out, rating.Point{Stage: last, Flow: ys[len(ys)-1]})
	}
	return out, nil
}

// EveryForLimit returns the row stride that keeps at most limit of n rows,
// never less than 1.
func EveryForLimit(n, limit int) int {
	if limit <= 0 || n <= limit {
		return 1
	}
	return int(math.Ceil(float64(n) / float64(limit)))
}
