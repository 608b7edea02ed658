package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// PowerFit is y = A·x^B fitted by least squares in log–log space.
type PowerFit struct {
	A, B float64
	// R2 is the coefficient of determination of the log–log fit.
	R2 float64
	// N is the number of pairs used.
	N int
}

// Predict evaluates the fit at x.
func (f PowerFit) Predict(x float64) float64 { return f.A * math.Pow(x, f.B) }

func (f PowerFit) String() string {
	return fmt.Sprintf("y = %.6g * x^%.6g (R² = %.4f, n = %d)", f.A, f.B, f.R2, f.N)
}

// FitPower fits y = A·x^B. Pairs with a non-positive or missing value are
// skipped.
func FitPower(x, y []float64) (PowerFit, error) {
	if len(x) != len(y) {
		return PowerFit{}, fmt.Errorf("analysis: %d x values but %d y values", len(x), len(y))
	}
	var lx, ly []float64
	for i := range x {
		if !(x[i] > 0) || !(y[i] > 0) {
			continue
		}
		lx = append(lx, math.Log(x[i]))
		ly = append(ly, math.Log(y[i]))
	}
	if len(lx) < 2 {
		return PowerFit{}, ErrTooFewPoints
	}
	alpha, beta := stat.LinearRegression(lx, ly, nil, false)
	if math.IsNaN(beta) {
		return PowerFit{}, fmt.Errorf("analysis: x values are all equal")
	}
	return PowerFit{
		A:  math.Exp(alpha),
		B:  beta,
		R2: stat.RSquared(lx, ly, nil, alpha, beta),
		N:  len(lx),
	}, nil
}
