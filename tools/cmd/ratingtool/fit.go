package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hydrostack/hydrostack/pkg/rating"
	"github.com/hydrostack/hydrostack/tools/internal/analysis"
	"github.com/hydrostack/hydrostack/tools/internal/logcsv"
)

func runFit(args []string, stdout io.Writer) error {
	fs := newFlagSet("fit")
	in := fs.String("in", "", "CSV of level,velocity pairs")
	logPath := fs.String("log", "", "datalog export CSV (instead of -in)")
	xLabel := fs.String("x", "Level", "level label in the export")
	yLabel := fs.String("y", "Velocity", "velocity label in the export")
	tz := fs.String("tz", "", "time zone of the export (default local)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var x, y []float64
	switch {
	case *in != "":
		f, err := os.Open(*in)
		if err != nil {
			return err
		}
		defer f.Close()
		pts, err := rating.ReadPoints(f)
		if err != nil {
			return err
		}
		for _, p := range pts {
			x = append(x, p.Stage)
			y = append(y, p.Flow)
		}
	case *logPath != "":
		loc, err := location(*tz)
		if err != nil {
			return err
		}
		lg, err := logcsv.ReadFile(*logPath, loc)
		if err != nil {
			return err
		}
		frame := lg.Pivot(*xLabel, *yLabel)
		x, y = frame.Columns[*xLabel], frame.Columns[*yLabel]
	default:
		return fmt.Errorf("-in or -log is required")
	}

	fit, err := analysis.FitPower(x, y)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "a=%.6g b=%.6g r2=%.4f n=%d\n", fit.A, fit.B, fit.R2, fit.N)
	return nil
}
