package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hydrostack/hydrostack/pkg/rating"
	"github.com/hydrostack/hydrostack/tools/internal/analysis"
	"github.com/hydrostack/hydrostack/tools/internal/chart"
)

func runResample(args []string, stdout io.Writer) error {
	fs := newFlagSet("resample")
	in := fs.String("in", "", "rating table CSV (stage,flow)")
	step := fs.Float64("step", 0.01, "stage grid step")
	every := fs.Int("every", 1, "keep every Nth grid row")
	limit := fs.Int("max", 0, "keep at most this many rows (overrides -every)")
	gpm := fs.Bool("gpm", false, "flow column is gpm rather than cfs")
	stageUnits := fs.String("stage-units", "in", "stage units for the header")
	format := fs.String("format", "csv", "output format: csv | tuples")
	plotOut := fs.String("plot", "", "also plot original and resampled curves to this image")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "in"); err != nil {
		return err
	}

	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()
	orig, err := rating.ReadPoints(f)
	if err != nil {
		return err
	}

	n := *every
	if *limit > 0 {
		grid, err := analysis.Resample(orig, *step, 1)
		if err != nil {
			return err
		}
		n = analysis.EveryForLimit(len(grid), *limit)
	}
	out, err := analysis.Resample(orig, *step, n)
	if err != nil {
		return err
	}

	flowUnits := "cfs"
	if *gpm {
		flowUnits = "gpm"
	}
	switch *format {
	case "csv":
		header := [2]string{"Stage (" + *stageUnits + ")", "Flow (" + flowUnits + ")"}
		if err := rating.WriteCSV(stdout, header, out); err != nil {
			return err
		}
	case "tuples":
		for _, p := range out {
			fmt.Fprintf(stdout, "(%.2f, %.3f),\n", p.Stage, p.Flow)
		}
	default:
		return fmt.Errorf("-format %q: want csv or tuples", *format)
	}

	if *plotOut != "" {
		return chart.RatingCurves(*plotOut, "Rating curve", *stageUnits, flowUnits,
			[]string{"original", "resampled"}, orig, out)
	}
	return nil
}
