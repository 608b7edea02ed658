package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hydrostack/hydrostack/pkg/rating"
	"github.com/hydrostack/hydrostack/tools/internal/analysis"
	"github.com/hydrostack/hydrostack/tools/internal/logcsv"
)

func runRecalc(args []string, stdout io.Writer) error {
	fs := newFlagSet("recalc")
	logPath := fs.String("log", "", "datalog export CSV")
	tablePath := fs.String("table", "", "rating table CSV (stage,flow)")
	stage := fs.String("stage", "Level", "stage label")
	flowLabel := fs.String("flow", "FlowRecalc", "label for the recomputed flow column")
	units := fs.String("units", "cfs", "recomputed flow units")
	labels := fs.String("labels", "", "comma-separated labels to keep alongside stage (default all)")
	out := fs.String("out", "", "output CSV (default stdout)")
	tz := fs.String("tz", "", "time zone of the export (default local)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "log", "table"); err != nil {
		return err
	}
	loc, err := location(*tz)
	if err != nil {
		return err
	}

	tf, err := os.Open(*tablePath)
	if err != nil {
		return err
	}
	defer tf.Close()
	tbl, err := rating.LoadCSV(tf)
	if err != nil {
		return err
	}

	lg, err := logcsv.ReadFile(*logPath, loc)
	if err != nil {
		return err
	}
	keep := splitList(*labels)
	if len(keep) > 0 {
		keep = append([]string{*stage}, keep...)
	}
	frame := lg.Pivot(keep...)
	st, ok := frame.Column(*stage)
	if !ok {
		return fmt.Errorf("stage label %q not in export", *stage)
	}
	if err := frame.Add(analysis.Recompute(st, tbl, *flowLabel, *units)); err != nil {
		return err
	}

	w := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := frame.WriteCSV(w); err != nil {
		return err
	}
	slog.Info("flow recomputed", "rows", len(frame.Times), "stage", *stage, "table_rows", tbl.Len())
	return nil
}
