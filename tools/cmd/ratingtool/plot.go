package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/hydrostack/hydrostack/tools/internal/chart"
	"github.com/hydrostack/hydrostack/tools/internal/logcsv"
)

func runPlot(args []string, _ io.Writer) error {
	fs := newFlagSet("plot")
	logPath := fs.String("log", "", "datalog export CSV")
	labels := fs.String("labels", "", "comma-separated labels to plot (default all)")
	out := fs.String("out", "", "output image (.png, .svg or .pdf)")
	title := fs.String("title", "", "chart title (default the station name)")
	start := fs.String("start", "", "start time")
	end := fs.String("end", "", "end time")
	tz := fs.String("tz", "", "time zone of the export (default local)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "log", "out"); err != nil {
		return err
	}
	loc, err := location(*tz)
	if err != nil {
		return err
	}

	lg, err := logcsv.ReadFile(*logPath, loc)
	if err != nil {
		return err
	}
	names := splitList(*labels)
	if len(names) == 0 {
		names = lg.Labels()
	}

	var series []logcsv.Series
	for _, n := range names {
		s := lg.Series(n)
		if s.Len() == 0 {
			return fmt.Errorf("label %q not in export", n)
		}
		if *start != "" || *end != "" {
			from, to := s.Times[0], s.Times[s.Len()-1]
			if *start != "" {
				if from, err = parseTime(*start, loc); err != nil {
					return err
				}
			}
			if *end != "" {
				if to, err = parseTime(*end, loc); err != nil {
					return err
				}
			}
			s = s.Between(from, to)
		}
		series = append(series, s)
	}

	t := *title
	if t == "" {
		t = lg.Station
	}
	if err := chart.TimeSeries(*out, t, series...); err != nil {
		return err
	}
	slog.Info("chart written", "out", *out, "series", len(series))
	return nil
}
