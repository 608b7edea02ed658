package main

import (
	"fmt"
	"io"

	"github.com/hydrostack/hydrostack/tools/internal/analysis"
	"github.com/hydrostack/hydrostack/tools/internal/logcsv"
)

func runVolume(args []string, stdout io.Writer) error {
	fs := newFlagSet("volume")
	logPath := fs.String("log", "", "datalog export CSV")
	flow := fs.String("flow", "Flow", "flow label")
	units := fs.String("units", "", "flow units when the export has none (gpm | cfs | lps | mgd)")
	start := fs.String("start", "", "start time (RFC3339 or YYYY-MM-DD HH:MM)")
	end := fs.String("end", "", "end time")
	tz := fs.String("tz", "", "time zone of the export and of -start/-end (default local)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "log"); err != nil {
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
	s := lg.Series(*flow)
	if s.Len() == 0 {
		return fmt.Errorf("flow label %q not in export", *flow)
	}
	if *units != "" {
		s.Units = *units
	}

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
	if to.Before(from) {
		return fmt.Errorf("-end is before -start")
	}

	v, err := analysis.Integrate(s.Between(from, to))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s %s to %s: %.3f %s", *flow, from.Format("2006-01-02 15:04"), to.Format("2006-01-02 15:04"), v.Total, v.Units)
	if v.Gaps > 0 {
		fmt.Fprintf(stdout, " (%d intervals missing)", v.Gaps)
	}
	fmt.Fprintln(stdout)
	return nil
}
