package datalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportHeader is the column row written after the two preamble lines.
var ExportHeader = []string{"Date", "Time", "Label", "Value", "Units", "Quality"}

// ExportCSV writes readings between from and to in the datalogger export
// format: a station line, a range line, the header row, then one row per
// reading in local time.
func (l *Log) ExportCSV(ctx context.Context, w io.Writer, station string, from, to time.Time) error {
	readings, err := l.Readings(ctx, "", from, to)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	pre := [][]string{
		{"Station Name", station},
		{"Log Export", from.Format(time.RFC3339), to.Format(time.RFC3339)},
		ExportHeader,
	}
	if err := cw.WriteAll(pre); err != nil {
		return fmt.Errorf("datalog: export: %w", err)
	}
	for _, r := range readings {
		t := r.Time.Local()
		rec := []string{
			t.Format("01/02/2006"),
			t.Format("15:04:05"),
			r.Label,
			strconv.FormatFloat(r.Value, 'f', -1, 64),
			r.Units,
			r.Quality,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("datalog: export: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("datalog: export: %w", err)
	}
	return nil
}
