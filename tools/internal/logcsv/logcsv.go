// Package logcsv reads station datalog CSV exports.
//
// An export starts with two preamble rows (station name, export range),
// then a header naming at least Date, Time, Label and Value, then one row
// per reading. Rows whose value is "Off" are dropped; the logger's missing
// value sentinels -99999 and -99 become NaN.
package logcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Missing value sentinels written by the logger.
var sentinels = []float64{-99999, -99}

const (
	dateLayout = "01/02/2006"
	timeLayout = "15:04:05"
	preamble   = 2
)

// Row is one exported reading. Value is NaN when the logger had none.
type Row struct {
	Time    time.Time
	Label   string
	Value   float64
	Units   string
	Quality string
}

// Log is a parsed export.
type Log struct {
	Station string
	Rows    []Row
}

// ReadFile opens path and calls Read.
func ReadFile(path string, loc *time.Location) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("logcsv: %w", err)
	}
	defer f.Close()
	return Read(f, loc)
}

// Read parses an export whose timestamps are in loc (nil means local time).
func Read(r io.Reader, loc *time.Location) (*Log, error) {
	if loc == nil {
		loc = time.Local
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	l := &Log{}
	for i := 0; i < preamble; i++ {
		rec, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("logcsv: preamble row %d: %w", i+1, err)
		}
		if i == 0 && len(rec) > 1 {
			l.Station = rec[1]
		}
	}

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("logcsv: header: %w", err)
	}
	col, err := columns(header)
	if err != nil {
		return nil, err
	}

	for line := preamble + 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("logcsv: line %d: %w", line, err)
		}
		if len(rec) < len(header) {
			return nil, fmt.Errorf("logcsv: line %d: want %d fields, got %d", line, len(header), len(rec))
		}
		raw := strings.TrimSpace(rec[col["value"]])
		if strings.EqualFold(raw, "off") {
			continue
		}
		ts, err := time.ParseInLocation(dateLayout+" "+timeLayout, rec[col["date"]]+" "+rec[col["time"]], loc)
		if err != nil {
			return nil, fmt.Errorf("logcsv: line %d: %w", line, err)
		}
		row := Row{Time: ts, Label: rec[col["label"]], Value: parseValue(raw)}
		if i, ok := col["units"]; ok {
			row.Units = rec[i]
		}
		if i, ok := col["quality"]; ok {
			row.Quality = rec[i]
		}
		l.Rows = append(l.Rows, row)
	}
	return l, nil
}

func columns(header []string) (map[string]int, error) {
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"date", "time", "label", "value"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("logcsv: header has no %q column", need)
		}
	}
	return col, nil
}

func parseValue(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	for _, m := range sentinels {
		if v == m {
			return math.NaN()
		}
	}
	return v
}

// Labels returns the distinct labels in first-seen order.
func (l *Log) Labels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range l.Rows {
		if !seen[r.Label] {
			seen[r.Label] = true
			out = append(out, r.Label)
		}
	}
	return out
}

// Series is one label's readings in time order.
type Series struct {
	Label  string
	Units  string
	Times  []time.Time
	Values []float64
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Times) }

// Between returns the samples with from <= time <= to.
func (s Series) Between(from, to time.Time) Series {
	out := Series{Label: s.Label, Units: s.Units}
	for i, t := range s.Times {
		if !t.Before(from) && !t.After(to) {
			out.Times = append(out.Times, t)
			out.Values = append(out.Values, s.Values[i])
		}
	}
	return out
}

// Series returns the readings of label sorted by time.
func (l *Log) Series(label string) Series {
	s := Series{Label: label}
	var rows []Row
	for _, r := range l.Rows {
		if r.Label == label {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
	for _, r := range rows {
		if s.Units == "" {
			s.Units = r.Units
		}
		s.Times = append(s.Times, r.Time)
		s.Values = append(s.Values, r.Value)
	}
	return s
}

// Frame is the export pivoted to one row per timestamp and one column per
// label. Cells without a reading are NaN.
type Frame struct {
	Times   []time.Time
	Labels  []string
	Columns map[string][]float64
	Units   map[string]string
}

// Pivot reshapes the log into a Frame. Only the given labels are kept;
// none means all, in first-seen order.
func (l *Log) Pivot(labels ...string) *Frame {
	if len(labels) == 0 {
		labels = l.Labels()
	}
	keep := make(map[string]bool, len(labels))
	for _, lb := range labels {
		keep[lb] = true
	}

	index := make(map[time.Time]int)
	var times []time.Time
	for _, r := range l.Rows {
		if !keep[r.Label] {
			continue
		}
		if _, ok := index[r.Time]; !ok {
			index[r.Time] = len(times)
			times = append(times, r.Time)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i, t := range times {
		index[t] = i
	}

	f := &Frame{
		Times:   times,
		Labels:  append([]string(nil), labels...),
		Columns: make(map[string][]float64, len(labels)),
		Units:   make(map[string]string, len(labels)),
	}
	for _, lb := range labels {
		c := make([]float64, len(times))
		for i := range c {
			c[i] = math.NaN()
		}
		f.Columns[lb] = c
	}
	for _, r := range l.Rows {
		if !keep[r.Label] {
			continue
		}
		f.Columns[r.Label][index[r.Time]] = r.Value
		if f.Units[r.Label] == "" {
			f.Units[r.Label] = r.Units
		}
	}
	return f
}

// Column returns label's column as a Series on the frame's times.
func (f *Frame) Column(label string) (Series, bool) {
	c, ok := f.Columns[label]
	if !ok {
		return Series{}, false
	}
	return Series{Label: label, Units: f.Units[label], Times: f.Times, Values: c}, true
}

// Add appends a computed column.
func (f *Frame) Add(s Series) error {
	if len(s.Values) != len(f.Times) {
		return fmt.Errorf("logcsv: column %q has %d values, frame has %d rows", s.Label, len(s.Values), len(f.Times))
	}
	if _, ok := f.Columns[s.Label]; !ok {
		f.Labels = append(f.Labels, s.Label)
	}
	f.Columns[s.Label] = s.Values
	f.Units[s.Label] = s.Units
	return nil
}

// WriteCSV writes the frame as "Time,<label>..." with RFC3339 timestamps.
// NaN cells are left empty.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"Time"}, f.Labels...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("logcsv: write: %w", err)
	}
	rec := make([]string, len(header))
	for i, t := range f.Times {
		rec[0] = t.Format(time.RFC3339)
		for j, lb := range f.Labels {
			v := f.Columns[lb][i]
			if math.IsNaN(v) {
				rec[j+1] = ""
			} else {
				rec[j+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("logcsv: write: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("logcsv: write: %w", err)
	}
	return nil
}
