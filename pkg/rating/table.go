package rating

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Point is one surveyed stage/flow pair.
type Point struct {
	Stage float64 `yaml:"stage"`
	Flow  float64 `yaml:"flow"`
}

// Table is an immutable rating curve with strictly increasing stages.
type Table struct {
	points []Point
}

// ErrEmptyTable is returned when a table has no points.
var ErrEmptyTable = errors.New("rating: table has no points")

// NewTable validates points and returns a Table. The slice is copied.
func NewTable(points []Point) (*Table, error) {
	if len(points) == 0 {
		return nil, ErrEmptyTable
	}
	for i := 1; i < len(points); i++ {
		if points[i].Stage <= points[i-1].Stage {
			return nil, fmt.Errorf("rating: stage %.4f at row %d is not above %.4f",
				points[i].Stage, i, points[i-1].Stage)
		}
	}
	cp := make([]Point, len(points))
	copy(cp, points)
	return &Table{points: cp}, nil
}

// Points returns a copy of the table rows.
func (t *Table) Points() []Point {
	cp := make([]Point, len(t.points))
	copy(cp, t.points)
	return cp
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.points) }

// Flow returns the interpolated discharge for stage.
func (t *Table) Flow(stage float64) float64 {
	pts := t.points
	if stage <= pts[0].Stage {
		return pts[0].Flow
	}
	last := pts[len(pts)-1]
	if stage >= last.Stage {
		return last.Flow
	}
	for i := 1; i < len(pts); i++ {
		if pts[i].Stage < stage {
			continue
		}
		lo, hi := pts[i-1], pts[i]
		return lo.Flow + (stage-lo.Stage)*(hi.Flow-lo.Flow)/(hi.Stage-lo.Stage)
	}
	return last.Flow
}

// LoadCSV reads "stage,flow" rows into a Table. A leading non-numeric row
// is treated as a header and skipped.
func LoadCSV(r io.Reader) (*Table, error) {
	points, err := ReadPoints(r)
	if err != nil {
		return nil, err
	}
	return NewTable(points)
}

// ReadPoints reads "stage,flow" rows as they appear, without ordering
// checks. Extra columns are ignored. A leading non-numeric row is treated as
// a header and skipped.
func ReadPoints(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var points []Point
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("rating: read csv: %w", err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("rating: row %d: want 2 columns, got %d", row+1, len(rec))
		}
		stage, errS := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		flow, errF := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errS != nil || errF != nil {
			if row == 0 {
				continue
			}
			return nil, fmt.Errorf("rating: row %d: non-numeric value %q,%q", row+1, rec[0], rec[1])
		}
		points = append(points, Point{Stage: stage, Flow: flow})
	}
	return points, nil
}

// WriteCSV writes points as "stage,flow" rows under header, with stage to
// 0.01 and flow to 0.001.
func WriteCSV(w io.Writer, header [2]string, points []Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header[:]); err != nil {
		return fmt.Errorf("rating: write csv: %w", err)
	}
	for _, p := range points {
		rec := []string{strconv.FormatFloat(p.Stage, 'f', 2, 64), strconv.FormatFloat(p.Flow, 'f', 3, 64)}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("rating: write csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("rating: write csv: %w", err)
	}
	return nil
}
