// Package chart renders datalog series and rating tables with gonum plot.
// The output format follows the file extension (png, svg, pdf).
package chart

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/hydrostack/hydrostack/pkg/rating"
	"github.com/hydrostack/hydrostack/tools/internal/logcsv"
)

// Default image size.
const (
	Width  = 10 * vg.Inch
	Height = 5 * vg.Inch
)

// TimeSeries plots each series against time and saves the chart to path.
// Missing values break the line.
func TimeSeries(path, title string, series ...logcsv.Series) error {
	if len(series) == 0 {
		return fmt.Errorf("chart: no series")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01/02\n15:04"}
	p.Add(plotter.NewGrid())

	var units []string
	for i, s := range series {
		segs := segments(s)
		if len(segs) == 0 {
			continue
		}
		for j, seg := range segs {
			l, err := plotter.NewLine(seg)
			if err != nil {
				return fmt.Errorf("chart: %s: %w", s.Label, err)
			}
			l.LineStyle.Color = plotutil.Color(i)
			l.LineStyle.Width = vg.Points(1)
			p.Add(l)
			if j == 0 {
				p.Legend.Add(legendName(s), l)
			}
		}
		if s.Units != "" && !contains(units, s.Units) {
			units = append(units, s.Units)
		}
	}
	p.Y.Label.Text = strings.Join(units, ", ")
	p.Legend.Top = true
	return save(p, path)
}

// RatingCurves plots rating tables as stage against flow. names labels
// each table in the legend.
func RatingCurves(path, title, stageUnits, flowUnits string, names []string, tables ...[]rating.Point) error {
	if len(names) != len(tables) {
		return fmt.Errorf("chart: %d names for %d tables", len(names), len(tables))
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Stage (" + stageUnits + ")"
	p.Y.Label.Text = "Flow (" + flowUnits + ")"
	p.Add(plotter.NewGrid())

	for i, pts := range tables {
		xys := make(plotter.XYs, len(pts))
		for j, pt := range pts {
			xys[j].X, xys[j].Y = pt.Stage, pt.Flow
		}
		l, s, err := plotter.NewLinePoints(xys)
		if err != nil {
			return fmt.Errorf("chart: %s: %w", names[i], err)
		}
		l.LineStyle.Color = plotutil.Color(i)
		s.GlyphStyle.Color = plotutil.Color(i)
		s.GlyphStyle.Shape = plotutil.Shape(i)
		p.Add(l, s)
		p.Legend.Add(names[i], l, s)
	}
	p.Legend.Top = true
	p.Legend.Left = true
	return save(p, path)
}

// segments splits s at missing values into drawable runs.
func segments(s logcsv.Series) []plotter.XYs {
	var (
		out []plotter.XYs
		cur plotter.XYs
	)
	for i, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: float64(s.Times[i].Unix()), Y: v})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func legendName(s logcsv.Series) string {
	if s.Units == "" {
		return s.Label
	}
	return s.Label + " (" + s.Units + ")"
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func save(p *plot.Plot, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf", ".jpg", ".jpeg":
	default:
		return fmt.Errorf("chart: unsupported image format %q", filepath.Ext(path))
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("chart: save %s: %w", path, err)
	}
	return nil
}
