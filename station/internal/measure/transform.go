package measure

import (
	"context"
	"fmt"
	"time"

	"github.com/hydrostack/hydrostack/pkg/rating"
	"github.com/hydrostack/hydrostack/station/internal/datalog"
)

// Transform maps a value taken at a given time.
type Transform interface {
	Apply(ctx context.Context, v float64, at time.Time) (float64, error)
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(ctx context.Context, v float64, at time.Time) (float64, error)

// Apply calls f.
func (f TransformFunc) Apply(ctx context.Context, v float64, at time.Time) (float64, error) {
	return f(ctx, v, at)
}

// TransformConfig selects and configures one step of the chain.
type TransformConfig struct {
	// Type is one of: rating | pipe_flow | weir | differential | scale.
	Type string `yaml:"type"`

	// Table names a rating table.
	Table string `yaml:"table"`

	// Pipe flow: the input is stage in inches. The diameter comes from the
	// GP variable DiameterVar when set, else DiameterIn. Velocity names the
	// measurement holding velocity in ft/s. Output is gpm (default) or cfs.
	DiameterVar string  `yaml:"diameter_var"`
	DiameterIn  float64 `yaml:"diameter_in"`
	Velocity    string  `yaml:"velocity"`
	Output      string  `yaml:"output"`

	// Weir defaults to rating.DefaultCompoundWeir.
	Weir *rating.CompoundWeir `yaml:"weir"`

	// Differential: the change of the logged label Of over Period.
	Of            string        `yaml:"of"`
	Period        time.Duration `yaml:"period"`
	AllowNegative bool          `yaml:"allow_negative"`

	// Scale multiplies (zero means 1) before Offset is added.
	Scale  float64 `yaml:"scale"`
	Offset float64 `yaml:"offset"`
}

func buildTransform(c TransformConfig, env Env) (Transform, error) {
	switch c.Type {
	case "rating":
		t, ok := env.Tables[c.Table]
		if !ok {
			return nil, fmt.Errorf("rating table %q not loaded", c.Table)
		}
		return TransformFunc(func(_ context.Context, v float64, _ time.Time) (float64, error) {
			return t.Flow(v), nil
		}), nil

	case "pipe_flow":
		if c.Velocity == "" {
			return nil, fmt.Errorf("pipe_flow needs velocity")
		}
		if c.DiameterVar == "" && c.DiameterIn <= 0 {
			return nil, fmt.Errorf("pipe_flow needs diameter_var or diameter_in")
		}
		if c.DiameterVar != "" && env.Vars == nil {
			return nil, fmt.Errorf("pipe_flow diameter_var needs a variable bank")
		}
		if c.Output != "" && c.Output != "gpm" && c.Output != "cfs" {
			return nil, fmt.Errorf("pipe_flow output %q unknown: want gpm|cfs", c.Output)
		}
		return TransformFunc(func(_ context.Context, stage float64, _ time.Time) (float64, error) {
			d := c.DiameterIn
			if c.DiameterVar != "" {
				v, err := env.Vars.Get(c.DiameterVar)
				if err != nil {
					return 0, err
				}
				d = v
			}
			vel, err := env.latest(c.Velocity)
			if err != nil {
				return 0, err
			}
			res := rating.PipeFlow(d, stage, vel)
			if c.Output == "cfs" {
				return res.CFS, nil
			}
			return res.GPM, nil
		}), nil

	case "weir":
		w := rating.DefaultCompoundWeir
		if c.Weir != nil {
			w = *c.Weir
		}
		return TransformFunc(func(_ context.Context, level float64, _ time.Time) (float64, error) {
			return w.GPM(level), nil
		}), nil

	case "differential":
		if c.Of == "" || c.Period <= 0 {
			return nil, fmt.Errorf("differential needs of and period")
		}
		if env.History == nil {
			return nil, fmt.Errorf("differential needs a datalog")
		}
		return TransformFunc(func(ctx context.Context, v float64, at time.Time) (float64, error) {
			cur := datalog.Reading{Time: at, Label: c.Of, Value: v, Quality: datalog.Good}
			return datalog.Differential(ctx, env.History, c.Of, c.Period, cur, c.AllowNegative)
		}), nil

	case "scale":
		k := c.Scale
		if k == 0 {
			k = 1
		}
		off := c.Offset
		return TransformFunc(func(_ context.Context, v float64, _ time.Time) (float64, error) {
			return v*k + off, nil
		}), nil
	}
	return nil, fmt.Errorf("unsupported transform type %q", c.Type)
}
