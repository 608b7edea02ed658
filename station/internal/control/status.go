package control

import (
	"time"

	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/station/internal/camera"
	"github.com/hydrostack/hydrostack/station/internal/datalog"
	"github.com/hydrostack/hydrostack/station/internal/pacing"
)

// Reading converts a datalog reading to its wire form.
func Reading(station string, r datalog.Reading) types.Reading {
	return types.Reading{
		Station: station,
		Label:   r.Label,
		Value:   r.Value,
		Units:   r.Units,
		Quality: r.Quality,
		Time:    r.Time.UTC(),
	}
}

// Pacing converts an engine snapshot to its wire form.
func Pacing(s pacing.State) types.PacingStatus {
	return types.PacingStatus{
		On:               s.On,
		Mode:             string(s.Mode),
		Composite:        s.Composite,
		Pacing:           s.Pacing,
		Total:            s.Total,
		Bottle:           s.Bottle,
		AliquotsInBottle: s.AliquotsInBottle,
		TotalAliquots:    s.TotalAliquots,
		BottleVolumeML:   s.BottleVolumeML,
		Triggers:         s.Triggers,
		Failures:         s.Failures,
		LastSample:       s.LastSample.UTC(),
	}
}

// Camera converts camera counters to their wire form.
func Camera(s camera.Stats) *types.CameraStatus {
	return &types.CameraStatus{
		Pictures: s.Pictures,
		Fails:    s.Fails,
		Retries:  s.Retries,
		Repowers: s.Repowers,
		NoSD:     s.NoSD,
	}
}

// Snapshot gathers what a status report is built from.
type Snapshot struct {
	Station  string
	Started  time.Time
	Pacing   pacing.State
	Readings map[string]datalog.Reading
	// Camera is nil when the station has none.
	Camera *camera.Stats
}

// Status builds the retained station status at now.
func (s Snapshot) Status(now time.Time) types.StationStatus {
	st := types.StationStatus{
		Station:   s.Station,
		Time:      now.UTC(),
		Pacing:    Pacing(s.Pacing),
		UptimeSec: int64(now.Sub(s.Started) / time.Second),
	}
	if len(s.Readings) > 0 {
		st.Readings = make(map[string]types.Reading, len(s.Readings))
		for label, r := range s.Readings {
			st.Readings[label] = Reading(s.Station, r)
		}
	}
	if s.Camera != nil {
		st.Camera = Camera(*s.Camera)
	}
	return st
}
