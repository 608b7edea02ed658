package types

import (
	"strings"
	"time"
)

// Quality flags.
const (
	QualityGood = "G"
	QualityBad  = "B"
)

// Reading is one logged measurement.
type Reading struct {
	Station string    `json:"station"`
	Label   string    `json:"label"`
	Value   float64   `json:"value"`
	Units   string    `json:"units,omitempty"`
	Quality string    `json:"quality"`
	Time    time.Time `json:"time"`
}

// Event is one logged station event such as a sampler trigger.
type Event struct {
	ID      string    `json:"id"`
	Station string    `json:"station"`
	Label   string    `json:"label"`
	Value   float64   `json:"value"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// PacingStatus mirrors the sampler pacing engine.
type PacingStatus struct {
	On               bool      `json:"on"`
	Mode             string    `json:"mode"`
	Composite        bool      `json:"composite"`
	Pacing           float64   `json:"pacing"`
	Total            float64   `json:"total"`
	Bottle           int       `json:"bottle"`
	AliquotsInBottle int       `json:"aliquots_in_bottle"`
	TotalAliquots    int       `json:"total_aliquots"`
	BottleVolumeML   float64   `json:"bottle_volume_ml"`
	Triggers         int       `json:"triggers"`
	Failures         int       `json:"failures"`
	LastSample       time.Time `json:"last_sample,omitempty"`
}

// CameraStatus holds the camera's running totals.
type CameraStatus struct {
	Pictures int `json:"pictures"`
	Fails    int `json:"fails"`
	Retries  int `json:"retries"`
	Repowers int `json:"repowers"`
	NoSD     int `json:"no_sd"`
}

// StationStatus is the retained summary a station publishes after every
// measurement cycle.
type StationStatus struct {
	Station   string             `json:"station"`
	Time      time.Time          `json:"time"`
	Pacing    PacingStatus       `json:"pacing"`
	Readings  map[string]Reading `json:"readings,omitempty"`
	Camera    *CameraStatus      `json:"camera,omitempty"`
	UptimeSec int64              `json:"uptime_sec"`
}

// Field resolves a dotted field name used by alert conditions:
// pacing.<name>, camera.<name>, reading.<label> and uptime_sec. Booleans
// resolve to 0 or 1.
func (s *StationStatus) Field(name string) (float64, bool) {
	group, key, _ := strings.Cut(name, ".")
	switch group {
	case "uptime_sec":
		return float64(s.UptimeSec), true
	case "reading":
		r, ok := s.Readings[key]
		if !ok {
			return 0, false
		}
		return r.Value, true
	case "pacing":
		return s.Pacing.field(key)
	case "camera":
		if s.Camera == nil {
			return 0, false
		}
		return s.Camera.field(key)
	}
	return 0, false
}

func (p PacingStatus) field(key string) (float64, bool) {
	switch key {
	case "on":
		return b2f(p.On), true
	case "composite":
		return b2f(p.Composite), true
	case "pacing":
		return p.Pacing, true
	case "total":
		return p.Total, true
	case "bottle":
		return float64(p.Bottle), true
	case "aliquots_in_bottle":
		return float64(p.AliquotsInBottle), true
	case "total_aliquots":
		return float64(p.TotalAliquots), true
	case "bottle_volume_ml":
		return p.BottleVolumeML, true
	case "triggers":
		return float64(p.Triggers), true
	case "failures":
		return float64(p.Failures), true
	}
	return 0, false
}

func (c CameraStatus) field(key string) (float64, bool) {
	switch key {
	case "pictures":
		return float64(c.Pictures), true
	case "fails":
		return float64(c.Fails), true
	case "retries":
		return float64(c.Retries), true
	case "repowers":
		return float64(c.Repowers), true
	case "no_sd":
		return float64(c.NoSD), true
	}
	return 0, false
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
