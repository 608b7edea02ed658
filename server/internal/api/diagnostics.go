package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hydrostack/hydrostack/pkg/types"
)

// Hint levels.
const (
	levelOK       = "ok"
	levelInfo     = "info"
	levelWarning  = "warning"
	levelCritical = "critical"
)

// recentRestartSec marks a station as recently restarted.
const recentRestartSec = 600

// DiagnosticHint is one human-readable insight about a station. The UI
// shows Title as a chip on the station card and Detail on click.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives hints from a station status, critical first,
// then warnings, then info.
func computeDiagnostics(st *types.StationStatus) []DiagnosticHint {
	var hints []DiagnosticHint

	// Sampler
	if f := st.Pacing.Failures; f > 0 {
		v := float64(f)
		level := levelWarning
		if f >= 3 {
			level = levelCritical
		}
		hints = append(hints, DiagnosticHint{
			Key:   "sampler_failures",
			Level: level,
			Title: fmt.Sprintf("%d failed triggers", f),
			Detail: fmt.Sprintf(
				"The sampler did not confirm %d of %d trigger attempts. "+
					"Check the sampler cable, intake line and distributor arm; "+
					"a failed trigger means the composite is missing an aliquot.",
				f, st.Pacing.Triggers+f),
			Value: &v,
		})
	}

	// Camera
	if c := st.Camera; c != nil {
		if c.NoSD > 0 {
			v := float64(c.NoSD)
			hints = append(hints, DiagnosticHint{
				Key:   "camera_no_sd",
				Level: levelCritical,
				Title: "Camera SD card missing",
				Detail: "The camera reported no memory card while saving a picture. " +
					"Pictures are not being stored until the card is reseated or replaced.",
				Value: &v,
			})
		}
		if c.Fails > 0 {
			v := float64(c.Fails)
			hints = append(hints, DiagnosticHint{
				Key:   "camera_fails",
				Level: levelWarning,
				Title: fmt.Sprintf("%d picture failures", c.Fails),
				Detail: fmt.Sprintf(
					"%d pictures failed after %d retries and %d power cycles. "+
						"Check the camera's power line and serial connection.",
					c.Fails, c.Retries, c.Repowers),
				Value: &v,
			})
		}
	}

	// Readings
	var bad []string
	for label, r := range st.Readings {
		if r.Quality == types.QualityBad {
			bad = append(bad, label)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		v := float64(len(bad))
		hints = append(hints, DiagnosticHint{
			Key:   "bad_readings",
			Level: levelWarning,
			Title: fmt.Sprintf("%d bad readings", len(bad)),
			Detail: "The latest value of " + strings.Join(bad, ", ") +
				" was logged with bad quality. The sensor did not answer or " +
				"returned an out-of-range value.",
			Value: &v,
		})
	}

	// Program state
	if p := st.Pacing; p.On {
		v := 0.0
		if p.Pacing > 0 {
			v = p.Total / p.Pacing * 100
		}
		hints = append(hints, DiagnosticHint{
			Key:   "sampling",
			Level: levelInfo,
			Title: fmt.Sprintf("Sampling, bottle %d", p.Bottle),
			Detail: fmt.Sprintf(
				"%s-paced sampling is on: %d aliquots taken, %.0f%% of the way to the next. "+
					"The current bottle holds %.0f mL.",
				p.Mode, p.TotalAliquots, v, p.BottleVolumeML),
			Value: &v,
		})
	}
	if st.UptimeSec > 0 && st.UptimeSec < recentRestartSec {
		v := float64(st.UptimeSec)
		hints = append(hints, DiagnosticHint{
			Key:   "recent_restart",
			Level: levelInfo,
			Title: "Recently restarted",
			Detail: fmt.Sprintf(
				"The station program started %d seconds ago. "+
					"Frequent restarts point to a power or watchdog problem at the site.",
				st.UptimeSec),
			Value: &v,
		})
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "healthy",
			Level:  levelOK,
			Title:  "All clear",
			Detail: "Sampler, camera and sensors are reporting normally.",
		})
	}

	sort.SliceStable(hints, func(i, j int) bool { return levelRank(hints[i].Level) < levelRank(hints[j].Level) })
	return hints
}

func levelRank(level string) int {
	switch level {
	case levelCritical:
		return 0
	case levelWarning:
		return 1
	case levelInfo:
		return 2
	default:
		return 3
	}
}
