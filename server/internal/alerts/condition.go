package alerts

import (
	"strconv"
	"strings"

	"github.com/hydrostack/hydrostack/pkg/types"
)

// evalCondition evaluates a rule condition string against a station status.
//
// Supported expressions (field operator value):
//
//	reading.Level > 2.5
//	reading.Flow <= 0
//	pacing.on == 1
//	pacing.failures >= 3
//	pacing.bottle_volume_ml > 18000
//	camera.no_sd > 0
//	uptime_sec < 120
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is not
// present in st.
func evalCondition(cond string, st *types.StationStatus) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	v, ok := st.Field(field)
	if !ok {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
