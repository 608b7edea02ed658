package datalog

import (
	"context"
	"time"
)

// Querier is the read side of Log used by Differential.
type Querier interface {
	Readings(ctx context.Context, label string, from, to time.Time) ([]Reading, error)
}

// Differential returns the change in label between the oldest logged
// reading inside [current.Time-period, current.Time] and current.
//
// With no reading in the window the result is 0. If either reading is bad
// the result is 0. A negative change returns current.Value unless
// allowNegative is set, which handles totalisers that roll over.
func Differential(ctx context.Context, q Querier, label string, period time.Duration, current Reading, allowNegative bool) (float64, error) {
	past, err := q.Readings(ctx, label, current.Time.Add(-period), current.Time)
	if err != nil {
		return 0, err
	}
	if len(past) == 0 {
		return 0, nil
	}
	oldest := past[0]
	if !oldest.Good() || !current.Good() {
		return 0, nil
	}
	diff := current.Value - oldest.Value
	if diff < 0 && !allowNegative {
		return current.Value, nil
	}
	return diff, nil
}
