package analytics

import (
	"errors"
)

// ErrAlreadyAboveAllGoals is a terminal outcome of the goal search, not
// a failure: the athlete's total already exceeds every candidate goal.
var ErrAlreadyAboveAllGoals = errors.New("already above all goals")

// Goal is one candidate target in the goal ladder.
type Goal struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// NextGoal walks the ladder in the given order (easiest first) and
// returns the first goal whose value exceeds currentTotal.
func NextGoal(ladder []Goal, currentTotal float64) (*Goal, error) {
	for i := range ladder {
		if ladder[i].Value > currentTotal {
			return &ladder[i], nil
		}
	}
	return nil, ErrAlreadyAboveAllGoals
}

// Allocate splits the improvement needed to reach target across the
// lifts, in proportion to each lift's current share of the total. The
// deltas sum to target-currentTotal up to floating point rounding.
func Allocate(target, currentTotal float64, breakdown map[string]float64) (map[string]float64, error) {
	if currentTotal == 0 {
		return nil, ErrInvalidInput
	}

	improvement := target - currentTotal
	deltas := make(map[string]float64, len(breakdown))
	for lift, value := range breakdown {
		deltas[lift] = improvement * (value / currentTotal)
	}
	return deltas, nil
}
