package analytics

import (
	"time"
)

const (
	// DefaultHorizonMonths is the projection horizon used when the
	// caller does not ask for a specific one.
	DefaultHorizonMonths = 6

	// minObservations is the smallest history an OLS fit is attempted on.
	minObservations = 3
)

// Observation is a single dated measurement of an athlete's metric.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// TrendProjection is a least-squares fit over an athlete's history plus
// the extrapolated value at the horizon. ProjectedValue never falls
// below the best observed value, so a declining trend never shows a
// regression under the athlete's actual record.
type TrendProjection struct {
	Slope          float64   `json:"slope"`
	Intercept      float64   `json:"intercept"`
	ProjectedValue float64   `json:"projectedValue"`
	Observations   int       `json:"observations"`
	LastDate       time.Time `json:"lastDate"`
	TargetDate     time.Time `json:"targetDate"`
}

// Project fits value = slope*day + intercept over the observations and
// extrapolates horizonMonths calendar months past the last observation.
// Fewer than 3 observations return ErrInsufficientData; identical dates
// make the fit undefined and return ErrInvalidInput.
func Project(observations []Observation, horizonMonths int) (*TrendProjection, error) {
	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}
	if len(observations) < minObservations {
		return nil, ErrInsufficientData
	}

	var sumX, sumY, sumXX, sumXY float64
	maxObserved := observations[0].Value
	lastDate := observations[0].Date
	for _, obs := range observations {
		x := dayOrdinal(obs.Date)
		sumX += x
		sumY += obs.Value
		sumXX += x * x
		sumXY += x * obs.Value
		if obs.Value > maxObserved {
			maxObserved = obs.Value
		}
		if obs.Date.After(lastDate) {
			lastDate = obs.Date
		}
	}

	n := float64(len(observations))
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil, ErrInvalidInput
	}

	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	targetDate := lastDate.AddDate(0, horizonMonths, 0)
	projected := slope*dayOrdinal(targetDate) + intercept
	if projected < maxObserved {
		projected = maxObserved
	}

	return &TrendProjection{
		Slope:          slope,
		Intercept:      intercept,
		ProjectedValue: projected,
		Observations:   len(observations),
		LastDate:       lastDate,
		TargetDate:     targetDate,
	}, nil
}

func dayOrdinal(t time.Time) float64 {
	return float64(t.Unix()) / 86400.0
}
