package dataset

import (
	"errors"
	"time"
)

// ErrUnknownMetric is returned when a caller asks for a metric that is
// not one of the known numeric columns.
var ErrUnknownMetric = errors.New("unknown metric")

// Metric selects the numeric column of a PerformanceRecord
// used for ranking and aggregation.
type Metric string

const (
	MetricTotal    Metric = "total"
	MetricSquat    Metric = "squat"
	MetricBench    Metric = "bench"
	MetricDeadlift Metric = "deadlift"
	MetricDots     Metric = "dots"
)

func (m Metric) Valid() bool {
	switch m {
	case MetricTotal, MetricSquat, MetricBench, MetricDeadlift, MetricDots:
		return true
	default:
		return false
	}
}

// PerformanceRecord is one competition result of one athlete.
// Records are immutable once loaded; the analytics layer only
// filters and aggregates them.
type PerformanceRecord struct {
	AthleteID   string     `json:"athleteId"`
	Sex         string     `json:"sex"`
	Equipment   string     `json:"equipment"`
	Country     *string    `json:"country,omitempty"`
	Year        int        `json:"year"`
	Date        *time.Time `json:"date,omitempty"`
	AgeClass    string     `json:"ageClass"`
	WeightClass *string    `json:"weightClass,omitempty"`
	Bodyweight  *float64   `json:"bodyweightKg,omitempty"`
	// best successful attempt per lift, nil or 0 means failed / no attempt
	BestSquat    *float64 `json:"best3SquatKg,omitempty"`
	BestBench    *float64 `json:"best3BenchKg,omitempty"`
	BestDeadlift *float64 `json:"best3DeadliftKg,omitempty"`
	// sum of the three best lifts, nil when not enough successful lifts
	Total *float64 `json:"totalKg,omitempty"`
	Dots  *float64 `json:"dots,omitempty"`
}

// MetricValue returns the value of the selected metric, or nil when absent.
func (r *PerformanceRecord) MetricValue(metric Metric) *float64 {
	switch metric {
	case MetricTotal:
		return r.Total
	case MetricSquat:
		return r.BestSquat
	case MetricBench:
		return r.BestBench
	case MetricDeadlift:
		return r.BestDeadlift
	case MetricDots:
		return r.Dots
	default:
		return nil
	}
}

// FilterOptions holds the distinct categorical values present in the
// dataset, used by the presentation layer to populate filter widgets.
type FilterOptions struct {
	Sexes      []string `json:"sexes"`
	Equipment  []string `json:"equipment"`
	AgeClasses []string `json:"ageClasses"`
	Countries  []string `json:"countries"`
	YearMin    int      `json:"yearMin"`
	YearMax    int      `json:"yearMax"`
}
