package analytics

import (
	"errors"
	"math"
	"sort"

	"github.com/dlukic/liftlab/internal/dataset"
)

var (
	// ErrInsufficientData is returned when the input holds too few
	// values for a meaningful statistic (empty cohort, short history).
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidInput is returned for degenerate inputs: non-finite
	// values, zero denominators, zero-variance regressors.
	ErrInvalidInput = errors.New("invalid input")
)

// PercentileResult ranks a single value against a cohort. Percentile is
// the share of the cohort strictly below the value, 0-100; ties are
// neither beaten nor beating.
type PercentileResult struct {
	Percentile     float64 `json:"percentile"`
	CohortSize     int     `json:"cohortSize"`
	AthletesBeaten int     `json:"athletesBeaten"`
	Q50            float64 `json:"q50"`
	Q75            float64 `json:"q75"`
	Q90            float64 `json:"q90"`
	Q95            float64 `json:"q95"`
}

// Rank computes the strict-less-than percentile of value within the
// cohort's metric distribution, together with the 50/75/90/95 quantile
// thresholds. Records without a value for the metric are skipped.
func Rank(cohort []dataset.PerformanceRecord, metric dataset.Metric, value float64) (*PercentileResult, error) {
	if !metric.Valid() {
		return nil, ErrInvalidInput
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, ErrInvalidInput
	}

	values := make([]float64, 0, len(cohort))
	for i := range cohort {
		if v := cohort[i].MetricValue(metric); v != nil {
			values = append(values, *v)
		}
	}
	if len(values) == 0 {
		return nil, ErrInsufficientData
	}

	beaten := 0
	for _, v := range values {
		if v < value {
			beaten++
		}
	}

	sort.Float64s(values)

	return &PercentileResult{
		Percentile:     float64(beaten) / float64(len(values)) * 100,
		CohortSize:     len(values),
		AthletesBeaten: beaten,
		Q50:            quantile(values, 0.50),
		Q75:            quantile(values, 0.75),
		Q90:            quantile(values, 0.90),
		Q95:            quantile(values, 0.95),
	}, nil
}

// quantile interpolates linearly between order statistics of a sorted,
// non-empty slice.
func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
