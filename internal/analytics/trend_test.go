package analytics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlukic/liftlab/internal/analytics"
)

func observationsFrom(base time.Time, dayValues map[int]float64) []analytics.Observation {
	observations := make([]analytics.Observation, 0, len(dayValues))
	for day := 0; day <= 400; day++ {
		if value, ok := dayValues[day]; ok {
			observations = append(observations, analytics.Observation{
				Date:  base.AddDate(0, 0, day),
				Value: value,
			})
		}
	}
	return observations
}

func TestProject(t *testing.T) {
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	observations := observationsFrom(base, map[int]float64{
		0:  100,
		30: 105,
		60: 110,
	})

	projection, err := analytics.Project(observations, 6)
	require.NoError(t, err)

	assert.InDelta(t, 1.0/6.0, projection.Slope, 1e-6)
	assert.Equal(t, 3, projection.Observations)
	assert.Equal(t, base.AddDate(0, 0, 60), projection.LastDate)
	assert.Equal(t, base.AddDate(0, 0, 60).AddDate(0, 6, 0), projection.TargetDate)

	// 184 days between 2021-03-02 and 2021-09-02, 1/6 kg per day
	assert.InDelta(t, 110+184.0/6.0, projection.ProjectedValue, 1e-6)
}

func TestProject_DefaultHorizon(t *testing.T) {
	base := time.Date(2022, 3, 10, 0, 0, 0, 0, time.UTC)
	observations := observationsFrom(base, map[int]float64{
		0:   500,
		90:  520,
		180: 540,
	})

	projection, err := analytics.Project(observations, 0)
	require.NoError(t, err)
	assert.Equal(t, base.AddDate(0, 0, 180).AddDate(0, 6, 0), projection.TargetDate)
	assert.Greater(t, projection.ProjectedValue, 540.0)
}

func TestProject_FloorAtBestObserved(t *testing.T) {
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	observations := observationsFrom(base, map[int]float64{
		0:   600,
		100: 580,
		200: 560,
	})

	projection, err := analytics.Project(observations, 6)
	require.NoError(t, err)

	// a declining trend never projects below the athlete's record
	assert.Negative(t, projection.Slope)
	assert.InDelta(t, 600, projection.ProjectedValue, 1e-9)
}

func TestProject_InsufficientHistory(t *testing.T) {
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := analytics.Project(nil, 6)
	assert.True(t, errors.Is(err, analytics.ErrInsufficientData))

	observations := observationsFrom(base, map[int]float64{0: 100, 30: 105})
	_, err = analytics.Project(observations, 6)
	assert.True(t, errors.Is(err, analytics.ErrInsufficientData))
}

func TestProject_ZeroDateVariance(t *testing.T) {
	date := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	observations := []analytics.Observation{
		{Date: date, Value: 100},
		{Date: date, Value: 110},
		{Date: date, Value: 120},
	}

	_, err := analytics.Project(observations, 6)
	assert.True(t, errors.Is(err, analytics.ErrInvalidInput))
}

func TestProject_UnorderedObservations(t *testing.T) {
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	observations := []analytics.Observation{
		{Date: base.AddDate(0, 0, 60), Value: 110},
		{Date: base, Value: 100},
		{Date: base.AddDate(0, 0, 30), Value: 105},
	}

	projection, err := analytics.Project(observations, 6)
	require.NoError(t, err)
	assert.Equal(t, base.AddDate(0, 0, 60), projection.LastDate)
	assert.InDelta(t, 1.0/6.0, projection.Slope, 1e-6)
}
