package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlukic/liftlab/internal/cache"
	"github.com/dlukic/liftlab/internal/dataset"
)

func TestFilterOptionsCache(t *testing.T) {
	c := cache.NewFilterOptionsCache()
	assert.Nil(t, c.Get())

	options := &dataset.FilterOptions{
		Sexes:      []string{"F", "M"},
		Equipment:  []string{"Raw", "Wraps"},
		AgeClasses: []string{"24-34"},
		Countries:  []string{"Norway", "Sweden"},
		YearMin:    2015,
		YearMax:    2023,
	}
	c.Set(options)

	cached := c.Get()
	require.NotNil(t, cached)
	assert.Equal(t, options, cached)

	c.Clear()
	assert.Nil(t, c.Get())
}
