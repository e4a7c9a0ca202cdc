package overview_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlukic/liftlab/internal/overview"
	"github.com/dlukic/liftlab/internal/telemetry/metrics"
)

type cacheStub struct {
	entries map[string][]byte
}

func newCacheStub() *cacheStub {
	return &cacheStub{entries: make(map[string][]byte)}
}

func (c *cacheStub) Get(_ context.Context, key string) ([]byte, bool) {
	data, ok := c.entries[key]
	return data, ok
}

func (c *cacheStub) Set(_ context.Context, key string, data []byte) {
	c.entries[key] = data
}

func TestHandler_HandleParticipation(t *testing.T) {
	handler := overview.NewHandler(overview.NewAggregator(testStore()), nil, metrics.NewTestManager())

	req, err := http.NewRequest("GET", "/overview/participation?sex=F", nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()

	handler.HandleParticipation(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var participation []overview.YearParticipation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&participation))
	require.Len(t, participation, 2)
	assert.Equal(t, 2020, participation[0].Year)
	assert.Equal(t, 1, participation[0].Athletes)
}

func TestHandler_HandleParticipation_BadYear(t *testing.T) {
	handler := overview.NewHandler(overview.NewAggregator(testStore()), nil, metrics.NewTestManager())

	req, err := http.NewRequest("GET", "/overview/participation?yearFrom=recently", nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()

	handler.HandleParticipation(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_CachesAggregations(t *testing.T) {
	cache := newCacheStub()
	handler := overview.NewHandler(overview.NewAggregator(testStore()), cache, metrics.NewTestManager())

	req, err := http.NewRequest("GET", "/geography?sex=M", nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()

	handler.HandleGeography(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, cache.entries, 1)
	firstBody := rec.Body.String()

	// second call is served from the cache
	rec = httptest.NewRecorder()
	handler.HandleGeography(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, firstBody, rec.Body.String())
}

func TestHandler_HandleAgeClassDistributions_UnknownMetric(t *testing.T) {
	handler := overview.NewHandler(overview.NewAggregator(testStore()), nil, metrics.NewTestManager())

	req, err := http.NewRequest("GET", "/categories/age-classes?metric=snatch", nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()

	handler.HandleAgeClassDistributions(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_HandleBodyweightHistogram(t *testing.T) {
	handler := overview.NewHandler(overview.NewAggregator(testStore()), nil, metrics.NewTestManager())

	req, err := http.NewRequest("GET", "/categories/bodyweight?metric=squat", nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()

	handler.HandleBodyweightHistogram(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var bins []overview.BodyweightBin
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&bins))
	require.Len(t, bins, 12)
}

func TestHandler_HandleLeaderboard(t *testing.T) {
	handler := overview.NewHandler(overview.NewAggregator(leaderboardStore()), nil, metrics.NewTestManager())

	req, err := http.NewRequest("GET", "/overview/leaderboard", nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()

	handler.HandleLeaderboard(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var leaderboard overview.Leaderboard
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&leaderboard))
	require.Len(t, leaderboard.TopTotals, 6)
	assert.Equal(t, "cy", leaderboard.TopTotals[0].AthleteID)
	require.Len(t, leaderboard.BestPerCategory, 3)
	assert.Equal(t, "63", leaderboard.BestPerCategory[0].WeightClass)
}
