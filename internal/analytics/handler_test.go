package analytics_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dlukic/liftlab/internal/analytics"
	"github.com/dlukic/liftlab/internal/dataset"
)

func TestHandler_HandleCompare(t *testing.T) {
	ctrl := gomock.NewController(t)
	serviceMock := NewMockanalyticsService(ctrl)
	h := analytics.NewHandler(serviceMock)

	profile := balancedProfile()
	profileJson, err := json.Marshal(profile)
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/compare", bytes.NewReader(profileJson))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	serviceMock.EXPECT().
		Compare(gomock.Any(), profile).
		Return(&analytics.CompareResult{
			Rank: &analytics.PercentileResult{
				Percentile:     41.7,
				CohortSize:     12,
				AthletesBeaten: 5,
			},
			CategoryAverage: 410,
		}, nil)

	h.HandleCompare(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result analytics.CompareResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.NotNil(t, result.Rank)
	assert.Equal(t, 12, result.Rank.CohortSize)
	assert.InDelta(t, 410, result.CategoryAverage, 1e-9)
}

func TestHandler_HandleCompare_WrongContentType(t *testing.T) {
	ctrl := gomock.NewController(t)
	serviceMock := NewMockanalyticsService(ctrl)
	h := analytics.NewHandler(serviceMock)

	req, err := http.NewRequest("POST", "/compare", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	rec := httptest.NewRecorder()

	h.HandleCompare(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_HandleCompare_InsufficientCohort(t *testing.T) {
	ctrl := gomock.NewController(t)
	serviceMock := NewMockanalyticsService(ctrl)
	h := analytics.NewHandler(serviceMock)

	profileJson, err := json.Marshal(balancedProfile())
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/compare", bytes.NewReader(profileJson))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	serviceMock.EXPECT().
		Compare(gomock.Any(), gomock.Any()).
		Return(nil, analytics.ErrInsufficientData)

	h.HandleCompare(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_HandleProjections(t *testing.T) {
	ctrl := gomock.NewController(t)
	serviceMock := NewMockanalyticsService(ctrl)
	h := analytics.NewHandler(serviceMock)

	req, err := http.NewRequest("GET", "/athlete/ana/projections?horizon=12", nil)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"id": "ana"})
	rec := httptest.NewRecorder()

	serviceMock.EXPECT().
		Projections(gomock.Any(), "ana", 12).
		Return(&analytics.LiftProjections{
			AthleteID:     "ana",
			HorizonMonths: 12,
			Projections: map[string]*analytics.TrendProjection{
				"total": {Slope: 0.1, ProjectedValue: 400, Observations: 5},
			},
		}, nil)

	h.HandleProjections(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result analytics.LiftProjections
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "ana", result.AthleteID)
	assert.Equal(t, 12, result.HorizonMonths)
	require.Contains(t, result.Projections, "total")
	assert.InDelta(t, 400, result.Projections["total"].ProjectedValue, 1e-9)
}

func TestHandler_HandleProjections_BadHorizon(t *testing.T) {
	ctrl := gomock.NewController(t)
	serviceMock := NewMockanalyticsService(ctrl)
	h := analytics.NewHandler(serviceMock)

	req, err := http.NewRequest("GET", "/athlete/ana/projections?horizon=soon", nil)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"id": "ana"})
	rec := httptest.NewRecorder()

	h.HandleProjections(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_HandleProjections_AthleteNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	serviceMock := NewMockanalyticsService(ctrl)
	h := analytics.NewHandler(serviceMock)

	req, err := http.NewRequest("GET", "/athlete/nobody/projections", nil)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"id": "nobody"})
	rec := httptest.NewRecorder()

	serviceMock.EXPECT().
		Projections(gomock.Any(), "nobody", analytics.DefaultHorizonMonths).
		Return(nil, dataset.ErrAthleteNotFound)

	h.HandleProjections(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_HandleProfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	serviceMock := NewMockanalyticsService(ctrl)
	h := analytics.NewHandler(serviceMock)

	req, err := http.NewRequest("GET", "/athlete/ana", nil)
	require.NoError(t, err)
	req = mux.SetURLVars(req, map[string]string{"id": "ana"})
	rec := httptest.NewRecorder()

	serviceMock.EXPECT().
		Profile(gomock.Any(), "ana").
		Return(&analytics.AthleteProfile{
			AthleteID:       "ana",
			PersonalRecords: map[string]float64{"total": 380},
		}, nil)

	h.HandleProfile(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result analytics.AthleteProfile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "ana", result.AthleteID)
	assert.InDelta(t, 380, result.PersonalRecords["total"], 1e-9)
}
