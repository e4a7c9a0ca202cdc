package overview

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dlukic/liftlab/internal/dataset"
	"github.com/dlukic/liftlab/internal/telemetry/metrics"
	"github.com/dlukic/liftlab/internal/telemetry/tracing"
	"github.com/dlukic/liftlab/pkg"

	log "github.com/sirupsen/logrus"
)

// aggregationCache keeps marshaled aggregation responses across
// processes; a nil implementation disables caching.
type aggregationCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte)
}

type Handler struct {
	aggregator *Aggregator
	cache      aggregationCache
	instr      *metrics.Manager
}

func NewHandler(aggregator *Aggregator, cache aggregationCache, instr *metrics.Manager) *Handler {
	return &Handler{
		aggregator: aggregator,
		cache:      cache,
		instr:      instr,
	}
}

func (handler *Handler) HandleParticipation(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.overview.participation")
	defer span.End()

	handler.serveAggregation(ctx, w, r, "participation", func(criteria dataset.Criteria) (interface{}, error) {
		return handler.aggregator.Participation(ctx, criteria)
	})
}

func (handler *Handler) HandleCompetitionsBySex(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.overview.competitionsBySex")
	defer span.End()

	handler.serveAggregation(ctx, w, r, "competitions-by-sex", func(criteria dataset.Criteria) (interface{}, error) {
		return handler.aggregator.CompetitionsBySex(ctx, criteria)
	})
}

func (handler *Handler) HandleEquipmentDistribution(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.overview.equipmentDistribution")
	defer span.End()

	handler.serveAggregation(ctx, w, r, "equipment", func(criteria dataset.Criteria) (interface{}, error) {
		return handler.aggregator.EquipmentDistribution(ctx, criteria)
	})
}

func (handler *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.overview.leaderboard")
	defer span.End()

	handler.serveAggregation(ctx, w, r, "leaderboard", func(criteria dataset.Criteria) (interface{}, error) {
		return handler.aggregator.Leaderboard(ctx, criteria)
	})
}

func (handler *Handler) HandleLiftTrends(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.overview.liftTrends")
	defer span.End()

	handler.serveAggregation(ctx, w, r, "lift-trends", func(criteria dataset.Criteria) (interface{}, error) {
		return handler.aggregator.LiftTrends(ctx, criteria)
	})
}

func (handler *Handler) HandleGeography(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.overview.geography")
	defer span.End()

	handler.serveAggregation(ctx, w, r, "geography", func(criteria dataset.Criteria) (interface{}, error) {
		return handler.aggregator.Geography(ctx, criteria)
	})
}

func (handler *Handler) HandleAgeClassDistributions(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.overview.ageClassDistributions")
	defer span.End()

	metric := metricFromQuery(r)
	if !metric.Valid() {
		http.Error(w, "error, unknown metric", http.StatusBadRequest)
		return
	}

	handler.serveAggregation(ctx, w, r, "age-classes-"+string(metric), func(criteria dataset.Criteria) (interface{}, error) {
		return handler.aggregator.AgeClassDistributions(ctx, criteria, metric)
	})
}

func (handler *Handler) HandleBodyweightHistogram(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.overview.bodyweightHistogram")
	defer span.End()

	metric := metricFromQuery(r)
	if !metric.Valid() {
		http.Error(w, "error, unknown metric", http.StatusBadRequest)
		return
	}

	handler.serveAggregation(ctx, w, r, "bodyweight-"+string(metric), func(criteria dataset.Criteria) (interface{}, error) {
		return handler.aggregator.BodyweightHistogram(ctx, criteria, metric)
	})
}

func (handler *Handler) serveAggregation(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	name string,
	aggregate func(criteria dataset.Criteria) (interface{}, error),
) {
	criteria, err := CriteriaFromQuery(r)
	if err != nil {
		http.Error(w, "error, invalid filter params", http.StatusBadRequest)
		return
	}

	cacheKey := name + "::" + r.URL.RawQuery
	if handler.cache != nil {
		if cached, ok := handler.cache.Get(ctx, cacheKey); ok {
			handler.instr.CounterCacheHits.WithLabelValues("hit").Inc()
			pkg.WriteResponseBytes(w, pkg.ContentType.JSON, cached, http.StatusOK)
			return
		}
		handler.instr.CounterCacheHits.WithLabelValues("miss").Inc()
	}

	result, err := aggregate(criteria)
	if err != nil {
		log.Errorf("aggregation %s: %s", name, err)
		http.Error(w, "aggregation failed", http.StatusInternalServerError)
		return
	}

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("failed to marshal aggregation %s: %s", name, err)
		http.Error(w, "aggregation failed", http.StatusInternalServerError)
		return
	}

	if handler.cache != nil {
		handler.cache.Set(ctx, cacheKey, resultJson)
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, resultJson, http.StatusOK)
}

func metricFromQuery(r *http.Request) dataset.Metric {
	metricParam := r.URL.Query().Get("metric")
	if metricParam == "" {
		return dataset.MetricTotal
	}
	return dataset.Metric(metricParam)
}

// CriteriaFromQuery reads the optional filter params shared by all
// aggregation and comparison endpoints.
func CriteriaFromQuery(r *http.Request) (dataset.Criteria, error) {
	var criteria dataset.Criteria
	query := r.URL.Query()

	if sex := query.Get("sex"); sex != "" {
		criteria.Sex = &sex
	}
	if equipment := query.Get("equipment"); equipment != "" {
		criteria.Equipment = &equipment
	}
	if country := query.Get("country"); country != "" {
		criteria.Country = &country
	}
	if ageClass := query.Get("ageClass"); ageClass != "" {
		criteria.AgeClass = &ageClass
	}

	if yearFromParam := query.Get("yearFrom"); yearFromParam != "" {
		yearFrom, err := strconv.Atoi(yearFromParam)
		if err != nil {
			return dataset.Criteria{}, err
		}
		criteria.YearFrom = &yearFrom
	}
	if yearToParam := query.Get("yearTo"); yearToParam != "" {
		yearTo, err := strconv.Atoi(yearToParam)
		if err != nil {
			return dataset.Criteria{}, err
		}
		criteria.YearTo = &yearTo
	}

	if totalMinParam := query.Get("totalMin"); totalMinParam != "" {
		totalMin, err := strconv.ParseFloat(totalMinParam, 64)
		if err != nil {
			return dataset.Criteria{}, err
		}
		criteria.TotalMin = &totalMin
	}
	if totalMaxParam := query.Get("totalMax"); totalMaxParam != "" {
		totalMax, err := strconv.ParseFloat(totalMaxParam, 64)
		if err != nil {
			return dataset.Criteria{}, err
		}
		criteria.TotalMax = &totalMax
	}

	return criteria, nil
}
