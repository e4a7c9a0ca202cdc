package dataset

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/dlukic/liftlab/internal/telemetry/metrics"
	"github.com/dlukic/liftlab/internal/telemetry/tracing"
	"github.com/dlukic/liftlab/pkg"
)

const maxAthleteSearchResults = 50

type handlerSource interface {
	ListAthletes(ctx context.Context, prefix string, limit int) ([]string, error)
	FilterOptions(ctx context.Context) (*FilterOptions, error)
	CountRecords(ctx context.Context) (int, error)
}

// optionsCache is satisfied by cache.FilterOptionsCache.
type optionsCache interface {
	Get() *FilterOptions
	Set(options *FilterOptions)
}

type Handler struct {
	source  handlerSource
	options optionsCache
	instr   *metrics.Manager
}

// NewHandler creates the dataset lookup handler. The options cache is
// optional, a nil cache means every filter-options request hits the source.
func NewHandler(source handlerSource, options optionsCache, instr *metrics.Manager) *Handler {
	return &Handler{
		source:  source,
		options: options,
		instr:   instr,
	}
}

func (handler *Handler) HandleSearchAthletes(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.dataset.searchAthletes")
	defer span.End()

	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "error, athlete name query [q] empty", http.StatusBadRequest)
		return
	}

	limit := maxAthleteSearchResults
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed <= 0 {
			http.Error(w, "error, invalid limit", http.StatusBadRequest)
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	athletes, err := handler.source.ListAthletes(ctx, query, limit)
	if err != nil {
		log.Errorf("search athletes [%s]: %s", query, err)
		http.Error(w, "athlete search failed", http.StatusInternalServerError)
		return
	}

	athletesJson, err := json.Marshal(struct {
		Athletes []string `json:"athletes"`
		Total    int      `json:"total"`
	}{
		Athletes: athletes,
		Total:    len(athletes),
	})
	if err != nil {
		log.Errorf("marshal athletes response: %s", err)
		http.Error(w, "athlete search failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, athletesJson, http.StatusOK)
}

func (handler *Handler) HandleFilterOptions(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.dataset.filterOptions")
	defer span.End()

	if handler.options != nil {
		if options := handler.options.Get(); options != nil {
			handler.writeOptions(w, options)
			return
		}
	}

	options, err := handler.source.FilterOptions(ctx)
	if err != nil {
		log.Errorf("get filter options: %s", err)
		http.Error(w, "filter options failed", http.StatusInternalServerError)
		return
	}

	if count, err := handler.source.CountRecords(ctx); err == nil {
		handler.instr.GaugeDatasetSize.Set(float64(count))
	} else {
		log.Errorf("count records: %s", err)
	}

	if handler.options != nil {
		handler.options.Set(options)
	}
	handler.writeOptions(w, options)
}

func (handler *Handler) writeOptions(w http.ResponseWriter, options *FilterOptions) {
	optionsJson, err := json.Marshal(options)
	if err != nil {
		log.Errorf("marshal filter options: %s", err)
		http.Error(w, "filter options failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, optionsJson, http.StatusOK)
}
