package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dlukic/liftlab/internal/dataset"
	"github.com/dlukic/liftlab/internal/telemetry/tracing"
	"github.com/dlukic/liftlab/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=handler.go -destination=handler_mocks_test.go -package=analytics_test

type analyticsService interface {
	Compare(ctx context.Context, profile UserProfile) (*CompareResult, error)
	Projections(ctx context.Context, athleteID string, horizonMonths int) (*LiftProjections, error)
	Profile(ctx context.Context, athleteID string) (*AthleteProfile, error)
}

type Handler struct {
	service analyticsService
}

func NewHandler(service analyticsService) *Handler {
	return &Handler{
		service: service,
	}
}

func (handler *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.analytics.compare")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var profile UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		log.Errorf("compare, unmarshal json params: %s", err)
		http.Error(w, "compare failed", http.StatusBadRequest)
		return
	}

	result, err := handler.service.Compare(ctx, profile)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, "error, invalid input", http.StatusBadRequest)
		return
	case errors.Is(err, ErrInsufficientData):
		http.Error(w, "error, not enough cohort data", http.StatusUnprocessableEntity)
		return
	default:
		log.Errorf("compare [%s %s %s]: %s", profile.Sex, profile.Equipment, profile.AgeClass, err)
		http.Error(w, "compare failed", http.StatusInternalServerError)
		return
	}

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("failed to marshal compare result: %s", err)
		http.Error(w, "compare failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, resultJson, http.StatusOK)
}

func (handler *Handler) HandleProjections(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.analytics.projections")
	defer span.End()

	vars := mux.Vars(r)
	athleteID := vars["id"]
	if athleteID == "" {
		http.Error(w, "error, athlete id empty", http.StatusBadRequest)
		return
	}

	horizonMonths := DefaultHorizonMonths
	if horizonParam := r.URL.Query().Get("horizon"); horizonParam != "" {
		horizon, err := strconv.Atoi(horizonParam)
		if err != nil || horizon <= 0 {
			http.Error(w, "error, invalid horizon", http.StatusBadRequest)
			return
		}
		horizonMonths = horizon
	}

	projections, err := handler.service.Projections(ctx, athleteID, horizonMonths)
	switch {
	case err == nil:
	case errors.Is(err, dataset.ErrAthleteNotFound):
		http.Error(w, "athlete not found", http.StatusNotFound)
		return
	default:
		log.Errorf("projections for [%s]: %s", athleteID, err)
		http.Error(w, "projections failed", http.StatusInternalServerError)
		return
	}

	projectionsJson, err := json.Marshal(projections)
	if err != nil {
		log.Errorf("failed to marshal projections: %s", err)
		http.Error(w, "projections failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, projectionsJson, http.StatusOK)
}

func (handler *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.analytics.profile")
	defer span.End()

	vars := mux.Vars(r)
	athleteID := vars["id"]
	if athleteID == "" {
		http.Error(w, "error, athlete id empty", http.StatusBadRequest)
		return
	}

	profile, err := handler.service.Profile(ctx, athleteID)
	switch {
	case err == nil:
	case errors.Is(err, dataset.ErrAthleteNotFound):
		http.Error(w, "athlete not found", http.StatusNotFound)
		return
	default:
		log.Errorf("profile for [%s]: %s", athleteID, err)
		http.Error(w, "profile failed", http.StatusInternalServerError)
		return
	}

	profileJson, err := json.Marshal(profile)
	if err != nil {
		log.Errorf("failed to marshal athlete profile: %s", err)
		http.Error(w, "profile failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, profileJson, http.StatusOK)
}
