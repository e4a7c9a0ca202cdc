package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/dlukic/liftlab/internal/dataset"
	"github.com/dlukic/liftlab/internal/telemetry/metrics"
	"github.com/dlukic/liftlab/internal/telemetry/tracing"
)

// default guard applied when the configured minimum is not positive
const defaultMinCohortSize = 10

// compositionThreshold is the share difference (in percentage points)
// above which a lift counts as a strength or an opportunity.
const compositionThreshold = 2.0

type recordsSource interface {
	ListAll(ctx context.Context, criteria dataset.Criteria) ([]dataset.PerformanceRecord, error)
	AthleteHistory(ctx context.Context, athleteID string, yearFrom, yearTo *int) ([]dataset.PerformanceRecord, error)
}

// UserProfile is the ad hoc input of one comparison request; it is
// never persisted.
type UserProfile struct {
	Sex        string  `json:"sex"`
	Equipment  string  `json:"equipment"`
	AgeClass   string  `json:"ageClass"`
	Bodyweight float64 `json:"bodyweight,omitempty"`
	Squat      float64 `json:"squat"`
	Bench      float64 `json:"bench"`
	Deadlift   float64 `json:"deadlift"`
}

// Total is the sum of the profile's three best lifts.
func (p *UserProfile) Total() float64 {
	return p.Squat + p.Bench + p.Deadlift
}

func (p *UserProfile) breakdown() map[string]float64 {
	return map[string]float64{
		"squat":    p.Squat,
		"bench":    p.Bench,
		"deadlift": p.Deadlift,
	}
}

// GoalPlan is the suggested next goal with the proportional per-lift
// split required to reach it.
type GoalPlan struct {
	Goal              Goal               `json:"goal"`
	ImprovementNeeded float64            `json:"improvementNeeded"`
	Deltas            map[string]float64 `json:"deltas"`
}

type CompareResult struct {
	Rank            *PercentileResult `json:"rank"`
	CategoryAverage float64           `json:"categoryAverage"`
	NearestSuperior *float64          `json:"nearestSuperior,omitempty"`
	Strengths       []string          `json:"strengths"`
	Opportunities   []string          `json:"opportunities"`
	// GoalPlan is nil when the athlete is above every candidate goal.
	GoalPlan             *GoalPlan `json:"goalPlan,omitempty"`
	AlreadyAboveAllGoals bool      `json:"alreadyAboveAllGoals"`
}

// LiftProjections holds per-metric 6-month projections for an athlete;
// metrics with insufficient or degenerate history are absent.
type LiftProjections struct {
	AthleteID     string                      `json:"athleteId"`
	HorizonMonths int                         `json:"horizonMonths"`
	Projections   map[string]*TrendProjection `json:"projections"`
}

// AthleteProfile is the per-athlete view: personal records, the full
// competition history, and a per-year evolution of each lift.
type AthleteProfile struct {
	AthleteID       string                      `json:"athleteId"`
	PersonalRecords map[string]float64          `json:"personalRecords"`
	Competitions    []dataset.PerformanceRecord `json:"competitions"`
	YearlyBest      map[int]map[string]float64  `json:"yearlyBest"`
}

type Analyzer struct {
	source        recordsSource
	minCohortSize int
	instr         *metrics.Manager
}

func NewAnalyzer(source recordsSource, minCohortSize int, instr *metrics.Manager) *Analyzer {
	if minCohortSize <= 0 {
		minCohortSize = defaultMinCohortSize
	}
	return &Analyzer{
		source:        source,
		minCohortSize: minCohortSize,
		instr:         instr,
	}
}

// Compare ranks the profile's total against the cohort sharing its sex,
// equipment and age class, and builds the goal plan. Cohorts smaller
// than the configured minimum are rejected with ErrInsufficientData.
func (a *Analyzer) Compare(ctx context.Context, profile UserProfile) (_ *CompareResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.compare")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if profile.Sex == "" || profile.Equipment == "" || profile.AgeClass == "" {
		return nil, fmt.Errorf("%w: sex, equipment and age class are required", ErrInvalidInput)
	}
	total := profile.Total()
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: total must be a positive finite number", ErrInvalidInput)
	}

	cohort, err := a.source.ListAll(ctx, dataset.Criteria{
		Sex:       &profile.Sex,
		Equipment: &profile.Equipment,
		AgeClass:  &profile.AgeClass,
	})
	if err != nil {
		return nil, fmt.Errorf("list cohort: %w", err)
	}

	rank, err := Rank(cohort, dataset.MetricTotal, total)
	if err != nil {
		return nil, err
	}
	if rank.CohortSize < a.minCohortSize {
		return nil, fmt.Errorf("%w: cohort of %d below minimum %d", ErrInsufficientData, rank.CohortSize, a.minCohortSize)
	}

	a.instr.CounterComparisons.Inc()

	result := &CompareResult{
		Rank:            rank,
		CategoryAverage: categoryAverage(cohort),
		NearestSuperior: nearestSuperior(cohort, total),
	}
	result.Strengths, result.Opportunities = liftComposition(cohort, profile)

	ladder := []Goal{
		{Name: "category average", Value: result.CategoryAverage},
		{Name: "50th percentile", Value: rank.Q50},
		{Name: "75th percentile", Value: rank.Q75},
		{Name: "90th percentile", Value: rank.Q90},
		{Name: "95th percentile", Value: rank.Q95},
	}
	goal, err := NextGoal(ladder, total)
	if err != nil {
		result.AlreadyAboveAllGoals = true
		return result, nil
	}

	deltas, err := Allocate(goal.Value, total, profile.breakdown())
	if err != nil {
		return nil, err
	}
	result.GoalPlan = &GoalPlan{
		Goal:              *goal,
		ImprovementNeeded: goal.Value - total,
		Deltas:            deltas,
	}

	return result, nil
}

// Projections fits a trend per metric over the athlete's dated history.
func (a *Analyzer) Projections(ctx context.Context, athleteID string, horizonMonths int) (_ *LiftProjections, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.projections")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}

	history, err := a.source.AthleteHistory(ctx, athleteID, nil, nil)
	if err != nil {
		return nil, err
	}

	result := &LiftProjections{
		AthleteID:     athleteID,
		HorizonMonths: horizonMonths,
		Projections:   make(map[string]*TrendProjection),
	}
	for _, metric := range []dataset.Metric{
		dataset.MetricTotal,
		dataset.MetricSquat,
		dataset.MetricBench,
		dataset.MetricDeadlift,
	} {
		projection, err := Project(metricObservations(history, metric), horizonMonths)
		if err != nil {
			// short or flat history, skip the metric
			continue
		}
		result.Projections[string(metric)] = projection
	}

	a.instr.CounterProjections.Inc()
	return result, nil
}

// Profile assembles the athlete's PRs, competitions and per-year best
// values for each lift.
func (a *Analyzer) Profile(ctx context.Context, athleteID string) (_ *AthleteProfile, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.profile")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	history, err := a.source.AthleteHistory(ctx, athleteID, nil, nil)
	if err != nil {
		return nil, err
	}

	profile := &AthleteProfile{
		AthleteID:       athleteID,
		PersonalRecords: make(map[string]float64),
		Competitions:    history,
		YearlyBest:      make(map[int]map[string]float64),
	}

	for i := range history {
		record := &history[i]
		yearBest, ok := profile.YearlyBest[record.Year]
		if !ok {
			yearBest = make(map[string]float64)
			profile.YearlyBest[record.Year] = yearBest
		}
		for _, metric := range []dataset.Metric{
			dataset.MetricTotal,
			dataset.MetricSquat,
			dataset.MetricBench,
			dataset.MetricDeadlift,
			dataset.MetricDots,
		} {
			value := record.MetricValue(metric)
			if value == nil {
				continue
			}
			if *value > profile.PersonalRecords[string(metric)] {
				profile.PersonalRecords[string(metric)] = *value
			}
			if *value > yearBest[string(metric)] {
				yearBest[string(metric)] = *value
			}
		}
	}

	return profile, nil
}

func categoryAverage(cohort []dataset.PerformanceRecord) float64 {
	var sum float64
	var n int
	for i := range cohort {
		if cohort[i].Total != nil {
			sum += *cohort[i].Total
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// nearestSuperior returns the smallest cohort total strictly above the
// given one, or nil when nobody is ahead.
func nearestSuperior(cohort []dataset.PerformanceRecord, total float64) *float64 {
	var nearest *float64
	for i := range cohort {
		t := cohort[i].Total
		if t == nil || *t <= total {
			continue
		}
		if nearest == nil || *t < *nearest {
			nearest = t
		}
	}
	return nearest
}

// liftComposition compares the share each lift contributes to the
// user's total against the cohort's average shares. A lift whose share
// exceeds the cohort's by more than the threshold is a strength; one
// trailing by more than the threshold is an opportunity.
func liftComposition(cohort []dataset.PerformanceRecord, profile UserProfile) (strengths, opportunities []string) {
	var squatSum, benchSum, deadliftSum float64
	var n int
	for i := range cohort {
		r := &cohort[i]
		if r.Total == nil || *r.Total == 0 || r.BestSquat == nil || r.BestBench == nil || r.BestDeadlift == nil {
			continue
		}
		squatSum += *r.BestSquat / *r.Total
		benchSum += *r.BestBench / *r.Total
		deadliftSum += *r.BestDeadlift / *r.Total
		n++
	}
	if n == 0 {
		return nil, nil
	}

	total := profile.Total()
	shares := []struct {
		lift   string
		user   float64
		cohort float64
	}{
		{"squat", profile.Squat / total * 100, squatSum / float64(n) * 100},
		{"bench", profile.Bench / total * 100, benchSum / float64(n) * 100},
		{"deadlift", profile.Deadlift / total * 100, deadliftSum / float64(n) * 100},
	}
	for _, s := range shares {
		switch {
		case s.user-s.cohort > compositionThreshold:
			strengths = append(strengths, s.lift)
		case s.cohort-s.user > compositionThreshold:
			opportunities = append(opportunities, s.lift)
		}
	}
	return strengths, opportunities
}

// metricObservations extracts the dated, non-null (date, value) pairs
// for a metric, ordered by date.
func metricObservations(history []dataset.PerformanceRecord, metric dataset.Metric) []Observation {
	observations := make([]Observation, 0, len(history))
	for i := range history {
		record := &history[i]
		if record.Date == nil {
			continue
		}
		value := record.MetricValue(metric)
		if value == nil {
			continue
		}
		observations = append(observations, Observation{Date: *record.Date, Value: *value})
	}
	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Date.Before(observations[j].Date)
	})
	return observations
}
