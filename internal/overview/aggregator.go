package overview

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/dlukic/liftlab/internal/dataset"
	"github.com/dlukic/liftlab/internal/telemetry/tracing"
)

// bodyweight histogram resolution
const bodyweightBins = 12

// ranked results shown on the elite leaderboard
const leaderboardSize = 20

type recordsSource interface {
	ListAll(ctx context.Context, criteria dataset.Criteria) ([]dataset.PerformanceRecord, error)
}

// YearParticipation summarizes one competition year.
type YearParticipation struct {
	Year         int     `json:"year"`
	Athletes     int     `json:"athletes"`
	Competitions int     `json:"competitions"`
	MeanTotal    float64 `json:"meanTotal"`
}

// SexYearCounts holds per-year competition entry counts for one sex.
type SexYearCounts struct {
	Sex    string      `json:"sex"`
	Counts map[int]int `json:"counts"`
}

// EquipmentShare holds the entry count and percentage share of one
// equipment category.
type EquipmentShare struct {
	Equipment string  `json:"equipment"`
	Entries   int     `json:"entries"`
	Share     float64 `json:"share"`
}

// LiftAverages holds per-year mean lift values for a sex group
// ("M", "F" or "all").
type LiftAverages struct {
	Group    string          `json:"group"`
	Squat    map[int]float64 `json:"squat"`
	Bench    map[int]float64 `json:"bench"`
	Deadlift map[int]float64 `json:"deadlift"`
	Total    map[int]float64 `json:"total"`
}

// CountrySummary aggregates results for one country.
type CountrySummary struct {
	Country     string         `json:"country"`
	Athletes    int            `json:"athletes"`
	Entries     int            `json:"entries"`
	SexCounts   map[string]int `json:"sexCounts"`
	AvgTotal    float64        `json:"avgTotal"`
	AvgSquat    float64        `json:"avgSquat"`
	AvgBench    float64        `json:"avgBench"`
	AvgDeadlift float64        `json:"avgDeadlift"`
	AvgDots     float64        `json:"avgDots"`
}

// DistributionSummary is a five-number summary plus mean and count for
// one age class and metric.
type DistributionSummary struct {
	AgeClass string  `json:"ageClass"`
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Q25      float64 `json:"q25"`
	Median   float64 `json:"median"`
	Q75      float64 `json:"q75"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
}

// LeaderboardEntry is one ranked competition result.
type LeaderboardEntry struct {
	AthleteID  string     `json:"athleteId"`
	Total      float64    `json:"total"`
	Bodyweight *float64   `json:"bodyweightKg,omitempty"`
	Equipment  string     `json:"equipment"`
	Country    *string    `json:"country,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	Year       int        `json:"year"`
}

// CategoryBest is the strongest result within one age-class and
// weight-class combination.
type CategoryBest struct {
	AgeClass    string     `json:"ageClass"`
	WeightClass string     `json:"weightClass"`
	AthleteID   string     `json:"athleteId"`
	Total       float64    `json:"total"`
	Country     *string    `json:"country,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Year        int        `json:"year"`
}

// Leaderboard holds the elite rankings of the filtered records.
type Leaderboard struct {
	TopTotals       []LeaderboardEntry `json:"topTotals"`
	BestPerCategory []CategoryBest     `json:"bestPerCategory"`
}

// BodyweightBin is one bucket of the bodyweight histogram with the
// average metric value of its members.
type BodyweightBin struct {
	From     float64 `json:"from"`
	To       float64 `json:"to"`
	Count    int     `json:"count"`
	AvgValue float64 `json:"avgValue"`
}

type Aggregator struct {
	source recordsSource
}

func NewAggregator(source recordsSource) *Aggregator {
	return &Aggregator{
		source: source,
	}
}

// Participation returns, per year, the number of distinct athletes and
// entries and the mean total, for the records matching the criteria.
func (a *Aggregator) Participation(ctx context.Context, criteria dataset.Criteria) (_ []YearParticipation, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "overview.participation")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	records, err := a.source.ListAll(ctx, criteria)
	if err != nil {
		return nil, err
	}

	type yearAgg struct {
		athletes   map[string]struct{}
		entries    int
		totalSum   float64
		totalCount int
	}
	years := make(map[int]*yearAgg)
	for i := range records {
		record := &records[i]
		agg, ok := years[record.Year]
		if !ok {
			agg = &yearAgg{athletes: make(map[string]struct{})}
			years[record.Year] = agg
		}
		agg.athletes[record.AthleteID] = struct{}{}
		agg.entries++
		if record.Total != nil {
			agg.totalSum += *record.Total
			agg.totalCount++
		}
	}

	participation := make([]YearParticipation, 0, len(years))
	for year, agg := range years {
		meanTotal := 0.0
		if agg.totalCount > 0 {
			meanTotal = agg.totalSum / float64(agg.totalCount)
		}
		participation = append(participation, YearParticipation{
			Year:         year,
			Athletes:     len(agg.athletes),
			Competitions: agg.entries,
			MeanTotal:    meanTotal,
		})
	}
	sort.Slice(participation, func(i, j int) bool {
		return participation[i].Year < participation[j].Year
	})
	return participation, nil
}

// CompetitionsBySex returns per-year entry counts split by sex.
func (a *Aggregator) CompetitionsBySex(ctx context.Context, criteria dataset.Criteria) (_ []SexYearCounts, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "overview.competitionsBySex")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	records, err := a.source.ListAll(ctx, criteria)
	if err != nil {
		return nil, err
	}

	bySex := make(map[string]map[int]int)
	for i := range records {
		record := &records[i]
		counts, ok := bySex[record.Sex]
		if !ok {
			counts = make(map[int]int)
			bySex[record.Sex] = counts
		}
		counts[record.Year]++
	}

	result := make([]SexYearCounts, 0, len(bySex))
	for _, sex := range sortedStringKeys(bySex) {
		result = append(result, SexYearCounts{Sex: sex, Counts: bySex[sex]})
	}
	return result, nil
}

// EquipmentDistribution returns entry counts and share per equipment
// category.
func (a *Aggregator) EquipmentDistribution(ctx context.Context, criteria dataset.Criteria) (_ []EquipmentShare, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "overview.equipmentDistribution")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	records, err := a.source.ListAll(ctx, criteria)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for i := range records {
		counts[records[i].Equipment]++
	}

	result := make([]EquipmentShare, 0, len(counts))
	for _, equipment := range sortedStringKeys(counts) {
		share := 0.0
		if len(records) > 0 {
			share = float64(counts[equipment]) / float64(len(records)) * 100
		}
		result = append(result, EquipmentShare{
			Equipment: equipment,
			Entries:   counts[equipment],
			Share:     share,
		})
	}
	return result, nil
}

// Leaderboard returns the twenty heaviest totals among the filtered
// records and the best result of every age-class and weight-class
// combination. Records without a total are skipped; the per-category
// list additionally requires both classes to be present.
func (a *Aggregator) Leaderboard(ctx context.Context, criteria dataset.Criteria) (_ *Leaderboard, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "overview.leaderboard")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	records, err := a.source.ListAll(ctx, criteria)
	if err != nil {
		return nil, err
	}

	ranked := make([]*dataset.PerformanceRecord, 0, len(records))
	for i := range records {
		if records[i].Total != nil {
			ranked = append(ranked, &records[i])
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if *ranked[i].Total != *ranked[j].Total {
			return *ranked[i].Total > *ranked[j].Total
		}
		return ranked[i].AthleteID < ranked[j].AthleteID
	})

	size := leaderboardSize
	if size > len(ranked) {
		size = len(ranked)
	}
	topTotals := make([]LeaderboardEntry, 0, size)
	for _, record := range ranked[:size] {
		topTotals = append(topTotals, LeaderboardEntry{
			AthleteID:  record.AthleteID,
			Total:      *record.Total,
			Bodyweight: record.Bodyweight,
			Equipment:  record.Equipment,
			Country:    record.Country,
			Date:       record.Date,
			Year:       record.Year,
		})
	}

	type category struct {
		ageClass    string
		weightClass string
	}
	bestByCategory := make(map[category]*dataset.PerformanceRecord)
	for _, record := range ranked {
		if record.AgeClass == "" || record.WeightClass == nil || *record.WeightClass == "" {
			continue
		}
		key := category{ageClass: record.AgeClass, weightClass: *record.WeightClass}
		if best, ok := bestByCategory[key]; !ok || *record.Total > *best.Total {
			bestByCategory[key] = record
		}
	}

	bestPerCategory := make([]CategoryBest, 0, len(bestByCategory))
	for key, record := range bestByCategory {
		bestPerCategory = append(bestPerCategory, CategoryBest{
			AgeClass:    key.ageClass,
			WeightClass: key.weightClass,
			AthleteID:   record.AthleteID,
			Total:       *record.Total,
			Country:     record.Country,
			Date:        record.Date,
			Year:        record.Year,
		})
	}
	sort.Slice(bestPerCategory, func(i, j int) bool {
		if bestPerCategory[i].AgeClass != bestPerCategory[j].AgeClass {
			return bestPerCategory[i].AgeClass < bestPerCategory[j].AgeClass
		}
		return bestPerCategory[i].WeightClass < bestPerCategory[j].WeightClass
	})

	return &Leaderboard{
		TopTotals:       topTotals,
		BestPerCategory: bestPerCategory,
	}, nil
}

// LiftTrends returns the per-year average of each lift for men, women
// and everyone combined.
func (a *Aggregator) LiftTrends(ctx context.Context, criteria dataset.Criteria) (_ []LiftAverages, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "overview.liftTrends")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	records, err := a.source.ListAll(ctx, criteria)
	if err != nil {
		return nil, err
	}

	groups := map[string]*liftSums{
		"M":   newLiftSums(),
		"F":   newLiftSums(),
		"all": newLiftSums(),
	}
	for i := range records {
		record := &records[i]
		if group, ok := groups[record.Sex]; ok {
			group.add(record)
		}
		groups["all"].add(record)
	}

	result := make([]LiftAverages, 0, len(groups))
	for _, group := range []string{"M", "F", "all"} {
		result = append(result, groups[group].averages(group))
	}
	return result, nil
}

// Geography aggregates every country present in the filtered records;
// records without a country are skipped.
func (a *Aggregator) Geography(ctx context.Context, criteria dataset.Criteria) (_ []CountrySummary, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "overview.geography")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	records, err := a.source.ListAll(ctx, criteria)
	if err != nil {
		return nil, err
	}

	type countryAgg struct {
		athletes  map[string]struct{}
		entries   int
		sexCounts map[string]int
		total     meanAcc
		squat     meanAcc
		bench     meanAcc
		deadlift  meanAcc
		dots      meanAcc
	}
	countries := make(map[string]*countryAgg)
	for i := range records {
		record := &records[i]
		if record.Country == nil {
			continue
		}
		agg, ok := countries[*record.Country]
		if !ok {
			agg = &countryAgg{
				athletes:  make(map[string]struct{}),
				sexCounts: make(map[string]int),
			}
			countries[*record.Country] = agg
		}
		agg.athletes[record.AthleteID] = struct{}{}
		agg.entries++
		agg.sexCounts[record.Sex]++
		agg.total.add(record.Total)
		agg.squat.add(record.BestSquat)
		agg.bench.add(record.BestBench)
		agg.deadlift.add(record.BestDeadlift)
		agg.dots.add(record.Dots)
	}

	result := make([]CountrySummary, 0, len(countries))
	for _, country := range sortedStringKeys(countries) {
		agg := countries[country]
		result = append(result, CountrySummary{
			Country:     country,
			Athletes:    len(agg.athletes),
			Entries:     agg.entries,
			SexCounts:   agg.sexCounts,
			AvgTotal:    agg.total.mean(),
			AvgSquat:    agg.squat.mean(),
			AvgBench:    agg.bench.mean(),
			AvgDeadlift: agg.deadlift.mean(),
			AvgDots:     agg.dots.mean(),
		})
	}
	return result, nil
}

// AgeClassDistributions returns a distribution summary of the metric
// for each age class present in the filtered records.
func (a *Aggregator) AgeClassDistributions(ctx context.Context, criteria dataset.Criteria, metric dataset.Metric) (_ []DistributionSummary, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "overview.ageClassDistributions")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if !metric.Valid() {
		return nil, dataset.ErrUnknownMetric
	}

	records, err := a.source.ListAll(ctx, criteria)
	if err != nil {
		return nil, err
	}

	byClass := make(map[string][]float64)
	for i := range records {
		record := &records[i]
		if record.AgeClass == "" {
			continue
		}
		if value := record.MetricValue(metric); value != nil {
			byClass[record.AgeClass] = append(byClass[record.AgeClass], *value)
		}
	}

	result := make([]DistributionSummary, 0, len(byClass))
	for _, ageClass := range sortedStringKeys(byClass) {
		values := byClass[ageClass]
		sort.Float64s(values)

		var sum float64
		for _, v := range values {
			sum += v
		}
		result = append(result, DistributionSummary{
			AgeClass: ageClass,
			Count:    len(values),
			Min:      values[0],
			Q25:      quantile(values, 0.25),
			Median:   quantile(values, 0.50),
			Q75:      quantile(values, 0.75),
			Max:      values[len(values)-1],
			Mean:     sum / float64(len(values)),
		})
	}
	return result, nil
}

// BodyweightHistogram splits the observed bodyweight range into twelve
// equal-width bins and averages the metric inside each.
func (a *Aggregator) BodyweightHistogram(ctx context.Context, criteria dataset.Criteria, metric dataset.Metric) (_ []BodyweightBin, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "overview.bodyweightHistogram")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if !metric.Valid() {
		return nil, dataset.ErrUnknownMetric
	}

	records, err := a.source.ListAll(ctx, criteria)
	if err != nil {
		return nil, err
	}

	type point struct {
		bodyweight float64
		value      float64
	}
	points := make([]point, 0, len(records))
	minBw, maxBw := math.Inf(1), math.Inf(-1)
	for i := range records {
		record := &records[i]
		if record.Bodyweight == nil {
			continue
		}
		value := record.MetricValue(metric)
		if value == nil {
			continue
		}
		points = append(points, point{bodyweight: *record.Bodyweight, value: *value})
		minBw = math.Min(minBw, *record.Bodyweight)
		maxBw = math.Max(maxBw, *record.Bodyweight)
	}
	if len(points) == 0 {
		return []BodyweightBin{}, nil
	}

	width := (maxBw - minBw) / bodyweightBins
	if width == 0 {
		// all athletes weigh the same, one degenerate bin
		var sum float64
		for _, p := range points {
			sum += p.value
		}
		return []BodyweightBin{{
			From:     minBw,
			To:       maxBw,
			Count:    len(points),
			AvgValue: sum / float64(len(points)),
		}}, nil
	}

	bins := make([]BodyweightBin, bodyweightBins)
	sums := make([]float64, bodyweightBins)
	for i := range bins {
		bins[i].From = minBw + float64(i)*width
		bins[i].To = minBw + float64(i+1)*width
	}
	for _, p := range points {
		idx := int((p.bodyweight - minBw) / width)
		if idx >= bodyweightBins {
			idx = bodyweightBins - 1
		}
		bins[idx].Count++
		sums[idx] += p.value
	}
	for i := range bins {
		if bins[i].Count > 0 {
			bins[i].AvgValue = sums[i] / float64(bins[i].Count)
		}
	}
	return bins, nil
}

type meanAcc struct {
	sum   float64
	count int
}

func (m *meanAcc) add(v *float64) {
	if v != nil {
		m.sum += *v
		m.count++
	}
}

func (m *meanAcc) mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

type liftSums struct {
	squat    map[int]*meanAcc
	bench    map[int]*meanAcc
	deadlift map[int]*meanAcc
	total    map[int]*meanAcc
}

func newLiftSums() *liftSums {
	return &liftSums{
		squat:    make(map[int]*meanAcc),
		bench:    make(map[int]*meanAcc),
		deadlift: make(map[int]*meanAcc),
		total:    make(map[int]*meanAcc),
	}
}

func (l *liftSums) add(record *dataset.PerformanceRecord) {
	accFor(l.squat, record.Year).add(record.BestSquat)
	accFor(l.bench, record.Year).add(record.BestBench)
	accFor(l.deadlift, record.Year).add(record.BestDeadlift)
	accFor(l.total, record.Year).add(record.Total)
}

func accFor(accs map[int]*meanAcc, year int) *meanAcc {
	acc, ok := accs[year]
	if !ok {
		acc = &meanAcc{}
		accs[year] = acc
	}
	return acc
}

func (l *liftSums) averages(group string) LiftAverages {
	return LiftAverages{
		Group:    group,
		Squat:    means(l.squat),
		Bench:    means(l.bench),
		Deadlift: means(l.deadlift),
		Total:    means(l.total),
	}
}

func means(accs map[int]*meanAcc) map[int]float64 {
	result := make(map[int]float64, len(accs))
	for year, acc := range accs {
		if acc.count > 0 {
			result[year] = acc.mean()
		}
	}
	return result
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

func sortedStringKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
