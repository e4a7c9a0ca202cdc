package cleaner

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dlukic/liftlab/internal/dataset"
	"github.com/dlukic/liftlab/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

var ErrMissingColumns = errors.New("missing required columns")

var (
	validSexes = map[string]struct{}{
		"M": {},
		"F": {},
	}
	validEquipment = map[string]struct{}{
		"Raw":        {},
		"Wraps":      {},
		"Single-ply": {},
		"Multi-ply":  {},
	}
)

// requiredColumns of the raw openpowerlifting export; the cleaner reads
// by header name, column order does not matter.
var requiredColumns = []string{
	"Name", "Sex", "Equipment", "Date", "TotalKg",
}

// CleanStats counts what happened to the raw rows during one pass.
type CleanStats struct {
	RowsRead    int `json:"rowsRead"`
	RowsKept    int `json:"rowsKept"`
	RowsDropped int `json:"rowsDropped"`
}

// Cleaner turns raw competition result rows into clean
// PerformanceRecords: parses numerics, whitelists sex and equipment,
// derives the year from the competition date, and drops rows without a
// valid positive total.
type Cleaner struct{}

func New() *Cleaner {
	return &Cleaner{}
}

// Clean reads the raw CSV and returns the cleaned records with the
// per-pass stats.
func (c *Cleaner) Clean(ctx context.Context, rawCsv io.Reader) (_ []dataset.PerformanceRecord, _ *CleanStats, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "cleaner.clean")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	reader := csv.NewReader(rawCsv)

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumns, required)
		}
	}

	stats := &CleanStats{}
	var records []dataset.PerformanceRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", stats.RowsRead+1, err)
		}
		stats.RowsRead++

		record, ok := cleanRow(columns, row)
		if !ok {
			stats.RowsDropped++
			continue
		}
		records = append(records, *record)
		stats.RowsKept++
	}

	log.Debugf("cleaned raw data: %d read, %d kept, %d dropped", stats.RowsRead, stats.RowsKept, stats.RowsDropped)
	return records, stats, nil
}

func cleanRow(columns map[string]int, row []string) (*dataset.PerformanceRecord, bool) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	name := field("Name")
	if name == "" {
		return nil, false
	}

	sex := field("Sex")
	if _, ok := validSexes[sex]; !ok {
		return nil, false
	}

	equipment := field("Equipment")
	if _, ok := validEquipment[equipment]; !ok {
		return nil, false
	}

	total := positiveFloat(field("TotalKg"))
	if total == nil {
		return nil, false
	}

	date, err := time.Parse(dateLayout, field("Date"))
	if err != nil {
		return nil, false
	}

	record := &dataset.PerformanceRecord{
		AthleteID:    name,
		Sex:          sex,
		Equipment:    equipment,
		Year:         date.Year(),
		Date:         &date,
		AgeClass:     field("AgeClass"),
		Bodyweight:   positiveFloat(field("BodyweightKg")),
		BestSquat:    positiveFloat(field("Best3SquatKg")),
		BestBench:    positiveFloat(field("Best3BenchKg")),
		BestDeadlift: positiveFloat(field("Best3DeadliftKg")),
		Total:        total,
		Dots:         positiveFloat(field("Dots")),
	}
	if country := field("Country"); country != "" {
		record.Country = &country
	}
	if weightClass := field("WeightClassKg"); weightClass != "" {
		record.WeightClass = &weightClass
	}
	return record, true
}

// positiveFloat parses a lift value; empty, unparsable, zero and
// negative values (failed attempts) all come back nil.
func positiveFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value <= 0 {
		return nil
	}
	return &value
}
