package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// snapshot CSV column layout, fixed order
var snapshotHeader = []string{
	"AthleteID", "Sex", "Equipment", "Country", "Year", "Date", "AgeClass", "WeightClass",
	"BodyweightKg", "Best3SquatKg", "Best3BenchKg", "Best3DeadliftKg", "TotalKg", "Dots",
}

const snapshotDateLayout = "2006-01-02"

// ReadSnapshot parses a cleaned dataset snapshot in CSV form.
func ReadSnapshot(reader *csv.Reader) ([]PerformanceRecord, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	if len(header) != len(snapshotHeader) {
		return nil, fmt.Errorf("unexpected snapshot header length: %d", len(header))
	}

	var records []PerformanceRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot line %d: %w", line, err)
		}
		line++

		rec, err := recordFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w", line, err)
		}
		records = append(records, *rec)
	}

	return records, nil
}

// WriteSnapshot writes records in the snapshot CSV form.
func WriteSnapshot(writer *csv.Writer, records []PerformanceRecord) error {
	if err := writer.Write(snapshotHeader); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}

	for i := range records {
		if err := writer.Write(recordToRow(&records[i])); err != nil {
			return fmt.Errorf("write snapshot record %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func recordFromRow(row []string) (*PerformanceRecord, error) {
	year, err := strconv.Atoi(row[4])
	if err != nil {
		return nil, fmt.Errorf("parse year %q: %w", row[4], err)
	}

	rec := &PerformanceRecord{
		AthleteID:   row[0],
		Sex:         row[1],
		Equipment:   row[2],
		Country:     optionalString(row[3]),
		Year:        year,
		AgeClass:    row[6],
		WeightClass: optionalString(row[7]),
	}

	if row[5] != "" {
		date, err := time.Parse(snapshotDateLayout, row[5])
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", row[5], err)
		}
		rec.Date = &date
	}

	floats := []struct {
		raw  string
		dest **float64
	}{
		{row[8], &rec.Bodyweight},
		{row[9], &rec.BestSquat},
		{row[10], &rec.BestBench},
		{row[11], &rec.BestDeadlift},
		{row[12], &rec.Total},
		{row[13], &rec.Dots},
	}
	for _, f := range floats {
		if f.raw == "" {
			continue
		}
		val, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", f.raw, err)
		}
		*f.dest = &val
	}

	return rec, nil
}

func recordToRow(rec *PerformanceRecord) []string {
	row := make([]string, 0, len(snapshotHeader))
	row = append(row,
		rec.AthleteID, rec.Sex, rec.Equipment, stringOrEmpty(rec.Country),
		strconv.Itoa(rec.Year),
	)
	if rec.Date != nil {
		row = append(row, rec.Date.Format(snapshotDateLayout))
	} else {
		row = append(row, "")
	}
	row = append(row, rec.AgeClass, stringOrEmpty(rec.WeightClass))
	for _, val := range []*float64{
		rec.Bodyweight, rec.BestSquat, rec.BestBench, rec.BestDeadlift, rec.Total, rec.Dots,
	} {
		if val != nil {
			row = append(row, strconv.FormatFloat(*val, 'f', -1, 64))
		} else {
			row = append(row, "")
		}
	}
	return row
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
