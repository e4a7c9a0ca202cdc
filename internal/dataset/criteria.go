package dataset

// Criteria is the cohort selection predicate. Every field left nil
// means "no constraint on that field". A record with a missing value
// in a constrained field never matches.
type Criteria struct {
	Sex       *string  `json:"sex,omitempty"`
	Equipment *string  `json:"equipment,omitempty"`
	Country   *string  `json:"country,omitempty"`
	AgeClass  *string  `json:"ageClass,omitempty"`
	YearFrom  *int     `json:"yearFrom,omitempty"`
	YearTo    *int     `json:"yearTo,omitempty"`
	TotalMin  *float64 `json:"totalMin,omitempty"`
	TotalMax  *float64 `json:"totalMax,omitempty"`
}

// Matches reports whether the record satisfies every active predicate.
func (c Criteria) Matches(r *PerformanceRecord) bool {
	if c.Sex != nil && r.Sex != *c.Sex {
		return false
	}
	if c.Equipment != nil && r.Equipment != *c.Equipment {
		return false
	}
	if c.Country != nil {
		if r.Country == nil || *r.Country != *c.Country {
			return false
		}
	}
	if c.AgeClass != nil && r.AgeClass != *c.AgeClass {
		return false
	}
	if c.YearFrom != nil && r.Year < *c.YearFrom {
		return false
	}
	if c.YearTo != nil && r.Year > *c.YearTo {
		return false
	}
	if c.TotalMin != nil {
		if r.Total == nil || *r.Total < *c.TotalMin {
			return false
		}
	}
	if c.TotalMax != nil {
		if r.Total == nil || *r.Total > *c.TotalMax {
			return false
		}
	}
	return true
}

// Filter returns the subset of records matching all active criteria,
// preserving the input order. An empty result is a valid cohort.
func Filter(records []PerformanceRecord, criteria Criteria) []PerformanceRecord {
	cohort := make([]PerformanceRecord, 0, len(records))
	for i := range records {
		if criteria.Matches(&records[i]) {
			cohort = append(cohort, records[i])
		}
	}
	return cohort
}
