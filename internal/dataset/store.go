package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Store is the local-file dataset source: the whole snapshot is held
// in memory and queried with the same semantics as the postgres Repo.
// Reload swaps the snapshot atomically, readers always see a full one.
type Store struct {
	mutex   sync.RWMutex
	records []PerformanceRecord
	path    string
}

func NewStore(snapshotPath string) (*Store, error) {
	s := &Store{
		path: snapshotPath,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStoreFromRecords is used in tests and by the import pipeline.
func NewStoreFromRecords(records []PerformanceRecord) *Store {
	return &Store{
		records: records,
	}
}

func (s *Store) Reload() error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open snapshot %s: %w", s.path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	records, err := ReadSnapshot(csv.NewReader(file))
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	s.mutex.Lock()
	s.records = records
	s.mutex.Unlock()

	return nil
}

func (s *Store) ListAll(_ context.Context, criteria Criteria) ([]PerformanceRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return Filter(s.records, criteria), nil
}

func (s *Store) AthleteHistory(_ context.Context, athleteID string, yearFrom, yearTo *int) ([]PerformanceRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var history []PerformanceRecord
	for i := range s.records {
		rec := &s.records[i]
		if rec.AthleteID != athleteID {
			continue
		}
		if yearFrom != nil && rec.Year < *yearFrom {
			continue
		}
		if yearTo != nil && rec.Year > *yearTo {
			continue
		}
		history = append(history, *rec)
	}

	if len(history) == 0 {
		return nil, ErrAthleteNotFound
	}

	sort.SliceStable(history, func(i, j int) bool {
		if history[i].Date == nil {
			return false
		}
		if history[j].Date == nil {
			return true
		}
		return history[i].Date.Before(*history[j].Date)
	})

	return history, nil
}

func (s *Store) ListAthletes(_ context.Context, prefix string, limit int) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	seen := make(map[string]struct{})
	lowerPrefix := strings.ToLower(prefix)
	for i := range s.records {
		id := s.records[i].AthleteID
		if !strings.HasPrefix(strings.ToLower(id), lowerPrefix) {
			continue
		}
		seen[id] = struct{}{}
	}

	athletes := make([]string, 0, len(seen))
	for id := range seen {
		athletes = append(athletes, id)
	}
	sort.Strings(athletes)

	if len(athletes) > limit {
		athletes = athletes[:limit]
	}
	return athletes, nil
}

func (s *Store) CountRecords(_ context.Context) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.records), nil
}

func (s *Store) FilterOptions(_ context.Context) (*FilterOptions, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sexes := make(map[string]struct{})
	equipment := make(map[string]struct{})
	ageClasses := make(map[string]struct{})
	countries := make(map[string]struct{})

	options := &FilterOptions{}
	for i := range s.records {
		rec := &s.records[i]
		if rec.Sex != "" {
			sexes[rec.Sex] = struct{}{}
		}
		if rec.Equipment != "" {
			equipment[rec.Equipment] = struct{}{}
		}
		if rec.AgeClass != "" {
			ageClasses[rec.AgeClass] = struct{}{}
		}
		if rec.Country != nil {
			countries[*rec.Country] = struct{}{}
		}
		if options.YearMin == 0 || rec.Year < options.YearMin {
			options.YearMin = rec.Year
		}
		if rec.Year > options.YearMax {
			options.YearMax = rec.Year
		}
	}

	options.Sexes = sortedKeys(sexes)
	options.Equipment = sortedKeys(equipment)
	options.AgeClasses = sortedKeys(ageClasses)
	options.Countries = sortedKeys(countries)

	return options, nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
