package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dlukic/liftlab/internal/telemetry/tracing"
)

var ErrAthleteNotFound = errors.New("athlete not found")

const recordColumns = `
	athlete_id, sex, equipment, country, year, date, age_class, weight_class,
	bodyweight_kg, best3_squat_kg, best3_bench_kg, best3_deadlift_kg, total_kg, dots`

// Repo reads and writes performance records in the postgres warehouse.
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// ListAll returns every record matching the criteria. The where clause
// mirrors Criteria.Matches: a null column never matches an active predicate.
func (r *Repo) ListAll(ctx context.Context, criteria Criteria) (_ []PerformanceRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.dataset.listAll")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	where, args := criteriaWhereClause(criteria)
	query := fmt.Sprintf(`SELECT %s FROM results_clean %s ORDER BY date NULLS LAST, athlete_id;`, recordColumns, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("records", len(records)))
	return records, nil
}

// AthleteHistory returns the records of a single athlete, ordered by date,
// optionally narrowed to an inclusive year range.
func (r *Repo) AthleteHistory(ctx context.Context, athleteID string, yearFrom, yearTo *int) (_ []PerformanceRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.dataset.athleteHistory")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("athlete.id", athleteID))

	conditions := []string{"athlete_id = $1"}
	args := []interface{}{athleteID}
	if yearFrom != nil {
		args = append(args, *yearFrom)
		conditions = append(conditions, fmt.Sprintf("year >= $%d", len(args)))
	}
	if yearTo != nil {
		args = append(args, *yearTo)
		conditions = append(conditions, fmt.Sprintf("year <= $%d", len(args)))
	}

	query := fmt.Sprintf(
		`SELECT %s FROM results_clean WHERE %s ORDER BY date NULLS LAST;`,
		recordColumns, strings.Join(conditions, " AND "),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrAthleteNotFound
	}

	return records, nil
}

// ListAthletes returns athlete ids matching the given prefix, for the
// profile page athlete picker.
func (r *Repo) ListAthletes(ctx context.Context, prefix string, limit int) (_ []string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.dataset.listAthletes")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT DISTINCT athlete_id FROM results_clean
			WHERE athlete_id ILIKE $1 || '%'
			ORDER BY athlete_id
			LIMIT $2;`,
		prefix, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var athletes []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		athletes = append(athletes, id)
	}

	return athletes, rows.Err()
}

func (r *Repo) CountRecords(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.dataset.countRecords")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM results_clean;`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// FilterOptions returns the distinct categorical values in the dataset.
func (r *Repo) FilterOptions(ctx context.Context) (_ *FilterOptions, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.dataset.filterOptions")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	options := &FilterOptions{}

	distinctQueries := []struct {
		query string
		dest  *[]string
	}{
		{`SELECT DISTINCT sex FROM results_clean WHERE sex <> '' ORDER BY sex;`, &options.Sexes},
		{`SELECT DISTINCT equipment FROM results_clean WHERE equipment <> '' ORDER BY equipment;`, &options.Equipment},
		{`SELECT DISTINCT age_class FROM results_clean WHERE age_class <> '' ORDER BY age_class;`, &options.AgeClasses},
		{`SELECT DISTINCT country FROM results_clean WHERE country IS NOT NULL ORDER BY country;`, &options.Countries},
	}

	for _, dq := range distinctQueries {
		rows, qErr := r.db.Query(ctx, dq.query)
		if qErr != nil {
			return nil, qErr
		}
		for rows.Next() {
			var val string
			if err := rows.Scan(&val); err != nil {
				rows.Close()
				return nil, fmt.Errorf("rows scan: %w", err)
			}
			*dq.dest = append(*dq.dest, val)
		}
		rErr := rows.Err()
		rows.Close()
		if rErr != nil {
			return nil, rErr
		}
	}

	if err := r.db.QueryRow(
		ctx,
		`SELECT COALESCE(MIN(year), 0), COALESCE(MAX(year), 0) FROM results_clean;`,
	).Scan(&options.YearMin, &options.YearMax); err != nil {
		return nil, err
	}

	return options, nil
}

// ReplaceAll swaps the warehouse contents with the given records inside
// a single transaction, so that readers never observe a partial dataset.
func (r *Repo) ReplaceAll(ctx context.Context, records []PerformanceRecord) (_ int64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.dataset.replaceAll")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("records", len(records)))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `TRUNCATE results_clean;`); err != nil {
		return 0, fmt.Errorf("truncate: %w", err)
	}

	copied, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"results_clean"},
		[]string{
			"athlete_id", "sex", "equipment", "country", "year", "date", "age_class", "weight_class",
			"bodyweight_kg", "best3_squat_kg", "best3_bench_kg", "best3_deadlift_kg", "total_kg", "dots",
		},
		pgx.CopyFromSlice(len(records), func(i int) ([]interface{}, error) {
			rec := records[i]
			return []interface{}{
				rec.AthleteID, rec.Sex, rec.Equipment, rec.Country, rec.Year, rec.Date, rec.AgeClass, rec.WeightClass,
				rec.Bodyweight, rec.BestSquat, rec.BestBench, rec.BestDeadlift, rec.Total, rec.Dots,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy records: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return copied, nil
}

func criteriaWhereClause(criteria Criteria) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	addCondition := func(column, op string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s %s $%d", column, op, len(args)))
	}

	if criteria.Sex != nil {
		addCondition("sex", "=", *criteria.Sex)
	}
	if criteria.Equipment != nil {
		addCondition("equipment", "=", *criteria.Equipment)
	}
	if criteria.Country != nil {
		addCondition("country", "=", *criteria.Country)
	}
	if criteria.AgeClass != nil {
		addCondition("age_class", "=", *criteria.AgeClass)
	}
	if criteria.YearFrom != nil {
		addCondition("year", ">=", *criteria.YearFrom)
	}
	if criteria.YearTo != nil {
		addCondition("year", "<=", *criteria.YearTo)
	}
	if criteria.TotalMin != nil {
		addCondition("total_kg", ">=", *criteria.TotalMin)
	}
	if criteria.TotalMax != nil {
		addCondition("total_kg", "<=", *criteria.TotalMax)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanRecords(rows pgx.Rows) ([]PerformanceRecord, error) {
	var records []PerformanceRecord
	for rows.Next() {
		var rec PerformanceRecord
		if err := rows.Scan(
			&rec.AthleteID, &rec.Sex, &rec.Equipment, &rec.Country, &rec.Year, &rec.Date,
			&rec.AgeClass, &rec.WeightClass, &rec.Bodyweight,
			&rec.BestSquat, &rec.BestBench, &rec.BestDeadlift, &rec.Total, &rec.Dots,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
