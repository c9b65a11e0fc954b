package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	consumption "billing-cloud/internal/consumption/domain"
)

const (
	defaultSamplesTable = "meter_samples"
	defaultMetersTable  = "meters"
)

// SampleQuery loads meter samples with their unit and floor attributes.
type SampleQuery struct {
	db           *sql.DB
	samplesTable string
	metersTable  string
}

// QueryOption configures the sample query.
type QueryOption func(*SampleQuery)

// WithSamplesTable overrides the default samples table name.
func WithSamplesTable(table string) QueryOption {
	return func(q *SampleQuery) {
		if table != "" {
			q.samplesTable = table
		}
	}
}

// WithMetersTable overrides the default meters table name.
func WithMetersTable(table string) QueryOption {
	return func(q *SampleQuery) {
		if table != "" {
			q.metersTable = table
		}
	}
}

// NewSampleQuery constructs a query with default table names.
func NewSampleQuery(db *sql.DB, opts ...QueryOption) *SampleQuery {
	q := &SampleQuery{db: db, samplesTable: defaultSamplesTable, metersTable: defaultMetersTable}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Samples returns samples of the client's meters within [From, To), ordered by time.
func (q *SampleQuery) Samples(ctx context.Context, req consumption.SampleRequest) ([]consumption.Sample, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("sample query: nil db")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT s.ts, s.value, m.id, m.unit_id, m.floor
FROM %s s
JOIN %s m ON m.id = s.meter_id
WHERE m.client_id = $1
	AND s.ts >= $2
	AND s.ts < $3`, q.samplesTable, q.metersTable)
	args := []any{req.ClientID, req.From, req.To}
	if len(req.MeterIDs) > 0 {
		query += "\n\tAND m.id = ANY($4)"
		args = append(args, req.MeterIDs)
	}
	query += "\nORDER BY s.ts ASC, m.id ASC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []consumption.Sample
	for rows.Next() {
		var sample consumption.Sample
		if err := rows.Scan(&sample.Timestamp, &sample.Value, &sample.MeterID, &sample.UnitID, &sample.Floor); err != nil {
			return nil, err
		}
		sample.Timestamp = sample.Timestamp.UTC()
		result = append(result, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
