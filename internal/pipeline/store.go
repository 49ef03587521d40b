package internal

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// fetchLimit caps a single log fetch; callers page with last_id.
const fetchLimit = 100000

// LogRow is one ingested log line for an integration.
type LogRow struct {
	ID      string `json:"id"`
	RawData string `json:"raw_data"`
}

// LogQuery selects the log rows a handler works on.
type LogQuery struct {
	IntegrationID string
	LastID        string
	DateFrom      string
	DateTo        string
}

// LogStore reads ingested log data for the service handlers.
type LogStore struct {
	pool *pgxpool.Pool
}

func NewLogStore(url string) (*LogStore, error) {
	pool, err := newDatabasePool(url)
	if err != nil {
		return nil, err
	}
	return &LogStore{pool: pool}, nil
}

func newDatabasePool(url string) (*pgxpool.Pool, error) {
	ctx := context.Background()

	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	err = pool.Ping(context.Background())
	if err != nil {
		return nil, err
	}

	return pool, nil
}

// FetchLogs returns log rows for an integration ordered by ingestion
// time. A non-empty LastID resumes after that row.
func (s *LogStore) FetchLogs(ctx context.Context, q LogQuery) ([]LogRow, error) {
	query := `
		SELECT id, raw_data
		FROM logs
		WHERE integration_id = $1
	`
	args := []any{q.IntegrationID}

	if q.LastID != "" {
		args = append(args, q.LastID)
		query += ` AND id > $` + strconv.Itoa(len(args))
	}
	if q.DateFrom != "" {
		args = append(args, q.DateFrom)
		query += ` AND timestamp >= $` + strconv.Itoa(len(args))
	}
	if q.DateTo != "" {
		args = append(args, q.DateTo)
		query += ` AND timestamp < $` + strconv.Itoa(len(args))
	}

	query += ` ORDER BY timestamp ASC LIMIT ` + strconv.Itoa(fetchLimit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LogRow
	for rows.Next() {
		var row LogRow
		if err := rows.Scan(&row.ID, &row.RawData); err != nil {
			return nil, err
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func (s *LogStore) Close() {
	s.pool.Close()
}
