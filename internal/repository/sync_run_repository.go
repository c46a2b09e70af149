package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearledger/karbonsync/internal/domain"
)

type syncRunRepository struct {
	pool *pgxpool.Pool
}

// NewSyncRunRepository wires the sync run audit repository backed by pgxpool.
func NewSyncRunRepository(pool *pgxpool.Pool) SyncRunRepository {
	return &syncRunRepository{pool: pool}
}

func (r *syncRunRepository) Create(ctx context.Context, run *domain.SyncRun) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO sync_runs (id, sync_type, direction, trigger_source, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID,
		run.SyncType,
		run.Direction,
		run.Trigger,
		run.Status,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

func (r *syncRunRepository) Complete(ctx context.Context, run *domain.SyncRun) error {
	var details any
	if len(run.ErrorDetails) > 0 {
		encoded, err := json.Marshal(run.ErrorDetails)
		if err != nil {
			return fmt.Errorf("failed to encode error details: %w", err)
		}
		details = encoded
	}

	_, err := r.pool.Exec(
		ctx,
		`UPDATE sync_runs
		 SET status = $2,
		     records_fetched = $3,
		     records_created = $4,
		     records_failed = $5,
		     completed_at = $6,
		     error_details = $7
		 WHERE id = $1`,
		run.ID,
		run.Status,
		run.RecordsFetched,
		run.RecordsCreated,
		run.RecordsFailed,
		run.CompletedAt,
		details,
	)
	if err != nil {
		return fmt.Errorf("failed to complete sync run: %w", err)
	}
	return nil
}

func (r *syncRunRepository) List(ctx context.Context, limit, offset int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, sync_type, direction, trigger_source, status,
		        records_fetched, records_created, records_failed,
		        started_at, completed_at, error_details
		 FROM sync_runs
		 ORDER BY started_at DESC
		 LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.SyncRun{}
	for rows.Next() {
		var (
			run         domain.SyncRun
			completedAt pgtype.Timestamptz
			details     []byte
		)
		if scanErr := rows.Scan(
			&run.ID,
			&run.SyncType,
			&run.Direction,
			&run.Trigger,
			&run.Status,
			&run.RecordsFetched,
			&run.RecordsCreated,
			&run.RecordsFailed,
			&run.StartedAt,
			&completedAt,
			&details,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", scanErr)
		}

		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		if len(details) > 0 {
			if decodeErr := json.Unmarshal(details, &run.ErrorDetails); decodeErr != nil {
				return nil, fmt.Errorf("failed to decode error details: %w", decodeErr)
			}
		}

		runs = append(runs, run)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate sync runs: %w", rowsErr)
	}

	return runs, nil
}

func (r *syncRunRepository) ReapStale(ctx context.Context, lease time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-lease)
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE sync_runs
		 SET status = $1, completed_at = now()
		 WHERE status = $2 AND started_at < $3`,
		domain.RunStatusFailed,
		domain.RunStatusRunning,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale sync runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
