package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearledger/karbonsync/internal/domain"
	"github.com/clearledger/karbonsync/internal/registry"
)

// upsertBatchSize is the number of records written per statement. Each batch
// is one implicit transaction; there is no cross-batch atomicity.
const upsertBatchSize = 50

type recordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository wires the shared upsert writer backed by pgxpool.
func NewRecordRepository(pool *pgxpool.Pool) RecordRepository {
	return &recordRepository{pool: pool}
}

func (r *recordRepository) Upsert(ctx context.Context, desc *registry.Descriptor, records []domain.Record) domain.UpsertResult {
	result := domain.UpsertResult{}
	if len(records) == 0 {
		return result
	}

	syncedAt := time.Now().UTC()

	batchIndex := 0
	for start := 0; start < len(records); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		batchIndex++

		sql, args := buildUpsertStatement(desc, batch, syncedAt)
		if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
			result.Failed += len(batch)
			result.ErrorDetails = append(result.ErrorDetails, domain.BatchError{
				Batch:   batchIndex,
				Records: len(batch),
				Message: err.Error(),
			})
			continue
		}
		result.Synced += len(batch)
	}

	return result
}

// buildUpsertStatement renders one multi-row insert-or-update statement. The
// guard clause only overwrites a row when the incoming upstream modification
// timestamp is at least as new as the stored one, so a stale webhook re-fetch
// cannot regress a fresher bulk-synced row. Rows without an upstream
// timestamp (either side) always overwrite.
func buildUpsertStatement(desc *registry.Descriptor, batch []domain.Record, syncedAt time.Time) (string, []any) {
	columns := make([]string, 0, len(desc.Columns)+3)
	columns = append(columns, desc.KeyColumn)
	columns = append(columns, desc.Columns...)
	columns = append(columns, "modified_at", "last_synced_at")

	var (
		sb   strings.Builder
		args = make([]any, 0, len(batch)*len(columns))
	)

	sb.WriteString("INSERT INTO ")
	sb.WriteString(desc.Table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(") VALUES ")

	arg := 1
	for i, record := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		placeholders := make([]string, len(columns))
		for j := range columns {
			placeholders[j] = fmt.Sprintf("$%d", arg)
			arg++
		}
		sb.WriteString("(")
		sb.WriteString(strings.Join(placeholders, ", "))
		sb.WriteString(")")

		args = append(args, record.Key)
		for _, col := range desc.Columns {
			args = append(args, record.Fields[col])
		}
		if record.ModifiedAt != nil {
			args = append(args, *record.ModifiedAt)
		} else {
			args = append(args, nil)
		}
		args = append(args, syncedAt)
	}

	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(desc.KeyColumn)
	sb.WriteString(") DO UPDATE SET ")

	assignments := make([]string, 0, len(desc.Columns)+4)
	for _, col := range desc.Columns {
		assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	assignments = append(assignments,
		"modified_at = EXCLUDED.modified_at",
		"last_synced_at = EXCLUDED.last_synced_at",
		"is_active = TRUE",
		"deleted_at = NULL",
	)
	sb.WriteString(strings.Join(assignments, ", "))

	sb.WriteString(fmt.Sprintf(
		" WHERE %s.modified_at IS NULL OR EXCLUDED.modified_at IS NULL OR EXCLUDED.modified_at >= %s.modified_at",
		desc.Table, desc.Table,
	))

	return sb.String(), args
}

func (r *recordRepository) MaxModifiedAt(ctx context.Context, desc *registry.Descriptor) (*time.Time, error) {
	var max pgtype.Timestamptz
	query := fmt.Sprintf("SELECT max(modified_at) FROM %s WHERE modified_at IS NOT NULL", desc.Table)
	if err := r.pool.QueryRow(ctx, query).Scan(&max); err != nil {
		return nil, fmt.Errorf("failed to resolve watermark for %s: %w", desc.Kind, err)
	}
	if !max.Valid {
		return nil, nil
	}
	t := max.Time.UTC()
	return &t, nil
}

func (r *recordRepository) SoftDelete(ctx context.Context, desc *registry.Descriptor, key string, deletedAt time.Time) error {
	query := fmt.Sprintf(
		"UPDATE %s SET is_active = FALSE, deleted_at = $1 WHERE %s = $2",
		desc.Table, desc.KeyColumn,
	)
	if _, err := r.pool.Exec(ctx, query, deletedAt.UTC(), key); err != nil {
		return fmt.Errorf("failed to soft delete %s %s: %w", desc.Kind, key, err)
	}
	return nil
}

func (r *recordRepository) Exists(ctx context.Context, desc *registry.Descriptor, key string) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)", desc.Table, desc.KeyColumn)
	if err := r.pool.QueryRow(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s %s: %w", desc.Kind, key, err)
	}
	return exists, nil
}
