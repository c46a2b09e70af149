package repository

import (
	"context"
	"time"

	"github.com/clearledger/karbonsync/internal/domain"
	"github.com/clearledger/karbonsync/internal/registry"
)

// RecordRepository is the shared write path for both ingestion routes. All
// writes are insert-or-update keyed by the external entity key, so concurrent
// writers need no coordination beyond the storage layer.
type RecordRepository interface {
	// Upsert writes records in fixed-size batches. A failing batch is
	// recorded and its records counted as failed; sibling batches still
	// commit.
	Upsert(ctx context.Context, desc *registry.Descriptor, records []domain.Record) domain.UpsertResult

	// MaxModifiedAt resolves the kind's watermark: the greatest upstream
	// modification timestamp currently stored, or nil when no row carries
	// one (signals a full fetch).
	MaxModifiedAt(ctx context.Context, desc *registry.Descriptor) (*time.Time, error)

	// SoftDelete marks a row inactive with a deletion timestamp, leaving
	// every other column unchanged.
	SoftDelete(ctx context.Context, desc *registry.Descriptor, key string, deletedAt time.Time) error

	// Exists reports whether a row with the given external key is present.
	Exists(ctx context.Context, desc *registry.Descriptor, key string) (bool, error)
}

// SyncRunRepository persists the pull path's audit trail.
type SyncRunRepository interface {
	Create(ctx context.Context, run *domain.SyncRun) error
	Complete(ctx context.Context, run *domain.SyncRun) error
	List(ctx context.Context, limit, offset int) ([]domain.SyncRun, error)

	// ReapStale marks runs stuck in running state beyond the lease as
	// failed, so a crash mid-run cannot leave the audit trail ambiguous
	// forever.
	ReapStale(ctx context.Context, lease time.Duration) (int64, error)
}

// WebhookDeliveryRepository persists the push path's audit trail.
type WebhookDeliveryRepository interface {
	Record(ctx context.Context, delivery *domain.WebhookDelivery) error
	List(ctx context.Context, limit, offset int) ([]domain.WebhookDelivery, error)
}
