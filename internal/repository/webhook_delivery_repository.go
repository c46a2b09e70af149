package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearledger/karbonsync/internal/domain"
)

type webhookDeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookDeliveryRepository wires the webhook audit repository backed by
// pgxpool.
func NewWebhookDeliveryRepository(pool *pgxpool.Pool) WebhookDeliveryRepository {
	return &webhookDeliveryRepository{pool: pool}
}

func (r *webhookDeliveryRepository) Record(ctx context.Context, delivery *domain.WebhookDelivery) error {
	var payload any
	if len(delivery.RawPayload) > 0 {
		payload = string(delivery.RawPayload)
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO webhook_deliveries
		   (id, resource_type, event_type, resource_key, raw_payload, outcome, error_message, duration_ms, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		delivery.ID,
		delivery.ResourceType,
		delivery.EventType,
		delivery.ResourceKey,
		payload,
		delivery.Outcome,
		delivery.ErrorMessage,
		delivery.DurationMs,
		delivery.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	return nil
}

func (r *webhookDeliveryRepository) List(ctx context.Context, limit, offset int) ([]domain.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, resource_type, event_type, resource_key, raw_payload,
		        outcome, error_message, duration_ms, received_at
		 FROM webhook_deliveries
		 ORDER BY received_at DESC
		 LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []domain.WebhookDelivery{}
	for rows.Next() {
		var (
			delivery domain.WebhookDelivery
			payload  []byte
		)
		if scanErr := rows.Scan(
			&delivery.ID,
			&delivery.ResourceType,
			&delivery.EventType,
			&delivery.ResourceKey,
			&payload,
			&delivery.Outcome,
			&delivery.ErrorMessage,
			&delivery.DurationMs,
			&delivery.ReceivedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan webhook delivery: %w", scanErr)
		}
		delivery.RawPayload = payload
		deliveries = append(deliveries, delivery)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate webhook deliveries: %w", rowsErr)
	}

	return deliveries, nil
}
