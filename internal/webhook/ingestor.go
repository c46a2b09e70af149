// Package webhook ingests signed event deliveries from the source system.
// Events carry only a pointer to the changed resource, so processing fetches
// the full current representation and routes it through the same mapper and
// upsert writer the bulk sync path uses.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearledger/karbonsync/internal/domain"
	"github.com/clearledger/karbonsync/internal/karbon"
	"github.com/clearledger/karbonsync/internal/metrics"
	"github.com/clearledger/karbonsync/internal/registry"
	"github.com/clearledger/karbonsync/internal/repository"
)

// ErrBadEnvelope is returned for deliveries missing the event type or the
// affected resource's key.
var ErrBadEnvelope = errors.New("webhook: envelope is missing event type or resource key")

// deleteAction is the event-type suffix that triggers a soft delete instead
// of a re-fetch.
const deleteAction = "Deleted"

// ResourceFetcher is the slice of the transport client the ingestor needs.
type ResourceFetcher interface {
	GetResource(ctx context.Context, endpoint, key string, opts karbon.QueryOptions) (json.RawMessage, error)
}

// Envelope is the inbound delivery shape.
type Envelope struct {
	EventType       string         `json:"EventType"`
	EventTime       string         `json:"EventTime"`
	SubscriptionKey string         `json:"SubscriptionKey"`
	Data            map[string]any `json:"Data"`
}

// Result is returned to the delivery's HTTP response.
type Result struct {
	Success     bool      `json:"success"`
	EventType   string    `json:"eventType"`
	ResourceKey string    `json:"resourceKey"`
	ProcessedAt time.Time `json:"processedAt"`
	DurationMs  int64     `json:"durationMs"`
}

// Ingestor validates and processes webhook deliveries. Every delivery is
// recorded in the audit trail, including rejected ones.
type Ingestor struct {
	registry   *registry.Registry
	client     ResourceFetcher
	records    repository.RecordRepository
	deliveries repository.WebhookDeliveryRepository
	secret     string
	logger     zerolog.Logger
}

// NewIngestor wires an ingestor. An empty secret disables signature
// verification; that degraded mode is logged loudly at construction so it can
// never pass for a production setup silently.
func NewIngestor(
	reg *registry.Registry,
	client ResourceFetcher,
	records repository.RecordRepository,
	deliveries repository.WebhookDeliveryRepository,
	secret string,
	logger zerolog.Logger,
) *Ingestor {
	if secret == "" {
		logger.Warn().Msg("webhook secret not configured, signature verification disabled")
	}
	return &Ingestor{
		registry:   reg,
		client:     client,
		records:    records,
		deliveries: deliveries,
		secret:     secret,
		logger:     logger,
	}
}

// Process handles one raw delivery. The returned error classifies the
// failure for the HTTP layer; the audit row is written either way.
func (i *Ingestor) Process(ctx context.Context, body []byte, signature string) (Result, error) {
	receivedAt := time.Now().UTC()
	delivery := &domain.WebhookDelivery{
		ID:         uuid.New(),
		RawPayload: json.RawMessage(body),
		ReceivedAt: receivedAt,
	}

	if err := i.verify(body, signature); err != nil {
		return i.fail(ctx, delivery, receivedAt, err)
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return i.fail(ctx, delivery, receivedAt, fmt.Errorf("%w: %v", ErrBadEnvelope, err))
	}
	delivery.EventType = envelope.EventType

	if envelope.EventType == "" || envelope.Data == nil {
		return i.fail(ctx, delivery, receivedAt, ErrBadEnvelope)
	}

	desc, action, err := i.registry.ResolveEvent(envelope.EventType)
	if err != nil {
		return i.fail(ctx, delivery, receivedAt, err)
	}
	delivery.ResourceType = desc.ResourceType

	key, _ := envelope.Data[desc.KeyField].(string)
	if key == "" {
		return i.fail(ctx, delivery, receivedAt, ErrBadEnvelope)
	}
	delivery.ResourceKey = key

	if action == deleteAction {
		if err := i.records.SoftDelete(ctx, desc, key, receivedAt); err != nil {
			return i.fail(ctx, delivery, receivedAt, err)
		}
	} else if err := i.resolveAndUpsert(ctx, desc, key); err != nil {
		return i.fail(ctx, delivery, receivedAt, err)
	}

	processedAt := time.Now().UTC()
	delivery.Outcome = domain.DeliveryOutcomeProcessed
	delivery.DurationMs = processedAt.Sub(receivedAt).Milliseconds()
	i.record(ctx, delivery)
	metrics.WebhookDeliveries.WithLabelValues(domain.DeliveryOutcomeProcessed).Inc()

	i.logger.Info().
		Str("event_type", envelope.EventType).
		Str("resource_key", key).
		Int64("duration_ms", delivery.DurationMs).
		Msg("webhook delivery processed")

	return Result{
		Success:     true,
		EventType:   envelope.EventType,
		ResourceKey: key,
		ProcessedAt: processedAt,
		DurationMs:  delivery.DurationMs,
	}, nil
}

// verify applies the authenticity policy. With no secret configured an
// unsigned delivery is accepted in degraded mode, but a delivery that does
// present a signature is never accepted unverified.
func (i *Ingestor) verify(body []byte, signature string) error {
	if i.secret == "" {
		if signature != "" {
			return fmt.Errorf("%w: signature provided but no secret configured", ErrInvalidSignature)
		}
		i.logger.Warn().Msg("accepting unsigned webhook delivery, verification disabled")
		return nil
	}
	return VerifySignature(i.secret, body, signature)
}

// resolveAndUpsert fetches the resource's full representation, maps it with
// the same mapper bulk sync uses, and upserts it. Parent references are
// checked best-effort; a parent that has not been synced yet is tolerated.
func (i *Ingestor) resolveAndUpsert(ctx context.Context, desc *registry.Descriptor, key string) error {
	raw, err := i.client.GetResource(ctx, desc.Endpoint, key, karbon.QueryOptions{Expand: desc.Expand})
	if err != nil {
		return fmt.Errorf("failed to resolve %s %s: %w", desc.Kind, key, err)
	}

	record, err := desc.Map(raw)
	if err != nil {
		return err
	}

	if desc.Parent != nil {
		if parentKey, _ := record.Fields[desc.Parent.Column].(string); parentKey != "" {
			if parentDesc, regErr := i.registry.Get(desc.Parent.Kind); regErr == nil {
				exists, lookupErr := i.records.Exists(ctx, parentDesc, parentKey)
				if lookupErr != nil {
					i.logger.Warn().Err(lookupErr).Str("parent_key", parentKey).Msg("parent lookup failed")
				} else if !exists {
					i.logger.Debug().
						Str("entity", string(desc.Kind)).
						Str("parent_key", parentKey).
						Msg("parent not yet synced, keeping dangling reference")
				}
			}
		}
	}

	result := i.records.Upsert(ctx, desc, []domain.Record{record})
	if result.Failed > 0 {
		return fmt.Errorf("failed to upsert %s %s: %s", desc.Kind, key, result.ErrorDetails[0].Message)
	}
	return nil
}

func (i *Ingestor) fail(ctx context.Context, delivery *domain.WebhookDelivery, receivedAt time.Time, cause error) (Result, error) {
	delivery.Outcome = domain.DeliveryOutcomeFailed
	delivery.ErrorMessage = cause.Error()
	delivery.DurationMs = time.Now().UTC().Sub(receivedAt).Milliseconds()
	i.record(ctx, delivery)
	metrics.WebhookDeliveries.WithLabelValues(domain.DeliveryOutcomeFailed).Inc()

	i.logger.Warn().
		Err(cause).
		Str("event_type", delivery.EventType).
		Str("resource_key", delivery.ResourceKey).
		Msg("webhook delivery failed")

	return Result{
		Success:     false,
		EventType:   delivery.EventType,
		ResourceKey: delivery.ResourceKey,
		ProcessedAt: time.Now().UTC(),
		DurationMs:  delivery.DurationMs,
	}, cause
}

func (i *Ingestor) record(ctx context.Context, delivery *domain.WebhookDelivery) {
	if err := i.deliveries.Record(ctx, delivery); err != nil {
		i.logger.Error().Err(err).Msg("failed to record webhook delivery")
	}
}
