package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Webhook delivery outcomes. Every inbound delivery is recorded, including
// signature failures, so drift between the push and pull paths can be
// diagnosed after the fact.
const (
	DeliveryOutcomeProcessed = "processed"
	DeliveryOutcomeFailed    = "failed"
)

// WebhookDelivery is the audit row for one inbound webhook delivery.
type WebhookDelivery struct {
	ID           uuid.UUID       `json:"id"`
	ResourceType string          `json:"resource_type"`
	EventType    string          `json:"event_type"`
	ResourceKey  string          `json:"resource_key"`
	RawPayload   json.RawMessage `json:"raw_payload,omitempty"`
	Outcome      string          `json:"outcome"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	ReceivedAt   time.Time       `json:"received_at"`
}
