package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/clearledger/karbonsync/internal/domain"
	"github.com/clearledger/karbonsync/internal/karbon"
	"github.com/clearledger/karbonsync/internal/registry"
	"github.com/clearledger/karbonsync/internal/repository"
)

const testSecret = "test-signing-secret"

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type stubFetcher struct {
	payloads map[string]json.RawMessage
	err      error
	requests []string
}

func (s *stubFetcher) GetResource(_ context.Context, endpoint, key string, _ karbon.QueryOptions) (json.RawMessage, error) {
	s.requests = append(s.requests, endpoint+"/"+key)
	if s.err != nil {
		return nil, s.err
	}
	payload, ok := s.payloads[key]
	if !ok {
		return nil, karbon.ErrNotFound
	}
	return payload, nil
}

type stubRecords struct {
	upserted  []domain.Record
	deleted   []string
	deleteErr error
	existing  map[string]bool
}

func (s *stubRecords) Upsert(_ context.Context, _ *registry.Descriptor, records []domain.Record) domain.UpsertResult {
	s.upserted = append(s.upserted, records...)
	return domain.UpsertResult{Synced: len(records)}
}

func (s *stubRecords) MaxModifiedAt(_ context.Context, _ *registry.Descriptor) (*time.Time, error) {
	return nil, nil
}

func (s *stubRecords) SoftDelete(_ context.Context, desc *registry.Descriptor, key string, _ time.Time) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, string(desc.Kind)+"/"+key)
	return nil
}

func (s *stubRecords) Exists(_ context.Context, _ *registry.Descriptor, key string) (bool, error) {
	return s.existing[key], nil
}

type stubDeliveries struct {
	recorded []*domain.WebhookDelivery
}

func (s *stubDeliveries) Record(_ context.Context, delivery *domain.WebhookDelivery) error {
	s.recorded = append(s.recorded, delivery)
	return nil
}

func (s *stubDeliveries) List(_ context.Context, _, _ int) ([]domain.WebhookDelivery, error) {
	return nil, nil
}

var _ repository.RecordRepository = (*stubRecords)(nil)
var _ repository.WebhookDeliveryRepository = (*stubDeliveries)(nil)

func testIngestor(t *testing.T, fetcher *stubFetcher, records *stubRecords, deliveries *stubDeliveries, secret string) *Ingestor {
	t.Helper()
	reg, err := registry.New()
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return NewIngestor(reg, fetcher, records, deliveries, secret, zerolog.Nop())
}

func envelope(eventType, keyField, key string) []byte {
	return []byte(fmt.Sprintf(`{"EventType":%q,"Data":{%q:%q}}`, eventType, keyField, key))
}

func TestProcessResolvesAndUpserts(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string]json.RawMessage{
		"c1": json.RawMessage(`{"ContactKey":"c1","FullName":"Ada Lovelace"}`),
	}}
	records := &stubRecords{}
	deliveries := &stubDeliveries{}
	ing := testIngestor(t, fetcher, records, deliveries, testSecret)

	body := envelope("ContactUpdated", "ContactKey", "c1")
	result, err := ing.Process(context.Background(), body, sign(testSecret, body))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if !result.Success || result.ResourceKey != "c1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(fetcher.requests) != 1 || fetcher.requests[0] != "Contacts/c1" {
		t.Fatalf("expected one resource fetch, got %v", fetcher.requests)
	}
	if len(records.upserted) != 1 || records.upserted[0].Key != "c1" {
		t.Fatalf("expected one upserted record, got %+v", records.upserted)
	}
	if len(deliveries.recorded) != 1 || deliveries.recorded[0].Outcome != domain.DeliveryOutcomeProcessed {
		t.Fatalf("expected one processed delivery record, got %+v", deliveries.recorded)
	}
}

func TestProcessRejectsTamperedSignature(t *testing.T) {
	fetcher := &stubFetcher{}
	records := &stubRecords{}
	deliveries := &stubDeliveries{}
	ing := testIngestor(t, fetcher, records, deliveries, testSecret)

	body := envelope("ContactUpdated", "ContactKey", "c1")
	tampered := append([]byte{}, body...)
	tampered[len(tampered)-2] = 'X'

	_, err := ing.Process(context.Background(), tampered, sign(testSecret, body))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	if len(fetcher.requests) != 0 {
		t.Fatalf("rejected delivery must not trigger a resource fetch")
	}
	if len(records.upserted) != 0 || len(records.deleted) != 0 {
		t.Fatalf("rejected delivery must not mutate the store")
	}
	if len(deliveries.recorded) != 1 || deliveries.recorded[0].Outcome != domain.DeliveryOutcomeFailed {
		t.Fatalf("rejection must still be audited, got %+v", deliveries.recorded)
	}
}

func TestProcessAcceptsSignatureWithSchemePrefix(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string]json.RawMessage{
		"c1": json.RawMessage(`{"ContactKey":"c1"}`),
	}}
	ing := testIngestor(t, fetcher, &stubRecords{}, &stubDeliveries{}, testSecret)

	body := envelope("ContactUpdated", "ContactKey", "c1")
	if _, err := ing.Process(context.Background(), body, "sha256="+sign(testSecret, body)); err != nil {
		t.Fatalf("prefixed signature should verify: %v", err)
	}
}

func TestProcessDeleteEventSoftDeletes(t *testing.T) {
	fetcher := &stubFetcher{}
	records := &stubRecords{}
	ing := testIngestor(t, fetcher, records, &stubDeliveries{}, testSecret)

	body := envelope("WorkItemDeleted", "WorkItemKey", "w1")
	result, err := ing.Process(context.Background(), body, sign(testSecret, body))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(records.deleted) != 1 || records.deleted[0] != "work_items/w1" {
		t.Fatalf("expected soft delete of w1, got %v", records.deleted)
	}
	if len(fetcher.requests) != 0 {
		t.Fatalf("delete events must not re-fetch the resource")
	}
}

func TestProcessRejectsEnvelopeWithoutEventType(t *testing.T) {
	deliveries := &stubDeliveries{}
	ing := testIngestor(t, &stubFetcher{}, &stubRecords{}, deliveries, testSecret)

	body := []byte(`{"Data":{"ContactKey":"c1"}}`)
	_, err := ing.Process(context.Background(), body, sign(testSecret, body))
	if !errors.Is(err, ErrBadEnvelope) {
		t.Fatalf("expected ErrBadEnvelope, got %v", err)
	}
	if len(deliveries.recorded) != 1 || deliveries.recorded[0].Outcome != domain.DeliveryOutcomeFailed {
		t.Fatalf("malformed envelope must still be audited")
	}
}

func TestProcessRejectsEnvelopeWithoutResourceKey(t *testing.T) {
	ing := testIngestor(t, &stubFetcher{}, &stubRecords{}, &stubDeliveries{}, testSecret)

	body := []byte(`{"EventType":"ContactUpdated","Data":{"Unrelated":"x"}}`)
	_, err := ing.Process(context.Background(), body, sign(testSecret, body))
	if !errors.Is(err, ErrBadEnvelope) {
		t.Fatalf("expected ErrBadEnvelope, got %v", err)
	}
}

func TestProcessUnknownResourceTypeFails(t *testing.T) {
	ing := testIngestor(t, &stubFetcher{}, &stubRecords{}, &stubDeliveries{}, testSecret)

	body := envelope("WidgetUpdated", "WidgetKey", "x1")
	if _, err := ing.Process(context.Background(), body, sign(testSecret, body)); err == nil {
		t.Fatalf("expected error for unknown resource type")
	}
}

func TestProcessFetchFailureIsAudited(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("upstream unavailable")}
	deliveries := &stubDeliveries{}
	ing := testIngestor(t, fetcher, &stubRecords{}, deliveries, testSecret)

	body := envelope("ContactUpdated", "ContactKey", "c1")
	if _, err := ing.Process(context.Background(), body, sign(testSecret, body)); err == nil {
		t.Fatalf("expected fetch failure to propagate")
	}
	if len(deliveries.recorded) != 1 || deliveries.recorded[0].Outcome != domain.DeliveryOutcomeFailed {
		t.Fatalf("fetch failure must be audited, got %+v", deliveries.recorded)
	}
}

func TestProcessNoSecretAcceptsUnsigned(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string]json.RawMessage{
		"c1": json.RawMessage(`{"ContactKey":"c1"}`),
	}}
	ing := testIngestor(t, fetcher, &stubRecords{}, &stubDeliveries{}, "")

	body := envelope("ContactUpdated", "ContactKey", "c1")
	if _, err := ing.Process(context.Background(), body, ""); err != nil {
		t.Fatalf("unsigned delivery should be accepted without a secret: %v", err)
	}
}

func TestProcessNoSecretRejectsSigned(t *testing.T) {
	ing := testIngestor(t, &stubFetcher{}, &stubRecords{}, &stubDeliveries{}, "")

	body := envelope("ContactUpdated", "ContactKey", "c1")
	_, err := ing.Process(context.Background(), body, sign("whatever", body))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("signed delivery without a configured secret must be rejected, got %v", err)
	}
}

func TestProcessParentLookupIsBestEffort(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string]json.RawMessage{
		"t1": json.RawMessage(`{"TaskKey":"t1","WorkItemKey":"w-missing","Title":"Orphan task"}`),
	}}
	records := &stubRecords{existing: map[string]bool{}}
	ing := testIngestor(t, fetcher, records, &stubDeliveries{}, testSecret)

	body := envelope("TaskUpdated", "TaskKey", "t1")
	result, err := ing.Process(context.Background(), body, sign(testSecret, body))
	if err != nil {
		t.Fatalf("missing parent must not fail the delivery: %v", err)
	}
	if !result.Success || len(records.upserted) != 1 {
		t.Fatalf("task should be upserted despite the missing parent, got %+v", result)
	}
}
