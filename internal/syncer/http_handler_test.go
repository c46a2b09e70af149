package syncer

import (
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/clearledger/karbonsync/internal/domain"
)

func testHandler(t *testing.T, pager *stubPager, records *stubRecords, runs *stubRuns) *Handler {
	t.Helper()
	orch := NewOrchestrator(pager, testRegistry(t), records, runs, 100, zerolog.Nop())
	return &Handler{orchestrator: orch}
}

func TestSyncHandlerTriggersRun(t *testing.T) {
	pager := &stubPager{items: map[string][]json.RawMessage{
		"Contacts": {contactPayload("c1")},
	}}
	handler := testHandler(t, pager, &stubRecords{}, &stubRuns{})

	req := httptest.NewRequest("POST", "/api/sync?entities=contacts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var summary RunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if summary.Status != domain.RunStatusCompleted {
		t.Fatalf("unexpected status: %s", summary.Status)
	}
	if summary.RecordsSynced != 1 {
		t.Fatalf("unexpected synced count: %d", summary.RecordsSynced)
	}
	if len(pager.endpoints) != 1 || pager.endpoints[0] != "Contacts" {
		t.Fatalf("expected scoped run, got %v", pager.endpoints)
	}
}

func TestSyncHandlerRejectsUnknownEntity(t *testing.T) {
	handler := testHandler(t, &stubPager{}, &stubRecords{}, &stubRuns{})

	req := httptest.NewRequest("POST", "/api/sync?entities=widgets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSyncHandlerRejectsBadIncrementalFlag(t *testing.T) {
	handler := testHandler(t, &stubPager{}, &stubRecords{}, &stubRuns{})

	req := httptest.NewRequest("POST", "/api/sync?incremental=sometimes", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSyncHandlerRejectsUnknownTrigger(t *testing.T) {
	handler := testHandler(t, &stubPager{}, &stubRecords{}, &stubRuns{})

	req := httptest.NewRequest("POST", "/api/sync?trigger=cron", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSyncHandlerMethodNotAllowed(t *testing.T) {
	handler := testHandler(t, &stubPager{}, &stubRecords{}, &stubRuns{})

	req := httptest.NewRequest("GET", "/api/sync", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 405 {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSyncHandlerFullSyncFlag(t *testing.T) {
	handler := testHandler(t, &stubPager{}, &stubRecords{}, &stubRuns{})

	req := httptest.NewRequest("POST", "/api/sync?incremental=false&entities=contacts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary RunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if summary.SyncType != domain.SyncTypeFull {
		t.Fatalf("expected full sync type, got %s", summary.SyncType)
	}
}
