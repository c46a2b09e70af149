package domain

import (
	"time"

	"github.com/google/uuid"
)

// Sync run lifecycle states. A run is created in StatusRunning and mutated
// exactly once to a terminal state. Rows are never deleted; they form the
// audit trail for the pull path.
const (
	RunStatusRunning             = "running"
	RunStatusCompleted           = "completed"
	RunStatusCompletedWithErrors = "completed_with_errors"
	RunStatusFailed              = "failed"
)

const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"

	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// SyncRun is one audited execution of the orchestrator across some subset of
// entity kinds.
type SyncRun struct {
	ID             uuid.UUID     `json:"id"`
	SyncType       string        `json:"sync_type"`
	Direction      string        `json:"direction"`
	Trigger        string        `json:"trigger"`
	Status         string        `json:"status"`
	RecordsFetched int           `json:"records_fetched"`
	RecordsCreated int           `json:"records_created"`
	RecordsFailed  int           `json:"records_failed"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	ErrorDetails   []EntityError `json:"error_details,omitempty"`
}

// EntityError summarizes one failing entity kind within a run. Errors are
// aggregated per kind, never per record.
type EntityError struct {
	Entity  EntityKind `json:"entity"`
	Records int        `json:"records"`
	Message string     `json:"message"`
}
