package domain

import "time"

// Record is the flat output of an entity mapper, ready for upsert. Key holds
// the external entity key issued by the source system; Fields maps column
// names to values for the kind's table. ModifiedAt carries the upstream
// modification timestamp when the payload included one.
//
// Mapping is a pure function of the source object: re-mapping an unchanged
// payload produces an identical Record. The last_synced_at column is stamped
// by the upsert writer, not the mapper, so it never breaks that property.
type Record struct {
	Key        string
	Fields     map[string]any
	ModifiedAt *time.Time
}

// UpsertResult aggregates the outcome of writing one kind's batch set.
type UpsertResult struct {
	Synced       int          `json:"synced"`
	Failed       int          `json:"failed"`
	ErrorDetails []BatchError `json:"errorDetails,omitempty"`
}

// BatchError records one failed upsert batch. The batch's records count as
// failed; sibling batches still commit.
type BatchError struct {
	Batch   int    `json:"batch"`
	Records int    `json:"records"`
	Message string `json:"message"`
}
