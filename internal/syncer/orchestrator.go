// Package syncer drives scheduled and manual synchronization runs: for each
// entity kind in dependency order it resolves the watermark, pulls matching
// source records through the pager, maps them, and hands them to the shared
// upsert writer, recording one audited sync run per invocation.
package syncer

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

// defaultRunLease is how long a run may sit in running state before the
// reaper treats it as crashed.
const defaultRunLease = 2 * time.Hour

// PageLister is the slice of the pager the orchestrator needs.
type PageLister interface {
	FetchAll(ctx context.Context, endpoint string, opts karbon.QueryOptions) ([]json.RawMessage, error)
}

// Options selects the scope of one run.
type Options struct {
	Incremental bool
	Kinds       []domain.EntityKind // empty selects every kind
	Trigger     string              // manual or scheduled
}

// KindResult is the per-entity-kind outcome within a run.
type KindResult struct {
	Entity  domain.EntityKind `json:"entity"`
	Fetched int               `json:"fetched"`
	Synced  int               `json:"synced"`
	Failed  int               `json:"failed"`
	Partial bool              `json:"partial,omitempty"`
	Skipped bool              `json:"skipped,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// RunSummary is returned to the trigger endpoint and mirrored into the
// sync_runs audit row.
type RunSummary struct {
	RunID          uuid.UUID    `json:"runId"`
	SyncType       string       `json:"syncType"`
	Status         string       `json:"status"`
	RecordsFetched int          `json:"recordsFetched"`
	RecordsSynced  int          `json:"recordsSynced"`
	RecordsFailed  int          `json:"recordsFailed"`
	Results        []KindResult `json:"results"`
	StartedAt      time.Time    `json:"startedAt"`
	CompletedAt    time.Time    `json:"completedAt"`
}

// Orchestrator sequences entity-kind syncs. Kinds are processed sequentially
// because the dependency order is a design invariant; a failure in one kind
// never blocks the kinds after it.
type Orchestrator struct {
	pager    PageLister
	registry *registry.Registry
	records  repository.RecordRepository
	runs     repository.SyncRunRepository
	pageSize int
	lease    time.Duration
	logger   zerolog.Logger
}

// NewOrchestrator wires an orchestrator. pageSize <= 0 selects 100.
func NewOrchestrator(
	pager PageLister,
	reg *registry.Registry,
	records repository.RecordRepository,
	runs repository.SyncRunRepository,
	pageSize int,
	logger zerolog.Logger,
) *Orchestrator {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Orchestrator{
		pager:    pager,
		registry: reg,
		records:  records,
		runs:     runs,
		pageSize: pageSize,
		lease:    defaultRunLease,
		logger:   logger,
	}
}

// Run executes one sync across the requested scope.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (RunSummary, error) {
	if reaped, err := o.runs.ReapStale(ctx, o.lease); err != nil {
		o.logger.Warn().Err(err).Msg("failed to reap stale sync runs")
	} else if reaped > 0 {
		o.logger.Warn().Int64("runs", reaped).Msg("marked stale running sync runs as failed")
	}

	syncType := domain.SyncTypeIncremental
	if !opts.Incremental {
		syncType = domain.SyncTypeFull
	}
	trigger := opts.Trigger
	if trigger == "" {
		trigger = domain.TriggerScheduled
	}

	run := &domain.SyncRun{
		ID:        uuid.New(),
		SyncType:  syncType,
		Direction: "inbound",
		Trigger:   trigger,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := o.runs.Create(ctx, run); err != nil {
		return RunSummary{}, fmt.Errorf("failed to create sync run: %w", err)
	}

	scope := o.scope(opts.Kinds)
	summary := RunSummary{
		RunID:     run.ID,
		SyncType:  syncType,
		StartedAt: run.StartedAt,
	}

	for _, desc := range scope {
		result := o.syncKind(ctx, desc, opts.Incremental)
		summary.Results = append(summary.Results, result)
		summary.RecordsFetched += result.Fetched
		summary.RecordsSynced += result.Synced
		summary.RecordsFailed += result.Failed

		if result.Error != "" {
			run.ErrorDetails = append(run.ErrorDetails, domain.EntityError{
				Entity:  desc.Kind,
				Records: result.Failed,
				Message: result.Error,
			})
		}
	}

	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt
	run.RecordsFetched = summary.RecordsFetched
	run.RecordsCreated = summary.RecordsSynced
	run.RecordsFailed = summary.RecordsFailed
	run.Status = domain.RunStatusCompleted
	if len(run.ErrorDetails) > 0 {
		run.Status = domain.RunStatusCompletedWithErrors
	}

	summary.Status = run.Status
	summary.CompletedAt = completedAt

	if err := o.runs.Complete(ctx, run); err != nil {
		o.logger.Error().Err(err).Stringer("run_id", run.ID).Msg("failed to persist sync run completion")
	}

	metrics.SyncRuns.WithLabelValues(run.Status).Inc()
	metrics.SyncRunDuration.Observe(completedAt.Sub(run.StartedAt).Seconds())

	o.logger.Info().
		Stringer("run_id", run.ID).
		Str("status", run.Status).
		Int("fetched", summary.RecordsFetched).
		Int("synced", summary.RecordsSynced).
		Int("failed", summary.RecordsFailed).
		Msg("sync run finished")

	return summary, nil
}

// scope resolves the requested kinds against the registry's dependency
// order. Unknown kinds were rejected at the HTTP layer; an empty request
// selects everything.
func (o *Orchestrator) scope(kinds []domain.EntityKind) []*registry.Descriptor {
	ordered := o.registry.Ordered()
	if len(kinds) == 0 {
		return ordered
	}

	requested := make(map[domain.EntityKind]bool, len(kinds))
	for _, kind := range kinds {
		requested[kind] = true
	}

	scoped := make([]*registry.Descriptor, 0, len(kinds))
	for _, desc := range ordered {
		if requested[desc.Kind] {
			scoped = append(scoped, desc)
		}
	}
	return scoped
}

func (o *Orchestrator) syncKind(ctx context.Context, desc *registry.Descriptor, incremental bool) KindResult {
	result := KindResult{Entity: desc.Kind}

	if !desc.HasList {
		// No bulk list endpoint; this kind is kept fresh by webhooks only.
		result.Skipped = true
		o.logger.Debug().Str("entity", string(desc.Kind)).Msg("no list endpoint, skipping bulk sync")
		return result
	}

	opts := karbon.QueryOptions{Top: o.pageSize, Expand: desc.Expand}
	if desc.ModifiedField != "" {
		opts.OrderBy = desc.ModifiedField + " asc"
	}

	if incremental && desc.ModifiedField != "" {
		watermark, err := o.records.MaxModifiedAt(ctx, desc)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if watermark != nil {
			// Strictly-after boundary: re-fetching the boundary record is
			// preferred over risking a missed same-instant update, and the
			// upsert is idempotent anyway.
			opts.Filter = fmt.Sprintf("%s gt %s", desc.ModifiedField, watermark.Format(time.RFC3339))
		}
	}

	items, err := o.pager.FetchAll(ctx, desc.Endpoint, opts)
	if err != nil {
		var partial *karbon.PartialError
		if errors.As(err, &partial) {
			result.Partial = true
			result.Error = partial.Error()
			o.logger.Warn().Err(partial.Err).Str("entity", string(desc.Kind)).Int("pages", partial.Pages).
				Msg("continuing with partial page set")
		} else {
			result.Error = err.Error()
			return result
		}
	}

	result.Fetched = len(items)
	if len(items) == 0 {
		return result
	}

	mapped := make([]domain.Record, 0, len(items))
	mapFailures := 0
	for _, item := range items {
		record, mapErr := desc.Map(item)
		if mapErr != nil {
			mapFailures++
			o.logger.Warn().Err(mapErr).Str("entity", string(desc.Kind)).Msg("skipping unmappable source record")
			continue
		}
		mapped = append(mapped, record)
	}

	upsert := o.records.Upsert(ctx, desc, mapped)
	result.Synced = upsert.Synced
	result.Failed = upsert.Failed + mapFailures

	if len(upsert.ErrorDetails) > 0 {
		result.Error = fmt.Sprintf("%d of %d batches failed: %s",
			len(upsert.ErrorDetails),
			(len(mapped)+upsertBatchHint-1)/upsertBatchHint,
			upsert.ErrorDetails[0].Message,
		)
	} else if mapFailures > 0 && result.Error == "" {
		result.Error = fmt.Sprintf("%d records failed to map", mapFailures)
	}

	metrics.RecordsSynced.WithLabelValues(string(desc.Kind)).Add(float64(result.Synced))
	metrics.RecordsFailed.WithLabelValues(string(desc.Kind)).Add(float64(result.Failed))

	return result
}

// upsertBatchHint mirrors the writer's batch size for error summaries.
const upsertBatchHint = 50
