package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics. Registered against the default registry and exposed on
// /metrics by cmd/server.
var (
	SourceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "karbonsync",
		Name:      "source_api_requests_total",
		Help:      "Requests to the source API by response status class.",
	}, []string{"status_class"})

	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "karbonsync",
		Name:      "sync_runs_total",
		Help:      "Completed sync runs by terminal status.",
	}, []string{"status"})

	SyncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "karbonsync",
		Name:      "sync_run_duration_seconds",
		Help:      "Wall-clock duration of sync runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	RecordsSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "karbonsync",
		Name:      "records_synced_total",
		Help:      "Records upserted per entity kind.",
	}, []string{"entity"})

	RecordsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "karbonsync",
		Name:      "records_failed_total",
		Help:      "Records that failed to map or upsert per entity kind.",
	}, []string{"entity"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "karbonsync",
		Name:      "webhook_deliveries_total",
		Help:      "Inbound webhook deliveries by outcome.",
	}, []string{"outcome"})
)
