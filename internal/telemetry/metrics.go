package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Ingest counters. Instruments are created against the global provider's
// delegating meter, so they pick up the real provider once Init runs and
// stay no-ops otherwise.
var (
	droppedRecords metric.Int64Counter
	pushApplied    metric.Int64Counter
	snapshots      metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/oshiro-ai/hotaru")
	droppedRecords, _ = meter.Int64Counter("hotaru.records.dropped",
		metric.WithDescription("Raw records rejected by the validator, by record type and failing field"))
	pushApplied, _ = meter.Int64Counter("hotaru.push.applied",
		metric.WithDescription("Push-channel emissions upserted into a store"))
	snapshots, _ = meter.Int64Counter("hotaru.snapshots.total",
		metric.WithDescription("Snapshot fetches, by outcome"))
}

// RecordDropped counts records the validator rejected. reason is the failing
// field name, which keeps cardinality bounded.
func RecordDropped(ctx context.Context, recordType, reason string, n int64) {
	if n <= 0 {
		return
	}
	droppedRecords.Add(ctx, n, metric.WithAttributes(
		attribute.String("record", recordType),
		attribute.String("reason", reason),
	))
}

// RecordPushApplied counts one push-derived upsert.
func RecordPushApplied(ctx context.Context) {
	pushApplied.Add(ctx, 1)
}

// RecordSnapshot counts one snapshot fetch with outcome "ok", "error", or
// "stale" (response discarded because a newer request superseded it).
func RecordSnapshot(ctx context.Context, outcome string) {
	snapshots.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
