package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/oculusnoob/vesper-memory"
)

// ObservedGraphStore wraps a vesper.GraphStore with OTEL instrumentation,
// additionally counting relationships decayed/pruned and conflicts newly
// recorded — the three consolidation-pipeline outcomes worth tracking
// independently of generic per-call latency.
type ObservedGraphStore struct {
	inner vesper.GraphStore
	inst  *Instruments
}

// WrapGraphStore returns an instrumented GraphStore.
func WrapGraphStore(inner vesper.GraphStore, inst *Instruments) *ObservedGraphStore {
	return &ObservedGraphStore{inner: inner, inst: inst}
}

var _ vesper.GraphStore = (*ObservedGraphStore)(nil)

func (o *ObservedGraphStore) span(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := o.inst.Tracer.Start(ctx, "graph."+op, trace.WithAttributes(attribute.String("op", op)))
	return ctx, span, time.Now()
}

func (o *ObservedGraphStore) finish(ctx context.Context, span trace.Span, start time.Time, op string, err error) {
	durationMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	o.inst.GraphOps.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	o.inst.GraphDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("op", op)))
}

func (o *ObservedGraphStore) UpsertEntity(ctx context.Context, namespace, name string, typ vesper.EntityType, description string) (vesper.Entity, error) {
	ctx, span, start := o.span(ctx, "upsert_entity")
	e, err := o.inner.UpsertEntity(ctx, namespace, name, typ, description)
	o.finish(ctx, span, start, "upsert_entity", err)
	return e, err
}

func (o *ObservedGraphStore) GetEntity(ctx context.Context, namespace, name string) (vesper.Entity, bool, error) {
	ctx, span, start := o.span(ctx, "get_entity")
	e, ok, err := o.inner.GetEntity(ctx, namespace, name)
	o.finish(ctx, span, start, "get_entity", err)
	return e, ok, err
}

func (o *ObservedGraphStore) GetEntityByID(ctx context.Context, namespace, id string) (vesper.Entity, bool, error) {
	ctx, span, start := o.span(ctx, "get_entity_by_id")
	e, ok, err := o.inner.GetEntityByID(ctx, namespace, id)
	o.finish(ctx, span, start, "get_entity_by_id", err)
	return e, ok, err
}

func (o *ObservedGraphStore) ArchiveEntity(ctx context.Context, namespace, id string) error {
	ctx, span, start := o.span(ctx, "archive_entity")
	err := o.inner.ArchiveEntity(ctx, namespace, id)
	o.finish(ctx, span, start, "archive_entity", err)
	return err
}

func (o *ObservedGraphStore) DeleteEntity(ctx context.Context, namespace, id string) error {
	ctx, span, start := o.span(ctx, "delete_entity")
	err := o.inner.DeleteEntity(ctx, namespace, id)
	o.finish(ctx, span, start, "delete_entity", err)
	return err
}

func (o *ObservedGraphStore) UpsertRelationship(ctx context.Context, namespace string, rel vesper.Relationship) (vesper.Relationship, error) {
	ctx, span, start := o.span(ctx, "upsert_relationship")
	r, err := o.inner.UpsertRelationship(ctx, namespace, rel)
	o.finish(ctx, span, start, "upsert_relationship", err)
	return r, err
}

func (o *ObservedGraphStore) GetRelationships(ctx context.Context, namespace, entityID string) ([]vesper.Relationship, error) {
	ctx, span, start := o.span(ctx, "get_relationships")
	rels, err := o.inner.GetRelationships(ctx, namespace, entityID)
	o.finish(ctx, span, start, "get_relationships", err)
	return rels, err
}

func (o *ObservedGraphStore) ApplyTemporalDecay(ctx context.Context, namespace string) (int, error) {
	ctx, span, start := o.span(ctx, "apply_temporal_decay")
	n, err := o.inner.ApplyTemporalDecay(ctx, namespace)
	o.finish(ctx, span, start, "apply_temporal_decay", err)
	if err == nil {
		o.inst.RelationsDecayed.Add(ctx, int64(n))
	}
	return n, err
}

func (o *ObservedGraphStore) PruneRelationships(ctx context.Context, namespace string, minStrength float64, minAccessCount int64) (int, error) {
	ctx, span, start := o.span(ctx, "prune_relationships")
	n, err := o.inner.PruneRelationships(ctx, namespace, minStrength, minAccessCount)
	o.finish(ctx, span, start, "prune_relationships", err)
	if err == nil {
		o.inst.RelationsPruned.Add(ctx, int64(n))
	}
	return n, err
}

func (o *ObservedGraphStore) UpsertFact(ctx context.Context, namespace string, fact vesper.Fact) (vesper.Fact, error) {
	ctx, span, start := o.span(ctx, "upsert_fact")
	f, err := o.inner.UpsertFact(ctx, namespace, fact)
	o.finish(ctx, span, start, "upsert_fact", err)
	return f, err
}

func (o *ObservedGraphStore) GetFactsForEntity(ctx context.Context, namespace, entityID string, onlyActive bool) ([]vesper.Fact, error) {
	ctx, span, start := o.span(ctx, "get_facts_for_entity")
	facts, err := o.inner.GetFactsForEntity(ctx, namespace, entityID, onlyActive)
	o.finish(ctx, span, start, "get_facts_for_entity", err)
	return facts, err
}

func (o *ObservedGraphStore) GetFactByID(ctx context.Context, namespace, id string) (vesper.Fact, bool, error) {
	ctx, span, start := o.span(ctx, "get_fact_by_id")
	f, ok, err := o.inner.GetFactByID(ctx, namespace, id)
	o.finish(ctx, span, start, "get_fact_by_id", err)
	return f, ok, err
}

func (o *ObservedGraphStore) CloseFact(ctx context.Context, namespace, factID string, validUntil int64) error {
	ctx, span, start := o.span(ctx, "close_fact")
	err := o.inner.CloseFact(ctx, namespace, factID, validUntil)
	o.finish(ctx, span, start, "close_fact", err)
	return err
}

func (o *ObservedGraphStore) SetFactConfidence(ctx context.Context, namespace, factID string, confidence float64) error {
	ctx, span, start := o.span(ctx, "set_fact_confidence")
	err := o.inner.SetFactConfidence(ctx, namespace, factID, confidence)
	o.finish(ctx, span, start, "set_fact_confidence", err)
	return err
}

func (o *ObservedGraphStore) GetByTimeRange(ctx context.Context, namespace string, start_, end *int64) ([]vesper.Fact, error) {
	ctx, span, start := o.span(ctx, "get_by_time_range")
	facts, err := o.inner.GetByTimeRange(ctx, namespace, start_, end)
	o.finish(ctx, span, start, "get_by_time_range", err)
	return facts, err
}

func (o *ObservedGraphStore) GetPreferences(ctx context.Context, namespace, domain string) ([]vesper.Fact, error) {
	ctx, span, start := o.span(ctx, "get_preferences")
	facts, err := o.inner.GetPreferences(ctx, namespace, domain)
	o.finish(ctx, span, start, "get_preferences", err)
	return facts, err
}

func (o *ObservedGraphStore) RecordConflict(ctx context.Context, namespace string, c vesper.Conflict) (bool, error) {
	ctx, span, start := o.span(ctx, "record_conflict")
	recorded, err := o.inner.RecordConflict(ctx, namespace, c)
	o.finish(ctx, span, start, "record_conflict", err)
	if err == nil && recorded {
		o.inst.ConflictsRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("conflict_kind", string(c.Kind))))
	}
	return recorded, err
}

func (o *ObservedGraphStore) ListConflicts(ctx context.Context, namespace string, status vesper.ConflictStatus) ([]vesper.Conflict, error) {
	ctx, span, start := o.span(ctx, "list_conflicts")
	conflicts, err := o.inner.ListConflicts(ctx, namespace, status)
	o.finish(ctx, span, start, "list_conflicts", err)
	return conflicts, err
}

func (o *ObservedGraphStore) ResolveConflict(ctx context.Context, namespace, conflictID string, status vesper.ConflictStatus, userResolution string) error {
	ctx, span, start := o.span(ctx, "resolve_conflict")
	err := o.inner.ResolveConflict(ctx, namespace, conflictID, status, userResolution)
	o.finish(ctx, span, start, "resolve_conflict", err)
	return err
}

func (o *ObservedGraphStore) PersonalizedPageRank(ctx context.Context, namespace, entityID string, depth int) (vesper.PPRResult, error) {
	ctx, span, start := o.span(ctx, "personalized_page_rank")
	r, err := o.inner.PersonalizedPageRank(ctx, namespace, entityID, depth)
	o.finish(ctx, span, start, "personalized_page_rank", err)
	return r, err
}

func (o *ObservedGraphStore) PersonalizedPageRankWithFacts(ctx context.Context, namespace, entityID string, depth int) (vesper.PPRFactResult, error) {
	ctx, span, start := o.span(ctx, "personalized_page_rank_with_facts")
	r, err := o.inner.PersonalizedPageRankWithFacts(ctx, namespace, entityID, depth)
	o.finish(ctx, span, start, "personalized_page_rank_with_facts", err)
	return r, err
}

func (o *ObservedGraphStore) RecordBackup(ctx context.Context, namespace string, meta vesper.BackupMetadata) error {
	ctx, span, start := o.span(ctx, "record_backup")
	err := o.inner.RecordBackup(ctx, namespace, meta)
	o.finish(ctx, span, start, "record_backup", err)
	return err
}

func (o *ObservedGraphStore) Init(ctx context.Context) error { return o.inner.Init(ctx) }
func (o *ObservedGraphStore) Close() error                   { return o.inner.Close() }
