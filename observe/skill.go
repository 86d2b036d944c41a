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

// ObservedSkillStore wraps a vesper.SkillStore with OTEL instrumentation.
// Search methods additionally increment SkillSearches so the proportion
// of trigger/embedding/hybrid lookups is visible independent of raw
// operation counts.
type ObservedSkillStore struct {
	inner vesper.SkillStore
	inst  *Instruments
}

// WrapSkillStore returns an instrumented SkillStore.
func WrapSkillStore(inner vesper.SkillStore, inst *Instruments) *ObservedSkillStore {
	return &ObservedSkillStore{inner: inner, inst: inst}
}

var _ vesper.SkillStore = (*ObservedSkillStore)(nil)

func (o *ObservedSkillStore) span(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := o.inst.Tracer.Start(ctx, "skill."+op, trace.WithAttributes(attribute.String("op", op)))
	return ctx, span, time.Now()
}

func (o *ObservedSkillStore) finish(ctx context.Context, span trace.Span, start time.Time, op string, err error) {
	durationMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	o.inst.SkillDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("op", op)))
}

func (o *ObservedSkillStore) recordSearch(ctx context.Context, op string) {
	o.inst.SkillSearches.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (o *ObservedSkillStore) AddSkill(ctx context.Context, namespace string, skill vesper.FullSkill) (vesper.FullSkill, error) {
	ctx, span, start := o.span(ctx, "add_skill")
	s, err := o.inner.AddSkill(ctx, namespace, skill)
	o.finish(ctx, span, start, "add_skill", err)
	return s, err
}

func (o *ObservedSkillStore) AddSkillWithEmbedding(ctx context.Context, namespace string, skill vesper.FullSkill, embedding []float32) (vesper.FullSkill, error) {
	ctx, span, start := o.span(ctx, "add_skill_with_embedding")
	s, err := o.inner.AddSkillWithEmbedding(ctx, namespace, skill, embedding)
	o.finish(ctx, span, start, "add_skill_with_embedding", err)
	return s, err
}

func (o *ObservedSkillStore) GetSkill(ctx context.Context, namespace, skillID string) (vesper.FullSkill, bool, error) {
	ctx, span, start := o.span(ctx, "get_skill")
	s, ok, err := o.inner.GetSkill(ctx, namespace, skillID)
	o.finish(ctx, span, start, "get_skill", err)
	return s, ok, err
}

func (o *ObservedSkillStore) LoadFull(ctx context.Context, namespace, skillID string) (vesper.FullSkill, bool, error) {
	ctx, span, start := o.span(ctx, "load_full")
	s, ok, err := o.inner.LoadFull(ctx, namespace, skillID)
	o.finish(ctx, span, start, "load_full", err)
	return s, ok, err
}

func (o *ObservedSkillStore) DeleteSkill(ctx context.Context, namespace, skillID string) error {
	ctx, span, start := o.span(ctx, "delete_skill")
	err := o.inner.DeleteSkill(ctx, namespace, skillID)
	o.finish(ctx, span, start, "delete_skill", err)
	return err
}

func (o *ObservedSkillStore) SearchByTrigger(ctx context.Context, namespace, q string, k int) ([]vesper.ScoredSkill, error) {
	ctx, span, start := o.span(ctx, "search_by_trigger")
	results, err := o.inner.SearchByTrigger(ctx, namespace, q, k)
	o.finish(ctx, span, start, "search_by_trigger", err)
	if err == nil {
		o.recordSearch(ctx, "search_by_trigger")
	}
	return results, err
}

func (o *ObservedSkillStore) SearchByEmbedding(ctx context.Context, namespace string, queryEmbedding []float32, k int) ([]vesper.ScoredSkill, error) {
	ctx, span, start := o.span(ctx, "search_by_embedding")
	results, err := o.inner.SearchByEmbedding(ctx, namespace, queryEmbedding, k)
	o.finish(ctx, span, start, "search_by_embedding", err)
	if err == nil {
		o.recordSearch(ctx, "search_by_embedding")
	}
	return results, err
}

func (o *ObservedSkillStore) HybridSearch(ctx context.Context, namespace, q string, queryEmbedding []float32, k int) ([]vesper.ScoredSkill, error) {
	ctx, span, start := o.span(ctx, "hybrid_search")
	results, err := o.inner.HybridSearch(ctx, namespace, q, queryEmbedding, k)
	o.finish(ctx, span, start, "hybrid_search", err)
	if err == nil {
		o.recordSearch(ctx, "hybrid_search")
	}
	return results, err
}

func (o *ObservedSkillStore) AnalogicalSearch(ctx context.Context, namespace, sourceSkillID, relA, relB string, k int) ([]vesper.ScoredSkill, error) {
	ctx, span, start := o.span(ctx, "analogical_search")
	results, err := o.inner.AnalogicalSearch(ctx, namespace, sourceSkillID, relA, relB, k)
	o.finish(ctx, span, start, "analogical_search", err)
	if err == nil {
		o.recordSearch(ctx, "analogical_search")
	}
	return results, err
}

func (o *ObservedSkillStore) GetSummaries(ctx context.Context, namespace string, limit int) ([]vesper.SkillSummary, error) {
	ctx, span, start := o.span(ctx, "get_summaries")
	summaries, err := o.inner.GetSummaries(ctx, namespace, limit)
	o.finish(ctx, span, start, "get_summaries", err)
	return summaries, err
}

func (o *ObservedSkillStore) DetectInvocation(ctx context.Context, namespace, text string) ([]vesper.InvocationMatch, error) {
	ctx, span, start := o.span(ctx, "detect_invocation")
	matches, err := o.inner.DetectInvocation(ctx, namespace, text)
	o.finish(ctx, span, start, "detect_invocation", err)
	return matches, err
}

func (o *ObservedSkillStore) RecordSuccess(ctx context.Context, namespace, skillID string) error {
	ctx, span, start := o.span(ctx, "record_success")
	err := o.inner.RecordSuccess(ctx, namespace, skillID)
	o.finish(ctx, span, start, "record_success", err)
	return err
}

func (o *ObservedSkillStore) RecordFailure(ctx context.Context, namespace, skillID string) error {
	ctx, span, start := o.span(ctx, "record_failure")
	err := o.inner.RecordFailure(ctx, namespace, skillID)
	o.finish(ctx, span, start, "record_failure", err)
	return err
}

func (o *ObservedSkillStore) RecordCoOccurrence(ctx context.Context, namespace, skillA, skillB string) error {
	ctx, span, start := o.span(ctx, "record_co_occurrence")
	err := o.inner.RecordCoOccurrence(ctx, namespace, skillA, skillB)
	o.finish(ctx, span, start, "record_co_occurrence", err)
	return err
}

func (o *ObservedSkillStore) GetCoOccurring(ctx context.Context, namespace, skillID string, limit int) ([]vesper.SkillRelationship, error) {
	ctx, span, start := o.span(ctx, "get_co_occurring")
	rels, err := o.inner.GetCoOccurring(ctx, namespace, skillID, limit)
	o.finish(ctx, span, start, "get_co_occurring", err)
	return rels, err
}

func (o *ObservedSkillStore) ComputeRelationalVectors(ctx context.Context, namespace string, minCount int) (int, error) {
	ctx, span, start := o.span(ctx, "compute_relational_vectors")
	n, err := o.inner.ComputeRelationalVectors(ctx, namespace, minCount)
	o.finish(ctx, span, start, "compute_relational_vectors", err)
	return n, err
}

func (o *ObservedSkillStore) Init(ctx context.Context) error { return o.inner.Init(ctx) }
func (o *ObservedSkillStore) Close() error                   { return o.inner.Close() }
