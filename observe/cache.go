package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/oculusnoob/vesper-memory"
)

// ObservedCache wraps a vesper.Cache with OTEL instrumentation: every
// search records a hit/miss counter based on whether it returned any
// results, and every operation's latency feeds the cache duration
// histogram.
type ObservedCache struct {
	inner vesper.Cache
	inst  *Instruments
}

// WrapCache returns an instrumented Cache.
func WrapCache(inner vesper.Cache, inst *Instruments) *ObservedCache {
	return &ObservedCache{inner: inner, inst: inst}
}

var _ vesper.Cache = (*ObservedCache)(nil)

func (o *ObservedCache) span(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := o.inst.Tracer.Start(ctx, "cache."+op, trace.WithAttributes(attribute.String("op", op)))
	return ctx, span, time.Now()
}

func (o *ObservedCache) finish(ctx context.Context, span trace.Span, start time.Time, op string, err error) {
	durationMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	o.inst.GraphOps.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", "cache"), attribute.String("op", op)))
	o.inst.CacheDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("op", op)))
}

func (o *ObservedCache) recordSearch(ctx context.Context, op string, hits int) {
	if hits > 0 {
		o.inst.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	} else {
		o.inst.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityDebug)
	rec.SetBody(otellog.StringValue("cache search"))
	rec.AddAttributes(otellog.String("op", op), otellog.Int("hits", hits))
	o.inst.Logger.Emit(ctx, rec)
}

func (o *ObservedCache) Put(ctx context.Context, namespace string, conv vesper.Conversation) error {
	ctx, span, start := o.span(ctx, "put")
	err := o.inner.Put(ctx, namespace, conv)
	o.finish(ctx, span, start, "put", err)
	return err
}

func (o *ObservedCache) Get(ctx context.Context, namespace, id string) (vesper.Conversation, bool, error) {
	ctx, span, start := o.span(ctx, "get")
	conv, ok, err := o.inner.Get(ctx, namespace, id)
	o.finish(ctx, span, start, "get", err)
	return conv, ok, err
}

func (o *ObservedCache) ListRecent(ctx context.Context, namespace string, limit int) ([]vesper.Conversation, error) {
	ctx, span, start := o.span(ctx, "list_recent")
	convs, err := o.inner.ListRecent(ctx, namespace, limit)
	o.finish(ctx, span, start, "list_recent", err)
	return convs, err
}

func (o *ObservedCache) SearchText(ctx context.Context, namespace, q string, k int) ([]vesper.ScoredConversation, error) {
	ctx, span, start := o.span(ctx, "search_text")
	results, err := o.inner.SearchText(ctx, namespace, q, k)
	o.finish(ctx, span, start, "search_text", err)
	if err == nil {
		o.recordSearch(ctx, "search_text", len(results))
	}
	return results, err
}

func (o *ObservedCache) SearchEntities(ctx context.Context, namespace string, entities []string, k int) ([]vesper.ScoredConversation, error) {
	ctx, span, start := o.span(ctx, "search_entities")
	results, err := o.inner.SearchEntities(ctx, namespace, entities, k)
	o.finish(ctx, span, start, "search_entities", err)
	if err == nil {
		o.recordSearch(ctx, "search_entities", len(results))
	}
	return results, err
}

func (o *ObservedCache) SearchTopics(ctx context.Context, namespace string, topics []string, k int) ([]vesper.ScoredConversation, error) {
	ctx, span, start := o.span(ctx, "search_topics")
	results, err := o.inner.SearchTopics(ctx, namespace, topics, k)
	o.finish(ctx, span, start, "search_topics", err)
	if err == nil {
		o.recordSearch(ctx, "search_topics", len(results))
	}
	return results, err
}

func (o *ObservedCache) Delete(ctx context.Context, namespace, id string) error {
	ctx, span, start := o.span(ctx, "delete")
	err := o.inner.Delete(ctx, namespace, id)
	o.finish(ctx, span, start, "delete", err)
	return err
}

func (o *ObservedCache) Stats(ctx context.Context, namespace string) (vesper.CacheStats, error) {
	ctx, span, start := o.span(ctx, "stats")
	stats, err := o.inner.Stats(ctx, namespace)
	o.finish(ctx, span, start, "stats", err)
	return stats, err
}

func (o *ObservedCache) Clear(ctx context.Context, namespace string) error {
	ctx, span, start := o.span(ctx, "clear")
	err := o.inner.Clear(ctx, namespace)
	o.finish(ctx, span, start, "clear", err)
	return err
}

func (o *ObservedCache) PutSkillCache(ctx context.Context, namespace string, skill vesper.FullSkill) error {
	ctx, span, start := o.span(ctx, "put_skill_cache")
	err := o.inner.PutSkillCache(ctx, namespace, skill)
	o.finish(ctx, span, start, "put_skill_cache", err)
	return err
}

func (o *ObservedCache) GetSkillCache(ctx context.Context, namespace, skillID string) (vesper.FullSkill, bool, error) {
	ctx, span, start := o.span(ctx, "get_skill_cache")
	skill, ok, err := o.inner.GetSkillCache(ctx, namespace, skillID)
	o.finish(ctx, span, start, "get_skill_cache", err)
	if err == nil {
		if ok {
			o.recordSearch(ctx, "get_skill_cache", 1)
		} else {
			o.recordSearch(ctx, "get_skill_cache", 0)
		}
	}
	return skill, ok, err
}

func (o *ObservedCache) Init(ctx context.Context) error { return o.inner.Init(ctx) }
func (o *ObservedCache) Close() error                   { return o.inner.Close() }
