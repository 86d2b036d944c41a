// Package observe provides OpenTelemetry-based observability for the
// memory engine's tiers. It wraps Cache, GraphStore, and SkillStore
// implementations with instrumented decorators that emit traces,
// metrics, and logs — adapted from the teacher's LLM-provider observer
// package, retargeted at cache hit/miss, decay/prune counts, and
// conflict detection instead of token usage and tool execution.
package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	lognoop "go.opentelemetry.io/otel/log/noop"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/oculusnoob/vesper-memory/observe"

// Instruments holds every OTEL instrument the tier decorators use.
type Instruments struct {
	Tracer trace.Tracer
	Logger otellog.Logger

	CacheHits     metric.Int64Counter
	CacheMisses   metric.Int64Counter
	CacheDuration metric.Float64Histogram

	GraphOps      metric.Int64Counter
	GraphDuration metric.Float64Histogram
	RelationsDecayed metric.Int64Counter
	RelationsPruned  metric.Int64Counter
	ConflictsRecorded metric.Int64Counter

	SkillSearches metric.Int64Counter
	SkillDuration metric.Float64Histogram

	RouterClassifications metric.Int64Counter
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP
// exporters, configured via the standard OTEL_EXPORTER_OTLP_* env vars.
// Returns a shutdown function callers must invoke on exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("vesper-memory")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)), sdklog.WithResource(res))
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), lp.Shutdown(ctx))
	}
	return inst, shutdown, nil
}

// NoOp builds Instruments backed by OTEL's explicit no-op providers,
// for deployments that run with Observer.Enabled = false in config.
// Mirrors the teacher's nopLogger/discardWriter convention: callers get
// a real *Instruments they can pass everywhere, just one that never
// emits anything.
func NoOp() *Instruments {
	tracer := tracenoop.NewTracerProvider().Tracer(scopeName)
	meter := metricnoop.NewMeterProvider().Meter(scopeName)
	logger := lognoop.NewLoggerProvider().Logger(scopeName)
	inst, _ := buildInstruments(tracer, meter, logger)
	return inst
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)
	return buildInstruments(tracer, meter, logger)
}

func buildInstruments(tracer trace.Tracer, meter metric.Meter, logger otellog.Logger) (*Instruments, error) {

	cacheHits, err := meter.Int64Counter("cache.hits", metric.WithDescription("C1 working-memory cache hits"))
	if err != nil {
		return nil, err
	}
	cacheMisses, err := meter.Int64Counter("cache.misses", metric.WithDescription("C1 working-memory cache misses"))
	if err != nil {
		return nil, err
	}
	cacheDuration, err := meter.Float64Histogram("cache.duration", metric.WithDescription("C1 operation duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	graphOps, err := meter.Int64Counter("graph.operations", metric.WithDescription("C1 cache and C2 graph store operation count, by tier"))
	if err != nil {
		return nil, err
	}
	graphDuration, err := meter.Float64Histogram("graph.duration", metric.WithDescription("C2 operation duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	relationsDecayed, err := meter.Int64Counter("graph.relationships.decayed", metric.WithDescription("relationships updated by temporal decay"))
	if err != nil {
		return nil, err
	}
	relationsPruned, err := meter.Int64Counter("graph.relationships.pruned", metric.WithDescription("relationships hard-deleted by pruning"))
	if err != nil {
		return nil, err
	}
	conflictsRecorded, err := meter.Int64Counter("graph.conflicts.recorded", metric.WithDescription("conflicts newly recorded (excludes deduped)"))
	if err != nil {
		return nil, err
	}
	skillSearches, err := meter.Int64Counter("skill.searches", metric.WithDescription("C3 skill search invocations"))
	if err != nil {
		return nil, err
	}
	skillDuration, err := meter.Float64Histogram("skill.duration", metric.WithDescription("C3 operation duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	routerClassifications, err := meter.Int64Counter("router.classifications", metric.WithDescription("queries classified, by class"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:                tracer,
		Logger:                logger,
		CacheHits:             cacheHits,
		CacheMisses:           cacheMisses,
		CacheDuration:         cacheDuration,
		GraphOps:              graphOps,
		GraphDuration:         graphDuration,
		RelationsDecayed:      relationsDecayed,
		RelationsPruned:       relationsPruned,
		ConflictsRecorded:     conflictsRecorded,
		SkillSearches:         skillSearches,
		SkillDuration:         skillDuration,
		RouterClassifications: routerClassifications,
	}, nil
}
