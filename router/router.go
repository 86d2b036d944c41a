// Package router implements the smart router (C7, §4.7): a strictly
// ordered classification ladder over the inbound query, a C1 fast path,
// and tiered dispatch to C2/C3 with all backing-store failures
// contained per branch.
package router

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/oculusnoob/vesper-memory"
)

// fastPathThreshold is the C1 text-search similarity above which the
// router short-circuits without classifying (§4.7 "Dispatch").
const fastPathThreshold = 0.85

// pprDepth is the traversal depth used for project queries (§4.7);
// factual queries use a direct entity lookup and do not traverse.
const pprDepth = 3

var factualPattern = regexp.MustCompile(`\b(what|who|where)\s+(is|was|are|were)\b`)

type rule struct {
	class      vesper.QueryClass
	confidence float64
	match      func(lower string) bool
}

func contains(words ...string) func(string) bool {
	return func(lower string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
}

// ladder is the strictly-ordered pattern table from §4.7: first match
// wins, specific classes before general ones.
var ladder = []rule{
	{vesper.ClassSkill, 0.85, contains("like before", "same as", "same way", "how you")},
	{vesper.ClassSkill, 0.75, contains("analyze")},
	{vesper.ClassTemporal, 0.95, contains("last week", "last month", "last year", "last time")},
	{vesper.ClassTemporal, 0.90, contains("yesterday", "recently", "earlier")},
	{vesper.ClassTemporal, 0.70, contains("before")},
	{vesper.ClassFactual, 0.95, func(lower string) bool { return factualPattern.MatchString(lower) }},
	{vesper.ClassPreference, 0.90, contains("prefer", "want", "style", "favorite")},
	{vesper.ClassPreference, 0.85, contains("how do i like")},
	{vesper.ClassProject, 0.90, contains("working on", "decided", "decide", "decision")},
	{vesper.ClassProject, 0.85, contains("project", "building", "creating", "developing")},
}

// Classify runs the ordered ladder over query and returns the first
// matching class, or ClassComplex with confidence 0.50 if nothing
// matches (§4.7).
func Classify(query string) vesper.Classification {
	lower := strings.ToLower(strings.TrimSpace(query))
	for _, r := range ladder {
		if r.match(lower) {
			return vesper.Classification{Class: r.class, Confidence: r.confidence}
		}
	}
	return vesper.Classification{Class: vesper.ClassComplex, Confidence: 0.50}
}

// SparseScorer is a pluggable lexical/BM25-style scorer the complex-query
// path fuses with dense results via RRF. The default NoopSparseScorer
// contributes nothing — callers may wire a real implementation later
// (Open Question, §4.7).
type SparseScorer interface {
	Score(ctx context.Context, namespace, query string, k int) ([]vesper.RankedItem, error)
}

// NoopSparseScorer always returns no results.
type NoopSparseScorer struct{}

// Score implements SparseScorer.
func (NoopSparseScorer) Score(ctx context.Context, namespace, query string, k int) ([]vesper.RankedItem, error) {
	return nil, nil
}

var nopLogger = slog.New(slog.NewTextHandler(discardWriter{}, nil))

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Option configures a Router.
type Option func(*Router)

// WithLogger overrides the Router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithSparseScorer overrides the complex-query path's lexical scorer.
func WithSparseScorer(s SparseScorer) Option {
	return func(r *Router) { r.sparse = s }
}

// Router dispatches a query across C1/C2/C3 per §4.7.
type Router struct {
	Cache  vesper.Cache
	Graph  vesper.GraphStore
	Skills vesper.SkillStore

	logger *slog.Logger
	sparse SparseScorer
}

// New builds a Router over the given tiers.
func New(cache vesper.Cache, graph vesper.GraphStore, skills vesper.SkillStore, opts ...Option) *Router {
	r := &Router{Cache: cache, Graph: graph, Skills: skills, logger: nopLogger, sparse: NoopSparseScorer{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route classifies and dispatches query within namespace (§4.7).
func (r *Router) Route(ctx context.Context, namespace, query string, k int) vesper.RouteResult {
	if k <= 0 {
		k = 10
	}

	hits, err := r.Cache.SearchText(ctx, namespace, query, k)
	if err != nil {
		r.logger.Error("router: c1 search failed", "error", err)
		hits = nil
	}
	if len(hits) > 0 && hits[0].Score > fastPathThreshold {
		return vesper.RouteResult{Class: vesper.ClassFactual, FastPath: true, Source: "cache", Conversations: hits}
	}

	cls := Classify(query)
	switch cls.Class {
	case vesper.ClassFactual:
		return r.routeFactual(ctx, namespace, query, cls)
	case vesper.ClassPreference:
		return r.routePreference(ctx, namespace, cls)
	case vesper.ClassProject:
		return r.routeProject(ctx, namespace, query, cls)
	case vesper.ClassTemporal:
		return r.routeTemporal(ctx, namespace, cls)
	case vesper.ClassSkill:
		return r.routeSkill(ctx, namespace, query, k, cls)
	default:
		return r.routeComplex(ctx, namespace, query, k, cls)
	}
}

// entityNameFromQuery is a heuristic extraction of the entity name a
// factual/project query refers to: strip the ladder's own trigger words
// and surrounding question particles, leaving the remainder trimmed.
func entityNameFromQuery(query string) string {
	lower := strings.ToLower(strings.TrimSpace(query))
	lower = factualPattern.ReplaceAllString(lower, "")
	for _, w := range []string{"working on", "decided", "decide", "decision", "project", "building", "creating", "developing"} {
		lower = strings.ReplaceAll(lower, w, "")
	}
	lower = strings.Trim(lower, " ?.!")
	return strings.TrimSpace(lower)
}

func (r *Router) routeFactual(ctx context.Context, namespace, query string, cls vesper.Classification) vesper.RouteResult {
	name := entityNameFromQuery(query)
	if name == "" {
		return vesper.RouteResult{Class: cls.Class, Source: "graph_entity"}
	}
	entity, ok, err := r.Graph.GetEntity(ctx, namespace, name)
	if err != nil {
		r.logger.Error("router: factual lookup failed", "error", err)
		return vesper.RouteResult{Class: cls.Class, Source: "graph_entity"}
	}
	if !ok {
		return vesper.RouteResult{Class: cls.Class, Source: "graph_entity"}
	}
	return vesper.RouteResult{Class: cls.Class, Source: "graph_entity", Entities: []vesper.ScoredEntity{{Entity: entity, Score: cls.Confidence}}}
}

func (r *Router) routePreference(ctx context.Context, namespace string, cls vesper.Classification) vesper.RouteResult {
	facts, err := r.Graph.GetPreferences(ctx, namespace, "")
	if err != nil {
		r.logger.Error("router: preference lookup failed", "error", err)
		return vesper.RouteResult{Class: cls.Class, Source: "graph_preference"}
	}
	scored := make([]vesper.ScoredFact, 0, len(facts))
	for _, f := range facts {
		scored = append(scored, vesper.ScoredFact{Fact: f, Score: f.Confidence})
	}
	return vesper.RouteResult{Class: cls.Class, Source: "graph_preference", Facts: scored}
}

func (r *Router) routeProject(ctx context.Context, namespace, query string, cls vesper.Classification) vesper.RouteResult {
	name := entityNameFromQuery(query)
	if name == "" {
		return vesper.RouteResult{Class: cls.Class, Source: "graph_ppr"}
	}
	entity, ok, err := r.Graph.GetEntity(ctx, namespace, name)
	if err != nil || !ok {
		if err != nil {
			r.logger.Error("router: project entity lookup failed", "error", err)
		}
		return vesper.RouteResult{Class: cls.Class, Source: "graph_ppr"}
	}
	result, err := r.Graph.PersonalizedPageRankWithFacts(ctx, namespace, entity.ID, pprDepth)
	if err != nil {
		r.logger.Error("router: ppr failed", "error", err)
		return vesper.RouteResult{Class: cls.Class, Source: "graph_ppr"}
	}
	return vesper.RouteResult{Class: cls.Class, Source: "graph_ppr", Entities: result.Entities, Facts: result.Facts, Chains: result.Chains}
}

func (r *Router) routeTemporal(ctx context.Context, namespace string, cls vesper.Classification) vesper.RouteResult {
	facts, err := r.Graph.GetByTimeRange(ctx, namespace, nil, nil)
	if err != nil {
		r.logger.Error("router: temporal lookup failed", "error", err)
		return vesper.RouteResult{Class: cls.Class, Source: "graph_time_range"}
	}
	scored := make([]vesper.ScoredFact, 0, len(facts))
	for _, f := range facts {
		scored = append(scored, vesper.ScoredFact{Fact: f, Score: f.Confidence})
	}
	return vesper.RouteResult{Class: cls.Class, Source: "graph_time_range", Facts: scored}
}

func (r *Router) routeSkill(ctx context.Context, namespace, query string, k int, cls vesper.Classification) vesper.RouteResult {
	skills, err := r.Skills.HybridSearch(ctx, namespace, query, nil, k)
	if err != nil {
		r.logger.Error("router: skill hybrid search failed", "error", err)
		return vesper.RouteResult{Class: cls.Class, Source: "skill_hybrid"}
	}
	return vesper.RouteResult{Class: cls.Class, Source: "skill_hybrid", Skills: skills}
}

// routeComplex fuses dense (C2 entity lookup + C3 hybrid search) and
// sparse rankings via the same RRF scheme used in §4.3.
func (r *Router) routeComplex(ctx context.Context, namespace, query string, k int, cls vesper.Classification) vesper.RouteResult {
	var denseRanked, sparseRanked []vesper.RankedItem

	skills, err := r.Skills.HybridSearch(ctx, namespace, query, nil, k)
	if err != nil {
		r.logger.Error("router: complex skill search failed", "error", err)
	}
	skillByID := make(map[string]vesper.ScoredSkill, len(skills))
	for i, sk := range skills {
		skillByID[sk.ID] = sk
		denseRanked = append(denseRanked, vesper.RankedItem{Key: sk.ID, Rank: i + 1})
	}

	name := entityNameFromQuery(query)
	var entity vesper.Entity
	var haveEntity bool
	if name != "" {
		e, ok, err := r.Graph.GetEntity(ctx, namespace, name)
		if err != nil {
			r.logger.Error("router: complex entity lookup failed", "error", err)
		} else if ok {
			entity = e
			haveEntity = true
			denseRanked = append(denseRanked, vesper.RankedItem{Key: e.ID, Rank: len(denseRanked) + 1})
		}
	}

	sparseItems, err := r.sparse.Score(ctx, namespace, query, k)
	if err != nil {
		r.logger.Error("router: sparse scorer failed", "error", err)
	} else {
		sparseRanked = sparseItems
	}

	fused := vesper.FuseRankings(denseRanked, sparseRanked)

	result := vesper.RouteResult{Class: cls.Class, Source: "complex_rrf"}
	for _, id := range fused {
		if sk, ok := skillByID[id]; ok {
			result.Skills = append(result.Skills, sk)
		}
		if haveEntity && id == entity.ID {
			result.Entities = append(result.Entities, vesper.ScoredEntity{Entity: entity, Score: cls.Confidence})
		}
	}
	return result
}
