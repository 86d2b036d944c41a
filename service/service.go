// Package service implements the tool surface (C11, §6): the boundary
// between an external agent/transport and the memory engine's tiers.
// Every operation validates its input (package validate), checks the
// caller's rate-limit quota (package ratelimit) where §4.8 defines one,
// and degrades to a structured {success:false, error} result rather
// than propagating a typed error to the transport.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oculusnoob/vesper-memory"
	"github.com/oculusnoob/vesper-memory/consolidation"
	"github.com/oculusnoob/vesper-memory/observe"
	"github.com/oculusnoob/vesper-memory/ratelimit"
	"github.com/oculusnoob/vesper-memory/router"
	"github.com/oculusnoob/vesper-memory/validate"
)

var nopLogger = slog.New(slog.NewTextHandler(discardWriter{}, nil))

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the Service's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithInstruments wires OTEL instrumentation (C10) into router
// classification recording. Defaults to observe.NoOp().
func WithInstruments(inst *observe.Instruments) Option {
	return func(s *Service) { s.inst = inst }
}

// Service is the tool-surface entry point: one method per row of the
// operation table in §6.
type Service struct {
	Cache    vesper.Cache
	Graph    vesper.GraphStore
	Skills   vesper.SkillStore
	Embedder vesper.Embedder
	Router   *router.Router
	Limiter  *ratelimit.Limiter
	Pipeline *consolidation.Pipeline

	logger *slog.Logger
	inst   *observe.Instruments

	mu         sync.Mutex
	enabled    bool
	namespaces map[string]bool
}

// New builds a Service over the given tiers. enabled starts true — the
// teacher's pass-through-check pattern is a kill switch, not an opt-in
// (§6 "vesper_enable/vesper_disable/vesper_status").
func New(cache vesper.Cache, graph vesper.GraphStore, skills vesper.SkillStore, embedder vesper.Embedder, rtr *router.Router, limiter *ratelimit.Limiter, pipeline *consolidation.Pipeline, opts ...Option) *Service {
	s := &Service{
		Cache:      cache,
		Graph:      graph,
		Skills:     skills,
		Embedder:   embedder,
		Router:     rtr,
		Limiter:    limiter,
		Pipeline:   pipeline,
		logger:     nopLogger,
		inst:       observe.NoOp(),
		enabled:    true,
		namespaces: map[string]bool{vesper.DefaultNamespace: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) touchNamespace(ns string) {
	s.mu.Lock()
	s.namespaces[ns] = true
	s.mu.Unlock()
}

func (s *Service) isEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func namespaceOrDefault(ns string) string { return vesper.NormalizeNamespace(ns) }

func tierOrDefault(t string) ratelimit.Tier {
	switch ratelimit.Tier(t) {
	case ratelimit.TierPremium:
		return ratelimit.TierPremium
	case ratelimit.TierUnlimited:
		return ratelimit.TierUnlimited
	default:
		return ratelimit.TierStandard
	}
}

// withTimeout applies vesper.DefaultTimeout to ctx when the caller
// supplied no deadline of their own (§5). The returned cancel must
// always be called by the caller.
func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, vesper.DefaultTimeout)
}

// checkRateLimit enforces quota for userID/tier/op, returning the
// limiter's error unchanged on denial. Callers translate the error into
// their response's Error field.
func (s *Service) checkRateLimit(ctx context.Context, namespace, userID, tier string, op ratelimit.Operation) error {
	if s.Limiter == nil {
		return nil
	}
	_, err := s.Limiter.Allow(ctx, namespace, userID, tierOrDefault(tier), op)
	return err
}

// --- store_memory / store_decision -----------------------------------

// StoreMemory writes content to C1 (§6 "store_memory"). The conversation
// stays in the cache's recency index until the next consolidation
// cycle drains it — there is no separate ingest queue: C1's recency
// index (Cache.ListRecent) *is* the pending-ingest queue consolidation
// reads in step 1.
func (s *Service) StoreMemory(ctx context.Context, req StoreMemoryRequest) StoreMemoryResponse {
	if !s.isEnabled() {
		return StoreMemoryResponse{Success: false, Error: "vesper is disabled"}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ns := namespaceOrDefault(req.Namespace)
	if err := validate.Namespace(ns); err != nil {
		return StoreMemoryResponse{Success: false, Error: err.Error()}
	}
	if err := validate.Content(req.Content); err != nil {
		return StoreMemoryResponse{Success: false, Error: err.Error()}
	}
	if err := validate.MemoryTypeValue(req.MemoryType); err != nil {
		return StoreMemoryResponse{Success: false, Error: err.Error()}
	}
	if err := validate.Metadata(req.Metadata); err != nil {
		return StoreMemoryResponse{Success: false, Error: err.Error()}
	}
	if err := s.checkRateLimit(ctx, ns, req.UserID, req.Tier, ratelimit.OpStore); err != nil {
		return StoreMemoryResponse{Success: false, Error: err.Error()}
	}

	conv := vesper.Conversation{
		ConversationID: vesper.NewID(),
		Timestamp:      vesper.NowUnix(),
		FullText:       req.Content,
		Namespace:      ns,
		MemoryType:     req.MemoryType,
		Metadata:       req.Metadata,
	}
	if s.Embedder != nil {
		if vec, err := s.Embedder.Embed(ctx, req.Content); err != nil {
			s.logger.Warn("store_memory: embed failed, storing without vector", "error", err)
		} else {
			conv.Embedding = vesper.EncodeEmbedding(vec)
		}
	}
	if err := s.Cache.Put(ctx, ns, conv); err != nil {
		s.logger.Error("store_memory: cache put failed", "error", err)
		return StoreMemoryResponse{Success: false, Error: err.Error()}
	}
	s.touchNamespace(ns)
	return StoreMemoryResponse{Success: true, MemoryID: conv.ConversationID}
}

// StoreDecision is store_memory with MemoryType fixed to "decision" and
// a quarter decay factor recorded in metadata under "decay_factor" (§6
// "store_decision"). No consolidation step reads that key.
func (s *Service) StoreDecision(ctx context.Context, req StoreDecisionRequest) StoreMemoryResponse {
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["decay_factor"] = 0.25
	if req.Supersedes != "" {
		metadata["supersedes"] = req.Supersedes
	}
	return s.StoreMemory(ctx, StoreMemoryRequest{
		UserID:     req.UserID,
		Tier:       req.Tier,
		Content:    req.Content,
		MemoryType: string(validate.MemoryDecision),
		Metadata:   metadata,
		Namespace:  req.Namespace,
		AgentID:    req.AgentID,
		AgentRole:  req.AgentRole,
		TaskID:     req.TaskID,
	})
}

// --- retrieve_memory --------------------------------------------------

// RetrieveMemory dispatches query through the smart router and
// flattens every tier's results into one similarity-scored list (§6
// "retrieve_memory", §4.7).
func (s *Service) RetrieveMemory(ctx context.Context, req RetrieveMemoryRequest) RetrieveMemoryResponse {
	if !s.isEnabled() {
		return RetrieveMemoryResponse{Success: false, Error: "vesper is disabled"}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ns := namespaceOrDefault(req.Namespace)
	if err := validate.Namespace(ns); err != nil {
		return RetrieveMemoryResponse{Success: false, Error: err.Error()}
	}
	if err := validate.Query(req.Query); err != nil {
		return RetrieveMemoryResponse{Success: false, Error: err.Error()}
	}
	maxResults := req.MaxResults
	if maxResults == 0 {
		maxResults = 10
	}
	if err := validate.MaxResults(maxResults); err != nil {
		return RetrieveMemoryResponse{Success: false, Error: err.Error()}
	}
	if err := s.checkRateLimit(ctx, ns, req.UserID, req.Tier, ratelimit.OpRetrieve); err != nil {
		return RetrieveMemoryResponse{Success: false, Error: err.Error()}
	}

	result := s.Router.Route(ctx, ns, req.Query, maxResults)
	observe.RecordClassification(ctx, s.inst, result.Class)

	items := make([]RetrievedItem, 0, len(result.Conversations)+len(result.Entities)+len(result.Facts)+len(result.Skills))
	for _, c := range result.Conversations {
		items = append(items, RetrievedItem{Content: c.FullText, SimilarityScore: float64(c.Score), Source: "cache"})
	}
	for _, e := range result.Entities {
		items = append(items, RetrievedItem{Content: fmt.Sprintf("%s: %s", e.Name, e.Description), SimilarityScore: e.Score, Source: "graph"})
	}
	for _, f := range result.Facts {
		items = append(items, RetrievedItem{Content: fmt.Sprintf("%s = %s", f.Property, f.Value), SimilarityScore: f.Score, Source: "graph"})
	}
	for _, sk := range result.Skills {
		items = append(items, RetrievedItem{Content: sk.Summary, SimilarityScore: sk.Score, Source: "skill"})
	}
	return RetrieveMemoryResponse{Success: true, Results: items}
}

// --- list_recent / get_stats ------------------------------------------

// ListRecent returns up to limit conversations from C1 only (§6).
func (s *Service) ListRecent(ctx context.Context, req ListRecentRequest) ListRecentResponse {
	if !s.isEnabled() {
		return ListRecentResponse{Success: false, Error: "vesper is disabled"}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ns := namespaceOrDefault(req.Namespace)
	if err := validate.Namespace(ns); err != nil {
		return ListRecentResponse{Success: false, Error: err.Error()}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	if err := s.checkRateLimit(ctx, ns, req.UserID, req.Tier, ratelimit.OpListRecent); err != nil {
		return ListRecentResponse{Success: false, Error: err.Error()}
	}
	convs, err := s.Cache.ListRecent(ctx, ns, limit)
	if err != nil {
		return ListRecentResponse{Success: false, Error: err.Error()}
	}
	if req.MemoryType != "" {
		filtered := make([]vesper.Conversation, 0, len(convs))
		for _, c := range convs {
			if c.MemoryType == req.MemoryType {
				filtered = append(filtered, c)
			}
		}
		convs = filtered
	}
	return ListRecentResponse{Success: true, Conversations: convs}
}

// GetStats aggregates per-layer counters (§6 "get_stats"). Conflict and
// skill counts are only populated when Detailed is set; the Entities
// field is never populated, since GraphStore offers no entity count.
func (s *Service) GetStats(ctx context.Context, req GetStatsRequest) StatsResponse {
	if !s.isEnabled() {
		return StatsResponse{Success: false, Error: "vesper is disabled"}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ns := namespaceOrDefault(req.Namespace)
	if err := validate.Namespace(ns); err != nil {
		return StatsResponse{Success: false, Error: err.Error()}
	}
	if err := s.checkRateLimit(ctx, ns, req.UserID, req.Tier, ratelimit.OpGetStats); err != nil {
		return StatsResponse{Success: false, Error: err.Error()}
	}
	cacheStats, err := s.Cache.Stats(ctx, ns)
	if err != nil {
		return StatsResponse{Success: false, Error: err.Error()}
	}
	resp := StatsResponse{Success: true, Cache: cacheStats}
	if req.Detailed {
		if conflicts, err := s.Graph.ListConflicts(ctx, ns, ""); err == nil {
			resp.Conflicts = len(conflicts)
		}
		if summaries, err := s.Skills.GetSummaries(ctx, ns, 10_000); err == nil {
			resp.Skills = len(summaries)
		}
	}
	return resp
}

// --- delete_memory ------------------------------------------------------

// DeleteMemory cascades a delete across whichever tier owns memoryID
// (§6 "delete_memory"). A skill_-prefixed id is routed to C3; every
// other id is treated as a C1 conversation id.
func (s *Service) DeleteMemory(ctx context.Context, req DeleteMemoryRequest) SuccessResponse {
	if !s.isEnabled() {
		return SuccessResponse{Success: false, Error: "vesper is disabled"}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ns := namespaceOrDefault(req.Namespace)
	if err := validate.Namespace(ns); err != nil {
		return SuccessResponse{Success: false, Error: err.Error()}
	}
	if req.MemoryID == "" {
		return SuccessResponse{Success: false, Error: "memory_id is required"}
	}
	if validate.SkillID(req.MemoryID) == nil {
		if err := s.Skills.DeleteSkill(ctx, ns, req.MemoryID); err != nil {
			return SuccessResponse{Success: false, Error: err.Error()}
		}
		return SuccessResponse{Success: true}
	}
	if err := s.Cache.Delete(ctx, ns, req.MemoryID); err != nil {
		return SuccessResponse{Success: false, Error: err.Error()}
	}
	return SuccessResponse{Success: true}
}

// --- share_context --------------------------------------------------------

// ShareContext copies recent (or query-relevant) items from SourceNS
// into TargetNS (§6 "share_context"). Conversations are always
// considered; entities are copied only when a Query identifies a
// single matching entity by name, since GraphStore exposes no
// generic entity search.
func (s *Service) ShareContext(ctx context.Context, req ShareContextRequest) ShareContextResponse {
	if !s.isEnabled() {
		return ShareContextResponse{Success: false, Error: "vesper is disabled"}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	sourceNS := namespaceOrDefault(req.SourceNS)
	targetNS := namespaceOrDefault(req.TargetNS)
	if err := validate.Namespace(sourceNS); err != nil {
		return ShareContextResponse{Success: false, Error: err.Error()}
	}
	if err := validate.Namespace(targetNS); err != nil {
		return ShareContextResponse{Success: false, Error: err.Error()}
	}
	maxItems := req.MaxItems
	if maxItems <= 0 {
		maxItems = 10
	}

	var convs []vesper.Conversation
	var err error
	if req.Query != "" {
		scored, serr := s.Cache.SearchText(ctx, sourceNS, req.Query, maxItems)
		err = serr
		for _, sc := range scored {
			convs = append(convs, sc.Conversation)
		}
	} else {
		convs, err = s.Cache.ListRecent(ctx, sourceNS, maxItems)
	}
	if err != nil {
		return ShareContextResponse{Success: false, Error: err.Error()}
	}

	copied := 0
	for _, c := range convs {
		c.Namespace = targetNS
		if err := s.Cache.Put(ctx, targetNS, c); err != nil {
			s.logger.Error("share_context: copy failed", "conversation_id", c.ConversationID, "error", err)
			continue
		}
		copied++
	}
	s.touchNamespace(targetNS)

	resp := ShareContextResponse{Success: true, ConversationsCopied: copied}

	if req.IncludeEntities && req.Query != "" {
		if e, ok, eerr := s.Graph.GetEntity(ctx, sourceNS, req.Query); eerr == nil && ok {
			if _, uerr := s.Graph.UpsertEntity(ctx, targetNS, e.Name, e.Type, e.Description); uerr == nil {
				resp.EntitiesCopied = 1
			}
		}
	}
	if req.IncludeSkills && req.Query != "" {
		if scored, serr := s.Skills.SearchByTrigger(ctx, sourceNS, req.Query, maxItems); serr == nil {
			for _, sk := range scored {
				if _, aerr := s.Skills.AddSkill(ctx, targetNS, sk.FullSkill); aerr == nil {
					resp.SkillsCopied++
				}
			}
		}
	}
	return resp
}

// --- list_namespaces / namespace_stats ----------------------------------

// ListNamespaces returns every namespace Service has observed a write
// to, plus the default namespace, which is always listed (§6). There
// is no durable namespace registry in any backing
// store — this tracks the in-process set since process start.
func (s *Service) ListNamespaces(ctx context.Context, req ListNamespacesRequest) ListNamespacesResponse {
	if !s.isEnabled() {
		return ListNamespacesResponse{Success: false, Error: "vesper is disabled"}
	}
	s.mu.Lock()
	ns := make([]string, 0, len(s.namespaces))
	for n := range s.namespaces {
		ns = append(ns, n)
	}
	s.mu.Unlock()
	return ListNamespacesResponse{Success: true, Namespaces: ns}
}

// NamespaceStats reports a single namespace's cache statistics (§6).
func (s *Service) NamespaceStats(ctx context.Context, req NamespaceStatsRequest) NamespaceStatsResponse {
	if !s.isEnabled() {
		return NamespaceStatsResponse{Success: false, Error: "vesper is disabled"}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ns := namespaceOrDefault(req.Namespace)
	if err := validate.Namespace(ns); err != nil {
		return NamespaceStatsResponse{Success: false, Error: err.Error()}
	}
	stats, err := s.Cache.Stats(ctx, ns)
	if err != nil {
		return NamespaceStatsResponse{Success: false, Error: err.Error()}
	}
	return NamespaceStatsResponse{Success: true, Cache: stats}
}

// --- load_skill / record_skill_outcome ----------------------------------

// LoadSkill loads a full skill payload (§6 "load_skill"). Bumping
// last_used on a bare load (as opposed to a recorded outcome) needs a
// store-level "touch" method SkillStore does not currently expose;
// RecordSuccess/RecordFailure are the only methods that advance
// last_used, and calling either here would misreport an outcome that
// didn't happen, so last_used is left unchanged by this path.
func (s *Service) LoadSkill(ctx context.Context, req LoadSkillRequest) LoadSkillResponse {
	if !s.isEnabled() {
		return LoadSkillResponse{Success: false, Error: "vesper is disabled"}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ns := namespaceOrDefault(req.Namespace)
	if err := validate.Namespace(ns); err != nil {
		return LoadSkillResponse{Success: false, Error: err.Error()}
	}
	if err := validate.SkillID(req.SkillID); err != nil {
		return LoadSkillResponse{Success: false, Error: err.Error()}
	}
	skill, ok, err := s.Skills.LoadFull(ctx, ns, req.SkillID)
	if err != nil {
		return LoadSkillResponse{Success: false, Error: err.Error()}
	}
	if !ok {
		return LoadSkillResponse{Success: false, Error: (&vesper.NotFoundError{Kind: "skill", ID: req.SkillID}).Error()}
	}
	return LoadSkillResponse{Success: true, Skill: skill}
}

// RecordSkillOutcome records a skill invocation's outcome (§6
// "record_skill_outcome"). Satisfaction must be supplied iff
// Outcome == "success" — the invariant §6 names explicitly.
func (s *Service) RecordSkillOutcome(ctx context.Context, req RecordSkillOutcomeRequest) SuccessResponse {
	if !s.isEnabled() {
		return SuccessResponse{Success: false, Error: "vesper is disabled"}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ns := namespaceOrDefault(req.Namespace)
	if err := validate.Namespace(ns); err != nil {
		return SuccessResponse{Success: false, Error: err.Error()}
	}
	if err := validate.SkillID(req.SkillID); err != nil {
		return SuccessResponse{Success: false, Error: err.Error()}
	}
	switch req.Outcome {
	case "success":
		if req.Satisfaction == nil {
			return SuccessResponse{Success: false, Error: "satisfaction is required when outcome=success"}
		}
		if err := s.Skills.RecordSuccess(ctx, ns, req.SkillID); err != nil {
			return SuccessResponse{Success: false, Error: err.Error()}
		}
	case "failure":
		if req.Satisfaction != nil {
			return SuccessResponse{Success: false, Error: "satisfaction must be omitted when outcome=failure"}
		}
		if err := s.Skills.RecordFailure(ctx, ns, req.SkillID); err != nil {
			return SuccessResponse{Success: false, Error: err.Error()}
		}
	default:
		return SuccessResponse{Success: false, Error: fmt.Sprintf("outcome must be success or failure, got %q", req.Outcome)}
	}
	return SuccessResponse{Success: true}
}

// --- vesper_enable / vesper_disable / vesper_status ---------------------

// VesperEnable flips the pass-through check on: every other operation
// resumes normal dispatch (§6).
func (s *Service) VesperEnable(ctx context.Context) StatusResponse {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
	return StatusResponse{Enabled: true, Mode: "active"}
}

// VesperDisable flips the pass-through check off: every other
// operation no-ops with {success:false, error:"vesper is disabled"}
// until re-enabled (§6).
func (s *Service) VesperDisable(ctx context.Context) StatusResponse {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
	return StatusResponse{Enabled: false, Mode: "disabled"}
}

// VesperStatus reports the current enabled state (§6). Unlike every
// other operation, vesper_enable/disable/status bypass the
// pass-through check entirely — that is the point of the kill switch.
func (s *Service) VesperStatus(ctx context.Context) StatusResponse {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	mode := "disabled"
	if enabled {
		mode = "active"
	}
	return StatusResponse{Enabled: enabled, Mode: mode}
}
