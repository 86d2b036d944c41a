package vesper

import "context"

// GraphStore is the semantic-graph contract (C2, §4.2): entities, typed
// decaying relationships, temporal facts, and conflicts, plus
// personalized PageRank traversal.
type GraphStore interface {
	// UpsertEntity inserts a new entity (confidence defaults to 1.0), or,
	// if (name, type) already exists, only bumps LastAccessed/AccessCount
	// (§4.2 "Upsert semantics"). The insert-or-update must be a single
	// atomic statement.
	UpsertEntity(ctx context.Context, namespace, name string, typ EntityType, description string) (Entity, error)
	// GetEntity looks up an entity by (namespace, name). Reading bumps
	// LastAccessed/AccessCount.
	GetEntity(ctx context.Context, namespace, name string) (Entity, bool, error)
	// GetEntityByID looks up an entity by id without bumping access
	// bookkeeping (used internally by traversal).
	GetEntityByID(ctx context.Context, namespace, id string) (Entity, bool, error)
	// ArchiveEntity marks an entity archived (soft delete) without
	// deleting its row.
	ArchiveEntity(ctx context.Context, namespace, id string) error
	// DeleteEntity hard-deletes an entity and cascades to its
	// relationships and facts.
	DeleteEntity(ctx context.Context, namespace, id string) error

	// UpsertRelationship inserts a new relationship (strength defaults to
	// 0.8), or, if (source, target, relation_type) already exists, sets
	// strength = min(1.0, strength+0.2) and last_reinforced = now
	// (§4.2). SourceID must not equal TargetID; both must refer to
	// existing entities.
	UpsertRelationship(ctx context.Context, namespace string, rel Relationship) (Relationship, error)
	// GetRelationships returns every non-archived relationship touching
	// entityID, in either direction.
	GetRelationships(ctx context.Context, namespace, entityID string) ([]Relationship, error)
	// ApplyTemporalDecay applies strength' = strength * exp(-Δdays/30) to
	// every non-archived relationship and returns the count updated
	// (§4.2 "Decay").
	ApplyTemporalDecay(ctx context.Context, namespace string) (int, error)
	// PruneRelationships hard-deletes relationships with strength <
	// minStrength AND both endpoints' access_count < minAccessCount
	// (§4.5 step 5). Endpoint entities are never deleted by this call.
	PruneRelationships(ctx context.Context, namespace string, minStrength float64, minAccessCount int64) (int, error)

	// UpsertFact inserts or — on a matching (entity_id, property, value,
	// valid_from) tuple — updates a fact.
	UpsertFact(ctx context.Context, namespace string, fact Fact) (Fact, error)
	// GetFactsForEntity returns every non-archived fact for entityID.
	// If onlyActive is true, only currently-valid facts (ValidUntil ==
	// nil or > now) are returned.
	GetFactsForEntity(ctx context.Context, namespace, entityID string, onlyActive bool) ([]Fact, error)
	// GetFactByID looks up a single fact by id.
	GetFactByID(ctx context.Context, namespace, id string) (Fact, bool, error)
	// CloseFact transitions a fact from active to superseded by setting
	// ValidUntil.
	CloseFact(ctx context.Context, namespace, factID string, validUntil int64) error
	// SetFactConfidence sets a fact's confidence. RecordConflict performs
	// its own 0.5 downgrade inside its transaction and does not call this.
	SetFactConfidence(ctx context.Context, namespace, factID string, confidence float64) error
	// GetByTimeRange returns facts whose [ValidFrom, ValidUntil ∨ +∞)
	// interval intersects [start, end]. A nil bound is unconstrained on
	// that side.
	GetByTimeRange(ctx context.Context, namespace string, start, end *int64) ([]Fact, error)
	// GetPreferences returns currently-active facts on preference
	// entities, optionally filtered to a single domain (entity name).
	GetPreferences(ctx context.Context, namespace, domain string) ([]Fact, error)

	// RecordConflict inserts a conflict record (deduplicated by
	// normalized (fact_id_1, fact_id_2)) and downgrades both facts'
	// confidence to 0.5, atomically in one transaction (§4.4, §9). A
	// no-op (ok=false) if an equivalent pair is already recorded.
	RecordConflict(ctx context.Context, namespace string, c Conflict) (recorded bool, err error)
	// ListConflicts returns conflicts, optionally filtered to one
	// resolution status ("" means all).
	ListConflicts(ctx context.Context, namespace string, status ConflictStatus) ([]Conflict, error)
	// ResolveConflict advances a conflict's resolution_status and
	// records the caller's resolution text. Conflicts are never
	// auto-resolved — this is always externally triggered.
	ResolveConflict(ctx context.Context, namespace, conflictID string, status ConflictStatus, userResolution string) error

	// PersonalizedPageRank runs a bounded-depth weighted BFS from
	// entityID (§4.2), returning visited entities sorted by propagated
	// score descending.
	PersonalizedPageRank(ctx context.Context, namespace, entityID string, depth int) (PPRResult, error)
	// PersonalizedPageRankWithFacts runs the same traversal but also
	// collects every currently-valid fact on each visited entity, the
	// path taken, and chain records for paths of more than two entities
	// (two or more hops).
	PersonalizedPageRankWithFacts(ctx context.Context, namespace, entityID string, depth int) (PPRFactResult, error)

	// RecordBackup records an externally-produced backup's descriptor
	// with a 7-day expiry (§4.5 step 7).
	RecordBackup(ctx context.Context, namespace string, meta BackupMetadata) error

	Init(ctx context.Context) error
	Close() error
}
