package vesper

// --- C1: Working memory -----------------------------------------------

// Conversation is a single ingested conversation fragment, owned
// exclusively by the working-memory cache (C1).
type Conversation struct {
	ConversationID string         `json:"conversation_id"`
	Timestamp      int64          `json:"timestamp"`
	FullText       string         `json:"full_text"`
	Embedding      Embedding      `json:"-"`
	KeyEntities    []string       `json:"key_entities"`
	Topics         []string       `json:"topics"`
	UserIntent     string         `json:"user_intent"`
	Namespace      string         `json:"namespace"`
	MemoryType     string         `json:"memory_type"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ScoredConversation pairs a Conversation with a relevance score in [0,1].
type ScoredConversation struct {
	Conversation
	Score float32 `json:"score"`
}

// CacheStats summarizes the working-memory cache's current contents.
type CacheStats struct {
	Count      int   `json:"count"`
	Oldest     int64 `json:"oldest"`
	Newest     int64 `json:"newest"`
	TotalBytes int64 `json:"total_bytes"`
}

// --- C2: Semantic graph --------------------------------------------------

// EntityType enumerates the allowed Entity.Type values.
type EntityType string

const (
	EntityPerson     EntityType = "person"
	EntityProject    EntityType = "project"
	EntityConcept    EntityType = "concept"
	EntityPreference EntityType = "preference"
)

// Entity is a node in the semantic graph. The tuple (Name, Type) is
// unique; the store never inserts a duplicate, only updates access
// bookkeeping on upsert.
type Entity struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         EntityType `json:"type"`
	Description  string     `json:"description,omitempty"`
	Confidence   float64    `json:"confidence"`
	CreatedAt    int64      `json:"created_at"`
	LastAccessed int64      `json:"last_accessed"`
	AccessCount  int64      `json:"access_count"`
	IsArchived   bool       `json:"is_archived"`
	Namespace    string     `json:"namespace"`
}

// ScoredEntity pairs an Entity with a PageRank-propagated score.
type ScoredEntity struct {
	Entity
	Score float64 `json:"score"`
}

// RelationType enumerates the relation_type values a Relationship may
// carry. Unlike Entity.Type this is not a closed enum in the data model —
// the store accepts arbitrary relation_type strings — but these are the
// values the consolidation pipeline and the example scenarios emit.
type RelationType string

const (
	RelUses      RelationType = "uses"
	RelMeans     RelationType = "means"
	RelPartOf    RelationType = "part_of"
	RelRelatesTo RelationType = "relates_to"
	RelWorksOn   RelationType = "works_on"
	RelPrefers   RelationType = "prefers"
	RelDependsOn RelationType = "depends_on"
)

// Relationship is a directed, typed, decaying edge between two entities.
// The tuple (SourceID, TargetID, RelationType) is unique; SourceID must
// never equal TargetID.
type Relationship struct {
	ID             string   `json:"id"`
	SourceID       string   `json:"source_id"`
	TargetID       string   `json:"target_id"`
	RelationType   string   `json:"relation_type"`
	Strength       float64  `json:"strength"`
	Evidence       []string `json:"evidence,omitempty"`
	CreatedAt      int64    `json:"created_at"`
	LastReinforced int64    `json:"last_reinforced"`
	AccessCount    int64    `json:"access_count"`
	IsArchived     bool     `json:"is_archived"`
	Namespace      string   `json:"namespace"`
}

// Fact is a temporally-scoped property value attached to an entity. A
// nil ValidUntil means the fact is currently true. The tuple
// (EntityID, Property, Value, ValidFrom) is unique.
type Fact struct {
	ID                 string   `json:"id"`
	EntityID            string   `json:"entity_id"`
	Property            string   `json:"property"`
	Value               string   `json:"value"`
	Confidence          float64  `json:"confidence"`
	ValidFrom           int64    `json:"valid_from"`
	ValidUntil          *int64   `json:"valid_until,omitempty"`
	SourceConversation  string   `json:"source_conversation,omitempty"`
	Contradicts         []string `json:"contradicts,omitempty"`
	IsArchived          bool     `json:"is_archived"`
	Namespace           string   `json:"namespace"`
}

// IsActive reports whether the fact is currently true: ValidUntil is nil,
// or set strictly in the future relative to asOf.
func (f Fact) IsActive(asOf int64) bool {
	if f.IsArchived {
		return false
	}
	return f.ValidUntil == nil || *f.ValidUntil > asOf
}

// ScoredFact pairs a Fact with a relevance/confidence-derived score.
type ScoredFact struct {
	Fact
	Score float64 `json:"score"`
}

// ConflictKind enumerates the three conflict-detection passes of C4.
type ConflictKind string

const (
	ConflictTemporalOverlap  ConflictKind = "temporal_overlap"
	ConflictContradiction    ConflictKind = "contradiction"
	ConflictPreferenceShift  ConflictKind = "preference_shift"
)

// ConflictSeverity enumerates Conflict.Severity values.
type ConflictSeverity string

const (
	SeverityLow    ConflictSeverity = "low"
	SeverityMedium ConflictSeverity = "medium"
	SeverityHigh   ConflictSeverity = "high"
)

// ConflictStatus enumerates Conflict.ResolutionStatus values. Conflicts
// are never auto-resolved — only a caller-driven resolution can advance
// the status past "flagged".
type ConflictStatus string

const (
	ResolutionFlagged      ConflictStatus = "flagged"
	ResolutionAcknowledged ConflictStatus = "acknowledged"
	ResolutionResolved     ConflictStatus = "resolved"
)

// Conflict records a detected overlap/contradiction/shift between two
// facts. FactID1 < FactID2 lexicographically, always — this prevents
// duplicate pairs under either ordering.
type Conflict struct {
	ID               string           `json:"id"`
	FactID1          string           `json:"fact_id_1"`
	FactID2          string           `json:"fact_id_2"`
	EntityID         string           `json:"entity_id"`
	Property         string           `json:"property,omitempty"`
	Kind             ConflictKind     `json:"kind"`
	Description      string           `json:"description"`
	Severity         ConflictSeverity `json:"severity"`
	ResolutionStatus ConflictStatus   `json:"resolution_status"`
	UserResolution   string           `json:"user_resolution,omitempty"`
	Namespace        string           `json:"namespace"`
}

// OrderedFactPair returns (a, b) such that a < b lexicographically,
// matching the Conflict.FactID1 < FactID2 invariant.
func OrderedFactPair(id1, id2 string) (string, string) {
	if id1 < id2 {
		return id1, id2
	}
	return id2, id1
}

// FactChain records an intermediary path discovered during a
// fact-collecting personalized PageRank traversal whose path has more
// than two entities (two or more hops).
type FactChain struct {
	EntityNames []string `json:"entity_names"`
	Score       float64  `json:"score"`
}

// PPRPath records the entity ids traversed to reach a node during
// personalized PageRank, along with the relation_type of the final hop.
type PPRPath struct {
	EntityIDs        []string `json:"entity_ids"`
	LastRelationType string   `json:"last_relation_type"`
}

// PPRResult is the output of plain personalized_pagerank: entities
// reachable from the root, sorted by propagated score descending.
type PPRResult struct {
	Entities []ScoredEntity `json:"entities"`
}

// PPRFactResult is the output of personalized_pagerank_with_facts: the
// visited entities, every currently-valid fact attached to them, the
// path taken to each entity, and any chain (path length > 2) records.
type PPRFactResult struct {
	Entities []ScoredEntity `json:"entities"`
	Facts    []ScoredFact   `json:"facts"`
	Paths    map[string]PPRPath `json:"paths"`
	Chains   []FactChain  `json:"chains"`
}

// --- C3: Skill library ---------------------------------------------------

// CodeType enumerates Skill.CodeType values.
type CodeType string

const (
	CodeInline    CodeType = "inline"
	CodeReference CodeType = "reference"
)

// SkillSummary is the lightweight projection of a Skill used for context
// injection (~50 tokens vs ~500 for the full payload).
type SkillSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Summary  string `json:"summary"`
	Category string `json:"category"`
}

// FullSkill is the complete skill payload, lazily loaded via LoadFull.
type FullSkill struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Summary             string    `json:"summary"`
	Description         string    `json:"description"`
	Category            string    `json:"category"`
	Triggers            []string  `json:"triggers"`
	Code                string    `json:"code,omitempty"`
	CodeType            CodeType  `json:"code_type,omitempty"`
	Prerequisites       []string  `json:"prerequisites,omitempty"`
	UsesSkills          []string  `json:"uses_skills,omitempty"`
	UsedBySkills        []string  `json:"used_by_skills,omitempty"`
	SuccessCount        int64     `json:"success_count"`
	FailureCount        int64     `json:"failure_count"`
	AvgUserSatisfaction float64   `json:"avg_user_satisfaction"`
	Embedding           Embedding `json:"-"`
	LastUsed            *int64    `json:"last_used,omitempty"`
	IsArchived          bool      `json:"is_archived"`
	Version             int       `json:"version"`
	Namespace           string    `json:"namespace"`
}

// ToSummary projects a FullSkill down to its lightweight SkillSummary.
func (s FullSkill) ToSummary() SkillSummary {
	return SkillSummary{ID: s.ID, Name: s.Name, Summary: s.Summary, Category: s.Category}
}

// ScoredSkill pairs a FullSkill with a search-relevance score.
type ScoredSkill struct {
	FullSkill
	Score float64 `json:"score"`
}

// SkillRelationship records co-occurrence and an optional relational
// vector between two skills. SkillID1 < SkillID2, always (normalized
// ordering), and (SkillID1, SkillID2, RelationshipType) is unique.
type SkillRelationship struct {
	ID                string    `json:"id"`
	SkillID1          string    `json:"skill_id_1"`
	SkillID2          string    `json:"skill_id_2"`
	RelationshipType  string    `json:"relationship_type"`
	CoOccurrenceCount int64     `json:"co_occurrence_count"`
	RelationalVector  Embedding `json:"-"`
	CreatedAt         int64     `json:"created_at"`
	LastUpdated       int64     `json:"last_updated"`
	Namespace         string    `json:"namespace"`
}

// OrderedSkillPair returns (a, b) such that a < b, matching the
// SkillRelationship.SkillID1 < SkillID2 invariant.
func OrderedSkillPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// InvocationMatch is the result of detect_invocation: the best-matching
// skill (if any) and the engine's confidence in that match.
type InvocationMatch struct {
	SkillID    string  `json:"skill_id,omitempty"`
	Confidence float64 `json:"confidence"`
}

// --- C5: Consolidation ----------------------------------------------------

// ConsolidationStats is the single atomic report produced by one
// consolidation cycle (§4.5).
type ConsolidationStats struct {
	MemoriesProcessed    int   `json:"memories_processed"`
	EntitiesExtracted    int   `json:"entities_extracted"`
	RelationshipsCreated int   `json:"relationships_created"`
	ConflictsDetected    int   `json:"conflicts_detected"`
	MemoriesPruned       int   `json:"memories_pruned"`
	SkillsExtracted      int   `json:"skills_extracted"`
	DurationMs           int64 `json:"duration_ms"`
	FailedStep           string `json:"failed_step,omitempty"`
	Err                  string `json:"error,omitempty"`
}

// BackupMetadata is the descriptor the pipeline records for an
// externally-produced backup artifact (the artifact itself is produced
// by an external collaborator — the core only tracks its existence and
// expiry).
type BackupMetadata struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
	Namespace string `json:"namespace"`
}

// --- C6: Scheduler ---------------------------------------------------------

// SchedulerStatus reports the scheduler's current configuration and
// run history.
type SchedulerStatus struct {
	Running      bool                `json:"running"`
	ScheduleH    int                 `json:"schedule_h"`
	ScheduleM    int                 `json:"schedule_m"`
	LastRunTime  int64               `json:"last_run_time,omitempty"`
	LastRunStats *ConsolidationStats `json:"last_run_stats,omitempty"`
	NextRunTime  int64               `json:"next_run_time"`
	RunCount     int64               `json:"run_count"`
}

// --- C7: Router -------------------------------------------------------------

// QueryClass enumerates the classification ladder's buckets, in priority
// order from most to least specific (§4.7).
type QueryClass string

const (
	ClassSkill      QueryClass = "skill"
	ClassTemporal   QueryClass = "temporal"
	ClassFactual    QueryClass = "factual"
	ClassPreference QueryClass = "preference"
	ClassProject    QueryClass = "project"
	ClassComplex    QueryClass = "complex"
)

// Classification is the result of classifying a single query.
type Classification struct {
	Class      QueryClass `json:"class"`
	Confidence float64    `json:"confidence"`
}

// RouteResult is what the router returns to a caller: which tier(s)
// answered, and the merged, scored results.
type RouteResult struct {
	Class       QueryClass           `json:"class"`
	FastPath    bool                 `json:"fast_path"`
	Source      string               `json:"source"`
	Conversations []ScoredConversation `json:"conversations,omitempty"`
	Entities    []ScoredEntity       `json:"entities,omitempty"`
	Facts       []ScoredFact         `json:"facts,omitempty"`
	Chains      []FactChain          `json:"chains,omitempty"`
	Skills      []ScoredSkill        `json:"skills,omitempty"`
}
