package vesper

import "context"

// SkillStore is the procedural-skill-library contract (C3, §4.3): trigger
// phrases, code/reference payloads, embeddings, and the relational graph
// between skills (co-occurrence and analogical vectors).
type SkillStore interface {
	// AddSkill inserts a skill with no embedding.
	AddSkill(ctx context.Context, namespace string, skill FullSkill) (FullSkill, error)
	// AddSkillWithEmbedding inserts a skill together with its
	// trigger-phrase embedding.
	AddSkillWithEmbedding(ctx context.Context, namespace string, skill FullSkill, embedding []float32) (FullSkill, error)
	// GetSkill loads a full skill by id.
	GetSkill(ctx context.Context, namespace, skillID string) (FullSkill, bool, error)
	// LoadFull is identical to GetSkill. load_skill calls it directly;
	// no caller consults or repopulates C1's skill cache around it.
	LoadFull(ctx context.Context, namespace, skillID string) (FullSkill, bool, error)
	// DeleteSkill removes a skill and its relationships.
	DeleteSkill(ctx context.Context, namespace, skillID string) error

	// SearchByTrigger scores skills by word-overlap between q and each
	// skill's trigger phrases, returning the top k with score > 0
	// (§4.3).
	SearchByTrigger(ctx context.Context, namespace, q string, k int) ([]ScoredSkill, error)
	// SearchByEmbedding returns the top k skills by cosine similarity of
	// queryEmbedding against each skill's stored embedding. Skills with
	// no embedding are excluded.
	SearchByEmbedding(ctx context.Context, namespace string, queryEmbedding []float32, k int) ([]ScoredSkill, error)
	// HybridSearch fuses SearchByTrigger and SearchByEmbedding rankings
	// with Reciprocal Rank Fusion (k_rrf=60, §4.3) and returns the top k.
	HybridSearch(ctx context.Context, namespace, q string, queryEmbedding []float32, k int) ([]ScoredSkill, error)
	// AnalogicalSearch finds skills analogous to sourceSkillID via
	// another skill pair (a,b) sharing the same relation: it computes
	// rel = emb(b) - emb(a), reconstructs target = emb(sourceSkillID) +
	// rel, and returns the top k skills by cosine similarity to target
	// (§4.3).
	AnalogicalSearch(ctx context.Context, namespace, sourceSkillID, relA, relB string, k int) ([]ScoredSkill, error)

	// GetSummaries returns lightweight SkillSummary rows, used by the
	// router's skill-classification fast path.
	GetSummaries(ctx context.Context, namespace string, limit int) ([]SkillSummary, error)
	// DetectInvocation scans text for any registered trigger phrase and
	// returns the matches found, ranked by phrase length descending (the
	// longest, most specific match wins ties).
	DetectInvocation(ctx context.Context, namespace, text string) ([]InvocationMatch, error)

	// RecordSuccess increments a skill's success_count and updates
	// last_used.
	RecordSuccess(ctx context.Context, namespace, skillID string) error
	// RecordFailure increments a skill's failure_count and updates
	// last_used.
	RecordFailure(ctx context.Context, namespace, skillID string) error

	// RecordCoOccurrence atomically increments the co-occurrence counter
	// between two skills used within the same session, inserting the
	// pair (ordered via OrderedSkillPair) if absent (§4.3 "Co-occurrence
	// tracking").
	RecordCoOccurrence(ctx context.Context, namespace, skillA, skillB string) error
	// GetCoOccurring returns skills that have co-occurred with skillID,
	// ordered by co-occurrence count descending.
	GetCoOccurring(ctx context.Context, namespace, skillID string, limit int) ([]SkillRelationship, error)
	// ComputeRelationalVectors derives and persists emb(b)-emb(a) for
	// every co_occurs pair whose co-occurrence count is at least
	// minCount, used to seed analogical search (§4.3 "compute_relational_
	// vectors(min_count)", run periodically by consolidation). A pair
	// seen only once is noise, not a relation worth recomputing.
	ComputeRelationalVectors(ctx context.Context, namespace string, minCount int) (int, error)

	Init(ctx context.Context) error
	Close() error
}
