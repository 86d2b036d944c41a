package vesper

import "context"

// Cache is the working-memory contract (C1, §4.1): last-N conversations
// with TTL, keyword/entity/topic overlap search, and LRU-style eviction.
// All operations are namespaced; every key a Cache implementation writes
// must be prefixed by the caller-supplied namespace.
type Cache interface {
	// Put stores conv, pushes it to the front of the namespace's recency
	// index, and evicts anything beyond MaxConversations. Store, push,
	// trim, and evict happen atomically — a concurrent ListRecent must
	// never observe a partially-applied Put.
	Put(ctx context.Context, namespace string, conv Conversation) error
	// Get returns the conversation, or (Conversation{}, false, nil) if it
	// is absent or has expired.
	Get(ctx context.Context, namespace, id string) (Conversation, bool, error)
	// ListRecent returns up to limit conversations, newest first.
	ListRecent(ctx context.Context, namespace string, limit int) ([]Conversation, error)
	// SearchText scores each of the namespace's recent conversations by
	// word-overlap with q and returns the top k with score > 0.3,
	// sorted descending (§4.1).
	SearchText(ctx context.Context, namespace, q string, k int) ([]ScoredConversation, error)
	// SearchEntities scores by set-overlap against KeyEntities.
	SearchEntities(ctx context.Context, namespace string, entities []string, k int) ([]ScoredConversation, error)
	// SearchTopics scores by set-overlap against Topics.
	SearchTopics(ctx context.Context, namespace string, topics []string, k int) ([]ScoredConversation, error)
	// Delete removes a single conversation by id.
	Delete(ctx context.Context, namespace, id string) error
	// Stats summarizes the namespace's current contents.
	Stats(ctx context.Context, namespace string) (CacheStats, error)
	// Clear removes every conversation in the namespace, iterating the
	// keyspace in bounded batches rather than all at once (§4.1).
	Clear(ctx context.Context, namespace string) error

	// --- Skill cache sub-tier (§4.1) ---

	// PutSkillCache caches a FullSkill payload under a namespaced key
	// with TTL. Re-caching the same id re-persists with unchanged TTL
	// and increments the access counter.
	PutSkillCache(ctx context.Context, namespace string, skill FullSkill) error
	// GetSkillCache returns a cached FullSkill, or ok=false if absent or
	// expired.
	GetSkillCache(ctx context.Context, namespace, skillID string) (FullSkill, bool, error)

	// Init creates backing schema/tables. Safe to call repeatedly.
	Init(ctx context.Context) error
	Close() error
}

// RateLimitStore is the minimal slice of Cache the rate limiter (C8)
// needs: an atomic append-and-count primitive over a per-key sorted set
// of (timestamp, nonce) pairs, keyed by namespace/user/operation. It is
// satisfied by the same backing store as Cache but kept separate so a
// rate limiter can be wired to a different backend than working memory.
type RateLimitStore interface {
	// RecordAndCount appends (now, nonce) to the sliding window for key,
	// prunes entries older than windowStart, sets the key's TTL to ttl,
	// and returns the number of entries remaining after pruning
	// (including the one just added).
	RecordAndCount(ctx context.Context, key string, now, windowStart int64, nonce string, ttl int64) (int, error)
}
