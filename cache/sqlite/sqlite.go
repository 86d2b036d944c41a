// Package sqlite implements vesper.Cache and vesper.RateLimitStore using
// pure-Go SQLite. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/oculusnoob/vesper-memory"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// logs store open and each Put at debug level with timing, and Init at
// info level. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTTL sets how long a cached conversation or skill lives before it is
// treated as expired. Zero means conversations never expire by time (only
// by the MaxConversations LRU cap).
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithMaxConversations sets the per-namespace recency cap (§4.1). Puts
// beyond this cap evict the oldest conversations in the namespace.
func WithMaxConversations(n int) Option {
	return func(s *Store) { s.maxConversations = n }
}

// Store implements vesper.Cache and vesper.RateLimitStore backed by a
// local SQLite file.
type Store struct {
	db               *sql.DB
	logger           *slog.Logger
	ttl              time.Duration
	maxConversations int
}

var _ vesper.Cache = (*Store)(nil)
var _ vesper.RateLimitStore = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath. It opens a
// single shared connection pool with SetMaxOpenConns(1) so that all
// goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...Option) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		panic(fmt.Sprintf("cache/sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger, ttl: 7 * 24 * time.Hour, maxConversations: 5}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("cache/sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	ddls := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			full_text TEXT NOT NULL,
			embedding BLOB,
			key_entities TEXT,
			topics TEXT,
			user_intent TEXT,
			memory_type TEXT,
			metadata TEXT,
			PRIMARY KEY (namespace, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_ns_ts ON conversations(namespace, timestamp DESC)`,
		`CREATE TABLE IF NOT EXISTS skill_cache (
			namespace TEXT NOT NULL,
			skill_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			cached_at INTEGER NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (namespace, skill_id)
		)`,
		`CREATE TABLE IF NOT EXISTS rate_windows (
			bucket_key TEXT NOT NULL,
			ts INTEGER NOT NULL,
			nonce TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY (bucket_key, nonce)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_windows_key_ts ON rate_windows(bucket_key, ts)`,
	}
	for _, ddl := range ddls {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("cache/sqlite: create schema: %w", err)
		}
	}
	s.logger.Info("cache/sqlite: init completed", "duration", time.Since(start))
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) expiryCutoff() int64 {
	if s.ttl <= 0 {
		return 0
	}
	return time.Now().Add(-s.ttl).Unix()
}

// Put stores conv, pushes it to the front of the namespace's recency
// index, and evicts anything beyond MaxConversations, atomically.
func (s *Store) Put(ctx context.Context, namespace string, conv vesper.Conversation) error {
	start := time.Now()
	entities, _ := json.Marshal(conv.KeyEntities)
	topics, _ := json.Marshal(conv.Topics)
	var metaJSON *string
	if len(conv.Metadata) > 0 {
		data, _ := json.Marshal(conv.Metadata)
		v := string(data)
		metaJSON = &v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache/sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversations
		 (namespace, id, timestamp, full_text, embedding, key_entities, topics, user_intent, memory_type, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		namespace, conv.ConversationID, conv.Timestamp, conv.FullText, []byte(conv.Embedding),
		string(entities), string(topics), conv.UserIntent, conv.MemoryType, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("cache/sqlite: put conversation: %w", err)
	}

	if s.maxConversations > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM conversations WHERE namespace = ? AND id NOT IN (
				SELECT id FROM conversations WHERE namespace = ?
				ORDER BY timestamp DESC LIMIT ?
			)`, namespace, namespace, s.maxConversations)
		if err != nil {
			return fmt.Errorf("cache/sqlite: evict: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache/sqlite: commit put: %w", err)
	}
	s.logger.Debug("cache/sqlite: put ok", "namespace", namespace, "id", conv.ConversationID, "duration", time.Since(start))
	return nil
}

func (s *Store) scanConversation(row interface {
	Scan(dest ...any) error
}) (vesper.Conversation, error) {
	var c vesper.Conversation
	var embedding []byte
	var entities, topics sql.NullString
	var metaJSON sql.NullString
	if err := row.Scan(&c.ConversationID, &c.Timestamp, &c.FullText, &embedding, &entities, &topics, &c.UserIntent, &c.MemoryType, &metaJSON); err != nil {
		return vesper.Conversation{}, err
	}
	c.Embedding = vesper.Embedding(embedding)
	if entities.Valid {
		_ = json.Unmarshal([]byte(entities.String), &c.KeyEntities)
	}
	if topics.Valid {
		_ = json.Unmarshal([]byte(topics.String), &c.Topics)
	}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &c.Metadata)
	}
	return c, nil
}

// Get returns the conversation, or (Conversation{}, false, nil) if it is
// absent or has expired.
func (s *Store) Get(ctx context.Context, namespace, id string) (vesper.Conversation, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, full_text, embedding, key_entities, topics, user_intent, memory_type, metadata
		 FROM conversations WHERE namespace = ? AND id = ? AND timestamp >= ?`,
		namespace, id, s.expiryCutoff())
	c, err := s.scanConversation(row)
	if err == sql.ErrNoRows {
		return vesper.Conversation{}, false, nil
	}
	if err != nil {
		return vesper.Conversation{}, false, fmt.Errorf("cache/sqlite: get: %w", err)
	}
	c.Namespace = namespace
	return c, true, nil
}

// ListRecent returns up to limit conversations, newest first.
func (s *Store) ListRecent(ctx context.Context, namespace string, limit int) ([]vesper.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, full_text, embedding, key_entities, topics, user_intent, memory_type, metadata
		 FROM conversations WHERE namespace = ? AND timestamp >= ?
		 ORDER BY timestamp DESC LIMIT ?`, namespace, s.expiryCutoff(), limit)
	if err != nil {
		return nil, fmt.Errorf("cache/sqlite: list recent: %w", err)
	}
	defer rows.Close()

	var out []vesper.Conversation
	for rows.Next() {
		c, err := s.scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("cache/sqlite: scan conversation: %w", err)
		}
		c.Namespace = namespace
		out = append(out, c)
	}
	return out, rows.Err()
}

// wordOverlapScore scores the overlap between the words of q and those of
// text as |intersection| / |union(q words)|, matching the teacher's
// keyword overlap heuristic (§4.1).
func wordOverlapScore(q, text string) float32 {
	qWords := tokenSet(q)
	if len(qWords) == 0 {
		return 0
	}
	tWords := tokenSet(text)
	var hits int
	for w := range qWords {
		if tWords[w] {
			hits++
		}
	}
	return float32(hits) / float32(len(qWords))
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

func setOverlapScore(query, have []string) float32 {
	if len(query) == 0 {
		return 0
	}
	haveSet := make(map[string]bool, len(have))
	for _, h := range have {
		haveSet[strings.ToLower(h)] = true
	}
	var hits int
	for _, q := range query {
		if haveSet[strings.ToLower(q)] {
			hits++
		}
	}
	return float32(hits) / float32(len(query))
}

const minSearchScore = 0.3

// SearchText scores each of the namespace's recent conversations by
// word-overlap with q and returns the top k with score > 0.3 (§4.1).
func (s *Store) SearchText(ctx context.Context, namespace, q string, k int) ([]vesper.ScoredConversation, error) {
	all, err := s.ListRecent(ctx, namespace, 0)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		all, err = s.allConversations(ctx, namespace)
		if err != nil {
			return nil, err
		}
	}
	var scored []vesper.ScoredConversation
	for _, c := range all {
		score := wordOverlapScore(q, c.FullText)
		if score > minSearchScore {
			scored = append(scored, vesper.ScoredConversation{Conversation: c, Score: score})
		}
	}
	return topKConversations(scored, k), nil
}

func (s *Store) allConversations(ctx context.Context, namespace string) ([]vesper.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, full_text, embedding, key_entities, topics, user_intent, memory_type, metadata
		 FROM conversations WHERE namespace = ? AND timestamp >= ? ORDER BY timestamp DESC`,
		namespace, s.expiryCutoff())
	if err != nil {
		return nil, fmt.Errorf("cache/sqlite: scan all: %w", err)
	}
	defer rows.Close()
	var out []vesper.Conversation
	for rows.Next() {
		c, err := s.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		c.Namespace = namespace
		out = append(out, c)
	}
	return out, rows.Err()
}

// SearchEntities scores by set-overlap against KeyEntities.
func (s *Store) SearchEntities(ctx context.Context, namespace string, entities []string, k int) ([]vesper.ScoredConversation, error) {
	all, err := s.allConversations(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var scored []vesper.ScoredConversation
	for _, c := range all {
		score := setOverlapScore(entities, c.KeyEntities)
		if score > 0 {
			scored = append(scored, vesper.ScoredConversation{Conversation: c, Score: score})
		}
	}
	return topKConversations(scored, k), nil
}

// SearchTopics scores by set-overlap against Topics.
func (s *Store) SearchTopics(ctx context.Context, namespace string, topics []string, k int) ([]vesper.ScoredConversation, error) {
	all, err := s.allConversations(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var scored []vesper.ScoredConversation
	for _, c := range all {
		score := setOverlapScore(topics, c.Topics)
		if score > 0 {
			scored = append(scored, vesper.ScoredConversation{Conversation: c, Score: score})
		}
	}
	return topKConversations(scored, k), nil
}

func topKConversations(scored []vesper.ScoredConversation, k int) []vesper.ScoredConversation {
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// Delete removes a single conversation by id.
func (s *Store) Delete(ctx context.Context, namespace, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE namespace = ? AND id = ?`, namespace, id)
	if err != nil {
		return fmt.Errorf("cache/sqlite: delete: %w", err)
	}
	return nil
}

// Stats summarizes the namespace's current contents.
func (s *Store) Stats(ctx context.Context, namespace string) (vesper.CacheStats, error) {
	var stats vesper.CacheStats
	var oldest, newest sql.NullInt64
	var totalBytes sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(timestamp), MAX(timestamp), COALESCE(SUM(LENGTH(full_text)), 0)
		 FROM conversations WHERE namespace = ? AND timestamp >= ?`,
		namespace, s.expiryCutoff(),
	).Scan(&stats.Count, &oldest, &newest, &totalBytes)
	if err != nil {
		return vesper.CacheStats{}, fmt.Errorf("cache/sqlite: stats: %w", err)
	}
	stats.Oldest = oldest.Int64
	stats.Newest = newest.Int64
	stats.TotalBytes = totalBytes.Int64
	return stats, nil
}

// clearBatchSize bounds how many rows Clear deletes per statement, so a
// very large namespace doesn't hold the single connection for one huge
// transaction (§4.1).
const clearBatchSize = 1000

// Clear removes every conversation in the namespace, iterating the
// keyspace in bounded batches rather than all at once.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	for {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM conversations WHERE namespace = ? AND id IN (
				SELECT id FROM conversations WHERE namespace = ? LIMIT ?
			)`, namespace, namespace, clearBatchSize)
		if err != nil {
			return fmt.Errorf("cache/sqlite: clear: %w", err)
		}
		n, _ := res.RowsAffected()
		if n < clearBatchSize {
			break
		}
	}
	return nil
}

// PutSkillCache caches a FullSkill payload under a namespaced key with
// TTL. Re-caching the same id re-persists with unchanged TTL (cached_at
// keeps its first value) and increments the access counter.
func (s *Store) PutSkillCache(ctx context.Context, namespace string, skill vesper.FullSkill) error {
	payload, err := json.Marshal(skill)
	if err != nil {
		return fmt.Errorf("cache/sqlite: marshal skill: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO skill_cache (namespace, skill_id, payload, cached_at, access_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(namespace, skill_id) DO UPDATE SET
			payload = excluded.payload,
			access_count = skill_cache.access_count + 1`,
		namespace, skill.ID, string(payload), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache/sqlite: put skill cache: %w", err)
	}
	return nil
}

// GetSkillCache returns a cached FullSkill, or ok=false if absent or
// expired.
func (s *Store) GetSkillCache(ctx context.Context, namespace, skillID string) (vesper.FullSkill, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM skill_cache WHERE namespace = ? AND skill_id = ? AND cached_at >= ?`,
		namespace, skillID, s.expiryCutoff()).Scan(&payload)
	if err == sql.ErrNoRows {
		return vesper.FullSkill{}, false, nil
	}
	if err != nil {
		return vesper.FullSkill{}, false, fmt.Errorf("cache/sqlite: get skill cache: %w", err)
	}
	var skill vesper.FullSkill
	if err := json.Unmarshal([]byte(payload), &skill); err != nil {
		return vesper.FullSkill{}, false, fmt.Errorf("cache/sqlite: unmarshal skill: %w", err)
	}
	return skill, true, nil
}

// RecordAndCount appends (now, nonce) to the sliding window for key,
// prunes entries older than windowStart, sets the key's TTL to ttl, and
// returns the number of entries remaining after pruning.
func (s *Store) RecordAndCount(ctx context.Context, key string, now, windowStart int64, nonce string, ttl int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("cache/sqlite: begin rate tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	expiresAt := now + ttl
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO rate_windows (bucket_key, ts, nonce, expires_at) VALUES (?, ?, ?, ?)`,
		key, now, nonce, expiresAt)
	if err != nil {
		return 0, fmt.Errorf("cache/sqlite: record rate: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM rate_windows WHERE bucket_key = ? AND ts < ?`, key, windowStart); err != nil {
		return 0, fmt.Errorf("cache/sqlite: prune rate: %w", err)
	}
	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rate_windows WHERE bucket_key = ? AND ts >= ?`, key, windowStart).Scan(&count); err != nil {
		return 0, fmt.Errorf("cache/sqlite: count rate: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("cache/sqlite: commit rate: %w", err)
	}
	return count, nil
}
