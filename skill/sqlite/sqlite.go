// Package sqlite implements vesper.SkillStore using pure-Go SQLite, with
// in-process brute-force cosine similarity for embedding search.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/oculusnoob/vesper-memory"

	_ "modernc.org/sqlite"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger; unset stores emit no logs.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements vesper.SkillStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ vesper.SkillStore = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
func New(dbPath string, opts ...Option) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		panic(fmt.Sprintf("skill/sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Init(ctx context.Context) error {
	ddls := []string{
		`CREATE TABLE IF NOT EXISTS skills (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			name TEXT NOT NULL,
			summary TEXT NOT NULL,
			description TEXT,
			category TEXT,
			triggers TEXT,
			code TEXT,
			code_type TEXT,
			prerequisites TEXT,
			embedding BLOB,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			avg_user_satisfaction REAL NOT NULL DEFAULT 0,
			last_used INTEGER,
			is_archived INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_skills_ns ON skills(namespace)`,
		`CREATE TABLE IF NOT EXISTS skill_relationships (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			skill_id_1 TEXT NOT NULL,
			skill_id_2 TEXT NOT NULL,
			relationship_type TEXT NOT NULL,
			co_occurrence_count INTEGER NOT NULL DEFAULT 0,
			relational_vector BLOB,
			created_at INTEGER NOT NULL,
			last_updated INTEGER NOT NULL,
			UNIQUE(namespace, skill_id_1, skill_id_2, relationship_type)
		)`,
	}
	for _, ddl := range ddls {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("skill/sqlite: create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func scanSkill(row interface{ Scan(dest ...any) error }) (vesper.FullSkill, error) {
	var sk vesper.FullSkill
	var description, category, triggers, code, codeType, prereqs sql.NullString
	var embedding []byte
	var lastUsed sql.NullInt64
	var archived int
	if err := row.Scan(&sk.ID, &sk.Name, &sk.Summary, &description, &category, &triggers, &code, &codeType,
		&prereqs, &embedding, &sk.SuccessCount, &sk.FailureCount, &sk.AvgUserSatisfaction, &lastUsed, &archived, &sk.Version); err != nil {
		return vesper.FullSkill{}, err
	}
	sk.Description = description.String
	sk.Category = category.String
	if triggers.Valid {
		_ = json.Unmarshal([]byte(triggers.String), &sk.Triggers)
	}
	sk.Code = code.String
	sk.CodeType = vesper.CodeType(codeType.String)
	if prereqs.Valid {
		_ = json.Unmarshal([]byte(prereqs.String), &sk.Prerequisites)
	}
	sk.Embedding = vesper.Embedding(embedding)
	if lastUsed.Valid {
		v := lastUsed.Int64
		sk.LastUsed = &v
	}
	sk.IsArchived = archived != 0
	return sk, nil
}

const skillColumns = `id, name, summary, description, category, triggers, code, code_type, prerequisites, embedding, success_count, failure_count, avg_user_satisfaction, last_used, is_archived, version`

func (s *Store) insertSkill(ctx context.Context, namespace string, skill vesper.FullSkill, embedding []float32) (vesper.FullSkill, error) {
	skill.ID = vesper.NewSkillID()
	triggers, _ := json.Marshal(skill.Triggers)
	prereqs, _ := json.Marshal(skill.Prerequisites)
	var blob []byte
	if embedding != nil {
		blob = vesper.EncodeEmbedding(embedding)
	}
	if skill.Version == 0 {
		skill.Version = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skills (id, namespace, name, summary, description, category, triggers, code, code_type, prerequisites, embedding, success_count, failure_count, avg_user_satisfaction, last_used, is_archived, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, NULL, 0, ?)`,
		skill.ID, namespace, skill.Name, skill.Summary, skill.Description, skill.Category,
		string(triggers), skill.Code, string(skill.CodeType), string(prereqs), blob, skill.Version)
	if err != nil {
		return vesper.FullSkill{}, fmt.Errorf("skill/sqlite: insert skill: %w", err)
	}
	skill.Namespace = namespace
	return skill, nil
}

func (s *Store) AddSkill(ctx context.Context, namespace string, skill vesper.FullSkill) (vesper.FullSkill, error) {
	return s.insertSkill(ctx, namespace, skill, nil)
}

func (s *Store) AddSkillWithEmbedding(ctx context.Context, namespace string, skill vesper.FullSkill, embedding []float32) (vesper.FullSkill, error) {
	return s.insertSkill(ctx, namespace, skill, embedding)
}

func (s *Store) getSkill(ctx context.Context, namespace, skillID string) (vesper.FullSkill, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+skillColumns+` FROM skills WHERE namespace = ? AND id = ?`, namespace, skillID)
	sk, err := scanSkill(row)
	if err == sql.ErrNoRows {
		return vesper.FullSkill{}, false, nil
	}
	if err != nil {
		return vesper.FullSkill{}, false, fmt.Errorf("skill/sqlite: get skill: %w", err)
	}
	sk.Namespace = namespace
	return sk, true, nil
}

func (s *Store) GetSkill(ctx context.Context, namespace, skillID string) (vesper.FullSkill, bool, error) {
	return s.getSkill(ctx, namespace, skillID)
}

func (s *Store) LoadFull(ctx context.Context, namespace, skillID string) (vesper.FullSkill, bool, error) {
	return s.getSkill(ctx, namespace, skillID)
}

func (s *Store) DeleteSkill(ctx context.Context, namespace, skillID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("skill/sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM skill_relationships WHERE namespace = ? AND (skill_id_1 = ? OR skill_id_2 = ?)`, namespace, skillID, skillID); err != nil {
		return fmt.Errorf("skill/sqlite: delete skill relationships: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM skills WHERE namespace = ? AND id = ?`, namespace, skillID); err != nil {
		return fmt.Errorf("skill/sqlite: delete skill: %w", err)
	}
	return tx.Commit()
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

func triggerOverlapScore(q string, triggers []string) float64 {
	qWords := tokenize(q)
	if len(qWords) == 0 || len(triggers) == 0 {
		return 0
	}
	var best float64
	for _, trig := range triggers {
		tWords := tokenize(trig)
		var hits int
		for w := range tWords {
			if qWords[w] {
				hits++
			}
		}
		if len(tWords) == 0 {
			continue
		}
		score := float64(hits) / float64(len(tWords))
		if score > best {
			best = score
		}
	}
	return best
}

func (s *Store) allSkills(ctx context.Context, namespace string) ([]vesper.FullSkill, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+skillColumns+` FROM skills WHERE namespace = ? AND is_archived = 0`, namespace)
	if err != nil {
		return nil, fmt.Errorf("skill/sqlite: list skills: %w", err)
	}
	defer rows.Close()
	var out []vesper.FullSkill
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		sk.Namespace = namespace
		out = append(out, sk)
	}
	return out, rows.Err()
}

// SearchByTrigger scores skills by word-overlap between q and each
// skill's trigger phrases, returning the top k with score > 0 (§4.3).
func (s *Store) SearchByTrigger(ctx context.Context, namespace, q string, k int) ([]vesper.ScoredSkill, error) {
	skills, err := s.allSkills(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var scored []vesper.ScoredSkill
	for _, sk := range skills {
		score := triggerOverlapScore(q, sk.Triggers)
		if score > 0 {
			scored = append(scored, vesper.ScoredSkill{FullSkill: sk, Score: score})
		}
	}
	return topKSkills(scored, k), nil
}

// SearchByEmbedding returns the top k skills by cosine similarity against
// queryEmbedding, excluding skills with no stored embedding.
func (s *Store) SearchByEmbedding(ctx context.Context, namespace string, queryEmbedding []float32, k int) ([]vesper.ScoredSkill, error) {
	skills, err := s.allSkills(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var scored []vesper.ScoredSkill
	for _, sk := range skills {
		if len(sk.Embedding) == 0 {
			continue
		}
		vec, err := vesper.DecodeEmbedding(sk.Embedding, len(queryEmbedding))
		if err != nil {
			continue
		}
		score := vesper.CosineSimilarity(queryEmbedding, vec)
		scored = append(scored, vesper.ScoredSkill{FullSkill: sk, Score: score})
	}
	return topKSkills(scored, k), nil
}

// HybridSearch fuses trigger-overlap and embedding-similarity rankings
// with Reciprocal Rank Fusion (§4.3).
func (s *Store) HybridSearch(ctx context.Context, namespace, q string, queryEmbedding []float32, k int) ([]vesper.ScoredSkill, error) {
	triggerHits, err := s.SearchByTrigger(ctx, namespace, q, 0)
	if err != nil {
		return nil, err
	}
	embedHits, err := s.SearchByEmbedding(ctx, namespace, queryEmbedding, 0)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]vesper.FullSkill)
	var triggerRanked, embedRanked []string
	for _, hit := range triggerHits {
		byID[hit.ID] = hit.FullSkill
		triggerRanked = append(triggerRanked, hit.ID)
	}
	for _, hit := range embedHits {
		byID[hit.ID] = hit.FullSkill
		embedRanked = append(embedRanked, hit.ID)
	}

	fused := vesper.FuseRankings(vesper.ToRankedItems(triggerRanked), vesper.ToRankedItems(embedRanked))
	out := make([]vesper.ScoredSkill, 0, len(fused))
	for i, id := range fused {
		out = append(out, vesper.ScoredSkill{FullSkill: byID[id], Score: 1.0 / float64(i+1)})
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// AnalogicalSearch reconstructs target = emb(sourceSkillID) + (emb(b) -
// emb(a)) and returns the top k skills by cosine similarity to target
// (§4.3).
func (s *Store) AnalogicalSearch(ctx context.Context, namespace, sourceSkillID, relA, relB string, k int) ([]vesper.ScoredSkill, error) {
	source, ok, err := s.getSkill(ctx, namespace, sourceSkillID)
	if err != nil {
		return nil, err
	}
	if !ok || len(source.Embedding) == 0 {
		return nil, &vesper.NotFoundError{Kind: "skill", ID: sourceSkillID}
	}
	a, okA, errA := s.getSkill(ctx, namespace, relA)
	b, okB, errB := s.getSkill(ctx, namespace, relB)
	if errA != nil {
		return nil, errA
	}
	if errB != nil {
		return nil, errB
	}
	if !okA || !okB || len(a.Embedding) == 0 || len(b.Embedding) == 0 {
		return nil, &vesper.NotFoundError{Kind: "skill", ID: relA + "," + relB}
	}

	dim := len(source.Embedding) / 4
	sourceVec, err := vesper.DecodeEmbedding(source.Embedding, dim)
	if err != nil {
		return nil, err
	}
	aVec, err := vesper.DecodeEmbedding(a.Embedding, dim)
	if err != nil {
		return nil, err
	}
	bVec, err := vesper.DecodeEmbedding(b.Embedding, dim)
	if err != nil {
		return nil, err
	}
	rel := vesper.SubtractVectors(bVec, aVec)
	target := vesper.AddVectors(sourceVec, rel)
	if target == nil {
		return nil, &vesper.IntegrityError{Message: "analogical search: embedding dimension mismatch"}
	}
	return s.SearchByEmbedding(ctx, namespace, target, k)
}

func topKSkills(scored []vesper.ScoredSkill, k int) []vesper.ScoredSkill {
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func (s *Store) GetSummaries(ctx context.Context, namespace string, limit int) ([]vesper.SkillSummary, error) {
	q := `SELECT id, name, summary, category FROM skills WHERE namespace = ? AND is_archived = 0 ORDER BY success_count DESC`
	args := []any{namespace}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("skill/sqlite: get summaries: %w", err)
	}
	defer rows.Close()
	var out []vesper.SkillSummary
	for rows.Next() {
		var sum vesper.SkillSummary
		var category sql.NullString
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Summary, &category); err != nil {
			return nil, err
		}
		sum.Category = category.String
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DetectInvocation scans text for any registered trigger phrase and
// returns matches ranked by phrase length descending.
func (s *Store) DetectInvocation(ctx context.Context, namespace, text string) ([]vesper.InvocationMatch, error) {
	skills, err := s.allSkills(ctx, namespace)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(text)
	var matches []vesper.InvocationMatch
	var bestLen int
	for _, sk := range skills {
		for _, trig := range sk.Triggers {
			tl := strings.ToLower(trig)
			if tl == "" || !strings.Contains(lower, tl) {
				continue
			}
			confidence := float64(len(tl)) / float64(len(lower)+1)
			if confidence > 1 {
				confidence = 1
			}
			matches = append(matches, vesper.InvocationMatch{SkillID: sk.ID, Confidence: confidence})
			if len(tl) > bestLen {
				bestLen = len(tl)
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Confidence > matches[j].Confidence })
	return matches, nil
}

func (s *Store) RecordSuccess(ctx context.Context, namespace, skillID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE skills SET success_count = success_count + 1, last_used = ? WHERE namespace = ? AND id = ?`,
		vesper.NowUnix(), namespace, skillID)
	if err != nil {
		return fmt.Errorf("skill/sqlite: record success: %w", err)
	}
	return nil
}

func (s *Store) RecordFailure(ctx context.Context, namespace, skillID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE skills SET failure_count = failure_count + 1, last_used = ? WHERE namespace = ? AND id = ?`,
		vesper.NowUnix(), namespace, skillID)
	if err != nil {
		return fmt.Errorf("skill/sqlite: record failure: %w", err)
	}
	return nil
}

// RecordCoOccurrence atomically increments the co-occurrence counter
// between two skills used within the same session (§4.3).
func (s *Store) RecordCoOccurrence(ctx context.Context, namespace, skillA, skillB string) error {
	a, b := vesper.OrderedSkillPair(skillA, skillB)
	now := vesper.NowUnix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skill_relationships (id, namespace, skill_id_1, skill_id_2, relationship_type, co_occurrence_count, created_at, last_updated)
		VALUES (?, ?, ?, ?, 'co_occurs', 1, ?, ?)
		ON CONFLICT(namespace, skill_id_1, skill_id_2, relationship_type) DO UPDATE SET
			co_occurrence_count = skill_relationships.co_occurrence_count + 1,
			last_updated = excluded.last_updated`,
		vesper.NewID(), namespace, a, b, now, now)
	if err != nil {
		return fmt.Errorf("skill/sqlite: record co-occurrence: %w", err)
	}
	return nil
}

func (s *Store) GetCoOccurring(ctx context.Context, namespace, skillID string, limit int) ([]vesper.SkillRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, skill_id_1, skill_id_2, relationship_type, co_occurrence_count, relational_vector, created_at, last_updated
		FROM skill_relationships
		WHERE namespace = ? AND relationship_type = 'co_occurs' AND (skill_id_1 = ? OR skill_id_2 = ?)
		ORDER BY co_occurrence_count DESC LIMIT ?`, namespace, skillID, skillID, limit)
	if err != nil {
		return nil, fmt.Errorf("skill/sqlite: get co-occurring: %w", err)
	}
	defer rows.Close()
	var out []vesper.SkillRelationship
	for rows.Next() {
		var r vesper.SkillRelationship
		var vec []byte
		if err := rows.Scan(&r.ID, &r.SkillID1, &r.SkillID2, &r.RelationshipType, &r.CoOccurrenceCount, &vec, &r.CreatedAt, &r.LastUpdated); err != nil {
			return nil, err
		}
		r.RelationalVector = vesper.Embedding(vec)
		r.Namespace = namespace
		out = append(out, r)
	}
	return out, rows.Err()
}

// ComputeRelationalVectors derives and persists emb(b)-emb(a) for every
// co_occurs pair with co_occurrence_count >= minCount that has
// embeddings on both sides, seeding analogical search (§4.3
// "compute_relational_vectors(min_count)", run periodically by
// consolidation). Pairs below minCount are skipped entirely: a single
// one-off co-occurrence is noise the threshold exists to filter out.
func (s *Store) ComputeRelationalVectors(ctx context.Context, namespace string, minCount int) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, skill_id_1, skill_id_2 FROM skill_relationships WHERE namespace = ? AND relationship_type = 'co_occurs' AND co_occurrence_count >= ?`, namespace, minCount)
	if err != nil {
		return 0, fmt.Errorf("skill/sqlite: scan relationships: %w", err)
	}
	type pair struct{ id, a, b string }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.id, &p.a, &p.b); err != nil {
			rows.Close()
			return 0, err
		}
		pairs = append(pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	count := 0
	for _, p := range pairs {
		skA, okA, _ := s.getSkill(ctx, namespace, p.a)
		skB, okB, _ := s.getSkill(ctx, namespace, p.b)
		if !okA || !okB || len(skA.Embedding) == 0 || len(skB.Embedding) == 0 || len(skA.Embedding) != len(skB.Embedding) {
			continue
		}
		dim := len(skA.Embedding) / 4
		vecA, err := vesper.DecodeEmbedding(skA.Embedding, dim)
		if err != nil {
			continue
		}
		vecB, err := vesper.DecodeEmbedding(skB.Embedding, dim)
		if err != nil {
			continue
		}
		rel := vesper.SubtractVectors(vecB, vecA)
		if rel == nil {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE skill_relationships SET relational_vector = ?, last_updated = ? WHERE id = ?`,
			vesper.EncodeEmbedding(rel), vesper.NowUnix(), p.id); err != nil {
			return count, fmt.Errorf("skill/sqlite: store relational vector: %w", err)
		}
		count++
	}
	return count, nil
}
