// Package postgres implements vesper.GraphStore using PostgreSQL,
// exercising the teacher's pgx/v5 dependency for a production
// deployment target. Evidence and contradicts lists use JSONB columns
// instead of graph/sqlite's marshaled TEXT.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oculusnoob/vesper-memory"
)

// Store implements vesper.GraphStore backed by a *pgxpool.Pool. The
// caller owns the pool and is responsible for closing it.
type Store struct {
	pool *pgxpool.Pool
}

var _ vesper.GraphStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates every table and index this store needs. Safe to call
// multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			created_at BIGINT NOT NULL,
			last_accessed BIGINT NOT NULL,
			access_count BIGINT NOT NULL DEFAULT 0,
			is_archived BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE(namespace, name, type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_ns ON entities(namespace)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			relation_type TEXT NOT NULL,
			strength DOUBLE PRECISION NOT NULL DEFAULT 0.8,
			evidence JSONB,
			created_at BIGINT NOT NULL,
			last_reinforced BIGINT NOT NULL,
			access_count BIGINT NOT NULL DEFAULT 0,
			is_archived BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE(namespace, source_id, target_id, relation_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(namespace, source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships(namespace, target_id)`,
		`CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			property TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			valid_from BIGINT NOT NULL,
			valid_until BIGINT,
			source_conversation TEXT,
			contradicts JSONB,
			is_archived BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE(namespace, entity_id, property, value, valid_from)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_entity ON facts(namespace, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_validity ON facts(namespace, valid_from, valid_until)`,
		`CREATE TABLE IF NOT EXISTS conflicts (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			fact_id_1 TEXT NOT NULL,
			fact_id_2 TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			property TEXT,
			kind TEXT NOT NULL,
			description TEXT,
			severity TEXT NOT NULL,
			resolution_status TEXT NOT NULL DEFAULT 'flagged',
			user_resolution TEXT,
			UNIQUE(namespace, fact_id_1, fact_id_2)
		)`,
		`CREATE TABLE IF NOT EXISTS backups (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("graph/postgres: create schema: %w", err)
		}
	}
	return nil
}

// Close does not close the pool; the caller that created it closes it.
func (s *Store) Close() error {
	return nil
}

func scanEntity(row pgx.Row) (vesper.Entity, error) {
	var e vesper.Entity
	var description *string
	if err := row.Scan(&e.ID, &e.Name, &e.Type, &description, &e.Confidence, &e.CreatedAt, &e.LastAccessed, &e.AccessCount, &e.IsArchived); err != nil {
		return vesper.Entity{}, err
	}
	if description != nil {
		e.Description = *description
	}
	return e, nil
}

const entityCols = `id, name, type, description, confidence, created_at, last_accessed, access_count, is_archived`

// UpsertEntity inserts a new entity, or bumps access bookkeeping on an
// existing (namespace, name, type) tuple, in one atomic statement (§4.2).
func (s *Store) UpsertEntity(ctx context.Context, namespace, name string, typ vesper.EntityType, description string) (vesper.Entity, error) {
	now := vesper.NowUnix()
	id := vesper.NewID()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entities (id, namespace, name, type, description, confidence, created_at, last_accessed, access_count, is_archived)
		VALUES ($1, $2, $3, $4, $5, 1.0, $6, $6, 1, FALSE)
		ON CONFLICT (namespace, name, type) DO UPDATE SET
			last_accessed = excluded.last_accessed,
			access_count = entities.access_count + 1`,
		id, namespace, name, string(typ), description, now)
	if err != nil {
		return vesper.Entity{}, fmt.Errorf("graph/postgres: upsert entity: %w", err)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+entityCols+` FROM entities WHERE namespace = $1 AND name = $2 AND type = $3`, namespace, name, string(typ))
	e, err := scanEntity(row)
	if err != nil {
		return vesper.Entity{}, fmt.Errorf("graph/postgres: read back entity: %w", err)
	}
	e.Namespace = namespace
	return e, nil
}

func (s *Store) GetEntity(ctx context.Context, namespace, name string) (vesper.Entity, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return vesper.Entity{}, false, fmt.Errorf("graph/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+entityCols+` FROM entities WHERE namespace = $1 AND name = $2 AND is_archived = FALSE`, namespace, name)
	e, err := scanEntity(row)
	if err == pgx.ErrNoRows {
		return vesper.Entity{}, false, nil
	}
	if err != nil {
		return vesper.Entity{}, false, fmt.Errorf("graph/postgres: get entity: %w", err)
	}
	now := vesper.NowUnix()
	if _, err := tx.Exec(ctx, `UPDATE entities SET last_accessed = $1, access_count = access_count + 1 WHERE id = $2`, now, e.ID); err != nil {
		return vesper.Entity{}, false, fmt.Errorf("graph/postgres: bump entity access: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return vesper.Entity{}, false, fmt.Errorf("graph/postgres: commit get entity: %w", err)
	}
	e.Namespace = namespace
	e.LastAccessed = now
	e.AccessCount++
	return e, true, nil
}

func (s *Store) GetEntityByID(ctx context.Context, namespace, id string) (vesper.Entity, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entityCols+` FROM entities WHERE namespace = $1 AND id = $2`, namespace, id)
	e, err := scanEntity(row)
	if err == pgx.ErrNoRows {
		return vesper.Entity{}, false, nil
	}
	if err != nil {
		return vesper.Entity{}, false, fmt.Errorf("graph/postgres: get entity by id: %w", err)
	}
	e.Namespace = namespace
	return e, true, nil
}

func (s *Store) ArchiveEntity(ctx context.Context, namespace, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE entities SET is_archived = TRUE WHERE namespace = $1 AND id = $2`, namespace, id)
	if err != nil {
		return fmt.Errorf("graph/postgres: archive entity: %w", err)
	}
	return nil
}

func (s *Store) DeleteEntity(ctx context.Context, namespace, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("graph/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM facts WHERE namespace = $1 AND entity_id = $2`, namespace, id); err != nil {
		return fmt.Errorf("graph/postgres: delete entity facts: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM relationships WHERE namespace = $1 AND (source_id = $2 OR target_id = $2)`, namespace, id); err != nil {
		return fmt.Errorf("graph/postgres: delete entity relationships: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM entities WHERE namespace = $1 AND id = $2`, namespace, id); err != nil {
		return fmt.Errorf("graph/postgres: delete entity: %w", err)
	}
	return tx.Commit(ctx)
}

const relCols = `id, source_id, target_id, relation_type, strength, evidence, created_at, last_reinforced, access_count, is_archived`

func scanRelationship(row pgx.Row) (vesper.Relationship, error) {
	var r vesper.Relationship
	var evidence []byte
	if err := row.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelationType, &r.Strength, &evidence, &r.CreatedAt, &r.LastReinforced, &r.AccessCount, &r.IsArchived); err != nil {
		return vesper.Relationship{}, err
	}
	if len(evidence) > 0 {
		_ = json.Unmarshal(evidence, &r.Evidence)
	}
	return r, nil
}

// UpsertRelationship inserts a new relationship (strength 0.8), or
// reinforces an existing (source, target, relation_type) tuple by
// strength = min(1.0, strength+0.2) (§4.2).
func (s *Store) UpsertRelationship(ctx context.Context, namespace string, rel vesper.Relationship) (vesper.Relationship, error) {
	if rel.SourceID == rel.TargetID {
		return vesper.Relationship{}, &vesper.ValidationError{Field: "target_id", Message: "relationship source and target must differ"}
	}
	now := vesper.NowUnix()
	id := vesper.NewID()
	evidence, _ := json.Marshal(rel.Evidence)
	strength := rel.Strength
	if strength <= 0 {
		strength = 0.8
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO relationships (id, namespace, source_id, target_id, relation_type, strength, evidence, created_at, last_reinforced, access_count, is_archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, 0, FALSE)
		ON CONFLICT (namespace, source_id, target_id, relation_type) DO UPDATE SET
			strength = LEAST(1.0, relationships.strength + 0.2),
			last_reinforced = excluded.last_reinforced`,
		id, namespace, rel.SourceID, rel.TargetID, rel.RelationType, strength, evidence, now)
	if err != nil {
		return vesper.Relationship{}, fmt.Errorf("graph/postgres: upsert relationship: %w", err)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+relCols+` FROM relationships WHERE namespace = $1 AND source_id = $2 AND target_id = $3 AND relation_type = $4`,
		namespace, rel.SourceID, rel.TargetID, rel.RelationType)
	r, err := scanRelationship(row)
	if err != nil {
		return vesper.Relationship{}, fmt.Errorf("graph/postgres: read back relationship: %w", err)
	}
	r.Namespace = namespace
	return r, nil
}

func (s *Store) GetRelationships(ctx context.Context, namespace, entityID string) ([]vesper.Relationship, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+relCols+` FROM relationships WHERE namespace = $1 AND is_archived = FALSE AND (source_id = $2 OR target_id = $2)`,
		namespace, entityID)
	if err != nil {
		return nil, fmt.Errorf("graph/postgres: get relationships: %w", err)
	}
	defer rows.Close()
	var out []vesper.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		r.Namespace = namespace
		out = append(out, r)
	}
	return out, rows.Err()
}

// decayLambdaDays is the temporal-decay time constant in days (§4.2):
// strength' = strength * exp(-Δdays/30).
const decayLambdaDays = 30.0

// ApplyTemporalDecay applies exponential decay to every non-archived
// relationship's strength and returns the count updated.
func (s *Store) ApplyTemporalDecay(ctx context.Context, namespace string) (int, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, strength, last_reinforced FROM relationships WHERE namespace = $1 AND is_archived = FALSE`, namespace)
	if err != nil {
		return 0, fmt.Errorf("graph/postgres: scan for decay: %w", err)
	}
	type row struct {
		id       string
		strength float64
		last     int64
	}
	var toUpdate []row
	now := vesper.NowUnix()
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.strength, &r.last); err != nil {
			rows.Close()
			return 0, err
		}
		toUpdate = append(toUpdate, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("graph/postgres: begin decay tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	count := 0
	for _, r := range toUpdate {
		deltaDays := float64(now-r.last) / 86400.0
		if deltaDays < 0 {
			deltaDays = 0
		}
		newStrength := r.strength * math.Exp(-deltaDays/decayLambdaDays)
		if _, err := tx.Exec(ctx, `UPDATE relationships SET strength = $1 WHERE id = $2`, newStrength, r.id); err != nil {
			return 0, fmt.Errorf("graph/postgres: apply decay: %w", err)
		}
		count++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("graph/postgres: commit decay: %w", err)
	}
	return count, nil
}

// PruneRelationships hard-deletes relationships below minStrength whose
// endpoints both have access_count below minAccessCount (§4.5 step 5).
func (s *Store) PruneRelationships(ctx context.Context, namespace string, minStrength float64, minAccessCount int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM relationships WHERE namespace = $1 AND strength < $2 AND
			source_id IN (SELECT id FROM entities WHERE namespace = $1 AND access_count < $3) AND
			target_id IN (SELECT id FROM entities WHERE namespace = $1 AND access_count < $3)`,
		namespace, minStrength, minAccessCount)
	if err != nil {
		return 0, fmt.Errorf("graph/postgres: prune relationships: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const factCols = `id, entity_id, property, value, confidence, valid_from, valid_until, source_conversation, contradicts, is_archived`

func scanFact(row pgx.Row) (vesper.Fact, error) {
	var f vesper.Fact
	var validUntil *int64
	var sourceConv *string
	var contradicts []byte
	if err := row.Scan(&f.ID, &f.EntityID, &f.Property, &f.Value, &f.Confidence, &f.ValidFrom, &validUntil, &sourceConv, &contradicts, &f.IsArchived); err != nil {
		return vesper.Fact{}, err
	}
	f.ValidUntil = validUntil
	if sourceConv != nil {
		f.SourceConversation = *sourceConv
	}
	if len(contradicts) > 0 {
		_ = json.Unmarshal(contradicts, &f.Contradicts)
	}
	return f, nil
}

func (s *Store) UpsertFact(ctx context.Context, namespace string, fact vesper.Fact) (vesper.Fact, error) {
	id := vesper.NewID()
	contradicts, _ := json.Marshal(fact.Contradicts)
	confidence := fact.Confidence
	if confidence <= 0 {
		confidence = 1.0
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO facts (id, namespace, entity_id, property, value, confidence, valid_from, valid_until, source_conversation, contradicts, is_archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE)
		ON CONFLICT (namespace, entity_id, property, value, valid_from) DO UPDATE SET
			confidence = excluded.confidence,
			valid_until = excluded.valid_until`,
		id, namespace, fact.EntityID, fact.Property, fact.Value, confidence, fact.ValidFrom, fact.ValidUntil, fact.SourceConversation, contradicts)
	if err != nil {
		return vesper.Fact{}, fmt.Errorf("graph/postgres: upsert fact: %w", err)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+factCols+` FROM facts WHERE namespace = $1 AND entity_id = $2 AND property = $3 AND value = $4 AND valid_from = $5`,
		namespace, fact.EntityID, fact.Property, fact.Value, fact.ValidFrom)
	f, err := scanFact(row)
	if err != nil {
		return vesper.Fact{}, fmt.Errorf("graph/postgres: read back fact: %w", err)
	}
	f.Namespace = namespace
	return f, nil
}

func (s *Store) GetFactsForEntity(ctx context.Context, namespace, entityID string, onlyActive bool) ([]vesper.Fact, error) {
	q := `SELECT ` + factCols + ` FROM facts WHERE namespace = $1 AND entity_id = $2 AND is_archived = FALSE`
	args := []any{namespace, entityID}
	if onlyActive {
		q += ` AND (valid_until IS NULL OR valid_until > $3)`
		args = append(args, vesper.NowUnix())
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph/postgres: get facts: %w", err)
	}
	defer rows.Close()
	var out []vesper.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		f.Namespace = namespace
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) GetFactByID(ctx context.Context, namespace, id string) (vesper.Fact, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+factCols+` FROM facts WHERE namespace = $1 AND id = $2`, namespace, id)
	f, err := scanFact(row)
	if err == pgx.ErrNoRows {
		return vesper.Fact{}, false, nil
	}
	if err != nil {
		return vesper.Fact{}, false, fmt.Errorf("graph/postgres: get fact by id: %w", err)
	}
	f.Namespace = namespace
	return f, true, nil
}

func (s *Store) CloseFact(ctx context.Context, namespace, factID string, validUntil int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE facts SET valid_until = $1 WHERE namespace = $2 AND id = $3`, validUntil, namespace, factID)
	if err != nil {
		return fmt.Errorf("graph/postgres: close fact: %w", err)
	}
	return nil
}

func (s *Store) SetFactConfidence(ctx context.Context, namespace, factID string, confidence float64) error {
	_, err := s.pool.Exec(ctx, `UPDATE facts SET confidence = $1 WHERE namespace = $2 AND id = $3`, confidence, namespace, factID)
	if err != nil {
		return fmt.Errorf("graph/postgres: set fact confidence: %w", err)
	}
	return nil
}

func (s *Store) GetByTimeRange(ctx context.Context, namespace string, start, end *int64) ([]vesper.Fact, error) {
	q := `SELECT ` + factCols + ` FROM facts WHERE namespace = $1 AND is_archived = FALSE`
	args := []any{namespace}
	if end != nil {
		args = append(args, *end)
		q += fmt.Sprintf(` AND valid_from <= $%d`, len(args))
	}
	if start != nil {
		args = append(args, *start)
		q += fmt.Sprintf(` AND (valid_until IS NULL OR valid_until >= $%d)`, len(args))
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph/postgres: get by time range: %w", err)
	}
	defer rows.Close()
	var out []vesper.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		f.Namespace = namespace
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) GetPreferences(ctx context.Context, namespace, domain string) ([]vesper.Fact, error) {
	q := `SELECT f.id, f.entity_id, f.property, f.value, f.confidence, f.valid_from, f.valid_until, f.source_conversation, f.contradicts, f.is_archived
	      FROM facts f JOIN entities e ON e.id = f.entity_id
	      WHERE f.namespace = $1 AND e.type = $2 AND f.is_archived = FALSE AND (f.valid_until IS NULL OR f.valid_until > $3)`
	args := []any{namespace, string(vesper.EntityPreference), vesper.NowUnix()}
	if domain != "" {
		args = append(args, domain)
		q += fmt.Sprintf(` AND e.name = $%d`, len(args))
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph/postgres: get preferences: %w", err)
	}
	defer rows.Close()
	var out []vesper.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		f.Namespace = namespace
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecordConflict inserts a conflict record (deduplicated by normalized
// fact-id pair) and downgrades both facts' confidence to 0.5, atomically
// (§4.4, §9).
func (s *Store) RecordConflict(ctx context.Context, namespace string, c vesper.Conflict) (bool, error) {
	f1, f2 := vesper.OrderedFactPair(c.FactID1, c.FactID2)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("graph/postgres: begin conflict tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM conflicts WHERE namespace = $1 AND fact_id_1 = $2 AND fact_id_2 = $3`,
		namespace, f1, f2).Scan(&exists); err != nil {
		return false, fmt.Errorf("graph/postgres: check existing conflict: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	id := vesper.NewID()
	if _, err := tx.Exec(ctx, `
		INSERT INTO conflicts (id, namespace, fact_id_1, fact_id_2, entity_id, property, kind, description, severity, resolution_status, user_resolution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '')`,
		id, namespace, f1, f2, c.EntityID, c.Property, string(c.Kind), c.Description, string(c.Severity), string(vesper.ResolutionFlagged)); err != nil {
		return false, fmt.Errorf("graph/postgres: insert conflict: %w", err)
	}
	for _, factID := range []string{f1, f2} {
		if _, err := tx.Exec(ctx, `UPDATE facts SET confidence = 0.5 WHERE namespace = $1 AND id = $2`, namespace, factID); err != nil {
			return false, fmt.Errorf("graph/postgres: downgrade fact confidence: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("graph/postgres: commit conflict: %w", err)
	}
	return true, nil
}

func (s *Store) ListConflicts(ctx context.Context, namespace string, status vesper.ConflictStatus) ([]vesper.Conflict, error) {
	q := `SELECT id, fact_id_1, fact_id_2, entity_id, property, kind, description, severity, resolution_status, user_resolution
	      FROM conflicts WHERE namespace = $1`
	args := []any{namespace}
	if status != "" {
		args = append(args, string(status))
		q += fmt.Sprintf(` AND resolution_status = $%d`, len(args))
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph/postgres: list conflicts: %w", err)
	}
	defer rows.Close()
	var out []vesper.Conflict
	for rows.Next() {
		var c vesper.Conflict
		var property, userResolution *string
		var kind, severity, resStatus string
		if err := rows.Scan(&c.ID, &c.FactID1, &c.FactID2, &c.EntityID, &property, &kind, &c.Description, &severity, &resStatus, &userResolution); err != nil {
			return nil, err
		}
		if property != nil {
			c.Property = *property
		}
		if userResolution != nil {
			c.UserResolution = *userResolution
		}
		c.Kind = vesper.ConflictKind(kind)
		c.Severity = vesper.ConflictSeverity(severity)
		c.ResolutionStatus = vesper.ConflictStatus(resStatus)
		c.Namespace = namespace
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResolveConflict advances a conflict's status; conflicts are never
// auto-resolved, only externally triggered (§4.4).
func (s *Store) ResolveConflict(ctx context.Context, namespace, conflictID string, status vesper.ConflictStatus, userResolution string) error {
	_, err := s.pool.Exec(ctx, `UPDATE conflicts SET resolution_status = $1, user_resolution = $2 WHERE namespace = $3 AND id = $4`,
		string(status), userResolution, namespace, conflictID)
	if err != nil {
		return fmt.Errorf("graph/postgres: resolve conflict: %w", err)
	}
	return nil
}

// pprDamping is the personalized-PageRank damping factor (§4.2).
const pprDamping = 0.7
const pprThreshold = 0.1
const pprFactThreshold = 0.05

type pprNode struct {
	entityID string
	score    float64
	path     []string
	lastRel  string
}

// walkPPR performs the bounded-depth weighted BFS shared by
// PersonalizedPageRank and PersonalizedPageRankWithFacts, mirroring
// graph/sqlite's traversal exactly so both backends answer identically.
func (s *Store) walkPPR(ctx context.Context, namespace, rootID string, depth int, threshold float64) (map[string]pprNode, error) {
	visited := map[string]pprNode{rootID: {entityID: rootID, score: 1.0, path: []string{rootID}}}
	frontier := []string{rootID}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			parent := visited[id]
			rels, err := s.GetRelationships(ctx, namespace, id)
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				neighbor := rel.TargetID
				if neighbor == id {
					neighbor = rel.SourceID
				}
				propagated := parent.score * pprDamping * rel.Strength
				if propagated <= threshold {
					continue
				}
				if existing, ok := visited[neighbor]; ok && existing.score >= propagated {
					continue
				}
				path := append(append([]string{}, parent.path...), neighbor)
				visited[neighbor] = pprNode{entityID: neighbor, score: propagated, path: path, lastRel: rel.RelationType}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return visited, nil
}

// PersonalizedPageRank runs a bounded-depth weighted BFS from entityID,
// returning visited entities sorted by propagated score descending.
func (s *Store) PersonalizedPageRank(ctx context.Context, namespace, entityID string, depth int) (vesper.PPRResult, error) {
	visited, err := s.walkPPR(ctx, namespace, entityID, depth, pprThreshold)
	if err != nil {
		return vesper.PPRResult{}, err
	}
	var result vesper.PPRResult
	for id, node := range visited {
		if id == entityID {
			continue
		}
		e, ok, err := s.GetEntityByID(ctx, namespace, id)
		if err != nil {
			return vesper.PPRResult{}, err
		}
		if !ok {
			continue
		}
		result.Entities = append(result.Entities, vesper.ScoredEntity{Entity: e, Score: node.score})
	}
	sort.Slice(result.Entities, func(i, j int) bool { return result.Entities[i].Score > result.Entities[j].Score })
	return result, nil
}

// PersonalizedPageRankWithFacts runs the same traversal while also
// collecting currently-valid facts, paths, and chains for paths of more
// than two entities, i.e. two or more hops (§4.2).
func (s *Store) PersonalizedPageRankWithFacts(ctx context.Context, namespace, entityID string, depth int) (vesper.PPRFactResult, error) {
	visited, err := s.walkPPR(ctx, namespace, entityID, depth, pprFactThreshold)
	if err != nil {
		return vesper.PPRFactResult{}, err
	}
	result := vesper.PPRFactResult{Paths: make(map[string]vesper.PPRPath)}
	for id, node := range visited {
		if id == entityID {
			continue
		}
		e, ok, err := s.GetEntityByID(ctx, namespace, id)
		if err != nil {
			return vesper.PPRFactResult{}, err
		}
		if !ok {
			continue
		}
		result.Entities = append(result.Entities, vesper.ScoredEntity{Entity: e, Score: node.score})
		result.Paths[id] = vesper.PPRPath{EntityIDs: node.path, LastRelationType: node.lastRel}

		facts, err := s.GetFactsForEntity(ctx, namespace, id, true)
		if err != nil {
			return vesper.PPRFactResult{}, err
		}
		for _, f := range facts {
			result.Facts = append(result.Facts, vesper.ScoredFact{Fact: f, Score: node.score * f.Confidence})
		}
		if len(node.path) > 2 {
			names := make([]string, 0, len(node.path))
			for _, pid := range node.path {
				if pe, ok, _ := s.GetEntityByID(ctx, namespace, pid); ok {
					names = append(names, pe.Name)
				}
			}
			result.Chains = append(result.Chains, vesper.FactChain{EntityNames: names, Score: node.score})
		}
	}
	sort.Slice(result.Entities, func(i, j int) bool { return result.Entities[i].Score > result.Entities[j].Score })
	sort.Slice(result.Facts, func(i, j int) bool { return result.Facts[i].Score > result.Facts[j].Score })
	return result, nil
}

func (s *Store) RecordBackup(ctx context.Context, namespace string, meta vesper.BackupMetadata) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backups (id, namespace, created_at, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET created_at = excluded.created_at, expires_at = excluded.expires_at`,
		meta.ID, namespace, meta.CreatedAt, meta.ExpiresAt)
	if err != nil {
		return fmt.Errorf("graph/postgres: record backup: %w", err)
	}
	return nil
}
