// Package sqlite implements vesper.GraphStore using pure-Go SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/oculusnoob/vesper-memory"

	_ "modernc.org/sqlite"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger; unset stores emit no logs.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements vesper.GraphStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ vesper.GraphStore = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath, with a single
// shared connection so concurrent writers serialize instead of racing
// into SQLITE_BUSY.
func New(dbPath string, opts ...Option) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		panic(fmt.Sprintf("graph/sqlite: open driver: %v", err))
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
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT,
			confidence REAL NOT NULL DEFAULT 1.0,
			created_at INTEGER NOT NULL,
			last_accessed INTEGER NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			is_archived INTEGER NOT NULL DEFAULT 0,
			UNIQUE(namespace, name, type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_ns ON entities(namespace)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			relation_type TEXT NOT NULL,
			strength REAL NOT NULL DEFAULT 0.8,
			evidence TEXT,
			created_at INTEGER NOT NULL,
			last_reinforced INTEGER NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			is_archived INTEGER NOT NULL DEFAULT 0,
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
			confidence REAL NOT NULL DEFAULT 1.0,
			valid_from INTEGER NOT NULL,
			valid_until INTEGER,
			source_conversation TEXT,
			contradicts TEXT,
			is_archived INTEGER NOT NULL DEFAULT 0,
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
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
	}
	for _, ddl := range ddls {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("graph/sqlite: create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func scanEntity(row interface{ Scan(dest ...any) error }) (vesper.Entity, error) {
	var e vesper.Entity
	var description sql.NullString
	var archived int
	if err := row.Scan(&e.ID, &e.Name, &e.Type, &description, &e.Confidence, &e.CreatedAt, &e.LastAccessed, &e.AccessCount, &archived); err != nil {
		return vesper.Entity{}, err
	}
	e.Description = description.String
	e.IsArchived = archived != 0
	return e, nil
}

// UpsertEntity inserts a new entity, or bumps access bookkeeping on an
// existing (namespace, name, type) tuple, in one atomic statement (§4.2).
func (s *Store) UpsertEntity(ctx context.Context, namespace, name string, typ vesper.EntityType, description string) (vesper.Entity, error) {
	now := vesper.NowUnix()
	id := vesper.NewID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, namespace, name, type, description, confidence, created_at, last_accessed, access_count, is_archived)
		VALUES (?, ?, ?, ?, ?, 1.0, ?, ?, 1, 0)
		ON CONFLICT(namespace, name, type) DO UPDATE SET
			last_accessed = excluded.last_accessed,
			access_count = entities.access_count + 1`,
		id, namespace, name, string(typ), description, now, now)
	if err != nil {
		return vesper.Entity{}, fmt.Errorf("graph/sqlite: upsert entity: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, description, confidence, created_at, last_accessed, access_count, is_archived
		 FROM entities WHERE namespace = ? AND name = ? AND type = ?`, namespace, name, string(typ))
	e, err := scanEntity(row)
	if err != nil {
		return vesper.Entity{}, fmt.Errorf("graph/sqlite: read back entity: %w", err)
	}
	e.Namespace = namespace
	return e, nil
}

func (s *Store) GetEntity(ctx context.Context, namespace, name string) (vesper.Entity, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vesper.Entity{}, false, fmt.Errorf("graph/sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx,
		`SELECT id, name, type, description, confidence, created_at, last_accessed, access_count, is_archived
		 FROM entities WHERE namespace = ? AND name = ? AND is_archived = 0`, namespace, name)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return vesper.Entity{}, false, nil
	}
	if err != nil {
		return vesper.Entity{}, false, fmt.Errorf("graph/sqlite: get entity: %w", err)
	}
	now := vesper.NowUnix()
	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET last_accessed = ?, access_count = access_count + 1 WHERE id = ?`, now, e.ID); err != nil {
		return vesper.Entity{}, false, fmt.Errorf("graph/sqlite: bump entity access: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return vesper.Entity{}, false, fmt.Errorf("graph/sqlite: commit get entity: %w", err)
	}
	e.Namespace = namespace
	e.LastAccessed = now
	e.AccessCount++
	return e, true, nil
}

func (s *Store) GetEntityByID(ctx context.Context, namespace, id string) (vesper.Entity, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, description, confidence, created_at, last_accessed, access_count, is_archived
		 FROM entities WHERE namespace = ? AND id = ?`, namespace, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return vesper.Entity{}, false, nil
	}
	if err != nil {
		return vesper.Entity{}, false, fmt.Errorf("graph/sqlite: get entity by id: %w", err)
	}
	e.Namespace = namespace
	return e, true, nil
}

func (s *Store) ArchiveEntity(ctx context.Context, namespace, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE entities SET is_archived = 1 WHERE namespace = ? AND id = ?`, namespace, id)
	if err != nil {
		return fmt.Errorf("graph/sqlite: archive entity: %w", err)
	}
	return nil
}

func (s *Store) DeleteEntity(ctx context.Context, namespace, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph/sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM facts WHERE namespace = ? AND entity_id = ?`, namespace, id); err != nil {
		return fmt.Errorf("graph/sqlite: delete entity facts: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM relationships WHERE namespace = ? AND (source_id = ? OR target_id = ?)`, namespace, id, id); err != nil {
		return fmt.Errorf("graph/sqlite: delete entity relationships: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE namespace = ? AND id = ?`, namespace, id); err != nil {
		return fmt.Errorf("graph/sqlite: delete entity: %w", err)
	}
	return tx.Commit()
}

func scanRelationship(row interface{ Scan(dest ...any) error }) (vesper.Relationship, error) {
	var r vesper.Relationship
	var evidence sql.NullString
	var archived int
	if err := row.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelationType, &r.Strength, &evidence, &r.CreatedAt, &r.LastReinforced, &r.AccessCount, &archived); err != nil {
		return vesper.Relationship{}, err
	}
	if evidence.Valid {
		_ = json.Unmarshal([]byte(evidence.String), &r.Evidence)
	}
	r.IsArchived = archived != 0
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, namespace, source_id, target_id, relation_type, strength, evidence, created_at, last_reinforced, access_count, is_archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)
		ON CONFLICT(namespace, source_id, target_id, relation_type) DO UPDATE SET
			strength = MIN(1.0, relationships.strength + 0.2),
			last_reinforced = excluded.last_reinforced`,
		id, namespace, rel.SourceID, rel.TargetID, rel.RelationType, strength, string(evidence), now, now)
	if err != nil {
		return vesper.Relationship{}, fmt.Errorf("graph/sqlite: upsert relationship: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, target_id, relation_type, strength, evidence, created_at, last_reinforced, access_count, is_archived
		 FROM relationships WHERE namespace = ? AND source_id = ? AND target_id = ? AND relation_type = ?`,
		namespace, rel.SourceID, rel.TargetID, rel.RelationType)
	r, err := scanRelationship(row)
	if err != nil {
		return vesper.Relationship{}, fmt.Errorf("graph/sqlite: read back relationship: %w", err)
	}
	r.Namespace = namespace
	return r, nil
}

func (s *Store) GetRelationships(ctx context.Context, namespace, entityID string) ([]vesper.Relationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, target_id, relation_type, strength, evidence, created_at, last_reinforced, access_count, is_archived
		 FROM relationships WHERE namespace = ? AND is_archived = 0 AND (source_id = ? OR target_id = ?)`,
		namespace, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("graph/sqlite: get relationships: %w", err)
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strength, last_reinforced FROM relationships WHERE namespace = ? AND is_archived = 0`, namespace)
	if err != nil {
		return 0, fmt.Errorf("graph/sqlite: scan for decay: %w", err)
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("graph/sqlite: begin decay tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	count := 0
	for _, r := range toUpdate {
		deltaDays := float64(now-r.last) / 86400.0
		if deltaDays < 0 {
			deltaDays = 0
		}
		newStrength := r.strength * math.Exp(-deltaDays/decayLambdaDays)
		if _, err := tx.ExecContext(ctx, `UPDATE relationships SET strength = ? WHERE id = ?`, newStrength, r.id); err != nil {
			return 0, fmt.Errorf("graph/sqlite: apply decay: %w", err)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("graph/sqlite: commit decay: %w", err)
	}
	return count, nil
}

// PruneRelationships hard-deletes relationships below minStrength whose
// endpoints both have access_count below minAccessCount (§4.5 step 5).
func (s *Store) PruneRelationships(ctx context.Context, namespace string, minStrength float64, minAccessCount int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM relationships WHERE namespace = ? AND strength < ? AND
			source_id IN (SELECT id FROM entities WHERE namespace = ? AND access_count < ?) AND
			target_id IN (SELECT id FROM entities WHERE namespace = ? AND access_count < ?)`,
		namespace, minStrength, namespace, minAccessCount, namespace, minAccessCount)
	if err != nil {
		return 0, fmt.Errorf("graph/sqlite: prune relationships: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanFact(row interface{ Scan(dest ...any) error }) (vesper.Fact, error) {
	var f vesper.Fact
	var validUntil sql.NullInt64
	var sourceConv, contradicts sql.NullString
	var archived int
	if err := row.Scan(&f.ID, &f.EntityID, &f.Property, &f.Value, &f.Confidence, &f.ValidFrom, &validUntil, &sourceConv, &contradicts, &archived); err != nil {
		return vesper.Fact{}, err
	}
	if validUntil.Valid {
		v := validUntil.Int64
		f.ValidUntil = &v
	}
	f.SourceConversation = sourceConv.String
	if contradicts.Valid {
		_ = json.Unmarshal([]byte(contradicts.String), &f.Contradicts)
	}
	f.IsArchived = archived != 0
	return f, nil
}

func (s *Store) UpsertFact(ctx context.Context, namespace string, fact vesper.Fact) (vesper.Fact, error) {
	id := vesper.NewID()
	contradicts, _ := json.Marshal(fact.Contradicts)
	confidence := fact.Confidence
	if confidence <= 0 {
		confidence = 1.0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (id, namespace, entity_id, property, value, confidence, valid_from, valid_until, source_conversation, contradicts, is_archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(namespace, entity_id, property, value, valid_from) DO UPDATE SET
			confidence = excluded.confidence,
			valid_until = excluded.valid_until`,
		id, namespace, fact.EntityID, fact.Property, fact.Value, confidence, fact.ValidFrom, fact.ValidUntil, fact.SourceConversation, string(contradicts))
	if err != nil {
		return vesper.Fact{}, fmt.Errorf("graph/sqlite: upsert fact: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, entity_id, property, value, confidence, valid_from, valid_until, source_conversation, contradicts, is_archived
		 FROM facts WHERE namespace = ? AND entity_id = ? AND property = ? AND value = ? AND valid_from = ?`,
		namespace, fact.EntityID, fact.Property, fact.Value, fact.ValidFrom)
	f, err := scanFact(row)
	if err != nil {
		return vesper.Fact{}, fmt.Errorf("graph/sqlite: read back fact: %w", err)
	}
	f.Namespace = namespace
	return f, nil
}

func (s *Store) GetFactsForEntity(ctx context.Context, namespace, entityID string, onlyActive bool) ([]vesper.Fact, error) {
	q := `SELECT id, entity_id, property, value, confidence, valid_from, valid_until, source_conversation, contradicts, is_archived
	      FROM facts WHERE namespace = ? AND entity_id = ? AND is_archived = 0`
	args := []any{namespace, entityID}
	if onlyActive {
		q += ` AND (valid_until IS NULL OR valid_until > ?)`
		args = append(args, vesper.NowUnix())
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph/sqlite: get facts: %w", err)
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
	row := s.db.QueryRowContext(ctx,
		`SELECT id, entity_id, property, value, confidence, valid_from, valid_until, source_conversation, contradicts, is_archived
		 FROM facts WHERE namespace = ? AND id = ?`, namespace, id)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return vesper.Fact{}, false, nil
	}
	if err != nil {
		return vesper.Fact{}, false, fmt.Errorf("graph/sqlite: get fact by id: %w", err)
	}
	f.Namespace = namespace
	return f, true, nil
}

func (s *Store) CloseFact(ctx context.Context, namespace, factID string, validUntil int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE facts SET valid_until = ? WHERE namespace = ? AND id = ?`, validUntil, namespace, factID)
	if err != nil {
		return fmt.Errorf("graph/sqlite: close fact: %w", err)
	}
	return nil
}

func (s *Store) SetFactConfidence(ctx context.Context, namespace, factID string, confidence float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE facts SET confidence = ? WHERE namespace = ? AND id = ?`, confidence, namespace, factID)
	if err != nil {
		return fmt.Errorf("graph/sqlite: set fact confidence: %w", err)
	}
	return nil
}

func (s *Store) GetByTimeRange(ctx context.Context, namespace string, start, end *int64) ([]vesper.Fact, error) {
	q := `SELECT id, entity_id, property, value, confidence, valid_from, valid_until, source_conversation, contradicts, is_archived
	      FROM facts WHERE namespace = ? AND is_archived = 0`
	args := []any{namespace}
	if end != nil {
		q += ` AND valid_from <= ?`
		args = append(args, *end)
	}
	if start != nil {
		q += ` AND (valid_until IS NULL OR valid_until >= ?)`
		args = append(args, *start)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph/sqlite: get by time range: %w", err)
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
	      WHERE f.namespace = ? AND e.type = ? AND f.is_archived = 0 AND (f.valid_until IS NULL OR f.valid_until > ?)`
	args := []any{namespace, string(vesper.EntityPreference), vesper.NowUnix()}
	if domain != "" {
		q += ` AND e.name = ?`
		args = append(args, domain)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph/sqlite: get preferences: %w", err)
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("graph/sqlite: begin conflict tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conflicts WHERE namespace = ? AND fact_id_1 = ? AND fact_id_2 = ?`,
		namespace, f1, f2).Scan(&exists); err != nil {
		return false, fmt.Errorf("graph/sqlite: check existing conflict: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	id := vesper.NewID()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conflicts (id, namespace, fact_id_1, fact_id_2, entity_id, property, kind, description, severity, resolution_status, user_resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, namespace, f1, f2, c.EntityID, c.Property, string(c.Kind), c.Description, string(c.Severity), string(vesper.ResolutionFlagged), ""); err != nil {
		return false, fmt.Errorf("graph/sqlite: insert conflict: %w", err)
	}
	for _, factID := range []string{f1, f2} {
		if _, err := tx.ExecContext(ctx, `UPDATE facts SET confidence = 0.5 WHERE namespace = ? AND id = ?`, namespace, factID); err != nil {
			return false, fmt.Errorf("graph/sqlite: downgrade fact confidence: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("graph/sqlite: commit conflict: %w", err)
	}
	return true, nil
}

func (s *Store) ListConflicts(ctx context.Context, namespace string, status vesper.ConflictStatus) ([]vesper.Conflict, error) {
	q := `SELECT id, fact_id_1, fact_id_2, entity_id, property, kind, description, severity, resolution_status, user_resolution
	      FROM conflicts WHERE namespace = ?`
	args := []any{namespace}
	if status != "" {
		q += ` AND resolution_status = ?`
		args = append(args, string(status))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("graph/sqlite: list conflicts: %w", err)
	}
	defer rows.Close()
	var out []vesper.Conflict
	for rows.Next() {
		var c vesper.Conflict
		var property, userResolution sql.NullString
		var kind, severity, resStatus string
		if err := rows.Scan(&c.ID, &c.FactID1, &c.FactID2, &c.EntityID, &property, &kind, &c.Description, &severity, &resStatus, &userResolution); err != nil {
			return nil, err
		}
		c.Property = property.String
		c.Kind = vesper.ConflictKind(kind)
		c.Severity = vesper.ConflictSeverity(severity)
		c.ResolutionStatus = vesper.ConflictStatus(resStatus)
		c.UserResolution = userResolution.String
		c.Namespace = namespace
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResolveConflict advances a conflict's status; conflicts are never
// auto-resolved, only externally triggered (§4.4).
func (s *Store) ResolveConflict(ctx context.Context, namespace, conflictID string, status vesper.ConflictStatus, userResolution string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conflicts SET resolution_status = ?, user_resolution = ? WHERE namespace = ? AND id = ?`,
		string(status), userResolution, namespace, conflictID)
	if err != nil {
		return fmt.Errorf("graph/sqlite: resolve conflict: %w", err)
	}
	return nil
}

// pprDamping is the personalized-PageRank damping factor (§4.2).
const pprDamping = 0.7

// pprThreshold is the minimum propagated score to keep visiting further
// (plain traversal); fact-collecting traversal uses pprFactThreshold.
const pprThreshold = 0.1
const pprFactThreshold = 0.05

type pprNode struct {
	entityID string
	score    float64
	path     []string
	lastRel  string
}

// walkPPR performs the bounded-depth weighted BFS shared by
// PersonalizedPageRank and PersonalizedPageRankWithFacts: at each hop the
// score propagated to a neighbor is parentScore * damping * relationship
// strength, and a neighbor is visited only if that propagated score
// exceeds threshold.
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
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO backups (id, namespace, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		meta.ID, namespace, meta.CreatedAt, meta.ExpiresAt)
	if err != nil {
		return fmt.Errorf("graph/sqlite: record backup: %w", err)
	}
	return nil
}
