package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	vesper "github.com/oculusnoob/vesper-memory"
	"github.com/oculusnoob/vesper-memory/graph/postgres"
)

// testDSN returns the test database DSN from the environment, or skips
// the test if VESPER_TEST_POSTGRES_DSN is not set — these tests need a
// real PostgreSQL instance and do not run under the default suite.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VESPER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VESPER_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS conflicts", "DROP TABLE IF EXISTS relationships",
		"DROP TABLE IF EXISTS facts", "DROP TABLE IF EXISTS entities",
		"DROP TABLE IF EXISTS backups",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema: %v", err)
		}
	}

	store := postgres.New(pool)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertEntityReinforcesOnConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e1, err := store.UpsertEntity(ctx, "ns", "redis", vesper.EntityConcept, "a cache")
	if err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	if e1.AccessCount != 1 {
		t.Fatalf("expected AccessCount 1, got %d", e1.AccessCount)
	}

	e2, err := store.UpsertEntity(ctx, "ns", "redis", vesper.EntityConcept, "a cache")
	if err != nil {
		t.Fatalf("UpsertEntity (reinforce): %v", err)
	}
	if e2.ID != e1.ID {
		t.Fatalf("expected same entity id on reinforce, got %q vs %q", e2.ID, e1.ID)
	}
	if e2.AccessCount != 2 {
		t.Fatalf("expected AccessCount 2 after reinforce, got %d", e2.AccessCount)
	}
}

func TestUpsertRelationshipRejectsSelfLoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e, err := store.UpsertEntity(ctx, "ns", "redis", vesper.EntityConcept, "")
	if err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	_, err = store.UpsertRelationship(ctx, "ns", vesper.Relationship{SourceID: e.ID, TargetID: e.ID, RelationType: string(vesper.RelUses)})
	if err == nil {
		t.Fatal("expected an error for a self-loop relationship")
	}
}

func TestUpsertRelationshipReinforcesStrength(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _ := store.UpsertEntity(ctx, "ns", "alice", vesper.EntityPerson, "")
	b, _ := store.UpsertEntity(ctx, "ns", "redis", vesper.EntityConcept, "")

	rel := vesper.Relationship{SourceID: a.ID, TargetID: b.ID, RelationType: string(vesper.RelUses), Evidence: []string{"conv-1"}}
	r1, err := store.UpsertRelationship(ctx, "ns", rel)
	if err != nil {
		t.Fatalf("UpsertRelationship: %v", err)
	}
	if r1.Strength != 0.8 {
		t.Fatalf("expected initial strength 0.8, got %v", r1.Strength)
	}

	r2, err := store.UpsertRelationship(ctx, "ns", rel)
	if err != nil {
		t.Fatalf("UpsertRelationship (reinforce): %v", err)
	}
	if r2.Strength < 0.99 || r2.Strength > 1.0 {
		t.Fatalf("expected strength ~1.0 after reinforce, got %v", r2.Strength)
	}
}

func TestRecordConflictDowngradesConfidenceAndDedupes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e, _ := store.UpsertEntity(ctx, "ns", "alice", vesper.EntityPerson, "")
	f1, err := store.UpsertFact(ctx, "ns", vesper.Fact{EntityID: e.ID, Property: "location", Value: "nyc", Confidence: 1.0, ValidFrom: 100})
	if err != nil {
		t.Fatalf("UpsertFact f1: %v", err)
	}
	f2, err := store.UpsertFact(ctx, "ns", vesper.Fact{EntityID: e.ID, Property: "location", Value: "sf", Confidence: 1.0, ValidFrom: 200})
	if err != nil {
		t.Fatalf("UpsertFact f2: %v", err)
	}

	recorded, err := store.RecordConflict(ctx, "ns", vesper.Conflict{
		FactID1: f1.ID, FactID2: f2.ID, EntityID: e.ID, Property: "location",
		Kind: vesper.ConflictContradiction, Description: "location changed", Severity: vesper.SeverityMedium,
	})
	if err != nil {
		t.Fatalf("RecordConflict: %v", err)
	}
	if !recorded {
		t.Fatal("expected first RecordConflict to record")
	}

	again, err := store.RecordConflict(ctx, "ns", vesper.Conflict{
		FactID1: f2.ID, FactID2: f1.ID, EntityID: e.ID, Property: "location",
		Kind: vesper.ConflictContradiction, Description: "duplicate", Severity: vesper.SeverityMedium,
	})
	if err != nil {
		t.Fatalf("RecordConflict (dup): %v", err)
	}
	if again {
		t.Fatal("expected a reordered duplicate pair to be a no-op")
	}

	got1, _, _ := store.GetFactByID(ctx, "ns", f1.ID)
	got2, _, _ := store.GetFactByID(ctx, "ns", f2.ID)
	if got1.Confidence != 0.5 || got2.Confidence != 0.5 {
		t.Fatalf("expected both facts downgraded to 0.5 confidence, got %v and %v", got1.Confidence, got2.Confidence)
	}
}

func TestPersonalizedPageRankTraversesRelationships(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _ := store.UpsertEntity(ctx, "ns", "alice", vesper.EntityPerson, "")
	b, _ := store.UpsertEntity(ctx, "ns", "redis", vesper.EntityConcept, "")
	if _, err := store.UpsertRelationship(ctx, "ns", vesper.Relationship{SourceID: a.ID, TargetID: b.ID, RelationType: string(vesper.RelUses)}); err != nil {
		t.Fatalf("UpsertRelationship: %v", err)
	}

	result, err := store.PersonalizedPageRank(ctx, "ns", a.ID, 2)
	if err != nil {
		t.Fatalf("PersonalizedPageRank: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].ID != b.ID {
		t.Fatalf("expected redis to be reachable from alice, got %+v", result.Entities)
	}
}

func TestPruneRelationshipsRespectsThresholds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _ := store.UpsertEntity(ctx, "ns", "alice", vesper.EntityPerson, "")
	b, _ := store.UpsertEntity(ctx, "ns", "redis", vesper.EntityConcept, "")
	if _, err := store.UpsertRelationship(ctx, "ns", vesper.Relationship{SourceID: a.ID, TargetID: b.ID, RelationType: string(vesper.RelUses), Strength: 0.05}); err != nil {
		t.Fatalf("UpsertRelationship: %v", err)
	}

	n, err := store.PruneRelationships(ctx, "ns", 0.5, 100)
	if err != nil {
		t.Fatalf("PruneRelationships: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 relationship pruned, got %d", n)
	}

	rels, err := store.GetRelationships(ctx, "ns", a.ID)
	if err != nil {
		t.Fatalf("GetRelationships: %v", err)
	}
	if len(rels) != 0 {
		t.Fatalf("expected no relationships left after prune, got %d", len(rels))
	}
}
