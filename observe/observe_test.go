package observe

import (
	"context"
	"testing"
	"time"

	"github.com/oculusnoob/vesper-memory"
	cachesqlite "github.com/oculusnoob/vesper-memory/cache/sqlite"
	graphsqlite "github.com/oculusnoob/vesper-memory/graph/sqlite"
	skillsqlite "github.com/oculusnoob/vesper-memory/skill/sqlite"
)

// testInstruments builds a no-op Instruments using the global OTEL
// providers, which are no-ops until Init is called — safe for testing
// delegation behavior without a real OTEL backend.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments()
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

func TestObservedCacheDelegatesPutAndGet(t *testing.T) {
	ctx := context.Background()
	inner := cachesqlite.New(":memory:")
	if err := inner.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { inner.Close() })

	c := WrapCache(inner, testInstruments(t))
	conv := vesper.Conversation{ConversationID: "c1", Timestamp: time.Now().Unix(), FullText: "we discussed the release"}
	if err := c.Put(ctx, "ns1", conv); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(ctx, "ns1", "c1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.FullText != conv.FullText {
		t.Errorf("FullText = %q, want %q", got.FullText, conv.FullText)
	}
}

func TestObservedCacheSearchTextPropagatesResults(t *testing.T) {
	ctx := context.Background()
	inner := cachesqlite.New(":memory:")
	if err := inner.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { inner.Close() })

	c := WrapCache(inner, testInstruments(t))
	conv := vesper.Conversation{ConversationID: "c1", Timestamp: time.Now().Unix(), FullText: "we discussed the release pipeline"}
	if err := c.Put(ctx, "ns1", conv); err != nil {
		t.Fatalf("Put: %v", err)
	}
	results, err := c.SearchText(ctx, "ns1", "release pipeline", 5)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
}

func TestObservedCachePropagatesErrors(t *testing.T) {
	ctx := context.Background()
	inner := cachesqlite.New(":memory:")
	if err := inner.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	inner.Close()

	c := WrapCache(inner, testInstruments(t))
	if err := c.Put(ctx, "ns1", vesper.Conversation{ConversationID: "c1"}); err == nil {
		t.Fatal("expected error from closed backing store")
	}
}

func TestObservedGraphStoreRecordsDecayCount(t *testing.T) {
	ctx := context.Background()
	inner := graphsqlite.New(":memory:")
	if err := inner.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { inner.Close() })

	g := WrapGraphStore(inner, testInstruments(t))
	a, err := g.UpsertEntity(ctx, "ns1", "alice", vesper.EntityPerson, "a person")
	if err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	b, err := g.UpsertEntity(ctx, "ns1", "bob", vesper.EntityPerson, "a person")
	if err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	if _, err := g.UpsertRelationship(ctx, "ns1", vesper.Relationship{SourceID: a.ID, TargetID: b.ID, RelationType: "knows"}); err != nil {
		t.Fatalf("UpsertRelationship: %v", err)
	}
	n, err := g.ApplyTemporalDecay(ctx, "ns1")
	if err != nil {
		t.Fatalf("ApplyTemporalDecay: %v", err)
	}
	if n != 1 {
		t.Errorf("ApplyTemporalDecay count = %d, want 1", n)
	}
}

func TestObservedGraphStoreRecordsConflict(t *testing.T) {
	ctx := context.Background()
	inner := graphsqlite.New(":memory:")
	if err := inner.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { inner.Close() })

	g := WrapGraphStore(inner, testInstruments(t))
	e, err := g.UpsertEntity(ctx, "ns1", "alice", vesper.EntityPerson, "a person")
	if err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	f1, err := g.UpsertFact(ctx, "ns1", vesper.Fact{EntityID: e.ID, Property: "city", Value: "paris"})
	if err != nil {
		t.Fatalf("UpsertFact: %v", err)
	}
	f2, err := g.UpsertFact(ctx, "ns1", vesper.Fact{EntityID: e.ID, Property: "city", Value: "berlin"})
	if err != nil {
		t.Fatalf("UpsertFact: %v", err)
	}
	id1, id2 := vesper.OrderedFactPair(f1.ID, f2.ID)
	recorded, err := g.RecordConflict(ctx, "ns1", vesper.Conflict{FactID1: id1, FactID2: id2, EntityID: e.ID, Kind: vesper.ConflictContradiction})
	if err != nil {
		t.Fatalf("RecordConflict: %v", err)
	}
	if !recorded {
		t.Error("expected first RecordConflict to report recorded=true")
	}

	recordedAgain, err := g.RecordConflict(ctx, "ns1", vesper.Conflict{FactID1: id1, FactID2: id2, EntityID: e.ID, Kind: vesper.ConflictContradiction})
	if err != nil {
		t.Fatalf("RecordConflict second call: %v", err)
	}
	if recordedAgain {
		t.Error("expected duplicate RecordConflict to report recorded=false")
	}
}

func TestObservedSkillStoreRecordsSearch(t *testing.T) {
	ctx := context.Background()
	inner := skillsqlite.New(":memory:")
	if err := inner.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { inner.Close() })

	s := WrapSkillStore(inner, testInstruments(t))
	skill := vesper.FullSkill{Name: "deploy", Summary: "deploy a service", Triggers: []string{"deploy the app"}}
	if _, err := s.AddSkill(ctx, "ns1", skill); err != nil {
		t.Fatalf("AddSkill: %v", err)
	}
	results, err := s.SearchByTrigger(ctx, "ns1", "deploy the app", 5)
	if err != nil {
		t.Fatalf("SearchByTrigger: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
}

func TestRecordClassificationDoesNotPanic(t *testing.T) {
	inst := testInstruments(t)
	RecordClassification(context.Background(), inst, vesper.ClassFactual)
}
