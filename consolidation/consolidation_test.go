package consolidation

import (
	"context"
	"testing"

	"github.com/oculusnoob/vesper-memory"
	cachesqlite "github.com/oculusnoob/vesper-memory/cache/sqlite"
	graphsqlite "github.com/oculusnoob/vesper-memory/graph/sqlite"
	skillsqlite "github.com/oculusnoob/vesper-memory/skill/sqlite"
)

func newTestPipeline(t *testing.T) (*Pipeline, *cachesqlite.Store, *graphsqlite.Store, *skillsqlite.Store) {
	t.Helper()
	ctx := context.Background()

	cache := cachesqlite.New(":memory:")
	if err := cache.Init(ctx); err != nil {
		t.Fatalf("cache Init: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	graph := graphsqlite.New(":memory:")
	if err := graph.Init(ctx); err != nil {
		t.Fatalf("graph Init: %v", err)
	}
	t.Cleanup(func() { graph.Close() })

	skills := skillsqlite.New(":memory:")
	if err := skills.Init(ctx); err != nil {
		t.Fatalf("skills Init: %v", err)
	}
	t.Cleanup(func() { skills.Close() })

	return New(cache, graph, skills), cache, graph, skills
}

func TestRunProcessesConversationsAndExtractsEntities(t *testing.T) {
	ctx := context.Background()
	p, cache, graph, _ := newTestPipeline(t)

	if err := cache.Put(ctx, "ns1", vesper.Conversation{
		ConversationID: "c1",
		Timestamp:      vesper.NowUnix(),
		FullText:       "I prefer dark mode for everything.",
		KeyEntities:    []string{"dark mode"},
		Namespace:      "ns1",
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	stats := p.Run(ctx, "ns1")
	if stats.FailedStep != "" {
		t.Fatalf("unexpected failure at step %q: %s", stats.FailedStep, stats.Err)
	}
	if stats.MemoriesProcessed != 1 {
		t.Errorf("MemoriesProcessed = %d, want 1", stats.MemoriesProcessed)
	}
	if stats.EntitiesExtracted == 0 {
		t.Error("expected at least one entity extracted")
	}

	entity, ok, err := graph.GetEntity(ctx, "ns1", "dark mode")
	if err != nil || !ok {
		t.Fatalf("expected key_entities extraction to upsert an entity: ok=%v err=%v", ok, err)
	}
	if entity.Type != vesper.EntityConcept {
		t.Errorf("Type = %q, want concept", entity.Type)
	}
}

func TestRunDetectsConflicts(t *testing.T) {
	ctx := context.Background()
	p, _, graph, _ := newTestPipeline(t)

	e, err := graph.UpsertEntity(ctx, "ns1", "alice", vesper.EntityPerson, "")
	if err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	if _, err := graph.UpsertFact(ctx, "ns1", vesper.Fact{EntityID: e.ID, Property: "city", Value: "nyc", Confidence: 1.0, ValidFrom: 100}); err != nil {
		t.Fatalf("UpsertFact 1: %v", err)
	}
	if _, err := graph.UpsertFact(ctx, "ns1", vesper.Fact{EntityID: e.ID, Property: "city", Value: "sf", Confidence: 1.0, ValidFrom: 100}); err != nil {
		t.Fatalf("UpsertFact 2: %v", err)
	}

	stats := p.Run(ctx, "ns1")
	if stats.FailedStep != "" {
		t.Fatalf("unexpected failure at step %q: %s", stats.FailedStep, stats.Err)
	}
	if stats.ConflictsDetected != 1 {
		t.Errorf("ConflictsDetected = %d, want 1", stats.ConflictsDetected)
	}
}

func TestRunExtractsRecurringSkillFromTopics(t *testing.T) {
	ctx := context.Background()
	p, cache, _, skills := newTestPipeline(t)

	for i := 0; i < skillRepetitionThreshold; i++ {
		if err := cache.Put(ctx, "ns1", vesper.Conversation{
			ConversationID: "c" + string(rune('a'+i)),
			Timestamp:      vesper.NowUnix(),
			FullText:       "deploying the service again",
			Topics:         []string{"deploy service"},
			Namespace:      "ns1",
		}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	stats := p.Run(ctx, "ns1")
	if stats.FailedStep != "" {
		t.Fatalf("unexpected failure at step %q: %s", stats.FailedStep, stats.Err)
	}
	if stats.SkillsExtracted != 1 {
		t.Fatalf("SkillsExtracted = %d, want 1", stats.SkillsExtracted)
	}

	matches, err := skills.SearchByTrigger(ctx, "ns1", "deploy service", 5)
	if err != nil {
		t.Fatalf("SearchByTrigger: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected the heuristically extracted skill to be searchable")
	}
}

func TestRunIsIdempotentOnSecondCycle(t *testing.T) {
	ctx := context.Background()
	p, cache, _, _ := newTestPipeline(t)

	if err := cache.Put(ctx, "ns1", vesper.Conversation{
		ConversationID: "c1",
		Timestamp:      vesper.NowUnix(),
		FullText:       "just chatting",
		Namespace:      "ns1",
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	first := p.Run(ctx, "ns1")
	if first.FailedStep != "" {
		t.Fatalf("first run failed at %q: %s", first.FailedStep, first.Err)
	}
	second := p.Run(ctx, "ns1")
	if second.FailedStep != "" {
		t.Fatalf("second run failed at %q: %s", second.FailedStep, second.Err)
	}
}
