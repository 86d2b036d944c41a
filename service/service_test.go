package service

import (
	"context"
	"testing"

	"github.com/oculusnoob/vesper-memory"
	cachesqlite "github.com/oculusnoob/vesper-memory/cache/sqlite"
	"github.com/oculusnoob/vesper-memory/consolidation"
	graphsqlite "github.com/oculusnoob/vesper-memory/graph/sqlite"
	"github.com/oculusnoob/vesper-memory/ratelimit"
	"github.com/oculusnoob/vesper-memory/router"
	skillsqlite "github.com/oculusnoob/vesper-memory/skill/sqlite"
)

func newTestService(t *testing.T) *Service {
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
		t.Fatalf("skill Init: %v", err)
	}
	t.Cleanup(func() { skills.Close() })

	rtr := router.New(cache, graph, skills)
	limiter := ratelimit.New(cache)
	pipeline := consolidation.New(cache, graph, skills)

	return New(cache, graph, skills, nil, rtr, limiter, pipeline)
}

func TestStoreMemoryThenListRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	resp := s.StoreMemory(ctx, StoreMemoryRequest{
		UserID:     "u1",
		Content:    "we talked about the release pipeline",
		MemoryType: "episodic",
		Namespace:  "default",
	})
	if !resp.Success {
		t.Fatalf("StoreMemory failed: %s", resp.Error)
	}
	if resp.MemoryID == "" {
		t.Fatal("expected a memory_id")
	}

	listed := s.ListRecent(ctx, ListRecentRequest{UserID: "u1", Namespace: "default"})
	if !listed.Success {
		t.Fatalf("ListRecent failed: %s", listed.Error)
	}
	if len(listed.Conversations) != 1 {
		t.Fatalf("len(Conversations) = %d, want 1", len(listed.Conversations))
	}
}

func TestStoreMemoryRejectsInvalidContent(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	resp := s.StoreMemory(ctx, StoreMemoryRequest{UserID: "u1", Content: "", MemoryType: "episodic"})
	if resp.Success {
		t.Fatal("expected failure for empty content")
	}
}

func TestStoreMemoryRejectsUnknownMemoryType(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	resp := s.StoreMemory(ctx, StoreMemoryRequest{UserID: "u1", Content: "hello", MemoryType: "bogus"})
	if resp.Success {
		t.Fatal("expected failure for unknown memory_type")
	}
}

func TestStoreDecisionSetsDecayFactor(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	resp := s.StoreDecision(ctx, StoreDecisionRequest{UserID: "u1", Content: "we decided to use postgres", Namespace: "default"})
	if !resp.Success {
		t.Fatalf("StoreDecision failed: %s", resp.Error)
	}
	got, ok, err := s.Cache.Get(ctx, "default", resp.MemoryID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.MemoryType != "decision" {
		t.Errorf("MemoryType = %q, want decision", got.MemoryType)
	}
	if got.Metadata["decay_factor"] != 0.25 {
		t.Errorf("decay_factor = %v, want 0.25", got.Metadata["decay_factor"])
	}
}

func TestRetrieveMemoryDispatchesAndScores(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	if resp := s.StoreMemory(ctx, StoreMemoryRequest{UserID: "u1", Content: "deployment pipeline is broken again", MemoryType: "episodic"}); !resp.Success {
		t.Fatalf("StoreMemory failed: %s", resp.Error)
	}

	resp := s.RetrieveMemory(ctx, RetrieveMemoryRequest{UserID: "u1", Query: "deployment pipeline broken"})
	if !resp.Success {
		t.Fatalf("RetrieveMemory failed: %s", resp.Error)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected at least one result")
	}
}

func TestDeleteMemoryRemovesConversation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	stored := s.StoreMemory(ctx, StoreMemoryRequest{UserID: "u1", Content: "hello world", MemoryType: "episodic"})
	if !stored.Success {
		t.Fatalf("StoreMemory failed: %s", stored.Error)
	}
	del := s.DeleteMemory(ctx, DeleteMemoryRequest{UserID: "u1", MemoryID: stored.MemoryID})
	if !del.Success {
		t.Fatalf("DeleteMemory failed: %s", del.Error)
	}
	_, ok, err := s.Cache.Get(ctx, "default", stored.MemoryID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected conversation to be gone after delete")
	}
}

func TestShareContextCopiesAcrossNamespaces(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	if resp := s.StoreMemory(ctx, StoreMemoryRequest{UserID: "u1", Content: "shared note about onboarding", MemoryType: "episodic", Namespace: "team-a"}); !resp.Success {
		t.Fatalf("StoreMemory failed: %s", resp.Error)
	}

	resp := s.ShareContext(ctx, ShareContextRequest{UserID: "u1", SourceNS: "team-a", TargetNS: "team-b"})
	if !resp.Success {
		t.Fatalf("ShareContext failed: %s", resp.Error)
	}
	if resp.ConversationsCopied != 1 {
		t.Fatalf("ConversationsCopied = %d, want 1", resp.ConversationsCopied)
	}
	listed := s.ListRecent(ctx, ListRecentRequest{UserID: "u1", Namespace: "team-b"})
	if !listed.Success || len(listed.Conversations) != 1 {
		t.Fatalf("expected 1 conversation copied into team-b, got %+v", listed)
	}
}

func TestListNamespacesTracksWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	if resp := s.StoreMemory(ctx, StoreMemoryRequest{UserID: "u1", Content: "hi", MemoryType: "episodic", Namespace: "acme"}); !resp.Success {
		t.Fatalf("StoreMemory failed: %s", resp.Error)
	}
	listed := s.ListNamespaces(ctx, ListNamespacesRequest{UserID: "u1"})
	if !listed.Success {
		t.Fatalf("ListNamespaces failed: %s", listed.Error)
	}
	found := false
	for _, ns := range listed.Namespaces {
		if ns == "acme" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected acme in namespaces, got %v", listed.Namespaces)
	}
}

func TestRecordSkillOutcomeRequiresSatisfactionOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	skill, err := s.Skills.AddSkill(ctx, "default", vesper.FullSkill{Name: "deploy", Summary: "deploy a service", Triggers: []string{"deploy the app"}})
	if err != nil {
		t.Fatalf("AddSkill: %v", err)
	}

	missing := s.RecordSkillOutcome(ctx, RecordSkillOutcomeRequest{UserID: "u1", SkillID: skill.ID, Outcome: "success"})
	if missing.Success {
		t.Error("expected failure when satisfaction is missing for a success outcome")
	}

	sat := 0.9
	ok := s.RecordSkillOutcome(ctx, RecordSkillOutcomeRequest{UserID: "u1", SkillID: skill.ID, Outcome: "success", Satisfaction: &sat})
	if !ok.Success {
		t.Errorf("RecordSkillOutcome failed: %s", ok.Error)
	}
}

func TestVesperDisableBlocksOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	status := s.VesperDisable(ctx)
	if status.Enabled {
		t.Fatal("expected disabled after VesperDisable")
	}
	resp := s.StoreMemory(ctx, StoreMemoryRequest{UserID: "u1", Content: "hi", MemoryType: "episodic"})
	if resp.Success {
		t.Error("expected StoreMemory to no-op while disabled")
	}
	reenabled := s.VesperEnable(ctx)
	if !reenabled.Enabled {
		t.Fatal("expected enabled after VesperEnable")
	}
	resp = s.StoreMemory(ctx, StoreMemoryRequest{UserID: "u1", Content: "hi again", MemoryType: "episodic"})
	if !resp.Success {
		t.Errorf("expected StoreMemory to succeed after re-enable: %s", resp.Error)
	}
}

func TestLoadSkillNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	resp := s.LoadSkill(ctx, LoadSkillRequest{UserID: "u1", SkillID: "skill_nonexistent"})
	if resp.Success {
		t.Fatal("expected not-found failure")
	}
	if resp.Error == "" {
		t.Fatal("expected a non-empty error message")
	}
}
