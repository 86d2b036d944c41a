package mcp

import (
	"context"
	"encoding/json"
	"testing"

	cachesqlite "github.com/oculusnoob/vesper-memory/cache/sqlite"
	"github.com/oculusnoob/vesper-memory/consolidation"
	graphsqlite "github.com/oculusnoob/vesper-memory/graph/sqlite"
	"github.com/oculusnoob/vesper-memory/ratelimit"
	"github.com/oculusnoob/vesper-memory/router"
	"github.com/oculusnoob/vesper-memory/service"
	skillsqlite "github.com/oculusnoob/vesper-memory/skill/sqlite"
)

func testServiceServer(t *testing.T) (*Server, *service.Service) {
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
	svc := service.New(cache, graph, skills, nil, rtr, limiter, pipeline)

	srv, out := testServer()
	_ = out
	RegisterServiceTools(srv, svc, "u1", "standard")
	return srv, svc
}

func TestRegisterServiceToolsListsAllOperations(t *testing.T) {
	srv, _ := testServiceServer(t)
	want := []string{
		"store_memory", "retrieve_memory", "list_recent", "get_stats",
		"delete_memory", "store_decision", "share_context", "list_namespaces",
		"namespace_stats", "load_skill", "record_skill_outcome",
		"vesper_enable", "vesper_disable", "vesper_status",
	}
	got := make(map[string]bool, len(srv.tools))
	for _, th := range srv.tools {
		got[th.Definition.Name] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("missing tool %q", name)
		}
	}
}

func TestStoreMemoryToolCallRoundTrips(t *testing.T) {
	srv, _ := testServiceServer(t)
	var handler ToolHandler
	for _, th := range srv.tools {
		if th.Definition.Name == "store_memory" {
			handler = th
		}
	}
	args := json.RawMessage(`{"content":"remember this","memory_type":"episodic"}`)
	result := handler.Execute(context.Background(), args)
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	var resp service.StoreMemoryResponse
	if err := json.Unmarshal([]byte(result.Content[0].Text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.MemoryID == "" {
		t.Fatalf("expected success with a memory_id, got %+v", resp)
	}
}

func TestVesperDisableToolStopsStoreMemory(t *testing.T) {
	srv, _ := testServiceServer(t)
	tools := map[string]ToolHandler{}
	for _, th := range srv.tools {
		tools[th.Definition.Name] = th
	}

	disableResult := tools["vesper_disable"].Execute(context.Background(), nil)
	var status service.StatusResponse
	if err := json.Unmarshal([]byte(disableResult.Content[0].Text), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.Enabled {
		t.Fatal("expected disabled")
	}

	storeResult := tools["store_memory"].Execute(context.Background(), json.RawMessage(`{"content":"x","memory_type":"episodic"}`))
	var resp service.StoreMemoryResponse
	if err := json.Unmarshal([]byte(storeResult.Content[0].Text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Success {
		t.Fatal("expected store_memory to no-op while disabled")
	}
}
