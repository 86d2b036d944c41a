package mcp

import (
	"context"
	"encoding/json"

	"github.com/oculusnoob/vesper-memory/service"
)

// RegisterServiceTools registers every operation in the tool-surface
// table (§6) as an MCP tool backed by svc. Each handler decodes its
// arguments, stamps in the caller identity the transport already
// authenticated (userID/tier), dispatches to svc, and marshals the
// structured {success, ...} response back as the tool's text content —
// mirroring the teacher's skill.Tool pattern of one Execute branch per
// operation name.
func RegisterServiceTools(s *Server, svc *service.Service, userID, tier string) {
	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "store_memory",
			Description: "Store a piece of content in working memory, optionally tagged with a memory type and namespace.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"content":{"type":"string","description":"Text to remember"},
				"memory_type":{"type":"string","enum":["episodic","semantic","procedural","decision"],"description":"Kind of memory being stored"},
				"metadata":{"type":"object","description":"Optional arbitrary key/value metadata"},
				"namespace":{"type":"string","description":"Optional namespace, defaults to \"default\""},
				"agent_id":{"type":"string"},
				"agent_role":{"type":"string"},
				"task_id":{"type":"string"}
			},"required":["content","memory_type"]}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var req service.StoreMemoryRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return ErrorResult("invalid params: " + err.Error())
			}
			req.UserID, req.Tier = userID, tier
			return jsonResult(svc.StoreMemory(ctx, req))
		},
	})

	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "retrieve_memory",
			Description: "Retrieve relevant memories for a query, routed across working memory, the semantic graph, and the skill library.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"query":{"type":"string"},
				"max_results":{"type":"integer","description":"Defaults to 10; must be between 1 and 100"},
				"namespace":{"type":"string"},
				"routing_strategy":{"type":"string"},
				"agent_id":{"type":"string"},
				"task_id":{"type":"string"},
				"exclude_agent":{"type":"string"}
			},"required":["query"]}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var req service.RetrieveMemoryRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return ErrorResult("invalid params: " + err.Error())
			}
			req.UserID, req.Tier = userID, tier
			return jsonResult(svc.RetrieveMemory(ctx, req))
		},
	})

	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "list_recent",
			Description: "List the most recently stored memories in a namespace.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"limit":{"type":"integer","description":"Defaults to 20"},
				"memory_type":{"type":"string"},
				"namespace":{"type":"string"}
			}}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var req service.ListRecentRequest
			if len(args) > 0 {
				if err := json.Unmarshal(args, &req); err != nil {
					return ErrorResult("invalid params: " + err.Error())
				}
			}
			req.UserID, req.Tier = userID, tier
			return jsonResult(svc.ListRecent(ctx, req))
		},
	})

	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "get_stats",
			Description: "Report per-tier counters for a namespace (cache size, and optionally conflict/skill counts).",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"detailed":{"type":"boolean"},
				"namespace":{"type":"string"}
			}}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var req service.GetStatsRequest
			if len(args) > 0 {
				if err := json.Unmarshal(args, &req); err != nil {
					return ErrorResult("invalid params: " + err.Error())
				}
			}
			req.UserID, req.Tier = userID, tier
			return jsonResult(svc.GetStats(ctx, req))
		},
	})

	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "delete_memory",
			Description: "Delete a conversation or skill by id.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"memory_id":{"type":"string"},
				"namespace":{"type":"string"}
			},"required":["memory_id"]}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var req service.DeleteMemoryRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return ErrorResult("invalid params: " + err.Error())
			}
			req.UserID, req.Tier = userID, tier
			return jsonResult(svc.DeleteMemory(ctx, req))
		},
	})

	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "store_decision",
			Description: "Store a decision memory. Always persisted with memory_type=decision and a quarter decay factor.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"content":{"type":"string"},
				"supersedes":{"type":"string","description":"Optional id of a prior decision this replaces"},
				"metadata":{"type":"object"},
				"namespace":{"type":"string"},
				"agent_id":{"type":"string"},
				"agent_role":{"type":"string"},
				"task_id":{"type":"string"}
			},"required":["content"]}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var req service.StoreDecisionRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return ErrorResult("invalid params: " + err.Error())
			}
			req.UserID, req.Tier = userID, tier
			return jsonResult(svc.StoreDecision(ctx, req))
		},
	})

	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "share_context",
			Description: "Copy recent or query-relevant memories (and optionally entities/skills) from one namespace into another.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"source_namespace":{"type":"string"},
				"target_namespace":{"type":"string"},
				"task_id":{"type":"string"},
				"query":{"type":"string"},
				"max_items":{"type":"integer"},
				"include_skills":{"type":"boolean"},
				"include_entities":{"type":"boolean"}
			},"required":["source_namespace","target_namespace"]}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var req service.ShareContextRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return ErrorResult("invalid params: " + err.Error())
			}
			req.UserID, req.Tier = userID, tier
			return jsonResult(svc.ShareContext(ctx, req))
		},
	})

	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "list_namespaces",
			Description: "List every namespace this process has observed a write to, plus the default namespace.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			return jsonResult(svc.ListNamespaces(ctx, service.ListNamespacesRequest{UserID: userID, Tier: tier}))
		},
	})

	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "namespace_stats",
			Description: "Report cache statistics for a single namespace.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"namespace":{"type":"string"}
			},"required":["namespace"]}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var req service.NamespaceStatsRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return ErrorResult("invalid params: " + err.Error())
			}
			req.UserID, req.Tier = userID, tier
			return jsonResult(svc.NamespaceStats(ctx, req))
		},
	})

	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "load_skill",
			Description: "Load a full stored skill by id, including its code and trigger phrases.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"skill_id":{"type":"string"},
				"namespace":{"type":"string"}
			},"required":["skill_id"]}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var req service.LoadSkillRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return ErrorResult("invalid params: " + err.Error())
			}
			req.UserID, req.Tier = userID, tier
			return jsonResult(svc.LoadSkill(ctx, req))
		},
	})

	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "record_skill_outcome",
			Description: "Record whether a skill invocation succeeded or failed. satisfaction is required when outcome=success and must be omitted when outcome=failure.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"skill_id":{"type":"string"},
				"outcome":{"type":"string","enum":["success","failure"]},
				"satisfaction":{"type":"number"},
				"namespace":{"type":"string"}
			},"required":["skill_id","outcome"]}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			var req service.RecordSkillOutcomeRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return ErrorResult("invalid params: " + err.Error())
			}
			req.UserID, req.Tier = userID, tier
			return jsonResult(svc.RecordSkillOutcome(ctx, req))
		},
	})

	// vesper_enable/disable/status bypass the pass-through check inside
	// Service itself, so their handlers need no request struct at all.
	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "vesper_enable",
			Description: "Re-enable vesper after vesper_disable. All other tools resume normal dispatch.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			return jsonResult(svc.VesperEnable(ctx))
		},
	})
	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "vesper_disable",
			Description: "Disable vesper. Every other tool no-ops with {success:false} until re-enabled.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			return jsonResult(svc.VesperDisable(ctx))
		},
	})
	s.AddTool(ToolHandler{
		Definition: ToolDefinition{
			Name:        "vesper_status",
			Description: "Report whether vesper is currently enabled.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) ToolCallResult {
			return jsonResult(svc.VesperStatus(ctx))
		},
	})
}

// jsonResult marshals a service response into a ToolCallResult. A
// response with Success == false still returns a non-error ToolCallResult
// (per §7: vesper never surfaces a typed error to the transport) — the
// caller inspects the "success" field in the text payload, mirroring the
// table in §6 where every op's Output is a plain JSON object.
func jsonResult(v any) ToolCallResult {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResult("marshal response: " + err.Error())
	}
	return TextResult(string(data))
}
