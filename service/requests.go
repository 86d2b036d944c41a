package service

// Every request struct mirrors one row of the tool-surface table (§6):
// the fields the wire transport (mcp) decodes into before validate and
// ratelimit run. UserID/Tier are not part of the wire payload itself —
// mcp supplies them from the authenticated session — but are threaded
// through every request so Service.* never has to guess a caller's
// identity.

// StoreMemoryRequest is the store_memory operation's input.
type StoreMemoryRequest struct {
	UserID     string         `json:"-"`
	Tier       string         `json:"-"`
	Content    string         `json:"content"`
	MemoryType string         `json:"memory_type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Namespace  string         `json:"namespace,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	AgentRole  string         `json:"agent_role,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
}

// RetrieveMemoryRequest is the retrieve_memory operation's input.
type RetrieveMemoryRequest struct {
	UserID          string   `json:"-"`
	Tier            string   `json:"-"`
	Query           string   `json:"query"`
	MemoryTypes     []string `json:"memory_types,omitempty"`
	MaxResults      int      `json:"max_results,omitempty"`
	RoutingStrategy string   `json:"routing_strategy,omitempty"`
	Namespace       string   `json:"namespace,omitempty"`
	AgentID         string   `json:"agent_id,omitempty"`
	TaskID          string   `json:"task_id,omitempty"`
	ExcludeAgent    string   `json:"exclude_agent,omitempty"`
}

// ListRecentRequest is the list_recent operation's input.
type ListRecentRequest struct {
	UserID     string `json:"-"`
	Tier       string `json:"-"`
	Limit      int    `json:"limit,omitempty"`
	MemoryType string `json:"memory_type,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
}

// GetStatsRequest is the get_stats operation's input.
type GetStatsRequest struct {
	UserID    string `json:"-"`
	Tier      string `json:"-"`
	Detailed  bool   `json:"detailed,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// DeleteMemoryRequest is the delete_memory operation's input.
type DeleteMemoryRequest struct {
	UserID    string `json:"-"`
	Tier      string `json:"-"`
	MemoryID  string `json:"memory_id"`
	Namespace string `json:"namespace,omitempty"`
}

// StoreDecisionRequest is the store_decision operation's input: as
// StoreMemoryRequest, but always persisted with MemoryType "decision"
// and a quarter decay factor (§6).
type StoreDecisionRequest struct {
	UserID     string         `json:"-"`
	Tier       string         `json:"-"`
	Content    string         `json:"content"`
	Supersedes string         `json:"supersedes,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Namespace  string         `json:"namespace,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	AgentRole  string         `json:"agent_role,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
}

// ShareContextRequest is the share_context operation's input: a
// cross-namespace copy of recent/relevant items.
type ShareContextRequest struct {
	UserID          string `json:"-"`
	Tier            string `json:"-"`
	SourceNS        string `json:"source_namespace"`
	TargetNS        string `json:"target_namespace"`
	TaskID          string `json:"task_id,omitempty"`
	Query           string `json:"query,omitempty"`
	MaxItems        int    `json:"max_items,omitempty"`
	IncludeSkills   bool   `json:"include_skills,omitempty"`
	IncludeEntities bool   `json:"include_entities,omitempty"`
}

// ListNamespacesRequest is the list_namespaces operation's input.
type ListNamespacesRequest struct {
	UserID string `json:"-"`
	Tier   string `json:"-"`
}

// NamespaceStatsRequest is the namespace_stats operation's input.
type NamespaceStatsRequest struct {
	UserID    string `json:"-"`
	Tier      string `json:"-"`
	Namespace string `json:"namespace"`
}

// LoadSkillRequest is the load_skill operation's input.
type LoadSkillRequest struct {
	UserID    string `json:"-"`
	Tier      string `json:"-"`
	SkillID   string `json:"skill_id"`
	Namespace string `json:"namespace,omitempty"`
}

// RecordSkillOutcomeRequest is the record_skill_outcome operation's
// input. Satisfaction must be supplied iff Outcome == "success" (§6).
type RecordSkillOutcomeRequest struct {
	UserID       string   `json:"-"`
	Tier         string   `json:"-"`
	SkillID      string   `json:"skill_id"`
	Outcome      string   `json:"outcome"`
	Satisfaction *float64 `json:"satisfaction,omitempty"`
	Namespace    string   `json:"namespace,omitempty"`
}
