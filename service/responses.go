package service

import "github.com/oculusnoob/vesper-memory"

// StoreMemoryResponse is store_memory's and store_decision's output.
type StoreMemoryResponse struct {
	Success  bool   `json:"success"`
	MemoryID string `json:"memory_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RetrievedItem is one entry of retrieve_memory's results list (§6):
// content plus a similarity score and the tier it came from.
type RetrievedItem struct {
	Content         string  `json:"content"`
	SimilarityScore float64 `json:"similarity_score"`
	Source          string  `json:"source"`
}

// RetrieveMemoryResponse is retrieve_memory's output.
type RetrieveMemoryResponse struct {
	Success bool            `json:"success"`
	Results []RetrievedItem `json:"results"`
	Error   string          `json:"error,omitempty"`
}

// ListRecentResponse is list_recent's output.
type ListRecentResponse struct {
	Success       bool                 `json:"success"`
	Conversations []vesper.Conversation `json:"conversations"`
	Error         string               `json:"error,omitempty"`
}

// StatsResponse is get_stats's output: per-layer counters (§6
// "Aggregate").
type StatsResponse struct {
	Success   bool             `json:"success"`
	Cache     vesper.CacheStats `json:"cache"`
	Entities  int              `json:"entities,omitempty"`
	Skills    int              `json:"skills,omitempty"`
	Conflicts int              `json:"conflicts,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// SuccessResponse is the generic {success} shape used by delete_memory,
// record_skill_outcome, and similar operations.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ShareContextResponse is share_context's output: a summary of what was
// copied, not the copied payloads themselves.
type ShareContextResponse struct {
	Success           bool   `json:"success"`
	ConversationsCopied int  `json:"conversations_copied"`
	SkillsCopied      int    `json:"skills_copied,omitempty"`
	EntitiesCopied    int    `json:"entities_copied,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ListNamespacesResponse is list_namespaces's output.
type ListNamespacesResponse struct {
	Success    bool     `json:"success"`
	Namespaces []string `json:"namespaces"`
	Error      string   `json:"error,omitempty"`
}

// NamespaceStatsResponse is namespace_stats's output.
type NamespaceStatsResponse struct {
	Success bool             `json:"success"`
	Cache   vesper.CacheStats `json:"cache"`
	Error   string           `json:"error,omitempty"`
}

// LoadSkillResponse is load_skill's output.
type LoadSkillResponse struct {
	Success bool             `json:"success"`
	Skill   vesper.FullSkill `json:"skill,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// StatusResponse is vesper_enable/vesper_disable/vesper_status's shared
// output shape (§6).
type StatusResponse struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode"`
}
