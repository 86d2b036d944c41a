// Package vesper is a multi-tier personal memory engine for conversational
// agents.
//
// It ingests conversation fragments into a fast associative working-memory
// cache, nightly consolidates that cache into a persistent semantic
// knowledge graph of entities, temporal facts, and weighted relationships,
// and maintains a procedural skill library retrievable by trigger keyword,
// embedding similarity, and analogical vector arithmetic. A smart router
// classifies incoming queries and dispatches each to the cheapest memory
// tier capable of answering it.
//
// # Core interfaces
//
// The root package defines the contracts every backing implementation
// satisfies:
//
//   - [Cache] — working-memory tier (C1): recent conversations, TTL'd KV.
//   - [GraphStore] — semantic tier (C2): entities, relationships, facts,
//     conflicts, personalized PageRank traversal.
//   - [SkillStore] — procedural tier (C3): skills and skill relationships.
//   - [Embedder] — text-to-vector embedding, called through an interface
//     so the embedding model itself stays external to the core.
//
// # Included implementations
//
// Working memory: cache/sqlite. Semantic graph: graph/sqlite,
// graph/postgres. Skills: skill/sqlite. Conflict detection: package
// conflict. Consolidation: package consolidation. Scheduling: package
// scheduler. Query routing: package router. Rate limiting and input
// validation: packages ratelimit and validate. Tool-surface service
// (store_memory, retrieve_memory, …): package service, exposed over a
// stdio JSON-RPC transport in package mcp.
//
// See cmd/vesperd for a complete reference wiring of all of the above.
package vesper
