// Package validate implements the inbound schema validation boundary
// (C8, §4.8): every limit is a concrete, testable constant, and every
// failure reports a *vesper.ValidationError identifying the offending
// field.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"

	"github.com/oculusnoob/vesper-memory"
)

const (
	MinContentLen = 1
	MaxContentLen = 100_000

	MinQueryLen = 1
	MaxQueryLen = 10_000

	MaxMetadataKeys  = 50
	MaxMetadataBytes = 10_000

	MinMaxResults = 1
	MaxMaxResults = 100
)

// MemoryType enumerates Conversation.MemoryType values (§4.8).
type MemoryType string

const (
	MemoryEpisodic   MemoryType = "episodic"
	MemorySemantic   MemoryType = "semantic"
	MemoryProcedural MemoryType = "procedural"
	MemoryDecision   MemoryType = "decision"
)

var validMemoryTypes = map[string]bool{
	string(MemoryEpisodic):   true,
	string(MemorySemantic):   true,
	string(MemoryProcedural): true,
	string(MemoryDecision):   true,
}

var skillIDPattern = regexp.MustCompile(`^skill_[a-z0-9_]+$`)

// Content validates a memory's content field (§4.8).
func Content(s string) error {
	if len(s) < MinContentLen || len(s) > MaxContentLen {
		return &vesper.ValidationError{Field: "content", Message: fmt.Sprintf("length %d outside [%d, %d]", len(s), MinContentLen, MaxContentLen)}
	}
	return nil
}

// Query validates a retrieval query string (§4.8).
func Query(s string) error {
	if len(s) < MinQueryLen || len(s) > MaxQueryLen {
		return &vesper.ValidationError{Field: "query", Message: fmt.Sprintf("length %d outside [%d, %d]", len(s), MinQueryLen, MaxQueryLen)}
	}
	return nil
}

// Metadata validates a metadata map: at most MaxMetadataKeys keys, and
// at most MaxMetadataBytes when serialized to JSON (§4.8).
func Metadata(m map[string]any) error {
	if len(m) > MaxMetadataKeys {
		return &vesper.ValidationError{Field: "metadata", Message: fmt.Sprintf("%d keys exceeds max %d", len(m), MaxMetadataKeys)}
	}
	if m == nil {
		return nil
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return &vesper.ValidationError{Field: "metadata", Message: "not serializable: " + err.Error()}
	}
	if len(encoded) > MaxMetadataBytes {
		return &vesper.ValidationError{Field: "metadata", Message: fmt.Sprintf("serialized size %d exceeds max %d bytes", len(encoded), MaxMetadataBytes)}
	}
	return nil
}

// MaxResults validates a caller-supplied result-count limit (§4.8).
func MaxResults(n int) error {
	if n < MinMaxResults || n > MaxMaxResults {
		return &vesper.ValidationError{Field: "max_results", Message: fmt.Sprintf("%d outside [%d, %d]", n, MinMaxResults, MaxMaxResults)}
	}
	return nil
}

// MemoryTypeValue validates s against the closed memory_type enum
// (§4.8).
func MemoryTypeValue(s string) error {
	if !validMemoryTypes[s] {
		return &vesper.ValidationError{Field: "memory_type", Message: fmt.Sprintf("%q is not one of episodic, semantic, procedural, decision", s)}
	}
	return nil
}

// Namespace validates ns against the namespace pattern, delegating to
// vesper.ValidNamespace (§3, §4.8).
func Namespace(ns string) error {
	if !vesper.ValidNamespace(ns) {
		return &vesper.ValidationError{Field: "namespace", Message: fmt.Sprintf("%q does not match ^[A-Za-z][A-Za-z0-9_-]{0,99}$", ns)}
	}
	return nil
}

// SkillID validates id against ^skill_[a-z0-9_]+$ (§4.8).
func SkillID(id string) error {
	if !skillIDPattern.MatchString(id) {
		return &vesper.ValidationError{Field: "skill_id", Message: fmt.Sprintf("%q does not match ^skill_[a-z0-9_]+$", id)}
	}
	return nil
}

// Vector validates that every element is finite (§4.8): no NaN or Inf,
// which would silently corrupt downstream cosine-similarity math.
func Vector(v []float32) error {
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return &vesper.ValidationError{Field: "vector", Message: fmt.Sprintf("element %d is not finite: %v", i, f)}
		}
	}
	return nil
}
