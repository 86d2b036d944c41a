package validate

import (
	"strings"
	"testing"
)

func TestContentBounds(t *testing.T) {
	if err := Content(""); err == nil {
		t.Error("expected error for empty content")
	}
	if err := Content("hello"); err != nil {
		t.Errorf("expected valid content to pass: %v", err)
	}
	if err := Content(strings.Repeat("a", MaxContentLen+1)); err == nil {
		t.Error("expected error for content over max length")
	}
}

func TestQueryBounds(t *testing.T) {
	if err := Query(""); err == nil {
		t.Error("expected error for empty query")
	}
	if err := Query(strings.Repeat("a", MaxQueryLen+1)); err == nil {
		t.Error("expected error for query over max length")
	}
}

func TestMetadataKeyLimit(t *testing.T) {
	m := make(map[string]any, MaxMetadataKeys+1)
	for i := 0; i < MaxMetadataKeys+1; i++ {
		m[string(rune('a'+i))] = i
	}
	if err := Metadata(m); err == nil {
		t.Error("expected error for too many metadata keys")
	}
}

func TestMetadataByteLimit(t *testing.T) {
	m := map[string]any{"blob": strings.Repeat("x", MaxMetadataBytes)}
	if err := Metadata(m); err == nil {
		t.Error("expected error for oversized serialized metadata")
	}
}

func TestMaxResultsBounds(t *testing.T) {
	if err := MaxResults(0); err == nil {
		t.Error("expected error for max_results=0")
	}
	if err := MaxResults(101); err == nil {
		t.Error("expected error for max_results=101")
	}
	if err := MaxResults(1); err != nil {
		t.Errorf("expected 1 to be valid: %v", err)
	}
	if err := MaxResults(100); err != nil {
		t.Errorf("expected 100 to be valid: %v", err)
	}
}

func TestMemoryTypeValueEnum(t *testing.T) {
	for _, v := range []string{"episodic", "semantic", "procedural", "decision"} {
		if err := MemoryTypeValue(v); err != nil {
			t.Errorf("expected %q to be valid: %v", v, err)
		}
	}
	if err := MemoryTypeValue("bogus"); err == nil {
		t.Error("expected error for unknown memory_type")
	}
}

func TestNamespacePattern(t *testing.T) {
	if err := Namespace("default"); err != nil {
		t.Errorf("expected default to be valid: %v", err)
	}
	if err := Namespace("1bad"); err == nil {
		t.Error("expected error for namespace starting with a digit")
	}
}

func TestSkillIDPattern(t *testing.T) {
	if err := SkillID("skill_abc123"); err != nil {
		t.Errorf("expected valid skill_id to pass: %v", err)
	}
	if err := SkillID("abc123"); err == nil {
		t.Error("expected error for missing skill_ prefix")
	}
	if err := SkillID("skill_ABC"); err == nil {
		t.Error("expected error for uppercase letters")
	}
}

func TestVectorRejectsNonFinite(t *testing.T) {
	if err := Vector([]float32{1, 2, 3}); err != nil {
		t.Errorf("expected finite vector to pass: %v", err)
	}
	nan := float32(0)
	nan = nan / nan
	if err := Vector([]float32{1, nan}); err == nil {
		t.Error("expected error for NaN element")
	}
}
