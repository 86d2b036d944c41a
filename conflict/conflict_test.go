package conflict

import (
	"testing"

	"github.com/oculusnoob/vesper-memory"
)

func TestDetectDirectContradictions(t *testing.T) {
	facts := []vesper.Fact{
		{ID: "f1", EntityID: "e1", Property: "city", Value: "nyc", ValidFrom: 100},
		{ID: "f2", EntityID: "e1", Property: "city", Value: "sf", ValidFrom: 100},
	}
	pairs := DetectDirectContradictions(facts)
	if len(pairs) != 1 {
		t.Fatalf("len(pairs) = %d, want 1", len(pairs))
	}
	if pairs[0].Kind != vesper.ConflictContradiction || pairs[0].Severity != vesper.SeverityMedium {
		t.Errorf("unexpected kind/severity: %+v", pairs[0])
	}
}

func TestDetectDirectContradictionsRequiresOpenFacts(t *testing.T) {
	closed := int64(200)
	facts := []vesper.Fact{
		{ID: "f1", EntityID: "e1", Property: "city", Value: "nyc", ValidFrom: 100, ValidUntil: &closed},
		{ID: "f2", EntityID: "e1", Property: "city", Value: "sf", ValidFrom: 100},
	}
	if pairs := DetectDirectContradictions(facts); len(pairs) != 0 {
		t.Errorf("expected no direct contradiction when one fact is closed, got %+v", pairs)
	}
}

func TestDetectTemporalOverlapsExcludesDirectContradictions(t *testing.T) {
	facts := []vesper.Fact{
		{ID: "f1", EntityID: "e1", Property: "city", Value: "nyc", ValidFrom: 100},
		{ID: "f2", EntityID: "e1", Property: "city", Value: "sf", ValidFrom: 100},
	}
	// Same pair pass 1 already catches; pass 2 must not re-surface it.
	if pairs := DetectTemporalOverlaps(facts); len(pairs) != 0 {
		t.Errorf("expected pass 2 to exclude pairs already caught by pass 1, got %+v", pairs)
	}
}

func TestDetectTemporalOverlapsFindsOverlappingIntervals(t *testing.T) {
	until1 := int64(300)
	facts := []vesper.Fact{
		{ID: "f1", EntityID: "e1", Property: "role", Value: "eng", ValidFrom: 100, ValidUntil: &until1},
		{ID: "f2", EntityID: "e1", Property: "role", Value: "manager", ValidFrom: 200},
	}
	pairs := DetectTemporalOverlaps(facts)
	if len(pairs) != 1 || pairs[0].Severity != vesper.SeverityHigh {
		t.Fatalf("expected one high-severity overlap, got %+v", pairs)
	}
}

func TestDetectPreferenceShiftsRequiresSevenDayGap(t *testing.T) {
	entities := []PreferenceEntity{
		{ID: "e1", Description: "likes dark mode", CreatedAt: 0},
		{ID: "e2", Description: "likes dark mode", CreatedAt: int64(3 * 24 * 3600)},
	}
	facts := map[string][]vesper.Fact{
		"e1": {{ID: "f1", EntityID: "e1"}},
		"e2": {{ID: "f2", EntityID: "e2"}},
	}
	if pairs := DetectPreferenceShifts(entities, facts); len(pairs) != 0 {
		t.Errorf("expected no shift within 7 days, got %+v", pairs)
	}

	entities[1].CreatedAt = int64(10 * 24 * 3600)
	pairs := DetectPreferenceShifts(entities, facts)
	if len(pairs) != 1 || pairs[0].Severity != vesper.SeverityLow {
		t.Fatalf("expected one low-severity shift past 7 days, got %+v", pairs)
	}
}
