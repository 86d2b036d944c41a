package sqlite

import (
	"context"
	"testing"

	"github.com/oculusnoob/vesper-memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(":memory:")
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndGetSkill(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	skill := vesper.FullSkill{Name: "deploy", Summary: "deploy a service", Triggers: []string{"deploy the app"}}
	created, err := s.AddSkill(ctx, "ns1", skill)
	if err != nil {
		t.Fatalf("AddSkill: %v", err)
	}
	got, ok, err := s.GetSkill(ctx, "ns1", created.ID)
	if err != nil || !ok {
		t.Fatalf("GetSkill: ok=%v err=%v", ok, err)
	}
	if got.Name != skill.Name {
		t.Errorf("Name = %q, want %q", got.Name, skill.Name)
	}
}

func TestSearchByTrigger(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.AddSkill(ctx, "ns1", vesper.FullSkill{Name: "deploy", Summary: "x", Triggers: []string{"deploy the service"}})
	s.AddSkill(ctx, "ns1", vesper.FullSkill{Name: "rollback", Summary: "x", Triggers: []string{"rollback a release"}})

	results, err := s.SearchByTrigger(ctx, "ns1", "deploy service to prod", 5)
	if err != nil {
		t.Fatalf("SearchByTrigger: %v", err)
	}
	if len(results) == 0 || results[0].Name != "deploy" {
		t.Fatalf("expected deploy skill to rank first, got %+v", results)
	}
}

func TestSearchByEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.AddSkillWithEmbedding(ctx, "ns1", vesper.FullSkill{Name: "a", Summary: "x"}, []float32{1, 0})
	s.AddSkillWithEmbedding(ctx, "ns1", vesper.FullSkill{Name: "b", Summary: "x"}, []float32{0, 1})

	results, err := s.SearchByEmbedding(ctx, "ns1", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("SearchByEmbedding: %v", err)
	}
	if len(results) == 0 || results[0].Name != "a" {
		t.Fatalf("expected skill a to rank first by cosine similarity, got %+v", results)
	}
}

func TestAnalogicalSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	source, _ := s.AddSkillWithEmbedding(ctx, "ns1", vesper.FullSkill{Name: "source", Summary: "x"}, []float32{1, 0, 0})
	a, _ := s.AddSkillWithEmbedding(ctx, "ns1", vesper.FullSkill{Name: "a", Summary: "x"}, []float32{0, 0, 0})
	b, _ := s.AddSkillWithEmbedding(ctx, "ns1", vesper.FullSkill{Name: "b", Summary: "x"}, []float32{0, 1, 0})
	target, _ := s.AddSkillWithEmbedding(ctx, "ns1", vesper.FullSkill{Name: "target", Summary: "x"}, []float32{1, 1, 0})

	results, err := s.AnalogicalSearch(ctx, "ns1", source.ID, a.ID, b.ID, 1)
	if err != nil {
		t.Fatalf("AnalogicalSearch: %v", err)
	}
	if len(results) == 0 || results[0].ID != target.ID {
		t.Fatalf("expected target skill to be the closest analogy, got %+v", results)
	}
}

func TestRecordCoOccurrenceAtomicIncrement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, _ := s.AddSkill(ctx, "ns1", vesper.FullSkill{Name: "a", Summary: "x"})
	b, _ := s.AddSkill(ctx, "ns1", vesper.FullSkill{Name: "b", Summary: "x"})

	for i := 0; i < 3; i++ {
		if err := s.RecordCoOccurrence(ctx, "ns1", a.ID, b.ID); err != nil {
			t.Fatalf("RecordCoOccurrence: %v", err)
		}
	}
	// Reversed argument order must hit the same normalized pair.
	if err := s.RecordCoOccurrence(ctx, "ns1", b.ID, a.ID); err != nil {
		t.Fatalf("RecordCoOccurrence reversed: %v", err)
	}

	rels, err := s.GetCoOccurring(ctx, "ns1", a.ID, 5)
	if err != nil {
		t.Fatalf("GetCoOccurring: %v", err)
	}
	if len(rels) != 1 || rels[0].CoOccurrenceCount != 4 {
		t.Fatalf("expected single normalized pair with count 4, got %+v", rels)
	}
}

func TestDetectInvocationLongestMatchWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	short, _ := s.AddSkill(ctx, "ns1", vesper.FullSkill{Name: "short", Summary: "x", Triggers: []string{"deploy"}})
	long, _ := s.AddSkill(ctx, "ns1", vesper.FullSkill{Name: "long", Summary: "x", Triggers: []string{"deploy the service to production"}})
	_ = short

	matches, err := s.DetectInvocation(ctx, "ns1", "please deploy the service to production now")
	if err != nil {
		t.Fatalf("DetectInvocation: %v", err)
	}
	if len(matches) == 0 || matches[0].SkillID != long.ID {
		t.Fatalf("expected longest trigger match to rank first, got %+v", matches)
	}
}
