// Package conflict implements the three ordered conflict-detection passes
// (C4, §4.4) as pure functions over in-memory fact/entity slices, plus a
// Coordinator that dedupes against a vesper.GraphStore and persists
// detected conflicts.
package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/oculusnoob/vesper-memory"
)

// preferenceShiftWindow is the gap two preference entities' creation
// times must exceed to count as a shift (§4.4 pass 3).
const preferenceShiftWindow = 7 * 24 * time.Hour

// Pair is a candidate conflict surfaced by one of the three passes,
// before deduplication/persistence.
type Pair struct {
	Fact1, Fact2 vesper.Fact
	EntityID     string
	Property     string
	Kind         vesper.ConflictKind
	Severity     vesper.ConflictSeverity
	Description  string
}

// DetectDirectContradictions implements pass 1: facts sharing
// (entity_id, property), differing value, both currently open
// (ValidUntil == nil), and equal ValidFrom.
func DetectDirectContradictions(facts []vesper.Fact) []Pair {
	var pairs []Pair
	for i := 0; i < len(facts); i++ {
		for j := i + 1; j < len(facts); j++ {
			a, b := facts[i], facts[j]
			if a.EntityID != b.EntityID || a.Property != b.Property {
				continue
			}
			if a.Value == b.Value {
				continue
			}
			if a.ValidUntil != nil || b.ValidUntil != nil {
				continue
			}
			if a.ValidFrom != b.ValidFrom {
				continue
			}
			pairs = append(pairs, Pair{
				Fact1: a, Fact2: b, EntityID: a.EntityID, Property: a.Property,
				Kind:     vesper.ConflictContradiction,
				Severity: vesper.SeverityMedium,
				Description: fmt.Sprintf("direct contradiction on %s.%s: %q vs %q",
					a.EntityID, a.Property, a.Value, b.Value),
			})
		}
	}
	return pairs
}

func intervalEnd(f vesper.Fact) int64 {
	if f.ValidUntil == nil {
		return 1<<63 - 1
	}
	return *f.ValidUntil
}

func intervalsOverlap(a, b vesper.Fact) bool {
	return a.ValidFrom < intervalEnd(b) && b.ValidFrom < intervalEnd(a)
}

// isDirectContradiction reports whether (a, b) would already be caught by
// pass 1, so pass 2 can exclude it per §4.4.
func isDirectContradiction(a, b vesper.Fact) bool {
	return a.ValidUntil == nil && b.ValidUntil == nil && a.ValidFrom == b.ValidFrom
}

// DetectTemporalOverlaps implements pass 2: facts sharing (entity_id,
// property), differing value, with overlapping validity intervals,
// excluding pairs already covered by pass 1.
func DetectTemporalOverlaps(facts []vesper.Fact) []Pair {
	var pairs []Pair
	for i := 0; i < len(facts); i++ {
		for j := i + 1; j < len(facts); j++ {
			a, b := facts[i], facts[j]
			if a.EntityID != b.EntityID || a.Property != b.Property {
				continue
			}
			if a.Value == b.Value {
				continue
			}
			if isDirectContradiction(a, b) {
				continue
			}
			if !intervalsOverlap(a, b) {
				continue
			}
			pairs = append(pairs, Pair{
				Fact1: a, Fact2: b, EntityID: a.EntityID, Property: a.Property,
				Kind:     vesper.ConflictTemporalOverlap,
				Severity: vesper.SeverityHigh,
				Description: fmt.Sprintf("overlapping validity on %s.%s: %q vs %q",
					a.EntityID, a.Property, a.Value, b.Value),
			})
		}
	}
	return pairs
}

// PreferenceEntity is the slice of vesper.Entity fields pass 3 needs.
type PreferenceEntity struct {
	ID          string
	Description string
	CreatedAt   int64
}

// DetectPreferenceShifts implements pass 3: two preference entities with
// the same description but different names, created more than 7 days
// apart. factsByEntity supplies each entity's current facts so the
// surfaced Pair can reference real fact records (a conflict is always
// between two facts, never bare entities).
func DetectPreferenceShifts(entities []PreferenceEntity, factsByEntity map[string][]vesper.Fact) []Pair {
	var pairs []Pair
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			a, b := entities[i], entities[j]
			if a.Description == "" || a.Description != b.Description {
				continue
			}
			gap := a.CreatedAt - b.CreatedAt
			if gap < 0 {
				gap = -gap
			}
			if time.Duration(gap)*time.Second <= preferenceShiftWindow {
				continue
			}
			factA := firstFact(factsByEntity[a.ID])
			factB := firstFact(factsByEntity[b.ID])
			if factA.ID == "" || factB.ID == "" {
				continue
			}
			pairs = append(pairs, Pair{
				Fact1: factA, Fact2: factB, EntityID: a.ID,
				Kind:        vesper.ConflictPreferenceShift,
				Severity:    vesper.SeverityLow,
				Description: fmt.Sprintf("preference shift: %q recorded for both %s and %s", a.Description, a.ID, b.ID),
			})
		}
	}
	return pairs
}

func firstFact(facts []vesper.Fact) vesper.Fact {
	if len(facts) == 0 {
		return vesper.Fact{}
	}
	return facts[0]
}

// Coordinator runs all three passes against a GraphStore and persists the
// results, relying on GraphStore.RecordConflict for deduplication and the
// atomic confidence downgrade (§4.4, §9).
type Coordinator struct {
	Graph vesper.GraphStore
}

// Result summarizes one conflict-detection run.
type Result struct {
	Detected int
	Recorded int
	Deduped  int
}

// Run executes all three passes over every active fact/entity in
// namespace and persists newly-detected conflicts.
func (c *Coordinator) Run(ctx context.Context, namespace string) (Result, error) {
	var res Result

	facts, err := c.Graph.GetByTimeRange(ctx, namespace, nil, nil)
	if err != nil {
		return res, fmt.Errorf("conflict: load facts: %w", err)
	}

	pairs := DetectDirectContradictions(facts)
	pairs = append(pairs, DetectTemporalOverlaps(facts)...)

	prefFacts, err := c.Graph.GetPreferences(ctx, namespace, "")
	if err != nil {
		return res, fmt.Errorf("conflict: load preferences: %w", err)
	}
	entitySeen := make(map[string]PreferenceEntity)
	factsByEntity := make(map[string][]vesper.Fact)
	for _, f := range prefFacts {
		factsByEntity[f.EntityID] = append(factsByEntity[f.EntityID], f)
		if _, ok := entitySeen[f.EntityID]; !ok {
			e, ok, err := c.Graph.GetEntityByID(ctx, namespace, f.EntityID)
			if err != nil {
				return res, fmt.Errorf("conflict: load preference entity: %w", err)
			}
			if ok {
				entitySeen[f.EntityID] = PreferenceEntity{ID: e.ID, Description: e.Description, CreatedAt: e.CreatedAt}
			}
		}
	}
	var prefEntities []PreferenceEntity
	for _, e := range entitySeen {
		prefEntities = append(prefEntities, e)
	}
	pairs = append(pairs, DetectPreferenceShifts(prefEntities, factsByEntity)...)

	res.Detected = len(pairs)
	for _, p := range pairs {
		recorded, err := c.Graph.RecordConflict(ctx, namespace, vesper.Conflict{
			FactID1: p.Fact1.ID, FactID2: p.Fact2.ID, EntityID: p.EntityID, Property: p.Property,
			Kind: p.Kind, Severity: p.Severity, Description: p.Description,
			ResolutionStatus: vesper.ResolutionFlagged,
		})
		if err != nil {
			return res, fmt.Errorf("conflict: record conflict: %w", err)
		}
		if recorded {
			res.Recorded++
		} else {
			res.Deduped++
		}
	}
	return res, nil
}
