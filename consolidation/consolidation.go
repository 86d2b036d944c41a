// Package consolidation implements the periodic working-to-semantic
// promotion pipeline (C5, §4.5): seven ordered steps reading from the
// working-memory cache, writing to the semantic graph and skill library,
// and reporting a single atomic stats record.
package consolidation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/oculusnoob/vesper-memory"
	"github.com/oculusnoob/vesper-memory/conflict"
)

// maxConversationsPerCycle bounds step 1 (§4.5 step 1).
const maxConversationsPerCycle = 100

// pruneMinStrength and pruneMinAccessCount gate step 5.
const (
	pruneMinStrength    = 0.05
	pruneMinAccessCount = 3
)

// skillRepetitionThreshold is how many times a topic must recur across
// the processed conversations before step 6 mints a skill for it.
const skillRepetitionThreshold = 3

// backupExpiry is the descriptor lifetime recorded by step 7.
const backupExpiry = 7 * 24 * time.Hour

// preferencePattern extracts "prefer X" / "like X" / "favorite is X"
// style statements. Capture group 1 is the preferred value.
var preferencePattern = regexp.MustCompile(`(?i)\b(?:prefers?|likes?|favou?rite(?:\s+is)?)\s+([a-zA-Z0-9 _-]{2,60})`)

// extractionSkipPhrases are full-message acknowledgements too short to
// carry an entity or preference worth extracting.
var extractionSkipPhrases = map[string]bool{
	"ok": true, "okay": true, "oke": true, "okey": true,
	"thanks": true, "thank you": true, "thx": true, "ty": true,
	"yes": true, "no": true, "yep": true, "nope": true,
	"nice": true, "sip": true, "siap": true,
	"lol": true, "haha": true, "wkwk": true, "wkwkwk": true,
	"hmm": true, "hm": true, "oh": true, "ah": true,
	"good": true, "great": true, "cool": true,
}

// shouldExtract reports whether text is worth running step 2's
// extraction over: messages shorter than 10 characters or consisting
// of nothing but a bare acknowledgement never carry a fact worth
// extracting (§4.5 step 2).
func shouldExtract(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 10 {
		return false
	}
	return !extractionSkipPhrases[strings.ToLower(trimmed)]
}

// nopLogger discards all output; the zero value of Pipeline logs nowhere.
var nopLogger = slog.New(slog.NewTextHandler(discardWriter{}, nil))

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger overrides the pipeline's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline runs one consolidation cycle across a Cache, GraphStore, and
// SkillStore. Construct with New; it holds no state between runs beyond
// its collaborators.
type Pipeline struct {
	Cache  vesper.Cache
	Graph  vesper.GraphStore
	Skills vesper.SkillStore
	logger *slog.Logger
}

// New builds a Pipeline over the given collaborators.
func New(cache vesper.Cache, graph vesper.GraphStore, skills vesper.SkillStore, opts ...Option) *Pipeline {
	p := &Pipeline{Cache: cache, Graph: graph, Skills: skills, logger: nopLogger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes all seven steps in order against namespace. A failure at
// any step aborts the cycle immediately; prior steps' effects are left
// in place (no rollback — consolidation is idempotent modulo monotonic
// counters, §4.5).
func (p *Pipeline) Run(ctx context.Context, namespace string) vesper.ConsolidationStats {
	start := time.Now()
	var stats vesper.ConsolidationStats

	conversations, err := p.step1Read(ctx, namespace)
	if err != nil {
		return p.abort(stats, start, "read_recent", err)
	}
	stats.MemoriesProcessed = len(conversations)
	p.logger.Info("consolidation: read conversations", "namespace", namespace, "count", len(conversations))

	entityCount, err := p.step2Extract(ctx, namespace, conversations)
	if err != nil {
		return p.abort(stats, start, "shallow_extraction", err)
	}
	stats.EntitiesExtracted = entityCount

	decayCount, err := p.Graph.ApplyTemporalDecay(ctx, namespace)
	if err != nil {
		return p.abort(stats, start, "apply_temporal_decay", err)
	}
	p.logger.Info("consolidation: applied decay", "namespace", namespace, "relationships", decayCount)

	conflictResult, err := p.step4Conflicts(ctx, namespace)
	if err != nil {
		return p.abort(stats, start, "conflict_detection", err)
	}
	stats.ConflictsDetected = conflictResult.Detected

	pruned, err := p.Graph.PruneRelationships(ctx, namespace, pruneMinStrength, pruneMinAccessCount)
	if err != nil {
		return p.abort(stats, start, "prune_relationships", err)
	}
	stats.MemoriesPruned = pruned

	skillsExtracted, err := p.step6ExtractSkills(ctx, namespace, conversations)
	if err != nil {
		return p.abort(stats, start, "extract_skills", err)
	}
	stats.SkillsExtracted = skillsExtracted

	if err := p.step7RecordBackup(ctx, namespace); err != nil {
		return p.abort(stats, start, "record_backup", err)
	}

	stats.DurationMs = time.Since(start).Milliseconds()
	p.logger.Info("consolidation: cycle complete", "namespace", namespace,
		"memories_processed", stats.MemoriesProcessed,
		"entities_extracted", stats.EntitiesExtracted,
		"conflicts_detected", stats.ConflictsDetected,
		"memories_pruned", stats.MemoriesPruned,
		"skills_extracted", stats.SkillsExtracted,
		"duration_ms", stats.DurationMs)
	return stats
}

func (p *Pipeline) abort(stats vesper.ConsolidationStats, start time.Time, step string, err error) vesper.ConsolidationStats {
	stats.FailedStep = step
	stats.Err = err.Error()
	stats.DurationMs = time.Since(start).Milliseconds()
	p.logger.Error("consolidation: cycle aborted", "step", step, "error", err)
	return stats
}

// step1Read reads up to maxConversationsPerCycle most recent
// conversations from C1 (§4.5 step 1).
func (p *Pipeline) step1Read(ctx context.Context, namespace string) ([]vesper.Conversation, error) {
	convs, err := p.Cache.ListRecent(ctx, namespace, maxConversationsPerCycle)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	return convs, nil
}

// step2Extract runs shallow, non-LLM extraction over each conversation:
// key_entities become concept entities, and a fixed regex table surfaces
// preference statements (§4.5 step 2).
func (p *Pipeline) step2Extract(ctx context.Context, namespace string, conversations []vesper.Conversation) (int, error) {
	extracted := 0
	for _, conv := range conversations {
		for _, name := range conv.KeyEntities {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, err := p.Graph.UpsertEntity(ctx, namespace, name, vesper.EntityConcept, "extracted from conversation "+conv.ConversationID); err != nil {
				return extracted, fmt.Errorf("upsert concept entity %q: %w", name, err)
			}
			extracted++
		}

		if !shouldExtract(conv.FullText) {
			continue
		}
		for _, match := range preferencePattern.FindAllStringSubmatch(conv.FullText, -1) {
			value := strings.TrimSpace(match[1])
			if value == "" {
				continue
			}
			if _, err := p.Graph.UpsertEntity(ctx, namespace, value, vesper.EntityPreference, "extracted preference from conversation "+conv.ConversationID); err != nil {
				return extracted, fmt.Errorf("upsert preference entity %q: %w", value, err)
			}
			extracted++
		}
	}
	return extracted, nil
}

// step4Conflicts runs all three conflict passes from C4 (§4.5 step 4).
func (p *Pipeline) step4Conflicts(ctx context.Context, namespace string) (conflict.Result, error) {
	coord := &conflict.Coordinator{Graph: p.Graph}
	result, err := coord.Run(ctx, namespace)
	if err != nil {
		return result, fmt.Errorf("conflict passes: %w", err)
	}
	return result, nil
}

// step6ExtractSkills scans the processed conversations' topics; any
// topic recurring at least skillRepetitionThreshold times, with no
// existing skill already triggered by it, becomes a new skill (§4.5
// step 6).
func (p *Pipeline) step6ExtractSkills(ctx context.Context, namespace string, conversations []vesper.Conversation) (int, error) {
	counts := make(map[string]int)
	for _, conv := range conversations {
		for _, topic := range conv.Topics {
			topic = strings.ToLower(strings.TrimSpace(topic))
			if topic == "" {
				continue
			}
			counts[topic]++
		}
	}

	created := 0
	for topic, count := range counts {
		if count < skillRepetitionThreshold {
			continue
		}
		existing, err := p.Skills.SearchByTrigger(ctx, namespace, topic, 1)
		if err != nil {
			return created, fmt.Errorf("search existing skill for topic %q: %w", topic, err)
		}
		if len(existing) > 0 {
			continue
		}
		skill := vesper.FullSkill{
			Name:     topic,
			Summary:  fmt.Sprintf("recurring pattern: %s", topic),
			Category: "heuristic",
			Triggers: []string{topic},
		}
		if _, err := p.Skills.AddSkill(ctx, namespace, skill); err != nil {
			return created, fmt.Errorf("add skill for topic %q: %w", topic, err)
		}
		created++
	}
	return created, nil
}

// step7RecordBackup records an externally-produced backup's descriptor
// with a 7-day expiry (§4.5 step 7). The backup artifact itself is
// produced by an external collaborator; the pipeline only tracks its
// existence.
func (p *Pipeline) step7RecordBackup(ctx context.Context, namespace string) error {
	now := vesper.NowUnix()
	meta := vesper.BackupMetadata{
		ID:        vesper.NewID(),
		CreatedAt: now,
		ExpiresAt: now + int64(backupExpiry.Seconds()),
		Namespace: namespace,
	}
	if err := p.Graph.RecordBackup(ctx, namespace, meta); err != nil {
		return fmt.Errorf("record backup: %w", err)
	}
	return nil
}
