// Package feedback implements C12: the per-source confidence ledger
// that learns from user corrections over a session. Its scoring is
// advisory only — per spec.md's open question (a), best_source_for
// never reorders the fallback cascade in internal/fallback; it is
// telemetry a caller may log or display, nothing more.
package feedback

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Ishabdullah/genesis/internal/store"
	"github.com/Ishabdullah/genesis/internal/types"
)

const learningRate = 0.05

func defaultWeights() types.SourceWeights {
	return types.SourceWeights{
		types.SourceWebsearch: {
			BaseConfidence: 0.70,
			Bonuses:        types.SourceBonus{"time_sensitive": 0.15},
		},
		types.SourceProviderB: {
			BaseConfidence: 0.75,
			Bonuses:        types.SourceBonus{"synthesis": 0.10},
		},
		types.SourceProviderC: {
			BaseConfidence: 0.85,
			Bonuses:        types.SourceBonus{"coding": 0.20},
		},
		types.SourceLocal: {
			BaseConfidence: 0.60,
			Bonuses:        types.SourceBonus{"math": 0.30},
		},
	}
}

// Ledger is the C12 component. Source weights and learning events are
// persisted to disk through st on every mutation, mirroring the
// teacher's write-through stores; the correct/incorrect/refinement
// tallies are session-only and kept in memory.
type Ledger struct {
	mu sync.Mutex

	st      *store.Store
	weights types.SourceWeights
	events  []types.LearningEvent

	correct        int
	incorrect      int
	refinements    int
	learningEvents int // events appended this session, not the lifetime total in l.events
}

// New loads any previously persisted weights/learning events from st,
// or seeds the defaults on first run.
func New(st *store.Store) *Ledger {
	l := &Ledger{st: st, weights: defaultWeights()}
	if st != nil {
		var loaded types.SourceWeights
		if err := st.Load(store.PathSourceWeights, &loaded); err == nil && len(loaded) > 0 {
			l.weights = loaded
		}
		var events []types.LearningEvent
		if err := st.Load(store.PathLearningEvents, &events); err == nil {
			l.events = events
		}
	}
	return l
}

// Tags describe a query's shape for scoring/bonus lookup.
type Tags struct {
	QueryType     string // e.g. "math", "synthesis", "" for general
	TimeSensitive bool
	Coding        bool
}

// AddFeedback records one correction/confirmation, updates the
// relevant source's learned weight, and — for anything but a plain
// correct-with-no-note — appends a learning event.
//
// Expectations:
//   - is_correct with no note increments Correct only
//   - is_correct with a note counts as a refinement, not a plain correct
//   - every !is_correct, and every is_correct-with-note, appends a LearningEvent
func (l *Ledger) AddFeedback(query, response string, isCorrect bool, note string, source types.Source, confidence float64) types.Feedback {
	l.mu.Lock()
	defer l.mu.Unlock()

	if isCorrect {
		if note != "" {
			l.refinements++
		} else {
			l.correct++
		}
	} else {
		l.incorrect++
	}

	l.updateWeight(source, isCorrect)

	if !isCorrect || (isCorrect && note != "") {
		l.appendLearningEvent(query, response, isCorrect, note, source)
	}

	return types.Feedback{IsCorrect: isCorrect, Note: note, Timestamp: time.Now()}
}

// updateWeight nudges a source's base confidence toward 0.9 (correct)
// or 0.5 (incorrect) by learningRate, clamped to [0.4, 0.95]. A source
// not present in the ledger (an adapter added after the ledger was
// seeded) is silently ignored, matching the original's behavior.
func (l *Ledger) updateWeight(source types.Source, isCorrect bool) {
	w, ok := l.weights[source]
	if !ok {
		return
	}
	w.Total++
	if isCorrect {
		w.Success++
	}

	target := 0.5
	if isCorrect {
		target = 0.9
	}
	adjustment := learningRate * (target - w.BaseConfidence)
	w.BaseConfidence = clamp(w.BaseConfidence+adjustment, 0.4, 0.95)

	if l.st != nil {
		_ = l.st.Save(store.PathSourceWeights, l.weights)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (l *Ledger) appendLearningEvent(query, response string, isCorrect bool, note string, source types.Source) {
	eventType := types.EventErrorCorrection
	priority := "high"
	if isCorrect {
		eventType = types.EventPositiveRefinement
		priority = "medium"
	}
	l.events = append(l.events, types.LearningEvent{
		Timestamp: time.Now(),
		Query:     query,
		Response:  truncate(response, 200),
		IsCorrect: isCorrect,
		Note:      note,
		Source:    source,
		EventType: eventType,
		Priority:  priority,
	})
	l.learningEvents++
	if l.st != nil {
		_ = l.st.Save(store.PathLearningEvents, l.events)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// SourceConfidence returns source's current adaptive confidence for
// the given query tags, capped at 0.99. Sources the ledger has never
// seen score a neutral 0.5.
func (l *Ledger) SourceConfidence(source types.Source, tags Tags) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sourceConfidenceLocked(source, tags)
}

func (l *Ledger) sourceConfidenceLocked(source types.Source, tags Tags) float64 {
	w, ok := l.weights[source]
	if !ok {
		return 0.5
	}
	confidence := w.BaseConfidence
	switch {
	case source == types.SourceWebsearch && tags.TimeSensitive:
		confidence += w.Bonuses["time_sensitive"]
	case source == types.SourceProviderB && tags.QueryType == "synthesis":
		confidence += w.Bonuses["synthesis"]
	case source == types.SourceProviderC && tags.Coding:
		confidence += w.Bonuses["coding"]
	case source == types.SourceLocal && tags.QueryType == "math":
		confidence += w.Bonuses["math"]
	}
	if confidence > 0.99 {
		confidence = 0.99
	}
	return confidence
}

// BestSourceFor ranks every known source for the given tags and
// returns the top one. This is ADVISORY ONLY: the caller must not use
// it to reorder the fallback cascade (see internal/fallback's
// cascadeOrder) — it exists for logging/diagnostics and for a UI
// "recommended source" hint.
func (l *Ledger) BestSourceFor(tags Tags) (types.Source, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var best types.Source
	bestScore := -1.0
	for source := range l.weights {
		score := l.sourceConfidenceLocked(source, tags)
		switch {
		case source == types.SourceWebsearch && tags.TimeSensitive:
			score *= 1.3
		case source == types.SourceProviderC && tags.Coding:
			score *= 1.4
		}
		if tags.QueryType == "math" && source == types.SourceLocal {
			score *= 1.2
		}
		if score > bestScore {
			bestScore, best = score, source
		}
	}
	return best, bestScore
}

// Stats is the session's running feedback tally.
type Stats struct {
	Correct                   int
	Incorrect                 int
	Refinements               int
	LearningEvents            int
	TotalStoredLearningEvents int
}

func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Correct:                   l.correct,
		Incorrect:                 l.incorrect,
		Refinements:               l.refinements,
		LearningEvents:            l.learningEvents,
		TotalStoredLearningEvents: len(l.events),
	}
}

// Summary renders a human-readable feedback/learning report as plain
// title and statistic lines.
func (l *Ledger) Summary() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.correct + l.incorrect
	successRate := 0.0
	if total > 0 {
		successRate = float64(l.correct) / float64(total) * 100
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Feedback & Learning Summary\n")
	fmt.Fprintf(&sb, "Total feedback: %d (correct=%d incorrect=%d refinements=%d)\n",
		total, l.correct, l.incorrect, l.refinements)
	fmt.Fprintf(&sb, "Success rate: %.1f%%\n", successRate)
	fmt.Fprintf(&sb, "Learning events stored: %d\n", len(l.events))
	fmt.Fprintf(&sb, "Source confidence (adaptive):\n")

	for source, w := range l.weights {
		if w.Total == 0 {
			continue
		}
		rate := float64(w.Success) / float64(w.Total) * 100
		fmt.Fprintf(&sb, "  %-12s %.2f (%d/%d = %.0f%%)\n", source, w.BaseConfidence, w.Success, w.Total, rate)
	}
	return sb.String()
}

// ResetSessionCounters zeroes the session-scoped correct/incorrect/
// refinement tallies for #reset_metrics. Persisted source weights and
// stored learning events are untouched — those reflect the ledger's
// whole lifetime, not one session.
func (l *Ledger) ResetSessionCounters() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.correct = 0
	l.incorrect = 0
	l.refinements = 0
	l.learningEvents = 0
}

// ExportLearningData writes every learning event plus the current
// weight table to a single document (for an out-of-core fine-tuning
// pipeline to later consume) and returns its relative store path.
func (l *Ledger) ExportLearningData(now time.Time) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rel := fmt.Sprintf("memory/learning_export_%s.json", now.Format("20060102_150405"))
	export := struct {
		ExportTimestamp time.Time             `json:"export_timestamp"`
		TotalEvents     int                   `json:"total_events"`
		SourceWeights   types.SourceWeights   `json:"source_weights"`
		LearningEvents  []types.LearningEvent `json:"learning_events"`
	}{
		ExportTimestamp: now,
		TotalEvents:     len(l.events),
		SourceWeights:   l.weights,
		LearningEvents:  l.events,
	}
	if l.st == nil {
		return "", fmt.Errorf("feedback: no store configured")
	}
	if err := l.st.Save(rel, export); err != nil {
		return "", err
	}
	return rel, nil
}
