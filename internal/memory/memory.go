// Package memory implements the session ring, long-term pool, and
// preferences bag (C3). The live working set lives in memory guarded
// by a mutex; every Append is additionally queued onto an async
// LevelDB write channel so a crash between snapshots loses at most the
// unflushed tail, and a background goroutine periodically (and
// debounced after each Append) snapshots the canonical ring/pool/
// preferences out to the human-readable JSON documents the persisted
// layout names. LevelDB never speaks for the system on its own — it
// is the durability buffer behind the snapshot, not the source of
// truth a reader inspects.
package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/Ishabdullah/genesis/internal/store"
	"github.com/Ishabdullah/genesis/internal/types"
)

const (
	sessionCap      = 20
	longTermCap     = 1000
	pruneThreshold  = 0.8
	pruneKeepFrac   = 0.7
	relevanceWindow = 100
	relevanceMinK   = 0.2
	defaultTopK     = 5
	rehydrateTake   = 10
)

const keyPrefix = "i|" // primary record: i|<question_id> -> Interaction JSON

// Memory is the C3 component.
type Memory struct {
	st *store.Store
	db *leveldb.DB

	mu       sync.Mutex
	session  []types.Interaction
	longTerm []types.Interaction
	prefs    types.Preferences

	writeCh     chan types.Interaction
	consolidate chan struct{}
}

// New opens (or creates) the LevelDB working set at dbPath, rehydrates
// the in-memory ring/pool/preferences from the persisted JSON
// documents, and returns a Memory ready for Append/Relevant calls.
// Run must be called to start the background writer/consolidator.
func New(st *store.Store, dbPath string) (*Memory, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, err
	}
	m := &Memory{
		st:          st,
		db:          db,
		writeCh:     make(chan types.Interaction, 256),
		consolidate: make(chan struct{}, 1),
	}
	m.rehydrate()
	return m, nil
}

// rehydrate implements "context rehydration": the last session's last
// up-to-10 items populate the session ring, the long-term pool and
// preferences load in full, and last_topic/tone/verbosity metadata
// carries forward via the Preferences bag itself.
func (m *Memory) rehydrate() {
	var prevSession []types.Interaction
	if err := m.st.Load(store.PathSession, &prevSession); err != nil {
		slog.Warn("[MEMORY] session load failed", "error", err)
	}
	if len(prevSession) > rehydrateTake {
		prevSession = prevSession[len(prevSession)-rehydrateTake:]
	}

	var longTerm []types.Interaction
	if err := m.st.Load(store.PathLongTerm, &longTerm); err != nil {
		slog.Warn("[MEMORY] long-term load failed", "error", err)
	}

	var prefs types.Preferences
	if err := m.st.Load(store.PathPreferences, &prefs); err != nil {
		slog.Warn("[MEMORY] preferences load failed", "error", err)
	}

	m.mu.Lock()
	m.session = prevSession
	m.longTerm = longTerm
	m.prefs = prefs
	m.mu.Unlock()

	for _, i := range longTerm {
		if data, err := marshalInteraction(i); err == nil {
			_ = m.db.Put([]byte(keyPrefix+i.QuestionID), data, nil)
		}
	}
}

// Append records a completed Interaction: constant-time push onto the
// session ring (oldest discarded beyond capacity), promotion into the
// long-term pool when the promotion rule fires, async durability
// write, and a debounced consolidation trigger.
func (m *Memory) Append(i types.Interaction) {
	m.mu.Lock()
	m.session = append(m.session, i)
	if len(m.session) > sessionCap {
		m.session = m.session[len(m.session)-sessionCap:]
	}
	if isPromotable(i) {
		m.longTerm = append(m.longTerm, i)
		if float64(len(m.longTerm)) > pruneThreshold*longTermCap {
			m.longTerm = prune(m.longTerm)
		}
	}
	m.prefs.LastTopic = firstWords(i.Prompt, 8)
	m.mu.Unlock()

	select {
	case m.writeCh <- i:
	default:
		slog.Warn("[MEMORY] write queue full, dropping durability write", "question_id", i.QuestionID)
	}
	select {
	case m.consolidate <- struct{}{}:
	default:
	}
}

// SetPreferences merges non-zero fields of p into the preferences bag
// (e.g. an explicit #tone directive).
func (m *Memory) SetPreferences(p types.Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Tone != "" {
		m.prefs.Tone = p.Tone
	}
	if p.Verbosity != "" {
		m.prefs.Verbosity = p.Verbosity
	}
	if p.LastTopic != "" {
		m.prefs.LastTopic = p.LastTopic
	}
}

// Preferences returns a copy of the current preferences bag.
func (m *Memory) Preferences() types.Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs
}

// Session returns a copy of the session ring, oldest first.
func (m *Memory) Session() []types.Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Interaction, len(m.session))
	copy(out, m.session)
	return out
}

// LongTermCount reports the current long-term pool size, for
// diagnostics (#memory, #stats).
func (m *Memory) LongTermCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.longTerm)
}

// PruneNow forces the retention-score prune regardless of the
// threshold Append checks, for the #prune_memory directive. Idempotent
// per RT3: pruning an already-pruned pool is a no-op.
func (m *Memory) PruneNow() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.longTerm)
	m.longTerm = prune(m.longTerm)
	return before - len(m.longTerm)
}

// Last returns the most recent Interaction in the session ring, or
// false if the ring is empty.
func (m *Memory) Last() (types.Interaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.session) == 0 {
		return types.Interaction{}, false
	}
	return m.session[len(m.session)-1], true
}

// AttachFeedback finds the Interaction with the given question id in
// the session ring (searching newest-first) and sets its Feedback,
// replacing any prior feedback on the same interaction.
func (m *Memory) AttachFeedback(questionID string, fb types.Feedback) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.session) - 1; i >= 0; i-- {
		if m.session[i].QuestionID == questionID {
			m.session[i].Feedback = &fb
			return true
		}
	}
	for i := len(m.longTerm) - 1; i >= 0; i-- {
		if m.longTerm[i].QuestionID == questionID {
			m.longTerm[i].Feedback = &fb
			return true
		}
	}
	return false
}

// Relevant returns up to defaultTopK long-term interactions whose
// lexical intersection score against prompt is >= relevanceMinK,
// scanning only the most recent relevanceWindow long-term items,
// highest-scoring first.
func (m *Memory) Relevant(prompt string) []types.Interaction {
	m.mu.Lock()
	pool := m.longTerm
	start := 0
	if len(pool) > relevanceWindow {
		start = len(pool) - relevanceWindow
	}
	window := make([]types.Interaction, len(pool)-start)
	copy(window, pool[start:])
	m.mu.Unlock()

	qTokens := tokenSet(prompt)
	type scored struct {
		i     types.Interaction
		score float64
	}
	var candidates []scored
	for _, i := range window {
		s := lexicalScore(qTokens, tokenSet(i.Prompt))
		if s >= relevanceMinK {
			candidates = append(candidates, scored{i, s})
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if len(candidates) > defaultTopK {
		candidates = candidates[:defaultTopK]
	}
	out := make([]types.Interaction, len(candidates))
	for idx, c := range candidates {
		out[idx] = c.i
	}
	return out
}

// tokenSet word-tokenizes s (Unicode word-boundary segmentation,
// lowercased) into a set.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	segs := words.FromString(s)
	for segs.Next() {
		w := strings.ToLower(strings.TrimSpace(segs.Value()))
		if w == "" {
			continue
		}
		isWord := false
		for _, r := range w {
			if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
				isWord = true
				break
			}
		}
		if isWord {
			set[w] = struct{}{}
		}
	}
	return set
}

// lexicalScore is |tokens(Q) ∩ tokens(I)| / max(|tokens(Q)|, 1).
func lexicalScore(q, i map[string]struct{}) float64 {
	if len(q) == 0 {
		return 0
	}
	inter := 0
	for t := range q {
		if _, ok := i[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(q))
}

// isPromotable implements §4.3's promotion rule.
func isPromotable(i types.Interaction) bool {
	if i.Feedback != nil {
		return true
	}
	if i.Confidence >= 0.8 {
		return true
	}
	if wordCount(i.Prompt) > 15 {
		return true
	}
	if len(i.Attempts) > 0 {
		return true
	}
	switch i.Classification.Kind {
	case types.KindCode, types.KindMath:
		return true
	}
	return false
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// prune implements the retention-score auto-prune: age-weighted
// (newer better), bonuses for length/feedback/fallback, a penalty for
// stored error markers, sorted descending, keep the top pruneKeepFrac
// of capacity. Deterministic and idempotent given the same input.
func prune(pool []types.Interaction) []types.Interaction {
	type scored struct {
		i     types.Interaction
		score float64
	}
	now := time.Now()
	scoredItems := make([]scored, len(pool))
	for idx, i := range pool {
		ageHours := now.Sub(i.Timestamp).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		score := 1.0 / (1.0 + ageHours/24.0) // newer → closer to 1
		if wordCount(i.Prompt) > 15 {
			score += 0.1
		}
		if i.Feedback != nil {
			score += 0.2
		}
		if len(i.Attempts) > 0 {
			score += 0.1
		}
		if containsErrorMarker(i.FinalText) {
			score -= 0.3
		}
		scoredItems[idx] = scored{i, score}
	}
	sort.SliceStable(scoredItems, func(a, b int) bool {
		return scoredItems[a].score > scoredItems[b].score
	})
	keep := int(pruneKeepFrac * float64(longTermCap))
	if keep > len(scoredItems) {
		keep = len(scoredItems)
	}
	out := make([]types.Interaction, keep)
	for idx := 0; idx < keep; idx++ {
		out[idx] = scoredItems[idx].i
	}
	// Restore chronological order so the pool still reads oldest-first.
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Timestamp.Before(out[b].Timestamp)
	})
	return out
}

func containsErrorMarker(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range []string{"error", "failed", "traceback", "⚠"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func marshalInteraction(i types.Interaction) ([]byte, error) {
	return json.Marshal(i)
}

// Run starts the async LevelDB writer and the background consolidator.
// Blocks until ctx is cancelled, at which point it drains pending
// writes, takes a final snapshot, and closes the database.
func (m *Memory) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			m.drainWrites()
			m.snapshot()
			if err := m.db.Close(); err != nil {
				slog.Warn("[MEMORY] db close error", "error", err)
			}
			return
		case i := <-m.writeCh:
			m.persist(i)
		case <-m.consolidate:
			settle = time.After(50 * time.Millisecond)
		case <-ticker.C:
			m.snapshot()
		case <-settle:
			settle = nil
			m.snapshot()
		}
	}
}

func (m *Memory) persist(i types.Interaction) {
	data, err := marshalInteraction(i)
	if err != nil {
		slog.Error("[MEMORY] marshal interaction failed", "question_id", i.QuestionID, "error", err)
		return
	}
	if err := m.db.Put([]byte(keyPrefix+i.QuestionID), data, nil); err != nil {
		slog.Error("[MEMORY] durability write failed, continuing with in-memory state only",
			"question_id", i.QuestionID, "error", types.ErrPersistenceWarning, "cause", err)
	}
}

func (m *Memory) drainWrites() {
	for {
		select {
		case i := <-m.writeCh:
			m.persist(i)
		default:
			return
		}
	}
}

// snapshot writes the canonical ring/pool/preferences out to the
// persisted-layout JSON documents. This is what makes the system's
// human-readable file contract (and a restart round-trip) hold; the
// LevelDB records are only the durability buffer behind it.
func (m *Memory) snapshot() {
	m.mu.Lock()
	session := make([]types.Interaction, len(m.session))
	copy(session, m.session)
	longTerm := make([]types.Interaction, len(m.longTerm))
	copy(longTerm, m.longTerm)
	prefs := m.prefs
	m.mu.Unlock()

	if err := m.st.Save(store.PathSession, &session); err != nil {
		slog.Warn("[MEMORY] session snapshot failed", "error", err)
	}
	if err := m.st.Save(store.PathLongTerm, &longTerm); err != nil {
		slog.Warn("[MEMORY] long-term snapshot failed", "error", err)
	}
	if err := m.st.Save(store.PathPreferences, &prefs); err != nil {
		slog.Warn("[MEMORY] preferences snapshot failed", "error", err)
	}
}

// Close forces an immediate synchronous snapshot without waiting for
// the debounce window; used for control directives like #export_memory.
func (m *Memory) Close() {
	m.snapshot()
}
