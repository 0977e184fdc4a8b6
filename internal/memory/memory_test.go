package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ishabdullah/genesis/internal/store"
	"github.com/Ishabdullah/genesis/internal/types"
)

func newTestMemory(t *testing.T) (*Memory, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(dir)
	m, err := New(st, filepath.Join(dir, "leveldb"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done := make(chan struct{})
		go func() { m.Run(ctx); close(done) }()
		cancel()
		<-done
	})
	return m, st
}

func TestMemory_Append_SessionRingEvictsOldest(t *testing.T) {
	m, _ := newTestMemory(t)
	for i := 0; i < sessionCap+5; i++ {
		m.Append(types.Interaction{QuestionID: string(rune('a' + i%26)), Prompt: "hi", Timestamp: time.Now()})
	}
	session := m.Session()
	if len(session) != sessionCap {
		t.Fatalf("session len = %d, want %d", len(session), sessionCap)
	}
}

func TestMemory_Append_PromotesHighConfidence(t *testing.T) {
	m, _ := newTestMemory(t)
	m.Append(types.Interaction{QuestionID: "q1", Prompt: "short", Confidence: 0.9, Timestamp: time.Now()})
	m.mu.Lock()
	n := len(m.longTerm)
	m.mu.Unlock()
	if n != 1 {
		t.Errorf("expected 1 promoted interaction, got %d", n)
	}
}

func TestMemory_Append_DoesNotPromoteLowConfidenceShortPrompt(t *testing.T) {
	m, _ := newTestMemory(t)
	m.Append(types.Interaction{QuestionID: "q1", Prompt: "hi", Confidence: 0.5, Timestamp: time.Now()})
	m.mu.Lock()
	n := len(m.longTerm)
	m.mu.Unlock()
	if n != 0 {
		t.Errorf("expected 0 promoted interactions, got %d", n)
	}
}

func TestMemory_Append_PromotesMathAndCode(t *testing.T) {
	m, _ := newTestMemory(t)
	m.Append(types.Interaction{QuestionID: "q1", Prompt: "2+2", Classification: types.Classification{Kind: types.KindMath}, Timestamp: time.Now()})
	m.Append(types.Interaction{QuestionID: "q2", Prompt: "fix bug", Classification: types.Classification{Kind: types.KindCode}, Timestamp: time.Now()})
	m.mu.Lock()
	n := len(m.longTerm)
	m.mu.Unlock()
	if n != 2 {
		t.Errorf("expected 2 promoted interactions, got %d", n)
	}
}

func TestMemory_AttachFeedback_FindsByQuestionID(t *testing.T) {
	m, _ := newTestMemory(t)
	m.Append(types.Interaction{QuestionID: "q1", Prompt: "hi", Timestamp: time.Now()})
	ok := m.AttachFeedback("q1", types.Feedback{IsCorrect: false, Note: "wrong"})
	if !ok {
		t.Fatal("expected AttachFeedback to find q1")
	}
	last, _ := m.Last()
	if last.Feedback == nil || last.Feedback.Note != "wrong" {
		t.Errorf("feedback not attached: %+v", last.Feedback)
	}
}

func TestMemory_AttachFeedback_UnknownIDReturnsFalse(t *testing.T) {
	m, _ := newTestMemory(t)
	if m.AttachFeedback("nope", types.Feedback{}) {
		t.Error("expected false for unknown question id")
	}
}

func TestMemory_Relevant_ScoresLexicalIntersection(t *testing.T) {
	m, _ := newTestMemory(t)
	m.Append(types.Interaction{QuestionID: "q1", Prompt: "what is the capital of france", Confidence: 0.9, Timestamp: time.Now()})
	m.Append(types.Interaction{QuestionID: "q2", Prompt: "completely unrelated topic about cooking", Confidence: 0.9, Timestamp: time.Now()})

	results := m.Relevant("tell me about the capital of france again")
	if len(results) == 0 {
		t.Fatal("expected at least one relevant result")
	}
	if results[0].QuestionID != "q1" {
		t.Errorf("expected q1 to rank first, got %s", results[0].QuestionID)
	}
}

func TestMemory_Relevant_FiltersBelowThreshold(t *testing.T) {
	m, _ := newTestMemory(t)
	m.Append(types.Interaction{QuestionID: "q1", Prompt: "completely unrelated cooking topic", Confidence: 0.9, Timestamp: time.Now()})
	results := m.Relevant("quantum physics homework help")
	if len(results) != 0 {
		t.Errorf("expected no matches above threshold, got %d", len(results))
	}
}

func TestPrune_KeepsTopFractionByScore(t *testing.T) {
	now := time.Now()
	pool := make([]types.Interaction, 0, longTermCap)
	for i := 0; i < longTermCap; i++ {
		pool = append(pool, types.Interaction{
			QuestionID: string(rune('a' + i)),
			Prompt:     "x",
			Timestamp:  now.Add(-time.Duration(i) * 24 * time.Hour),
		})
	}
	pruned := prune(pool)
	if len(pruned) == 0 || len(pruned) >= len(pool) {
		t.Errorf("expected prune to reduce count, got %d from %d", len(pruned), len(pool))
	}
}

func TestPrune_IsIdempotentOnSameInput(t *testing.T) {
	now := time.Now()
	pool := make([]types.Interaction, 0, 10)
	for i := 0; i < 10; i++ {
		pool = append(pool, types.Interaction{QuestionID: string(rune('a' + i)), Timestamp: now})
	}
	first := prune(pool)
	second := prune(pool)
	if len(first) != len(second) {
		t.Errorf("prune not deterministic: %d vs %d", len(first), len(second))
	}
}

func TestMemory_RehydrateOnStartup_PopulatesFromDisk(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir)
	past := []types.Interaction{
		{QuestionID: "old1", Prompt: "first", Timestamp: time.Now().Add(-time.Hour)},
		{QuestionID: "old2", Prompt: "second", Timestamp: time.Now()},
	}
	if err := st.Save(store.PathSession, &past); err != nil {
		t.Fatal(err)
	}
	m, err := New(st, filepath.Join(dir, "leveldb"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session := m.Session()
	if len(session) != 2 {
		t.Fatalf("expected 2 rehydrated items, got %d", len(session))
	}
}
