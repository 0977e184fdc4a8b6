package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Ishabdullah/genesis/internal/direct"
	"github.com/Ishabdullah/genesis/internal/fallback"
	"github.com/Ishabdullah/genesis/internal/feedback"
	"github.com/Ishabdullah/genesis/internal/localmodel"
	"github.com/Ishabdullah/genesis/internal/memory"
	"github.com/Ishabdullah/genesis/internal/store"
	"github.com/Ishabdullah/genesis/internal/timesync"
	"github.com/Ishabdullah/genesis/internal/tracer"
	"github.com/Ishabdullah/genesis/internal/types"
)

// fakeModel records every call it receives and returns a canned
// response, so tests can assert whether generation happened at all.
type fakeModel struct {
	calls int
	text  string
	err   error
}

func (f *fakeModel) Generate(ctx context.Context, prompt string, params localmodel.Params) (types.LocalResponse, error) {
	f.calls++
	if f.err != nil {
		return types.LocalResponse{}, f.err
	}
	return types.LocalResponse{Text: f.text}, nil
}

// fakeAdapter records calls and always succeeds with a fixed answer.
type fakeAdapter struct {
	calls int
	text  string
	conf  float64
}

func (f *fakeAdapter) Ask(ctx context.Context, prompt string) (bool, string, float64) {
	f.calls++
	return true, f.text, f.conf
}

func newTestController(t *testing.T, model localmodel.LocalModel, cascade *fallback.Orchestrator) *Controller {
	t.Helper()
	dir := t.TempDir()
	st := store.New(dir)
	mem, err := memory.New(st, filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	t.Cleanup(mem.Close)

	return New(Config{
		Memory:  mem,
		Tracer:  tracer.New(),
		Direct:  direct.New(mem),
		Model:   model,
		Cascade: cascade,
		Ledger:  feedback.New(st),
		Clock:   timesync.New(st, 0),
	})
}

// QI2: a verified symbolic answer short-circuits straight to
// persistence with source=local_calculated, confidence=1.0, and never
// touches the local model or the fallback cascade.
func TestProcess_VerifiedSymbolicAnswerShortCircuits(t *testing.T) {
	model := &fakeModel{text: "should never be used"}
	adapter := &fakeAdapter{text: "should never be used", conf: 1.0}
	cascade := fallback.New(map[types.Source]fallback.Adapter{
		types.SourceWebsearch: adapter,
	})
	ctrl := newTestController(t, model, cascade)

	out := ctrl.Process(context.Background(), "A bat and a ball cost $1.10 in total. The bat costs $1.00 more than the ball.")

	if model.calls != 0 {
		t.Errorf("expected local model never invoked, got %d calls", model.calls)
	}
	if adapter.calls != 0 {
		t.Errorf("expected fallback cascade never invoked, got %d calls", adapter.calls)
	}

	last, ok := ctrl.mem.Last()
	if !ok {
		t.Fatal("expected an interaction to be persisted")
	}
	if last.Source != types.SourceLocalCalculated {
		t.Errorf("source = %q, want %q", last.Source, types.SourceLocalCalculated)
	}
	if last.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", last.Confidence)
	}
	if out.Text == "" {
		t.Error("expected non-empty rendered output")
	}
}

// QI3: a time-sensitive prompt forces the cascade even when the local
// model's own answer looked confident.
func TestProcess_TimeSensitiveForcesCascadeRegardlessOfLocalConfidence(t *testing.T) {
	model := &fakeModel{text: "The current president is a well-established, confident, detailed, and thoroughly explained answer with plenty of words."}
	adapter := &fakeAdapter{text: "fresh cascade answer", conf: 0.9}
	cascade := fallback.New(map[types.Source]fallback.Adapter{
		types.SourceWebsearch: adapter,
	})
	ctrl := newTestController(t, model, cascade)

	out := ctrl.Process(context.Background(), "Who is the current president today?")

	if model.calls != 1 {
		t.Errorf("expected local model invoked once, got %d", model.calls)
	}
	if adapter.calls != 1 {
		t.Errorf("expected cascade invoked once for a time-sensitive prompt, got %d", adapter.calls)
	}
	if out.Text == "" {
		t.Error("expected non-empty rendered output")
	}

	last, ok := ctrl.mem.Last()
	if !ok {
		t.Fatal("expected an interaction to be persisted")
	}
	if !last.TimeSensitive {
		t.Error("expected interaction marked time-sensitive")
	}
	if last.Source != types.SourceWebsearch {
		t.Errorf("source = %q, want %q (cascade winner)", last.Source, types.SourceWebsearch)
	}
}

// Retry preserves answer: re-asking with a retry phrase reuses the
// prior question_id and its stored result, rather than regenerating.
func TestProcess_RetryReusesPriorAnswer(t *testing.T) {
	model := &fakeModel{text: "a perfectly confident, detailed, and thorough conceptual explanation spanning plenty of words."}
	cascade := fallback.New(map[types.Source]fallback.Adapter{})
	ctrl := newTestController(t, model, cascade)

	first := ctrl.Process(context.Background(), "Explain how binary search works.")
	if model.calls != 1 {
		t.Fatalf("expected first turn to invoke the model once, got %d", model.calls)
	}

	second := ctrl.Process(context.Background(), "try again")
	if model.calls != 1 {
		t.Errorf("expected retry to reuse the prior answer without a new model call, got %d calls", model.calls)
	}
	if second.Text != first.Text {
		t.Errorf("retry text = %q, want identical to first turn %q", second.Text, first.Text)
	}
}

// Feedback directives attach to the last Interaction and route to the
// feedback ledger, per the closing paragraph of step 12.
func TestProcess_FeedbackDirectiveAttachesToLastInteraction(t *testing.T) {
	model := &fakeModel{text: "a perfectly confident, detailed, and thorough conceptual explanation spanning plenty of words."}
	cascade := fallback.New(map[types.Source]fallback.Adapter{})
	ctrl := newTestController(t, model, cascade)

	ctrl.Process(context.Background(), "What is dependency injection?")
	out := ctrl.Process(context.Background(), "#correct - clear and accurate")
	if out.Text != "marked correct" {
		t.Errorf("directive reply = %q, want %q", out.Text, "marked correct")
	}

	last, ok := ctrl.mem.Last()
	if !ok {
		t.Fatal("expected a persisted interaction")
	}
	if last.Feedback == nil {
		t.Fatal("expected feedback attached to the last interaction")
	}
	if !last.Feedback.IsCorrect {
		t.Error("expected feedback marked correct")
	}
	if last.Feedback.Note != "clear and accurate" {
		t.Errorf("feedback note = %q, want %q", last.Feedback.Note, "clear and accurate")
	}

	if ctrl.ledger.Stats().Correct != 1 {
		t.Errorf("ledger correct count = %d, want 1", ctrl.ledger.Stats().Correct)
	}
}

// Unknown directives don't fall through to the normal pipeline.
func TestProcess_UnknownDirectiveDoesNotInvokeModel(t *testing.T) {
	model := &fakeModel{text: "unused"}
	cascade := fallback.New(map[types.Source]fallback.Adapter{})
	ctrl := newTestController(t, model, cascade)

	out := ctrl.Process(context.Background(), "#nonsense")
	if model.calls != 0 {
		t.Errorf("expected no model call for an unrecognized directive, got %d", model.calls)
	}
	if out.Text == "" {
		t.Error("expected an explanatory reply for an unknown directive")
	}
}

// #exit sets Outcome.Exit so the REPL loop can terminate.
func TestProcess_ExitDirectiveSignalsExit(t *testing.T) {
	ctrl := newTestController(t, &fakeModel{}, fallback.New(map[types.Source]fallback.Adapter{}))
	out := ctrl.Process(context.Background(), "#exit")
	if !out.Exit {
		t.Error("expected #exit to set Exit=true")
	}
}
