package direct

import (
	"context"
	"strings"
	"testing"

	"github.com/Ishabdullah/genesis/internal/types"
)

type fakePrefs struct{ p types.Preferences }

func (f fakePrefs) Preferences() types.Preferences { return f.p }

func TestHandle_Identity(t *testing.T) {
	h := New(nil)
	out, ok := h.Handle(context.Background(), "who are you?")
	if !ok {
		t.Fatal("expected identity matcher to fire")
	}
	if !strings.Contains(out, "Genesis") {
		t.Errorf("answer = %q, want mention of Genesis", out)
	}
}

func TestHandle_Arithmetic(t *testing.T) {
	cases := []struct {
		prompt string
		want   string
	}{
		{"what is 8*7+6", "62"},
		{"2+2", "4"},
		{"what is (3+4)*2", "14"},
		{"10/4", "2.5"},
	}
	h := New(nil)
	for _, c := range cases {
		out, ok := h.Handle(context.Background(), c.prompt)
		if !ok {
			t.Fatalf("prompt %q: expected arithmetic matcher to fire", c.prompt)
		}
		if out != c.want {
			t.Errorf("prompt %q: got %q, want %q", c.prompt, out, c.want)
		}
	}
}

func TestHandle_ArithmeticDivisionByZeroDoesNotFire(t *testing.T) {
	h := New(nil)
	_, ok := h.Handle(context.Background(), "what is 5/0")
	if ok {
		t.Error("expected division by zero to fall through rather than produce an answer")
	}
}

func TestHandle_NoIdentifiersAllowed(t *testing.T) {
	h := New(nil)
	// "x" is not a digit/operator, so this must not match the
	// arithmetic matcher (no identifier evaluation permitted) and must
	// fall through to no match (nothing else in the table fires either).
	_, ok := h.Handle(context.Background(), "what is x+2")
	if ok {
		t.Error("expected identifier expression to not be handled directly")
	}
}

func TestHandle_Reverse(t *testing.T) {
	h := New(nil)
	out, ok := h.Handle(context.Background(), "reverse the string hello")
	if !ok {
		t.Fatal("expected reverse matcher to fire")
	}
	if out != "olleh" {
		t.Errorf("got %q, want %q", out, "olleh")
	}
}

func TestHandle_PreferenceRecall(t *testing.T) {
	h := New(fakePrefs{types.Preferences{Tone: "technical", Verbosity: "short", LastTopic: "go generics"}})

	out, ok := h.Handle(context.Background(), "what is my tone?")
	if !ok || out != "technical" {
		t.Errorf("tone recall = (%q, %v), want (technical, true)", out, ok)
	}

	out, ok = h.Handle(context.Background(), "what's my last topic")
	if !ok || out != "go generics" {
		t.Errorf("last topic recall = (%q, %v), want (go generics, true)", out, ok)
	}
}

func TestHandle_PreferenceRecall_NilPrefsNeverFires(t *testing.T) {
	h := New(nil)
	_, ok := h.Handle(context.Background(), "what is my tone?")
	if ok {
		t.Error("expected preference recall to not fire with nil prefs")
	}
}

func TestHandle_SelfConfigDump(t *testing.T) {
	h := New(fakePrefs{types.Preferences{Tone: "concise"}})
	out, ok := h.Handle(context.Background(), "show config")
	if !ok {
		t.Fatal("expected self-config matcher to fire")
	}
	if !strings.Contains(out, "concise") {
		t.Errorf("config dump = %q, want mention of tone value", out)
	}
}

func TestHandle_JSONSynthesis(t *testing.T) {
	h := New(nil)
	out, ok := h.Handle(context.Background(), "a user named Alice who does data analysis")
	if !ok {
		t.Fatal("expected json synthesis matcher to fire")
	}
	if !strings.Contains(out, `"name"`) || !strings.Contains(out, `"role"`) {
		t.Errorf("synthesized json = %q, want name/role fields", out)
	}
}

func TestHandle_ShellAllowlist_ClosedSet(t *testing.T) {
	h := New(nil)
	// "rm -rf /" must never be treated as an allowlisted command, even
	// though it is a valid shell invocation.
	_, ok := h.Handle(context.Background(), "rm -rf /")
	if ok {
		t.Error("expected non-allowlisted shell command to not be handled directly")
	}
}

func TestHandle_NoMatchReturnsFalse(t *testing.T) {
	h := New(nil)
	_, ok := h.Handle(context.Background(), "tell me a story about dragons")
	if ok {
		t.Error("expected no matcher to fire for an open-ended prompt")
	}
}

func TestHandle_FirstMatchWins(t *testing.T) {
	// "pwd" is also technically arithmetic-free text; regression check
	// that identity/pwd ordering doesn't accidentally swallow it.
	h := New(nil)
	out, ok := h.Handle(context.Background(), "pwd")
	if !ok {
		t.Fatal("expected pwd matcher to fire")
	}
	if out == "" {
		t.Error("expected non-empty working directory")
	}
}

func TestMatcherNames_IncludesAllDispatchEntries(t *testing.T) {
	h := New(nil)
	names := h.MatcherNames()
	want := []string{
		"arithmetic", "file_read", "find_grep", "git", "identity",
		"json_synth", "ls", "preference_recall", "pwd", "reverse",
		"self_config", "shell_allowlist",
	}
	if len(names) != len(want) {
		t.Fatalf("got %d matcher names, want %d: %v", len(names), len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
