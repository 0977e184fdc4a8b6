package fallback

import (
	"context"
	"testing"

	"github.com/Ishabdullah/genesis/internal/types"
)

type fakeAdapter struct {
	ok         bool
	text       string
	confidence float64
	calls      int
}

func (f *fakeAdapter) Ask(_ context.Context, _ string) (bool, string, float64) {
	f.calls++
	return f.ok, f.text, f.confidence
}

func TestRun_AcceptsWebsearchAtThreshold(t *testing.T) {
	web := &fakeAdapter{ok: true, text: "web answer", confidence: 0.5}
	o := New(map[types.Source]Adapter{types.SourceWebsearch: web})

	r := o.Run(context.Background(), "what's new today")
	if !r.Available {
		t.Fatal("expected a cascade result to be available")
	}
	if r.Winner == nil || r.Winner.Source != types.SourceWebsearch {
		t.Fatalf("winner = %+v, want websearch", r.Winner)
	}
	if r.Text != "web answer" {
		t.Errorf("text = %q, want %q", r.Text, "web answer")
	}
}

func TestRun_WebsearchBelowThresholdFallsThrough(t *testing.T) {
	web := &fakeAdapter{ok: true, text: "weak", confidence: 0.4}
	providerB := &fakeAdapter{ok: true, text: "strong enough", confidence: 0.1}
	o := New(map[types.Source]Adapter{
		types.SourceWebsearch: web,
		types.SourceProviderB: providerB,
	})

	r := o.Run(context.Background(), "q")
	if !r.Available || r.Winner == nil {
		t.Fatal("expected provider_b to win after websearch's low confidence")
	}
	if r.Winner.Source != types.SourceProviderB {
		t.Errorf("winner = %s, want provider_b", r.Winner.Source)
	}
	if web.calls != 1 || providerB.calls != 1 {
		t.Errorf("calls: websearch=%d providerB=%d, want 1 each", web.calls, providerB.calls)
	}
}

func TestRun_NonWebsearchSourcesAcceptOnOKAlone(t *testing.T) {
	providerC := &fakeAdapter{ok: true, text: "anything", confidence: 0.01}
	o := New(map[types.Source]Adapter{types.SourceProviderC: providerC})

	r := o.Run(context.Background(), "q")
	if !r.Available || r.Winner == nil || r.Winner.Source != types.SourceProviderC {
		t.Fatalf("expected provider_c to be accepted on ok alone, got %+v", r)
	}
}

func TestRun_AllFailReturnsUnavailable(t *testing.T) {
	o := New(map[types.Source]Adapter{
		types.SourceWebsearch: &fakeAdapter{ok: false},
		types.SourceProviderB: &fakeAdapter{ok: false},
		types.SourceProviderC: &fakeAdapter{ok: false},
	})

	r := o.Run(context.Background(), "q")
	if r.Available {
		t.Error("expected Available=false when every source fails")
	}
	if len(r.Attempts) != 3 {
		t.Errorf("got %d attempts, want 3", len(r.Attempts))
	}
}

func TestRun_MissingAdapterCountsAsFailureAndContinues(t *testing.T) {
	providerC := &fakeAdapter{ok: true, text: "c wins", confidence: 1}
	o := New(map[types.Source]Adapter{types.SourceProviderC: providerC})

	r := o.Run(context.Background(), "q")
	if !r.Available || r.Winner.Source != types.SourceProviderC {
		t.Fatalf("expected provider_c to win despite missing websearch/provider_b adapters, got %+v", r)
	}
	if len(r.Attempts) != 3 {
		t.Errorf("got %d attempts, want 3 (missing adapters still recorded)", len(r.Attempts))
	}
}

func TestRun_StopsAtFirstAcceptingSource(t *testing.T) {
	web := &fakeAdapter{ok: true, text: "web wins", confidence: 0.9}
	providerB := &fakeAdapter{ok: true, text: "never reached", confidence: 1.0}
	o := New(map[types.Source]Adapter{
		types.SourceWebsearch: web,
		types.SourceProviderB: providerB,
	})

	r := o.Run(context.Background(), "q")
	if r.Winner.Source != types.SourceWebsearch {
		t.Fatalf("expected websearch to win, got %v", r.Winner.Source)
	}
	if providerB.calls != 0 {
		t.Error("expected provider_b to never be called once websearch accepted")
	}
}

func TestCapForTimeSensitive_CapsHighConfidence(t *testing.T) {
	got := CapForTimeSensitive(0.95, true)
	if got != 0.5 {
		t.Errorf("got %v, want 0.5", got)
	}
}

func TestCapForTimeSensitive_LeavesLowConfidenceAlone(t *testing.T) {
	got := CapForTimeSensitive(0.3, true)
	if got != 0.3 {
		t.Errorf("got %v, want 0.3 (already below cap)", got)
	}
}

func TestCapForTimeSensitive_NoOverrideWhenNotTimeSensitive(t *testing.T) {
	got := CapForTimeSensitive(0.95, false)
	if got != 0.95 {
		t.Errorf("got %v, want unchanged 0.95", got)
	}
}
