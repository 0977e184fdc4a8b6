package timesync

import (
	"context"
	"testing"
	"time"

	"github.com/Ishabdullah/genesis/internal/store"
)

func newTestTimeSync(t *testing.T) *TimeSync {
	t.Helper()
	st := store.New(t.TempDir())
	return New(st, 20*time.Millisecond)
}

func TestNew_TakesInitialReading(t *testing.T) {
	ts := newTestTimeSync(t)
	if ts.Metadata().SyncCount < 1 {
		t.Error("expected at least one sync on construction")
	}
}

func TestIsAfterCutoff_PastDateIsFalse(t *testing.T) {
	ts := newTestTimeSync(t)
	before := KnowledgeCutoff.Add(-24 * time.Hour)
	if ts.IsAfterCutoff(before) {
		t.Error("expected date before cutoff to report false")
	}
}

func TestIsAfterCutoff_FutureDateIsTrue(t *testing.T) {
	ts := newTestTimeSync(t)
	future := KnowledgeCutoff.Add(365 * 24 * time.Hour)
	if !ts.IsAfterCutoff(future) {
		t.Error("expected date after cutoff to report true")
	}
}

func TestIsAfterCutoff_ZeroTimeUsesNow(t *testing.T) {
	ts := newTestTimeSync(t)
	if !ts.IsAfterCutoff(time.Time{}) {
		t.Error("expected current time to be after a 2023 cutoff")
	}
}

func TestStartStop_TogglesRunning(t *testing.T) {
	ts := newTestTimeSync(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts.Start(ctx)
	if !ts.Running() {
		t.Fatal("expected Running() true after Start")
	}
	ts.Stop()
	if ts.Running() {
		t.Error("expected Running() false after Stop")
	}
}

func TestStart_IncrementsSyncCountOverTime(t *testing.T) {
	ts := newTestTimeSync(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	before := ts.Metadata().SyncCount
	ts.Start(ctx)
	time.Sleep(70 * time.Millisecond)
	ts.Stop()
	after := ts.Metadata().SyncCount
	if after <= before {
		t.Errorf("expected sync count to increase, before=%d after=%d", before, after)
	}
}

func TestTimeDiff_FlagsStaleAfterOneHour(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	elapsed, stale := TimeDiff(past)
	if !stale {
		t.Error("expected stale=true for a 2h-old timestamp")
	}
	if elapsed < 2*time.Hour {
		t.Errorf("elapsed = %v, want >= 2h", elapsed)
	}
}

func TestTimeDiff_NotStaleWithinOneHour(t *testing.T) {
	past := time.Now().Add(-10 * time.Minute)
	_, stale := TimeDiff(past)
	if stale {
		t.Error("expected stale=false for a 10m-old timestamp")
	}
}

func TestMetadata_ReflectsKnowledgeCutoff(t *testing.T) {
	ts := newTestTimeSync(t)
	md := ts.Metadata()
	if !md.KnowledgeCutoff.Equal(KnowledgeCutoff) {
		t.Errorf("metadata cutoff = %v, want %v", md.KnowledgeCutoff, KnowledgeCutoff)
	}
}
