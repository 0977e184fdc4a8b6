// Package timesync implements C1: the process-wide clock snapshot and
// its background refresher. Nothing here ever blocks on a network
// call — it reads the OS clock only, on an interval, and persists a
// small state document so system_state.json survives a restart.
package timesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Ishabdullah/genesis/internal/store"
	"github.com/Ishabdullah/genesis/internal/types"
)

// KnowledgeCutoff is the local model's training cutoff date, carried
// over from the original module (CodeLlama-7B's cutoff).
var KnowledgeCutoff = time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)

const defaultInterval = 60 * time.Second

// TimeSync owns the ClockState snapshot and its background refresher.
type TimeSync struct {
	st       *store.Store
	interval time.Duration

	mu      sync.RWMutex
	state   types.ClockState
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a TimeSync with the given refresh interval (0 uses
// the default of 60s) and takes an immediate reading.
func New(st *store.Store, interval time.Duration) *TimeSync {
	if interval <= 0 {
		interval = defaultInterval
	}
	ts := &TimeSync{st: st, interval: interval}
	ts.refresh()
	ts.save()
	return ts
}

func (ts *TimeSync) refresh() {
	now := time.Now()
	ts.mu.Lock()
	ts.state.Now = now
	ts.state.TZ = now.Location().String()
	ts.state.KnowledgeCutoff = KnowledgeCutoff
	ts.state.LastSync = now
	ts.state.SyncCount++
	ts.state.Running = ts.running
	ts.mu.Unlock()
}

func (ts *TimeSync) save() {
	ts.mu.RLock()
	snapshot := ts.state
	ts.mu.RUnlock()
	if err := ts.st.Save(store.PathSystemState, &snapshot); err != nil {
		slog.Warn("[TIMESYNC] could not save system state", "error", err)
	}
}

// Now returns a device time reading, refreshing the snapshot first.
func (ts *TimeSync) Now() time.Time {
	ts.refresh()
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.state.Now
}

// IsAfterCutoff reports whether t (or, if zero, the current time) is
// after the knowledge cutoff.
func (ts *TimeSync) IsAfterCutoff(t time.Time) bool {
	if t.IsZero() {
		t = ts.Now()
	}
	return t.After(KnowledgeCutoff)
}

// Metadata returns the full ClockState snapshot, refreshed.
func (ts *TimeSync) Metadata() types.ClockState {
	ts.refresh()
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.state
}

// TimeDiff reports the elapsed duration since past and whether it
// exceeds the one-hour staleness threshold.
func TimeDiff(past time.Time) (elapsed time.Duration, stale bool) {
	elapsed = time.Since(past)
	return elapsed, elapsed > time.Hour
}

// Start begins the background refresh loop. A no-op if already
// running. Safe to call once per process lifetime per instance.
func (ts *TimeSync) Start(ctx context.Context) {
	ts.mu.Lock()
	if ts.running {
		ts.mu.Unlock()
		return
	}
	ts.running = true
	ts.stopCh = make(chan struct{})
	ts.doneCh = make(chan struct{})
	ts.mu.Unlock()

	go ts.run(ctx)
	slog.Info("[TIMESYNC] clock synced", "interval", ts.interval)
}

func (ts *TimeSync) run(ctx context.Context) {
	defer close(ts.doneCh)
	ticker := time.NewTicker(ts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ts.mu.Lock()
			ts.running = false
			ts.mu.Unlock()
			return
		case <-ts.stopCh:
			return
		case <-ticker.C:
			ts.refresh()
			ts.save()
		}
	}
}

// Stop halts the background refresh loop, waiting up to 2s for it to
// exit (mirrors the original module's join-with-timeout semantics).
func (ts *TimeSync) Stop() {
	ts.mu.Lock()
	if !ts.running {
		ts.mu.Unlock()
		return
	}
	ts.running = false
	stopCh, doneCh := ts.stopCh, ts.doneCh
	ts.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
	}
}

// Running reports whether the background refresher is active.
func (ts *TimeSync) Running() bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.running
}
