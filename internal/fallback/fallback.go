// Package fallback implements C10: a strictly ordered cascade over
// external sources, invoked only when the local model's answer is
// uncertain or the prompt is time-sensitive. A verified symbolic
// answer from C6/C7 always bypasses this package entirely — that
// decision is made by the caller before Run is ever invoked.
package fallback

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ishabdullah/genesis/internal/types"
)

// Source adapters are tried in this fixed order. best_source_for from
// the feedback ledger is advisory telemetry only: it never reorders
// this cascade.
var cascadeOrder = []types.Source{types.SourceWebsearch, types.SourceProviderB, types.SourceProviderC}

// Adapter answers a prompt for one external source.
type Adapter interface {
	Ask(ctx context.Context, prompt string) (ok bool, text string, confidence float64)
}

// Orchestrator is the C10 component.
type Orchestrator struct {
	adapters         map[types.Source]Adapter
	sourceTimeout    time.Duration
	websearchMinConf float64
}

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithSourceTimeout overrides the per-source timeout (default 30s).
func WithSourceTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.sourceTimeout = d }
}

// New builds an Orchestrator. adapters maps a subset (or all) of
// cascadeOrder's sources to their concrete implementation; a source
// with no registered adapter is skipped as an automatic failure.
func New(adapters map[types.Source]Adapter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		adapters:         adapters,
		sourceTimeout:    30 * time.Second,
		websearchMinConf: 0.5,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result is the cascade's outcome.
type Result struct {
	Attempts  []types.Attempt
	Winner    *types.Attempt
	Text      string
	Available bool // false means every source failed ("no-fallback-available")
}

// Run tries each source in cascadeOrder, serially, stopping at the
// first one whose (ok && confidence >= per-source threshold) holds.
// When every source fails, Available is false and the caller is
// expected to pass the LLM's uncertain answer through with a caution.
func (o *Orchestrator) Run(ctx context.Context, prompt string) Result {
	var attempts []types.Attempt

	for _, src := range cascadeOrder {
		adapter, ok := o.adapters[src]
		if !ok {
			attempts = append(attempts, types.Attempt{Source: src, OK: false, Error: "no adapter registered"})
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.sourceTimeout)
		start := time.Now()
		succeeded, text, confidence := adapter.Ask(attemptCtx, prompt)
		latency := time.Since(start).Milliseconds()
		cancel()

		attempt := types.Attempt{Source: src, OK: succeeded, Confidence: confidence, LatencyMS: latency}
		if !succeeded {
			attempt.Error = "source did not return a usable answer"
			slog.Warn("[FALLBACK] source unavailable", "source", src, "error", types.ErrSourceUnavailable)
		}
		attempts = append(attempts, attempt)

		if succeeded && o.accepts(src, confidence) {
			winner := attempt
			return Result{Attempts: attempts, Winner: &winner, Text: text, Available: true}
		}
	}

	return Result{Attempts: attempts, Available: false}
}

// accepts applies the per-source acceptance threshold: websearch needs
// confidence >= websearchMinConf; every other source only needs ok.
func (o *Orchestrator) accepts(src types.Source, confidence float64) bool {
	if src == types.SourceWebsearch {
		return confidence >= o.websearchMinConf
	}
	return true
}

// CapForTimeSensitive applies the temporal override: when the prompt
// is time-sensitive, the local model's confidence is capped at 0.5
// before the uncertainty gate runs, which forces the cascade to run
// even when the local answer looked confident on its own.
func CapForTimeSensitive(confidence float64, timeSensitive bool) float64 {
	if timeSensitive && confidence > 0.5 {
		return 0.5
	}
	return confidence
}
