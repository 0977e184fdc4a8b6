// Package adapters wires C11 (websearch) and the two tiered LLM
// providers behind C10's fallback.Adapter interface. Each adapter is a
// thin translation layer: it owns no policy of its own, only the
// mapping from its backend's native return shape to
// (ok, text, confidence).
package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ishabdullah/genesis/internal/llm"
	"github.com/Ishabdullah/genesis/internal/websearch"
)

// Websearch adapts a websearch.Aggregator to fallback.Adapter. Its
// confidence is whatever the aggregator computed from source count and
// result volume; the orchestrator applies its own acceptance
// threshold on top.
type Websearch struct {
	agg *websearch.Aggregator
}

// NewWebsearch builds a Websearch adapter over agg.
func NewWebsearch(agg *websearch.Aggregator) *Websearch {
	return &Websearch{agg: agg}
}

// Ask fans the prompt out through the aggregator and synthesizes a
// short text answer from the top few snippets across every source
// that returned results.
func (w *Websearch) Ask(ctx context.Context, prompt string) (bool, string, float64) {
	result, err := w.agg.Search(ctx, prompt)
	if err != nil {
		return false, "", 0
	}
	text := synthesize(result)
	if text == "" {
		return false, "", 0
	}
	return true, text, result.Confidence
}

// synthesize renders a short multi-source digest: up to two snippets
// per source, in the order websearch.Default registers its sources
// (duckduckgo, wikipedia, bing), so the output is deterministic across
// identical cached results (QI6).
func synthesize(r websearch.Result) string {
	order := []string{"duckduckgo", "wikipedia", "bing"}
	var b strings.Builder
	wrote := false
	for _, source := range order {
		pages := r.Pages[source]
		if len(pages) == 0 {
			continue
		}
		limit := 2
		if len(pages) < limit {
			limit = len(pages)
		}
		for _, p := range pages[:limit] {
			if p.Snippet == "" {
				continue
			}
			fmt.Fprintf(&b, "%s\n", strings.TrimSpace(p.Snippet))
			wrote = true
		}
	}
	if !wrote {
		return ""
	}
	return strings.TrimSpace(b.String())
}

// LLMProvider adapts a tiered llm.Client to fallback.Adapter. Used for
// both ProviderB and ProviderC — the two differ only in which env-var
// tier they were constructed from (see llm.NewTier) and the system
// prompt each is given.
type LLMProvider struct {
	client       *llm.Client
	systemPrompt string
	minLength    int
}

// NewLLMProvider builds an LLMProvider. A response shorter than
// minLength chars (0 disables the check) is treated as a failed
// attempt — the same "too short to trust" judgment call
// internal/uncertainty makes for the local model.
func NewLLMProvider(client *llm.Client, systemPrompt string, minLength int) *LLMProvider {
	return &LLMProvider{client: client, systemPrompt: systemPrompt, minLength: minLength}
}

// Ask calls the wrapped client and reports a fixed 0.75 confidence on
// any non-trivial reply — providers have no native confidence signal
// of their own, so a constant stand-in is all the cascade needs to
// clear every non-websearch acceptance threshold (accepts() only
// requires ok for these sources).
func (p *LLMProvider) Ask(ctx context.Context, prompt string) (bool, string, float64) {
	text, _, err := p.client.Chat(ctx, p.systemPrompt, prompt)
	if err != nil {
		return false, "", 0
	}
	text = llm.StripThinkBlocks(text)
	if p.minLength > 0 && len(strings.TrimSpace(text)) < p.minLength {
		return false, "", 0
	}
	return true, text, 0.75
}
