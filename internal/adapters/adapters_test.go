package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ishabdullah/genesis/internal/store"
	"github.com/Ishabdullah/genesis/internal/websearch"
)

func TestSynthesize_FixedSourceOrderAndSnippetLimit(t *testing.T) {
	r := websearch.Result{
		Pages: map[string][]websearch.Page{
			"bing":       {{Snippet: "bing one"}, {Snippet: "bing two"}},
			"duckduckgo": {{Snippet: "ddg one"}, {Snippet: "ddg two"}, {Snippet: "ddg three"}},
			"wikipedia":  {{Snippet: "wiki one"}},
		},
	}

	got := synthesize(r)
	want := "ddg one\nddg two\nwiki one\nbing one\nbing two"
	if got != want {
		t.Errorf("synthesize() =\n%q\nwant\n%q", got, want)
	}
}

func TestSynthesize_SkipsEmptySnippetsAndSources(t *testing.T) {
	r := websearch.Result{
		Pages: map[string][]websearch.Page{
			"duckduckgo": {{Snippet: ""}, {Snippet: "  has content  "}},
			"unknown":    {{Snippet: "ignored, not in fixed order list"}},
		},
	}

	got := synthesize(r)
	if got != "has content" {
		t.Errorf("synthesize() = %q, want %q", got, "has content")
	}
}

func TestSynthesize_NoSnippetsReturnsEmpty(t *testing.T) {
	r := websearch.Result{Pages: map[string][]websearch.Page{
		"duckduckgo": {{Snippet: ""}},
	}}
	if got := synthesize(r); got != "" {
		t.Errorf("synthesize() = %q, want empty", got)
	}
}

func TestWebsearch_Ask_SynthesizesFromAggregator(t *testing.T) {
	st := store.New(t.TempDir())
	agg := websearch.New(st, map[string]websearch.SourceFn{
		"duckduckgo": func(ctx context.Context, q string) ([]websearch.Page, error) {
			return []websearch.Page{{Name: "a", URL: "http://a", Snippet: "a relevant fact", Source: "duckduckgo"}}, nil
		},
	})

	w := NewWebsearch(agg)
	ok, text, conf := w.Ask(context.Background(), "some query")
	if !ok {
		t.Fatal("expected Ask to succeed")
	}
	if text != "a relevant fact" {
		t.Errorf("text = %q, want %q", text, "a relevant fact")
	}
	if conf <= 0 {
		t.Errorf("confidence = %v, want > 0", conf)
	}
}

func TestWebsearch_Ask_NoUsableSnippetsFails(t *testing.T) {
	st := store.New(t.TempDir())
	agg := websearch.New(st, map[string]websearch.SourceFn{
		"duckduckgo": func(ctx context.Context, q string) ([]websearch.Page, error) {
			return []websearch.Page{{Name: "a", URL: "http://a", Snippet: "", Source: "duckduckgo"}}, nil
		},
	})

	w := NewWebsearch(agg)
	ok, text, conf := w.Ask(context.Background(), "some query")
	if ok {
		t.Errorf("expected Ask to fail when no source yields a usable snippet, got text=%q conf=%v", text, conf)
	}
}

func TestWebsearch_Ask_AggregatorErrorFails(t *testing.T) {
	st := store.New(t.TempDir())
	agg := websearch.New(st, map[string]websearch.SourceFn{
		"duckduckgo": func(ctx context.Context, q string) ([]websearch.Page, error) {
			return nil, errors.New("boom")
		},
	})

	w := NewWebsearch(agg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok, _, _ := w.Ask(ctx, "some query")
	if ok {
		t.Error("expected Ask to fail when every source errors")
	}
}
