// Package websearch implements C11: a bounded concurrent fan-out over
// the free search backends in internal/tools, with a TTL cache and a
// source-diversity-aware confidence score.
package websearch

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Ishabdullah/genesis/internal/store"
	"github.com/Ishabdullah/genesis/internal/tools"
)

const (
	defaultMaxWorkers = 3
	overallDeadline   = 15 * time.Second
	perSourceDeadline = 10 * time.Second
	cacheTTL          = 15 * time.Minute
)

// Page is one normalized search hit.
type Page struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// SourceFn queries one backend for a query string.
type SourceFn func(ctx context.Context, query string) ([]Page, error)

// Aggregator is the C11 component.
type Aggregator struct {
	sources    map[string]SourceFn
	st         *store.Store
	maxWorkers int
}

// New builds an Aggregator over the given named sources.
func New(st *store.Store, sources map[string]SourceFn) *Aggregator {
	return &Aggregator{sources: sources, st: st, maxWorkers: defaultMaxWorkers}
}

// Default returns an Aggregator wired to every search backend
// internal/tools knows how to reach, each as an independent named
// source: DuckDuckGo's HTML scrape (general web search), Wikipedia's
// search API (encyclopedia source), and, when BING_API_KEY is set,
// the Bing Web Search API. Registering them as separate sources (not
// collapsed into tools.Search's single combined summary) is what lets
// the confidence formula's n_sources term and the per-source grouping
// in Result.Pages actually vary.
func Default(st *store.Store) *Aggregator {
	sources := map[string]SourceFn{
		"duckduckgo": func(ctx context.Context, q string) ([]Page, error) {
			results, err := tools.SearchDuckDuckGo(ctx, q)
			return toPages("duckduckgo", results, err)
		},
		"wikipedia": func(ctx context.Context, q string) ([]Page, error) {
			results, err := tools.SearchWikipedia(ctx, q)
			return toPages("wikipedia", results, err)
		},
	}
	if key := os.Getenv("BING_API_KEY"); key != "" {
		sources["bing"] = func(ctx context.Context, q string) ([]Page, error) {
			results, err := tools.SearchBingWithKey(ctx, q, key)
			return toPages("bing", results, err)
		}
	}
	return New(st, sources)
}

func toPages(source string, results []tools.SearchResult, err error) ([]Page, error) {
	if err != nil {
		return nil, err
	}
	pages := make([]Page, len(results))
	for i, r := range results {
		pages[i] = Page{Name: r.Name, URL: r.URL, Snippet: r.Snippet, Source: source}
	}
	return pages, nil
}

// Result is the aggregator's output for one query.
type Result struct {
	Query      string            `json:"query"`
	Pages      map[string][]Page `json:"pages"` // grouped by source name
	Confidence float64           `json:"confidence"`
	CachedAt   time.Time         `json:"cached_at"`
}

// Search fans a query out to every registered source concurrently
// (capped at maxWorkers), dedupes by URL, and computes a confidence
// score. A cached result younger than cacheTTL is returned without
// touching the network; stale entries are evicted lazily, on read.
func (a *Aggregator) Search(ctx context.Context, query string) (Result, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))

	if cached, ok := a.readCache(normalized); ok {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, overallDeadline)
	defer cancel()

	type sourceResult struct {
		name  string
		pages []Page
		err   error
	}

	names := make([]string, 0, len(a.sources))
	for name := range a.sources {
		names = append(names, name)
	}

	sem := make(chan struct{}, a.maxWorkers)
	resultsCh := make(chan sourceResult, len(names))
	var wg sync.WaitGroup

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			srcCtx, srcCancel := context.WithTimeout(ctx, perSourceDeadline)
			defer srcCancel()

			pages, err := a.sources[name](srcCtx, query)
			resultsCh <- sourceResult{name: name, pages: pages, err: err}
		}(name)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	grouped := make(map[string][]Page)
	seenURLs := make(map[string]struct{})
	okSources := 0
	totalResults := 0

	for r := range resultsCh {
		if r.err != nil {
			continue // an individual source failure is skipped without logging
		}
		var deduped []Page
		for _, p := range r.pages {
			if p.URL != "" {
				if _, dup := seenURLs[p.URL]; dup {
					continue
				}
				seenURLs[p.URL] = struct{}{}
			}
			deduped = append(deduped, p)
		}
		if len(deduped) == 0 {
			continue
		}
		grouped[r.name] = deduped
		okSources++
		totalResults += len(deduped)
	}

	if okSources == 0 {
		return Result{}, errAllSourcesFailed
	}

	confidence := minOne(float64(totalResults)/10) * minOne(float64(okSources)/3)

	result := Result{Query: query, Pages: grouped, Confidence: confidence, CachedAt: time.Now()}
	a.writeCache(normalized, result)
	return result, nil
}

func minOne(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

type cacheEntry struct {
	Result    Result    `json:"result"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *Aggregator) readCache(normalized string) (Result, bool) {
	if a.st == nil {
		return Result{}, false
	}
	var entry cacheEntry
	if err := a.st.Load(store.CachePath(normalized), &entry); err != nil {
		return Result{}, false
	}
	if entry.ExpiresAt.IsZero() || time.Now().After(entry.ExpiresAt) {
		return Result{}, false
	}
	return entry.Result, true
}

func (a *Aggregator) writeCache(normalized string, result Result) {
	if a.st == nil {
		return
	}
	entry := cacheEntry{Result: result, ExpiresAt: time.Now().Add(cacheTTL)}
	_ = a.st.Save(store.CachePath(normalized), entry)
}

// MarshalCacheEntry is exposed for tests that want to seed/inspect a
// raw cache document without going through a live search.
func MarshalCacheEntry(result Result, expiresAt time.Time) ([]byte, error) {
	return json.Marshal(cacheEntry{Result: result, ExpiresAt: expiresAt})
}

var errAllSourcesFailed = &aggregateError{"websearch: all sources failed"}

type aggregateError struct{ msg string }

func (e *aggregateError) Error() string { return e.msg }
