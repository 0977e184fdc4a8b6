package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
)

const (
	ddgHTMLURL       = "https://html.duckduckgo.com/html/"
	bingAPIURL       = "https://api.bing.microsoft.com/v7.0/search"
	searchMaxResults = 5
	searchUserAgent  = "genesis-assistant/1.0 (+https://github.com/Ishabdullah/genesis)"
)

// searchPage is a single normalized search result, shared by every
// backend this file knows how to parse.
type searchPage struct {
	Name    string
	URL     string
	Snippet string
}

// SearchResult is the exported form of searchPage, for callers (such as
// the websearch aggregator) that want structured hits per backend
// rather than Search's single formatted text block.
type SearchResult struct {
	Name    string
	URL     string
	Snippet string
}

func exportPages(pages []searchPage) []SearchResult {
	out := make([]SearchResult, len(pages))
	for i, p := range pages {
		out[i] = SearchResult{Name: p.Name, URL: p.URL, Snippet: p.Snippet}
	}
	return out
}

// SearchDuckDuckGo exposes the DuckDuckGo HTML backend as structured
// results, for callers that need to group or dedupe per-source instead
// of consuming Search's combined text summary.
func SearchDuckDuckGo(ctx context.Context, query string) ([]SearchResult, error) {
	pages, err := searchDuckDuckGo(ctx, query)
	if err != nil {
		return nil, err
	}
	return exportPages(pages), nil
}

// SearchBingWithKey exposes the Bing Web Search API as structured
// results. Returns an error if apiKey is empty.
func SearchBingWithKey(ctx context.Context, query, apiKey string) ([]SearchResult, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("websearch: no bing api key configured")
	}
	pages, err := searchBing(ctx, query, apiKey)
	if err != nil {
		return nil, err
	}
	return exportPages(pages), nil
}

const wikipediaAPIURL = "https://en.wikipedia.org/w/api.php"

type wikipediaResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			PageID  int    `json:"pageid"`
		} `json:"search"`
	} `json:"query"`
}

// SearchWikipedia queries the Wikipedia search API, giving the
// aggregator an encyclopedia-style source distinct from general HTML
// search results.
func SearchWikipedia(ctx context.Context, query string) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	u := fmt.Sprintf("%s?action=query&list=search&format=json&srsearch=%s&srlimit=%d",
		wikipediaAPIURL, queryEscape(query), searchMaxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: create wikipedia request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: wikipedia request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("websearch: read wikipedia response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("websearch: wikipedia HTTP %d", resp.StatusCode)
	}

	var wr wikipediaResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, fmt.Errorf("websearch: parse wikipedia response: %w", err)
	}

	out := make([]SearchResult, 0, len(wr.Query.Search))
	for _, s := range wr.Query.Search {
		out = append(out, SearchResult{
			Name:    html.UnescapeString(stripHTMLTags(s.Title)),
			URL:     fmt.Sprintf("https://en.wikipedia.org/?curid=%d", s.PageID),
			Snippet: html.UnescapeString(stripHTMLTags(s.Snippet)),
		})
	}
	return out, nil
}

// SearchAvailable reports whether at least one search backend can be
// used without further configuration. DuckDuckGo's HTML endpoint needs
// no API key, so this is always true.
func SearchAvailable() bool {
	return true
}

// Search queries DuckDuckGo's HTML endpoint (no API key required) and
// returns a formatted text summary. Falls back to the Bing Web Search
// API when BING_API_KEY is set and the DDG request fails.
func Search(ctx context.Context, query string) (string, error) {
	pages, err := searchDuckDuckGo(ctx, query)
	if err != nil {
		if key := os.Getenv("BING_API_KEY"); key != "" {
			if bingPages, bingErr := searchBing(ctx, query, key); bingErr == nil {
				pages, err = bingPages, nil
			}
		}
	}
	if err != nil {
		return "", err
	}
	return formatSearchResult(query, pages), nil
}

func searchDuckDuckGo(ctx context.Context, query string) ([]searchPage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ddgHTMLURL+"?q="+queryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: create ddg request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: ddg request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("websearch: read ddg response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("websearch: ddg HTTP %d", resp.StatusCode)
	}
	return parseDDGResults(string(body)), nil
}

var (
	ddgResultLinkRe = regexp.MustCompile(`(?s)<a[^>]*class="result__a"[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	ddgSnippetRe    = regexp.MustCompile(`(?s)<a[^>]*class="result__snippet"[^>]*>(.*?)</a>`)
)

// parseDDGResults extracts (title, url, snippet) triples from a
// DuckDuckGo HTML results page, skipping sponsored results (ad links
// route through duckduckgo.com/y.js).
func parseDDGResults(body string) []searchPage {
	links := ddgResultLinkRe.FindAllStringSubmatch(body, -1)
	snippets := ddgSnippetRe.FindAllStringSubmatch(body, -1)

	var pages []searchPage
	si := 0
	for _, link := range links {
		href, title := link[1], link[2]
		snippet := ""
		if si < len(snippets) {
			snippet = snippets[si][1]
			si++
		}
		if strings.Contains(href, "duckduckgo.com/y.js") {
			continue // sponsored result
		}
		pages = append(pages, searchPage{
			Name:    html.UnescapeString(stripHTMLTags(title)),
			URL:     href,
			Snippet: html.UnescapeString(stripHTMLTags(snippet)),
		})
	}
	return pages
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// stripHTMLTags removes inline markup, keeping inner text.
func stripHTMLTags(s string) string {
	return htmlTagRe.ReplaceAllString(s, "")
}

func searchBing(ctx context.Context, query, apiKey string) ([]searchPage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bingAPIURL+"?q="+queryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: create bing request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", apiKey)
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: bing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("websearch: read bing response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("websearch: bing HTTP %d", resp.StatusCode)
	}
	return parseBingResults(body)
}

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

// parseBingResults maps the Bing Web Search API's JSON shape to
// searchPage.
func parseBingResults(data []byte) ([]searchPage, error) {
	var r bingResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("websearch: parse bing response: %w", err)
	}
	pages := make([]searchPage, 0, len(r.WebPages.Value))
	for _, v := range r.WebPages.Value {
		pages = append(pages, searchPage{Name: v.Name, URL: v.URL, Snippet: v.Snippet})
	}
	return pages, nil
}

// formatSearchResult converts a result set into a readable text block,
// capped at searchMaxResults entries.
func formatSearchResult(query string, pages []searchPage) string {
	if len(pages) == 0 {
		return fmt.Sprintf("No results found for: %q", query)
	}
	var sb strings.Builder
	for i, p := range pages {
		if i >= searchMaxResults {
			break
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Name)
		if p.Snippet != "" {
			sb.WriteString("\n")
			sb.WriteString(p.Snippet)
		}
		sb.WriteString("\n")
		sb.WriteString(p.URL)
	}
	return sb.String()
}

func queryEscape(q string) string {
	return strings.ReplaceAll(strings.TrimSpace(q), " ", "+")
}
