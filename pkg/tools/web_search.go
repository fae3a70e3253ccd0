package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SearchResult is one hit returned by a search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchProvider answers web queries. Implementations must respect the
// context deadline.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

const defaultSearchLimit = 5

// WebSearchTool exposes a search provider to the research stage.
type WebSearchTool struct {
	provider SearchProvider
}

// NewWebSearchTool creates a web_search tool backed by the given provider.
func NewWebSearchTool(provider SearchProvider) *WebSearchTool {
	return &WebSearchTool{provider: provider}
}

// Name returns the tool identifier.
func (w *WebSearchTool) Name() string {
	return ToolWebSearch
}

// Definition returns the tool definition for model binding.
func (w *WebSearchTool) Definition() Definition {
	return Definition{
		Name:        ToolWebSearch,
		Description: "Search the web and return titles, URLs and snippets for the top results.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "The search query",
				},
			},
			Required: []string{"query"},
		},
	}
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (w *WebSearchTool) PromptDocumentation() string {
	return `- **web_search** - Search the web
  - Parameters:
    - query (string, required): the search query
  - Returns titles, URLs and snippets for the top results
  - Follow up with save_evidence for any fact you decide to keep`
}

// Exec runs the query and returns results as a JSON string.
func (w *WebSearchTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query parameter is required")
	}

	results, err := w.provider.Search(ctx, query, defaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		return "no results", nil
	}

	out, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search results: %w", err)
	}
	return string(out), nil
}

// DuckDuckGoProvider queries the DuckDuckGo instant answer API. It needs no
// API key, which makes it the default provider for local runs.
type DuckDuckGoProvider struct {
	client  *http.Client
	baseURL string
}

// NewDuckDuckGoProvider creates a provider with a sane timeout.
func NewDuckDuckGoProvider() *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: "https://api.duckduckgo.com/",
	}
}

type ddgResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Heading       string `json:"Heading"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search implements SearchProvider.
func (d *DuckDuckGoProvider) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	u := fmt.Sprintf("%s?q=%s&format=json&no_html=1", d.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	var parsed ddgResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	var results []SearchResult
	if parsed.AbstractText != "" {
		results = append(results, SearchResult{
			Title:   parsed.Heading,
			URL:     parsed.AbstractURL,
			Snippet: parsed.AbstractText,
		})
	}
	for _, topic := range parsed.RelatedTopics {
		if len(results) >= limit {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		results = append(results, SearchResult{
			Title:   topic.Text,
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}
	return results, nil
}

// StaticProvider serves canned results, for tests and offline runs.
type StaticProvider struct {
	Results []SearchResult
	Err     error
}

// Search implements SearchProvider.
func (s *StaticProvider) Search(_ context.Context, _ string, limit int) ([]SearchResult, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Results) > limit {
		return s.Results[:limit], nil
	}
	return s.Results, nil
}
