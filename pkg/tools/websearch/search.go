// Package websearch implements the web_search and search_wikipedia tool
// handlers. Web search queries a SearXNG instance when one is configured and
// falls back to the DuckDuckGo Instant Answer API; responses are cached with
// a short TTL so repeated research queries within a session don't refetch.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/orito-labs/orito/pkg/cache"
	"github.com/orito-labs/orito/pkg/config"
)

// Backend identifies a search provider.
type Backend string

const (
	BackendSearXNG    Backend = "searxng"
	BackendDuckDuckGo Backend = "duckduckgo"
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Response is the payload returned to the tool loop.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Backend Backend  `json:"backend"`
}

// Searcher performs web and Wikipedia searches with result caching.
type Searcher struct {
	cfg        config.SearchConfig
	httpClient *http.Client
	cache      *cache.Cache[Response]
}

// NewSearcher builds a Searcher from the search configuration.
func NewSearcher(cfg config.SearchConfig) *Searcher {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Searcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache.New[Response](1000, cfg.CacheTTL),
	}
}

// Stats reports the search cache counters.
func (s *Searcher) Stats() cache.Stats {
	return s.cache.Stats()
}

// WebSearchHandler is the handler for the web_search tool.
func (s *Searcher) WebSearchHandler(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	maxResults := s.cfg.MaxResults
	if n, ok := args["maxResults"].(float64); ok && n > 0 {
		maxResults = int(n)
	}
	if maxResults > 20 {
		maxResults = 20
	}

	key := fmt.Sprintf("web:%d:%s", maxResults, query)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	resp, err := s.search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, *resp)
	return *resp, nil
}

// WikipediaHandler is the handler for the search_wikipedia tool. It uses the
// MediaWiki opensearch API.
func (s *Searcher) WikipediaHandler(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	key := "wiki:" + query
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	endpoint := fmt.Sprintf(
		"https://en.wikipedia.org/w/api.php?action=opensearch&format=json&limit=%d&search=%s",
		s.cfg.MaxResults, url.QueryEscape(query))
	body, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	// Opensearch returns [query, [titles], [descriptions], [urls]].
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) < 4 {
		return nil, fmt.Errorf("unexpected wikipedia response")
	}
	var titles, descriptions, urls []string
	_ = json.Unmarshal(raw[1], &titles)
	_ = json.Unmarshal(raw[2], &descriptions)
	_ = json.Unmarshal(raw[3], &urls)

	results := make([]Result, 0, len(titles))
	for i := range titles {
		r := Result{Title: titles[i], Source: "wikipedia"}
		if i < len(descriptions) {
			r.Snippet = descriptions[i]
		}
		if i < len(urls) {
			r.URL = urls[i]
		}
		results = append(results, r)
	}

	resp := Response{Query: query, Results: results, Backend: "wikipedia"}
	s.cache.Set(key, resp)
	return resp, nil
}

// search tries SearXNG first when configured, then DuckDuckGo.
func (s *Searcher) search(ctx context.Context, query string, maxResults int) (*Response, error) {
	if s.cfg.SearxngURL != "" {
		resp, err := s.searchSearXNG(ctx, query, maxResults)
		if err == nil {
			return resp, nil
		}
	}
	return s.searchDuckDuckGo(ctx, query, maxResults)
}

func (s *Searcher) searchSearXNG(ctx context.Context, query string, maxResults int) (*Response, error) {
	base, err := url.Parse(s.cfg.SearxngURL)
	if err != nil {
		return nil, fmt.Errorf("invalid SearXNG URL: %w", err)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", "general")
	base.Path = "/search"
	base.RawQuery = params.Encode()

	body, err := s.get(ctx, base.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse SearXNG response: %w", err)
	}

	results := make([]Result, 0, maxResults)
	for i := 0; i < len(parsed.Results) && i < maxResults; i++ {
		r := parsed.Results[i]
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content, Source: "web"})
	}
	return &Response{Query: query, Results: results, Backend: BackendSearXNG}, nil
}

func (s *Searcher) searchDuckDuckGo(ctx context.Context, query string, maxResults int) (*Response, error) {
	endpoint := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1", url.QueryEscape(query))
	body, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse DuckDuckGo response: %w", err)
	}

	results := make([]Result, 0, maxResults)
	if parsed.AbstractText != "" && parsed.AbstractURL != "" {
		results = append(results, Result{
			Title:   parsed.Heading,
			URL:     parsed.AbstractURL,
			Snippet: parsed.AbstractText,
			Source:  "web",
		})
	}
	for _, topic := range parsed.RelatedTopics {
		if len(results) >= maxResults {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, Result{Title: title, URL: topic.FirstURL, Snippet: topic.Text, Source: "web"})
	}
	return &Response{Query: query, Results: results, Backend: BackendDuckDuckGo}, nil
}

func (s *Searcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; OritoBot/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
