package tools

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/tlsutil"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
	"go.uber.org/zap"
)

// WebSearchToolName is the name the search worker's model sees.
const WebSearchToolName = "tavily_search_results_json"

// WebSearchProvider defines the interface for web search backends.
type WebSearchProvider interface {
	// Search performs a web search and returns at most maxResults results.
	Search(ctx context.Context, query string, maxResults int) ([]WebSearchResult, error)
	// Name returns the provider name.
	Name() string
}

// WebSearchResult represents a single search result.
type WebSearchResult struct {
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// ====== Tavily ======

// TavilyConfig configures the Tavily search backend.
type TavilyConfig struct {
	APIKey  string
	BaseURL string // default https://api.tavily.com
	Timeout time.Duration
}

// TavilyProvider queries the Tavily search API.
type TavilyProvider struct {
	cfg    TavilyConfig
	client *http.Client
}

// NewTavilyProvider creates a Tavily search backend.
func NewTavilyProvider(cfg TavilyConfig) *TavilyProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &TavilyProvider{cfg: cfg, client: tlsutil.SecureHTTPClient(cfg.Timeout)}
}

func (p *TavilyProvider) Name() string { return "tavily" }

func (p *TavilyProvider) Search(ctx context.Context, query string, maxResults int) ([]WebSearchResult, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("tavily api key not configured")
	}
	body, err := json.Marshal(map[string]any{
		"api_key":     p.cfg.APIKey,
		"query":       query,
		"max_results": maxResults,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.cfg.BaseURL, "/")+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tavily search error (%d): %s", resp.StatusCode, string(msg))
	}

	var tavilyResp struct {
		Results []WebSearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tavilyResp); err != nil {
		return nil, fmt.Errorf("failed to parse tavily response: %w", err)
	}
	if len(tavilyResp.Results) > maxResults && maxResults > 0 {
		tavilyResp.Results = tavilyResp.Results[:maxResults]
	}
	return tavilyResp.Results, nil
}

// ====== 缓存 ======

// JSONCache is the subset of a key-value cache the search decorator needs.
// Any Get error is treated as a miss.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedSearchProvider 为相同查询复用最近的搜索结果.
type CachedSearchProvider struct {
	inner  WebSearchProvider
	cache  JSONCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSearchProvider wraps inner with a result cache.
func NewCachedSearchProvider(inner WebSearchProvider, cache JSONCache, ttl time.Duration, logger *zap.Logger) *CachedSearchProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedSearchProvider{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedSearchProvider) Name() string { return c.inner.Name() + "+cache" }

func searchCacheKey(provider, query string, maxResults int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", provider, maxResults, strings.ToLower(strings.TrimSpace(query)))))
	return "search:" + hex.EncodeToString(sum[:16])
}

func (c *CachedSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]WebSearchResult, error) {
	key := searchCacheKey(c.inner.Name(), query, maxResults)

	var cached []WebSearchResult
	if err := c.cache.GetJSON(ctx, key, &cached); err == nil {
		c.logger.Debug("search cache hit", zap.String("query", query))
		return cached, nil
	}

	results, err := c.inner.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, key, results, c.ttl); err != nil {
		c.logger.Warn("search cache write failed", zap.Error(err))
	}
	return results, nil
}

// ====== 工具 ======

// WebSearchToolConfig configures the web search tool.
type WebSearchToolConfig struct {
	Provider   WebSearchProvider // Search backend provider
	MaxResults int               // Results per query (default 5)
	Timeout    time.Duration     // Per-search timeout
	RateLimit  *RateLimitConfig  // Rate limiting
}

// DefaultWebSearchToolConfig returns sensible defaults.
func DefaultWebSearchToolConfig() WebSearchToolConfig {
	return WebSearchToolConfig{
		MaxResults: 5,
		Timeout:    15 * time.Second,
		RateLimit: &RateLimitConfig{
			MaxCalls: 30,
			Window:   time.Minute,
		},
	}
}

type webSearchArgs struct {
	Query string `json:"query"`
}

// NewWebSearchTool creates a ToolFunc for web searching.
// Results are returned as a JSON array of {url, content} objects.
func NewWebSearchTool(config WebSearchToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 5
	}

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params webSearchArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid %s arguments: %w", WebSearchToolName, err)
		}
		if strings.TrimSpace(params.Query) == "" {
			return nil, fmt.Errorf("query is required")
		}
		if config.Provider == nil {
			return nil, fmt.Errorf("web search provider not configured")
		}

		start := time.Now()
		results, err := config.Provider.Search(ctx, params.Query, config.MaxResults)
		if err != nil {
			logger.Warn("web search failed", zap.String("query", params.Query), zap.Error(err))
			return nil, fmt.Errorf("web search failed: %w", err)
		}

		logger.Info("web search completed",
			zap.String("query", params.Query),
			zap.Int("results", len(results)),
			zap.Duration("duration", time.Since(start)))

		if results == nil {
			results = []WebSearchResult{}
		}
		return json.Marshal(results)
	}

	metadata := ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        WebSearchToolName,
			Description: "A search engine optimized for comprehensive, accurate, and trusted results. Useful for when you need to answer questions about current events. Input should be a search query.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "search query to look up"}
				},
				"required": ["query"]
			}`),
		},
		Timeout:   config.Timeout,
		RateLimit: config.RateLimit,
	}

	return fn, metadata
}

// RegisterWebSearchTool is a convenience function that creates and registers the web search tool.
func RegisterWebSearchTool(registry ToolRegistry, config WebSearchToolConfig, logger *zap.Logger) error {
	fn, metadata := NewWebSearchTool(config, logger)
	return registry.Register(WebSearchToolName, fn, metadata)
}
