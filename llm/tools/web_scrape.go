package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/tlsutil"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// WebScrapeToolName is the name the scraper worker's model sees.
const WebScrapeToolName = "scrape_webpages"

// WebScrapeProvider fetches a page and extracts its readable text.
type WebScrapeProvider interface {
	Scrape(ctx context.Context, url string) (*WebScrapeResult, error)
	Name() string
}

// WebScrapeResult 表示单个页面的抓取结果.
type WebScrapeResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ====== HTTP 抓取器 ======

// HTTPScraper fetches pages over HTTP and strips markup with x/net/html.
type HTTPScraper struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewHTTPScraper creates a scraper; maxBytes caps the body read per page.
func NewHTTPScraper(timeout time.Duration, maxBytes int64) *HTTPScraper {
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	return &HTTPScraper{
		client:    tlsutil.SecureHTTPClient(timeout),
		maxBytes:  maxBytes,
		userAgent: "hateams-scraper/1.0",
	}
}

func (s *HTTPScraper) Name() string { return "http" }

func (s *HTTPScraper) Scrape(ctx context.Context, url string) (*WebScrapeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", url, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	title, text, err := ExtractText(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return &WebScrapeResult{URL: url, Title: title, Content: text}, nil
}

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"svg": true, "iframe": true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true,
	"pre": true, "blockquote": true, "table": true, "ul": true, "ol": true,
}

// ExtractText returns the document title and its visible text,
// one block element per line.
func ExtractText(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var title string
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" {
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
			if skippedElements[n.Data] {
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] && sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	return title, strings.TrimSpace(sb.String()), nil
}

// FormatDocuments 把抓取结果格式化为 <Document name="title"> 块，以空行分隔.
func FormatDocuments(results []*WebScrapeResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("<Document name=\"%s\">\n%s\n</Document>", r.Title, r.Content))
	}
	return strings.Join(parts, "\n\n")
}

// ====== 工具 ======

// WebScrapeToolConfig 配置网页抓取工具.
type WebScrapeToolConfig struct {
	Provider    WebScrapeProvider // Scraping backend provider
	Concurrency int               // Pages fetched in parallel (default 4)
	Timeout     time.Duration     // Whole-call timeout
	RateLimit   *RateLimitConfig  // Rate limiting
}

// DefaultWebScrapeToolConfig 返回默认配置.
func DefaultWebScrapeToolConfig() WebScrapeToolConfig {
	return WebScrapeToolConfig{
		Concurrency: 4,
		Timeout:     60 * time.Second,
		RateLimit: &RateLimitConfig{
			MaxCalls: 20,
			Window:   time.Minute,
		},
	}
}

type webScrapeArgs struct {
	URLs []string `json:"urls"`
}

// NewWebScrapeTool 创建抓取工具：一次抓取多个 URL，单页失败时在对应块内写入错误.
func NewWebScrapeTool(config WebScrapeToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params webScrapeArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid %s arguments: %w", WebScrapeToolName, err)
		}
		if len(params.URLs) == 0 {
			return nil, fmt.Errorf("urls is required")
		}
		if config.Provider == nil {
			return nil, fmt.Errorf("web scrape provider not configured")
		}

		start := time.Now()
		results := make([]*WebScrapeResult, len(params.URLs))
		failed := 0

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(config.Concurrency)
		errs := make([]error, len(params.URLs))
		for i, url := range params.URLs {
			g.Go(func() error {
				res, err := config.Provider.Scrape(gctx, url)
				if err != nil {
					errs[i] = err
					results[i] = &WebScrapeResult{URL: url, Title: url, Content: "Error: " + err.Error()}
					return nil
				}
				results[i] = res
				return nil
			})
		}
		_ = g.Wait()

		for i, err := range errs {
			if err != nil {
				failed++
				logger.Warn("web scrape failed", zap.String("url", params.URLs[i]), zap.Error(err))
			}
		}
		if failed == len(params.URLs) {
			return nil, fmt.Errorf("web scrape failed: %w", errs[0])
		}

		logger.Info("web scrape completed",
			zap.Int("pages", len(params.URLs)),
			zap.Int("failed", failed),
			zap.Duration("duration", time.Since(start)))

		return StringResult(FormatDocuments(results))
	}

	metadata := ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        WebScrapeToolName,
			Description: "Scrape the provided web pages for detailed information.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"urls": {
						"type": "array",
						"items": {"type": "string"},
						"description": "The URLs of the web pages to scrape"
					}
				},
				"required": ["urls"]
			}`),
		},
		Timeout:   config.Timeout,
		RateLimit: config.RateLimit,
	}

	return fn, metadata
}

// RegisterWebScrapeTool 创建并注册网页抓取工具.
func RegisterWebScrapeTool(registry ToolRegistry, config WebScrapeToolConfig, logger *zap.Logger) error {
	fn, metadata := NewWebScrapeTool(config, logger)
	return registry.Register(WebScrapeToolName, fn, metadata)
}
