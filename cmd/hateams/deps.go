package main

import (
	"context"
	"errors"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/agent/hierarchical"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/agent/sandbox"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/api/handlers"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/config"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/cache"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/metrics"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm/providers/openaicompat"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm/tokenizer"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm/tools"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"
	"go.uber.org/zap"
)

// openRouterHeaders 让 OpenRouter 在控制台里标出调用方
var openRouterHeaders = map[string]string{
	"HTTP-Referer": "https://github.com/Devgum/Hierarchical-Agent-Teams-Demo",
	"X-Title":      "Hierarchical Agent Teams",
}

// sharedDeps 汇总构建团队所需的共享依赖. 所有字段都可为 nil.
type sharedDeps struct {
	cfg       *config.Config
	provider  llm.Provider // 为 nil 时在 SharedFunc 中创建
	cache     *cache.Manager
	collector *metrics.Collector
	logger    *zap.Logger
}

// newProvider 创建 OpenAI 兼容的模型客户端并挂上指标.
func (d sharedDeps) newProvider() (llm.Provider, error) {
	c := d.cfg.LLM
	if c.APIKey == "" {
		return nil, errors.New("llm api key is not configured")
	}
	p := openaicompat.New(openaicompat.Config{
		ProviderName:  c.Provider,
		APIKey:        c.APIKey,
		BaseURL:       c.BaseURL,
		DefaultModel:  c.Model,
		FallbackModel: config.DefaultModel,
		Temperature:   float32(c.Temperature),
		Timeout:       c.Timeout,
		Headers:       openRouterHeaders,
	}, d.logger)
	if d.collector == nil {
		return p, nil
	}
	return metrics.InstrumentProvider(p, d.collector), nil
}

// providerCheck 把模型网关的健康检查接入 /ready.
func providerCheck(p llm.Provider) *handlers.PingCheck {
	return handlers.NewPingCheck("llm", func(ctx context.Context) error {
		_, err := p.HealthCheck(ctx)
		return err
	})
}

// newSearch 返回 Tavily 搜索, 启用缓存时包一层 Redis 结果缓存.
func (d sharedDeps) newSearch() tools.WebSearchProvider {
	c := d.cfg.Search
	var search tools.WebSearchProvider = tools.NewTavilyProvider(tools.TavilyConfig{
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Timeout: c.Timeout,
	})
	if d.cache != nil {
		search = tools.NewCachedSearchProvider(search, d.cache, c.CacheTTL, d.logger)
	}
	return search
}

// newCodeRunner 返回本地 python 执行器. 关闭时返回 nil, 图表 worker 随即报告不可用.
func (d sharedDeps) newCodeRunner() tools.CodeRunner {
	c := d.cfg.Sandbox
	if c.Disabled {
		return nil
	}
	return sandbox.NewSandboxExecutor(sandbox.SandboxConfig{
		Interpreter:    c.Interpreter,
		Timeout:        c.Timeout,
		MaxOutputBytes: c.MaxOutputBytes,
	}, sandbox.NewProcessBackend(d.logger), d.logger)
}

// SharedFunc 构建 session.Store 使用的共享依赖. 成功结果由 Store 缓存, 失败时下次建会话重试.
func (d sharedDeps) SharedFunc() session.SharedFunc {
	return func(ctx context.Context) (hierarchical.Collaborators, error) {
		provider := d.provider
		if provider == nil {
			p, err := d.newProvider()
			if err != nil {
				return hierarchical.Collaborators{}, err
			}
			provider = p
		}

		searchCfg := tools.DefaultWebSearchToolConfig()
		searchCfg.MaxResults = d.cfg.Search.MaxResults
		searchCfg.Timeout = d.cfg.Search.Timeout

		scrapeCfg := tools.DefaultWebScrapeToolConfig()
		if d.cfg.Search.ScrapeConcurrency > 0 {
			scrapeCfg.Concurrency = d.cfg.Search.ScrapeConcurrency
		}

		c := hierarchical.Collaborators{
			Provider:     provider,
			Model:        d.cfg.LLM.Model,
			Search:       d.newSearch(),
			SearchConfig: searchCfg,
			Scraper:      tools.NewHTTPScraper(d.cfg.Search.Timeout, d.cfg.Search.ScrapeMaxBytes),
			ScrapeConfig: scrapeCfg,
			CodeRunner:   d.newCodeRunner(),
			ReAct:        tools.ReActConfig{MaxIterations: d.cfg.LLM.MaxIterations},
			Logger:       d.logger,
		}
		if n := d.cfg.LLM.ToolOutputTokens; n > 0 {
			c.OutputBudget = tokenizer.NewBudget(tokenizer.ForModel(d.cfg.LLM.Model, d.logger), n)
		}
		if d.collector != nil {
			c.Observer = d.collector.RecordRoutingDecision
		}

		d.logger.Info("shared dependencies ready",
			zap.String("provider", provider.Name()),
			zap.String("model", d.cfg.LLM.Model),
			zap.Bool("search_cache", d.cache != nil),
			zap.Bool("sandbox", c.CodeRunner != nil),
		)
		return c, nil
	}
}
