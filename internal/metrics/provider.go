package metrics

import (
	"context"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
)

// LLMRecorder is the part of Collector an instrumented provider needs.
type LLMRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// InstrumentedProvider 包装 llm.Provider, 为每次 Completion 记录耗时与 token.
type InstrumentedProvider struct {
	llm.Provider
	rec LLMRecorder
}

// InstrumentProvider wraps p. A nil recorder returns p unchanged.
func InstrumentProvider(p llm.Provider, rec LLMRecorder) llm.Provider {
	if p == nil || rec == nil {
		return p
	}
	return &InstrumentedProvider{Provider: p, rec: rec}
}

// Completion forwards to the wrapped provider.
func (p *InstrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.Provider.Completion(ctx, req)
	status, prompt, completion := "success", 0, 0
	if err != nil {
		status = "error"
	} else if resp != nil {
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	p.rec.RecordLLMRequest(p.Name(), req.Model, status, time.Since(start), prompt, completion)
	return resp, err
}
