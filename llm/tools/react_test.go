package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	llmpkg "github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
	"go.uber.org/zap"
)

type scriptedCompletionProvider struct {
	responses []*llmpkg.ChatResponse
	requests  []llmpkg.ChatRequest
}

func (p *scriptedCompletionProvider) Completion(_ context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
	p.requests = append(p.requests, *req)
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("no more responses")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedCompletionProvider) HealthCheck(_ context.Context) (*llmpkg.HealthStatus, error) {
	return &llmpkg.HealthStatus{Healthy: true}, nil
}

func (p *scriptedCompletionProvider) Name() string { return "scripted" }

type scriptedToolExecutor struct {
	calls int
	failN int
}

func (e *scriptedToolExecutor) Execute(_ context.Context, calls []llmpkg.ToolCall) []ToolResult {
	out := make([]ToolResult, 0, len(calls))
	for _, c := range calls {
		e.calls++
		if e.failN > 0 {
			e.failN--
			out = append(out, ToolResult{
				ToolCallID: c.ID,
				Name:       c.Name,
				Error:      "invalid arguments",
				Duration:   time.Millisecond,
			})
			continue
		}
		out = append(out, ToolResult{
			ToolCallID: c.ID,
			Name:       c.Name,
			Result:     json.RawMessage(`{"ok":true}`),
			Duration:   time.Millisecond,
		})
	}
	return out
}

func (e *scriptedToolExecutor) ExecuteOne(ctx context.Context, call llmpkg.ToolCall) ToolResult {
	return e.Execute(ctx, []llmpkg.ToolCall{call})[0]
}

func TestReActExecutor_Execute_MultiTurnToolLoop_Success(t *testing.T) {
	logger := zap.NewNop()
	provider := &scriptedCompletionProvider{
		responses: []*llmpkg.ChatResponse{
			{
				Choices: []llmpkg.ChatChoice{{
					FinishReason: "tool_calls",
					Message: llmpkg.Message{
						Role: llmpkg.RoleAssistant,
						ToolCalls: []llmpkg.ToolCall{{
							ID:        "call_1",
							Name:      "echo",
							Arguments: json.RawMessage(`{"text":"hi"}`),
						}},
					},
				}},
			},
			{
				Choices: []llmpkg.ChatChoice{{
					FinishReason: "stop",
					Message: llmpkg.Message{
						Role:    llmpkg.RoleAssistant,
						Content: "done",
					},
				}},
			},
		},
	}
	toolExec := &scriptedToolExecutor{}
	executor := NewReActExecutor(provider, toolExec, nil, ReActConfig{MaxIterations: 5}, logger)

	resp, steps, err := executor.Execute(context.Background(), &llmpkg.ChatRequest{
		Model:    "dummy",
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if toolExec.calls != 1 {
		t.Fatalf("expected 1 tool execution, got %d", toolExec.calls)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content != "done" {
		t.Fatalf("unexpected final response: %#v", resp)
	}
}

func TestReActExecutor_Execute_ToolFailureCanContinue_AndReachFinal(t *testing.T) {
	logger := zap.NewNop()
	provider := &scriptedCompletionProvider{
		responses: []*llmpkg.ChatResponse{
			{
				Choices: []llmpkg.ChatChoice{{
					FinishReason: "tool_calls",
					Message: llmpkg.Message{
						Role: llmpkg.RoleAssistant,
						ToolCalls: []llmpkg.ToolCall{{
							ID:        "call_1",
							Name:      "may_fail",
							Arguments: json.RawMessage(`{"x":1}`),
						}},
					},
				}},
			},
			{
				Choices: []llmpkg.ChatChoice{{
					FinishReason: "tool_calls",
					Message: llmpkg.Message{
						Role: llmpkg.RoleAssistant,
						ToolCalls: []llmpkg.ToolCall{{
							ID:        "call_2",
							Name:      "retry",
							Arguments: json.RawMessage(`{"x":2}`),
						}},
					},
				}},
			},
			{
				Choices: []llmpkg.ChatChoice{{
					FinishReason: "stop",
					Message: llmpkg.Message{
						Role:    llmpkg.RoleAssistant,
						Content: "done",
					},
				}},
			},
		},
	}
	toolExec := &scriptedToolExecutor{failN: 1}
	executor := NewReActExecutor(provider, toolExec, nil, ReActConfig{MaxIterations: 5}, logger)

	resp, steps, err := executor.Execute(context.Background(), &llmpkg.ChatRequest{
		Model:    "dummy",
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if toolExec.calls != 2 {
		t.Fatalf("expected 2 tool executions, got %d", toolExec.calls)
	}
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content != "done" {
		t.Fatalf("unexpected final response: %#v", resp)
	}
}

func TestReActExecutor_Execute_MaxIterationsReached(t *testing.T) {
	logger := zap.NewNop()
	provider := &scriptedCompletionProvider{
		responses: []*llmpkg.ChatResponse{
			{
				Choices: []llmpkg.ChatChoice{{
					FinishReason: "tool_calls",
					Message: llmpkg.Message{
						Role: llmpkg.RoleAssistant,
						ToolCalls: []llmpkg.ToolCall{{
							ID:        "call_1",
							Name:      "loop",
							Arguments: json.RawMessage(`{"x":1}`),
						}},
					},
				}},
			},
			{
				Choices: []llmpkg.ChatChoice{{
					FinishReason: "tool_calls",
					Message: llmpkg.Message{
						Role: llmpkg.RoleAssistant,
						ToolCalls: []llmpkg.ToolCall{{
							ID:        "call_2",
							Name:      "loop",
							Arguments: json.RawMessage(`{"x":2}`),
						}},
					},
				}},
			},
		},
	}
	toolExec := &scriptedToolExecutor{}
	executor := NewReActExecutor(provider, toolExec, nil, ReActConfig{MaxIterations: 2}, logger)

	resp, steps, err := executor.Execute(context.Background(), &llmpkg.ChatRequest{
		Model:    "dummy",
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if resp != nil {
		t.Fatalf("expected nil response, got %#v", resp)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
}

func TestReActExecutor_Execute_OffersToolsAndFeedsObservations(t *testing.T) {
	provider := &scriptedCompletionProvider{
		responses: []*llmpkg.ChatResponse{
			{Choices: []llmpkg.ChatChoice{{Message: llmpkg.Message{
				Role:      llmpkg.RoleAssistant,
				ToolCalls: []llmpkg.ToolCall{{ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{}`)}},
			}}}},
			{Choices: []llmpkg.ChatChoice{{Message: llmpkg.Message{Role: llmpkg.RoleAssistant, Content: "done"}}}},
		},
	}
	schemas := []llmpkg.ToolSchema{{Name: "echo"}}
	executor := NewReActExecutor(provider, &scriptedToolExecutor{}, schemas, ReActConfig{}, nil)

	_, _, err := executor.Execute(context.Background(), &llmpkg.ChatRequest{
		Messages: []llmpkg.Message{{Role: llmpkg.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 completions, got %d", len(provider.requests))
	}
	if len(provider.requests[0].Tools) != 1 || provider.requests[0].Tools[0].Name != "echo" {
		t.Fatalf("tools not offered: %#v", provider.requests[0].Tools)
	}
	second := provider.requests[1].Messages
	if len(second) != 3 {
		t.Fatalf("expected user, assistant, tool messages, got %d", len(second))
	}
	if second[2].Role != llmpkg.RoleTool || second[2].ToolCallID != "call_1" {
		t.Fatalf("unexpected observation message: %#v", second[2])
	}
}

func TestReActExecutor_Execute_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	provider := &scriptedCompletionProvider{}
	executor := NewReActExecutor(provider, &scriptedToolExecutor{}, nil, ReActConfig{}, nil)

	_, _, err := executor.Execute(ctx, &llmpkg.ChatRequest{})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if len(provider.requests) != 0 {
		t.Fatalf("provider should not be called after cancellation")
	}
}
