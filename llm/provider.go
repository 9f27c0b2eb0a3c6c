package llm

import (
	"context"
	"encoding/json"
	"time"
)

// ErrorCode 标识模型网关错误的类别.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized    ErrorCode = "LLM_UNAUTHORIZED"
	ErrForbidden       ErrorCode = "LLM_FORBIDDEN"
	ErrRateLimited     ErrorCode = "LLM_RATE_LIMITED"
	ErrQuotaExceeded   ErrorCode = "LLM_QUOTA_EXCEEDED"   // OpenRouter credits exhausted
	ErrModelOverloaded ErrorCode = "LLM_MODEL_OVERLOADED" // 529
	ErrUpstreamError   ErrorCode = "LLM_UPSTREAM_ERROR"
)

// Error is a gateway failure. Retryable marks errors a caller may retry
// with the same request.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Role is the chat role on the model wire, distinct from types.Role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function call requested by the model. Arguments is
// always a JSON object after decoding.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"` // worker 名, 让模型区分发言者
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ChatRequest is what supervisors and workers send. ToolChoice is
// auto/none/required or the name of one tool to force, which is how the
// router pins the route function.
type ChatRequest struct {
	TraceID     string       `json:"trace_id,omitempty"`
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Temperature float32      `json:"temperature,omitempty"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	ToolChoice  string       `json:"tool_choice,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// FirstContent returns the content of the first choice, or "" if there is none.
func (r *ChatResponse) FirstContent() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// HealthStatus 网关可达性与延迟.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider 是路由 oracle 与 ReAct worker 共用的模型客户端.
// 工具只通过 ChatRequest.Tools 声明, 执行在 llm/tools 中完成.
type Provider interface {
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 供 /ready 探测网关
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	Name() string
}
