package api

import (
	"time"
)

// =============================================================================
// 会话
// =============================================================================

// SessionResponse 会话信息
// @Description 会话创建或查询结果
type SessionResponse struct {
	// 会话 ID
	SessionID string `json:"session_id" example:"3f1c0d3e-2b8e-4a57-9a8e-0f4f2f1f6b77"`
	// 创建时间
	CreatedAt time.Time `json:"created_at"`
	// 最近使用时间
	LastUsedAt time.Time `json:"last_used_at"`
	// 是否有正在进行的查询
	Busy bool `json:"busy"`
	// 本次请求是否新建了会话
	Created bool `json:"created"`
}

// =============================================================================
// 查询
// =============================================================================

// QueryRequest 查询请求. GET 时取自 query string, POST 时取自 JSON body.
// @Description 查询请求结构
type QueryRequest struct {
	// 用户查询
	Query string `json:"query" example:"Research AI agents and write a brief report about them."`
	// 最大步数, <= 0 使用服务端默认值
	RecursionLimit int `json:"recursion_limit,omitempty" example:"150"`
	// 会话 ID, 也可通过 X-Session-ID 头传入
	SessionID string `json:"session_id,omitempty"`
}

// StepPayload 每个 SSE step 事件的 data 字段
type StepPayload struct {
	Response string       `json:"response"`
	Metadata StepMetadata `json:"metadata"`
}

// StepMetadata 定位一步在运行中的位置
type StepMetadata struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id,omitempty"`
	Step      int    `json:"step,omitempty"`
	Graph     string `json:"graph,omitempty"`
	Node      string `json:"node,omitempty"`
	Author    string `json:"author,omitempty"`
	Next      string `json:"next,omitempty"`
}

// WSEvent websocket 端点推送的事件
type WSEvent struct {
	// step / error / end
	Type    string       `json:"type"`
	Content string       `json:"content"`
	Meta    StepMetadata `json:"metadata"`
}

// =============================================================================
// 文件
// =============================================================================

// FileListResponse 会话目录下的文件
type FileListResponse struct {
	SessionID string   `json:"session_id"`
	Files     []string `json:"files"`
}

// =============================================================================
// 运行历史
// =============================================================================

// RunResponse 一次查询运行的摘要
type RunResponse struct {
	RunID      string    `json:"run_id"`
	SessionID  string    `json:"session_id"`
	Query      string    `json:"query"`
	Status     string    `json:"status"`
	Steps      int       `json:"steps"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
}

// RunListResponse 运行历史列表
type RunListResponse struct {
	SessionID string        `json:"session_id"`
	Runs      []RunResponse `json:"runs"`
}
