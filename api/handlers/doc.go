/*
Package handlers 实现 HTTP 端点.

# 核心类型

  - SessionHandler: /session 创建, 获取或删除会话
  - QueryHandler: /query 以 SSE 流式返回每一步
  - WSQueryHandler: /ws/query websocket 版本
  - FileHandler: /files 与 /download, 路径限制在会话工作目录内
  - RunHandler: /runs 运行历史
  - HealthHandler: /health, /healthz, /ready, /version

所有 JSON 响应使用统一结构 Response{success, data, error, timestamp, request_id},
错误码经 types.HTTPStatusFor 映射为 HTTP 状态码.
*/
package handlers
