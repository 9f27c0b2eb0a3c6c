// Package api 定义层级 agent 团队服务的 HTTP 请求与响应类型.
//
// # 端点
//
//   - POST /session, GET /session: 创建或获取会话
//   - GET|POST /query: 以 SSE 流式返回每一步
//   - GET /ws/query: websocket 版本的 /query
//   - GET /files, GET /download: 会话工作目录中的文件
//   - GET /runs: 运行历史 (启用数据库时)
//   - GET /health, /healthz, /ready, /version: 健康检查
//
// 会话 ID 通过 session_id 参数或 X-Session-ID 头传递, 响应会回写 X-Session-ID.
package api
