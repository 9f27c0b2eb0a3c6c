/*
Package main 提供 hateams 服务端程序入口。

# 概述

cmd/hateams 启动层级式多智能体服务: supervisor 在 research_team 与
writing_team 之间路由查询, 每一步通过 SSE 或 WebSocket 推送给客户端,
团队写出的文档按会话提供列表与下载。

# 核心类型

  - Server：组装会话存储、流水线、可选的 Redis 缓存与运行历史, 管理 API 与 Metrics 双端口
  - sharedDeps：所有会话共享的模型客户端、搜索、抓取与代码执行器
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、run（本地执行一次查询）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、RateLimiter（基于 IP）、JWTAuth（可选）
  - 优雅关闭：信号取消 → 结束进行中的流 → 关闭 HTTP 与 Metrics → 删除会话目录
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
