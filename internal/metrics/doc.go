/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、LLM、
查询运行、supervisor 路由、会话、缓存与数据库。

# 概述

Collector 通过 promauto.With 注册到调用方给定的 Registerer，
测试可使用独立的 prometheus.Registry，互不干扰。Collector 同时满足
session 包的 Metrics 接口与 hierarchical.DecisionObserver 的函数签名。

# 主要能力

  - HTTP 指标：请求总数、耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：InstrumentProvider 包装任意 llm.Provider，记录请求数、耗时与 Token 用量。
  - 运行指标：按最终状态统计运行次数、步数分布与耗时。
  - 路由指标：按 team/label 统计 supervisor 决定，无效标签归并为 "invalid"。
  - 会话、缓存与数据库连接池指标。
*/
package metrics
