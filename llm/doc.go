/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、请求/响应模型与错误码。

# 概述

监督者的路由决策（Oracle）与 worker 的 ReAct 循环都只依赖 [Provider]
接口，因此可以在不改动上层代码的前提下替换底层模型服务。默认实现见
llm/providers/openaicompat（OpenRouter 等 OpenAI 兼容网关）。

# 核心类型

  - [Provider]：Completion / HealthCheck / Name
  - [ChatRequest] / [ChatResponse] / [HealthStatus]
  - [Message] / [ToolCall] / [ToolSchema]
  - [Error]：带 HTTP 状态与 Retryable 标记的结构化错误
*/
package llm
