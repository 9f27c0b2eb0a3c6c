/*
Package types 提供编排引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、agent/hierarchical、
session、api 等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Message：不可变对话消息（Role、Content、Author）
  - Role：system / user / agent
  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - Context 传播：WithSessionID / WithRunID / WithRequestID / WithTeam
  - 错误工具链：AsError / IsErrorCode / GetErrorCode / HTTPStatusFor
  - 常用错误构造：NewRoutingError / NewRecursionLimitError /
    NewOrchestratorUnavailableError / NewCancelledError
*/
package types
