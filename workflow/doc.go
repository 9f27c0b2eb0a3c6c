/*
Package workflow 提供按名称寻址的动态路由状态机执行引擎。

# 概述

每个节点返回一个 Command{Goto, Update}，引擎将 Update 合并进对话状态
（messages 追加，next 替换），然后跳转到 Goto 指定的节点，直到遇到终止
哨兵 End 或步数计数器达到上限。图中无需声明静态边，监督者可以按任意
顺序把控制权交给任意 worker。

# 核心类型

  - State / Update / Command：对话状态、部分更新与路由命令
  - Reducer[T]：通道合并策略（AppendReducer / LastValueReducer）
  - Node / NodeFunc：节点接口与函数适配器
  - Graph / CompiledGraph：构建期图与不可变的可执行图
  - Engine：蹦床循环执行器（Run / Stream）
  - Step / StepFunc：单步结果与有序回调

# 主要能力

  - 显式步数上限：超出即返回 RECURSION_LIMIT 错误
  - 每步调度前检查 context，取消后立即停止
  - 非法 Goto 返回 ROUTING_INVALID 错误，不做重试
  - WithStepObserver 观察包括嵌套团队在内的所有步骤
  - OpenTelemetry span 与计数器覆盖每次运行与每一步
*/
package workflow
