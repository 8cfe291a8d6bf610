// 版权所有 2024 AgentChat Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
Agent 回合、邮箱、群聊编排与历史追加钩子。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
注册，可通过 NewCollectorWithRegistry 注入独立的 Registry。
所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，所有 Record 方法对 nil 接收者安全。

# 主要能力

  - Agent 指标：回合结果（ok/transient/fatal/cancelled）、回合耗时、生命周期事件
  - Mailbox 指标：发送结果（accepted/closed/full）、队列深度
  - GroupChat 指标：完成轮次、终止原因、发言人选择结果
  - Broker 指标：直达与广播路由结果
  - 持久化钩子指标：追加成功/失败计数与耗时
*/
package metrics
