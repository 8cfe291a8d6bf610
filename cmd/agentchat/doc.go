// 版权所有 2024 AgentChat Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 AgentChat 命令行入口。

# 概述

cmd/agentchat 按 YAML 配置组建群聊并在终端运行，输出带 causal_index
的会话记录。支持 .env 文件、结构化日志（zap）、Prometheus 指标端点
与 OpenTelemetry 追踪。

# 主要能力

  - 子命令：run（运行群聊）、validate（校验配置）、version
  - Agent 类型：echo、rules（关键词与函数调用规则）、human（控制台输入）
  - 中间件：按 Agent 配置限流、超时与重试
  - 发言人策略：round_robin、random、manual（控制台选择）、auto
  - 中断：首次 Ctrl+C 交由管理员发言，短时间内再次按下则结束会话
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
