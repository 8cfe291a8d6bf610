// 版权所有 2024 AgentChat Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 context 为 Responder 提供有界的聊天历史视图。

# 概述

群聊历史只增不减，而 LLM 类 Responder 的上下文窗口有限。
WindowManager 在不修改原始历史的前提下裁剪出一个视图，
交给 Responder 作为只读上下文。

# 核心模型

  - WindowManager：实现三种裁剪策略
  - TiktokenCounter：基于 tiktoken 的 Token 计数，加载失败时退回估算
  - Summarizer：可选的摘要接口

# 窗口策略

  - SlidingWindow：保留最近 N 条
  - TokenBudget：按 token 预算从新到旧保留连续后缀
  - Summarize：将较早消息压缩为一条系统消息
*/
package context
