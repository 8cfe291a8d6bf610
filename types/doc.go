// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentchat 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 mailbox、agent、
conversation、persistence 等上层模块提供统一的类型契约。

# 核心类型

  - AgentID：Agent 唯一标识（"agent:" + UUID，生命周期内不变、不复用）
  - Message：不可变消息信封（发送者、可选接收者、内容、函数调用描述、因果序号）
  - FunctionCall：结构化函数调用描述，用于发言人候选过滤
  - Error / ErrorCode：结构化错误体系，含 Retryable 与 Agent 归属
  - TokenCounter：最小 Token 计数接口

# 主要能力

  - 消息构造：NewMessage / NewSystemMessage / NewErrorMessage
  - 拷贝式修改：To / From / ReplyTo / WithFunction / WithCausalIndex
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - Token 估算：EstimateTokenizer（中英文字符分别计算）
*/
package types
