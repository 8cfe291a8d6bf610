// 版权所有 2024 AgentChat Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 responder 定义 Agent 的可插拔应答能力。

# 概述

Responder 接收一条输入消息与只读会话上下文，返回零条或多条回复，
或返回一个已分类的错误。所有外部 I/O 都发生在 Responder 内部，
Agent 循环的并发与终止逻辑与具体实现无关。

# 错误分类

  - Transient：Agent 继续运行，错误以 error 类型消息进入历史
  - Fatal：Agent 终止，编排方将其移出候选集合
  - Cancelled：调用被取消，部分输出被丢弃

未显式分类的错误按 Transient 处理。

# 内置实现

  - Func / Echo / Rules：程序化与规则应答
  - LLM：包装外部 Provider，支持系统提示词、历史窗口与函数声明
  - Human：包装外部 InputProvider

# 中间件

WithRateLimit、WithTimeout、WithRetry 通过 Chain 组合，
包装后仍保留内层的 FunctionHandler 能力。
*/
package responder
