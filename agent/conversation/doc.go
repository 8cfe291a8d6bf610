// 版权所有 2024 AgentChat Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 conversation 提供多智能体群聊编排：注册表、聊天历史与发言人选择。

# 概述

GroupChat 以轮次推进会话，每轮依次经过
SelectSpeaker → Dispatch → Record → CheckTermination 四个阶段。
每个 Agent 运行独立的事件循环，GroupChat 只通过邮箱投递输入，
并经 Deliver 接收回合结果，从不直接调用 Responder。

# 核心类型

  - GroupChat：编排器，持有注册表、ChatHistory 与 Selector
  - ChatHistory：只追加的消息序列，causal_index 从 1 严格递增
  - Selector：发言人选择策略接口
  - GroupChatManager：按会话 ID 管理多个 GroupChat

# 发言人选择

  - RoundRobin：按注册顺序循环，跳过已终止的 Agent
  - Random：在候选人中均匀随机
  - Manual：由 Chooser（控制台、通道）指定，多次无效后回退轮询
  - Auto：由选择用 Responder 决定；最后一条消息带函数调用时，
    只在声明了对应处理器的 Agent 中选择，无匹配时使用全部候选人

# 终止与异常

  - 达到 MaxRounds、命中终止词、没有可发言者、中断或 ctx 取消时结束
  - 致命失败的 Agent 被移出注册表，本轮不计数、不写历史
  - 可恢复失败以 error 类型消息写入历史
  - 中断会取消进行中的回合并丢弃部分输出，下一轮由管理员发言
  - 选择器返回非在线 Agent 视为内部不变量被破坏，会话中止

# 持久化

WithSink 注入 persistence.HistorySink 后，每条写入历史的消息都会按
causal_index 顺序调用一次 Append；Sink 失败只记录不会中断会话。
*/
package conversation
