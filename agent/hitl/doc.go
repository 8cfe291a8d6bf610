// 版权所有 2024 AgentChat Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 hitl 提供群聊中的人工介入能力：中断信号与控制台输入。

# 中断源

  - SignalSource：第一次 SIGINT/SIGTERM 触发中断，窗口期内的第二次信号强制退出
  - ChannelSource：由代码触发的中断
  - InterruptManager：汇聚多个中断源，提供单一通道并记录每次请求

重复的中断信号在被消费前只保留一个。

# 人工输入

ConsoleInput 以 ">>> " 提示逐行读取输入，既可作为 Human Responder 的
InputProvider，也可作为 Manual 选择策略的 Chooser（接受序号、名称或 ID）。
*/
package hitl
