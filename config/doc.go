// 版权所有 2024 AgentChat Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 config 提供 AgentChat 的配置加载。

配置优先级为：默认值 → YAML 文件 → 环境变量（默认前缀 AGENTCHAT，
名称由 env 标签拼接，例如 AGENTCHAT_CHAT_MAX_ROUNDS）。
Agent 列表只能通过 YAML 声明。
*/
package config
