// 版权所有 2024 AgentChat Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供群聊历史的追加钩子（HistorySink）及多后端实现。

# 概述

GroupChat 每记录一条消息就调用一次 HistorySink.Append，顺序与
causal_index 一致。Sink 失败只会被记录和计数，不会中断会话，
也不会改变内存中的历史。本包不是存储引擎，只负责把历史转存到外部。

# 核心接口

  - HistorySink: Append / Snapshot / Close
  - SinkConfig: 后端类型选择与各后端参数

# 后端实现

  - Memory: 内存实现，适合开发与测试。
  - File: 每个会话一个 JSON Lines 文件，适合单节点部署。
  - Redis: RPUSH 到 <prefix>chat:<id>，可选 LTRIM 限长。
  - SQL: GORM 模型 ChatMessageRecord，默认 sqlite（glebarez），
    也可通过 NewSQLSinkWithDB 传入任意方言的 *gorm.DB。

# 使用方式

	sink, err := persistence.NewHistorySink(cfg, logger)
	chat, err := conversation.NewGroupChat(agents, selector, chatCfg,
		conversation.WithSink(sink))
*/
package persistence
