// Copyright 2026 AgentChat Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 agentchat 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，
避免重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual / AssertStrictlyIncreasing / AssertJSONEqual
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual
  - 数据工具: MustJSON / Senders / Contents

# 子包

  - testutil/mocks: ScriptedResponder（可编排的 Responder）、
    MockProvider（模型 Provider）、MockInput（人工输入）
*/
package testutil
