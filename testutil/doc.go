// Copyright 2026 StreamForm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 StreamForm 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual / AssertRoles / AssertJSONEqual /
    AssertErrorCode / AssertContains
  - 异步断言: AssertEventuallyTrue，支持超时轮询等待条件满足
  - 数据工具: MustJSON / MustParseJSON
  - 流式辅助: CollectStreamChunks / CollectStreamContent / CollectEvents /
    SendChunksToChannel，用于模型流测试

# 子包

  - testutil/mocks: MockProvider（llm.Provider）与 ScriptedOpener（llm.Opener），
    均支持 Builder 模式与错误注入
  - testutil/fixtures: 测试数据工厂，提供分步回答、问答、自由文本的
    部分值序列与原始 JSON 片段

# 使用示例

	ctx := testutil.TestContext(t)
	opener := mocks.NewScriptedOpener(mocks.Values(fixtures.StepsPartials()...)...)
	ctrl := streaming.NewController(opener).WithMode(streaming.StepsMode())
	res, err := ctrl.Submit(ctx, conv, "how do I start?", sink)
*/
package testutil
