// Copyright (c) StreamForm Authors.
// Licensed under the MIT License.

/*
Package types 提供 StreamForm 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 structured、conversation、
streaming、llm、api 等上层模块提供统一的类型契约。

# 核心类型

  - Message           — 已提交的会话消息（Role、Content、Payload、Attribution）
  - Source            — 助手消息的引用来源（title + url）
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - Context 传播：WithTraceID / WithTenantID / WithUserID / WithChatID / WithRoles
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 轮次错误构造：NewStreamError / NewIncompatibleShapeError
*/
package types
