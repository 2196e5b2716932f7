// Copyright (c) Streamform Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Streamform HTTP API 的请求处理器实现。

# 概述

handlers 包实现聊天轮次的 HTTP 入口：SSE 与 WebSocket 两种流式传输、
聊天读模型查询、健康检查，以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，路径参数通过 Request.PathValue 读取。

# 核心类型

  - ChatHandler      — 发送消息（SSE）、WebSocket 会话、读取聊天历史
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - PingCheck        — 基于 ping 函数的可插拔就绪检查（Database、Redis）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码，支持 Unwrap

# SSE 事件

一轮对话依次输出 snapshot*、done、committed；轮次在输出开始后失败时
以 error 事件结束。输出开始前的失败（含 AGENT_BUSY）返回普通 JSON 错误。
*/
package handlers
