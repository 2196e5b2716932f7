// Copyright (c) Streamform Authors.
// Licensed under the MIT License.

/*
Package main 提供 Streamform 服务端程序入口。

# 概述

cmd/streamform 是 Streamform 的可执行入口，提供 HTTP API 服务、
健康检查和版本查询等子命令。程序支持 YAML 配置文件加载与热重载、
结构化日志（zap）、Prometheus 指标采集以及 OpenTelemetry 链路追踪。

# 核心类型

  - Server           — 主服务器，装配存储、模型调用链、轮次控制器与 HTTP/Metrics 双端口
  - Middleware       — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、RequestLogger、
    MetricsMiddleware、CORS、JWTAuth（HS256，配置密钥后启用）、RateLimiter（按租户或 IP）
  - 存储：Redis 读缓存在前，SQL 持久层在后，均可按配置关闭
  - 配置热重载：Reloader 监听文件变更，日志级别即时生效
  - 优雅关闭：信号监听 → 停止配置监听 → 关闭 HTTP → 关闭 Metrics → 关闭存储 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
