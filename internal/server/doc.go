// 版权所有 2024 Streamform Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
所有请求 context 派生自 Manager 持有的基础 context：优雅关闭在
ShutdownTimeout 内等待流式轮次自然结束，超时后取消基础 context，
仍在进行的轮次以 TURN_CANCELLED 结束，已升级的 WebSocket 连接随之关闭。

# 核心类型

  - Manager：提供 Start/Shutdown/WaitForShutdown/Errors/Addr。
  - Config：监听地址、读写超时、空闲超时、最大请求头与关闭超时。
*/
package server
