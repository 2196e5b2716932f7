// 版权所有 2024 Streamform Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，并在其上实现对话快照的热缓存层。

# 概述

Manager 封装 go-redis 客户端，负责连接生命周期管理，包括初始化、
健康检查与优雅关闭。ConversationRepository 使用 Manager 的 JSON
读写把 conversation.State 缓存到 Redis，作为 MultiRepository
中位于数据库之前的一层。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/Exists/Expire
    以及 GetJSON/SetJSON，Key 为键加上配置前缀。
  - Config：地址、密码、键前缀、默认 TTL、连接池与健康检查间隔。
  - Recorder：命中/未命中指标接收者，由 metrics.Collector 实现。
  - ConversationRepository：实现 conversation.Repository，
    未命中与过期统一返回 NOT_FOUND。

# 错误语义

ErrCacheMiss 表示键不存在，IsCacheMiss 基于 errors.Is 判断；
关闭后的所有操作返回 ErrClosed。
*/
package cache
