// 版权所有 2024 Streamform Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理与对话持久化。

# 概述

Open 按驱动名（postgres / mysql / sqlite）打开 GORM 连接。
PoolManager 封装连接池配置，统一管理连接生命周期、空闲回收与
最大连接数限制，后台健康检查定时探活并上报连接数指标。
ChatRepository 在其之上实现 conversation.Repository，
把对话快照保存为 chats 与 chat_messages 两张表。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：连接池配置，Validate 校验连接数约束。
  - Observer：数据库指标观察者，由 metrics.Collector 实现。
  - ChatRepository：对话仓储，Save 只追加尚未存储的消息，
    Load 按 seq 顺序还原历史。
  - ChatRecord / MessageRecord：持久化模型。

# 主要能力

  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败、SQLite 锁冲突做指数退避重试。
  - 历史只追加：快照消息数少于已存储数量时返回 INVALID_TRANSITION。
  - 表结构：Migrate 通过 AutoMigrate 创建或更新表。
*/
package database
