// 版权所有 2024 StreamForm Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 conversation 提供按轮次（turn）管理的会话状态存储。

# 概述

会话历史只追加、不修改。每一轮请求/响应通过 BeginTurn 获取独占的
写租约（Turn），同一会话同时只允许一个进行中的轮次，并发提交返回
AGENT_BUSY。用户消息在任何网络调用之前同步写入，助手消息只在流正常
结束后提交。

# 核心类型

  - Conversation：单个会话的消息历史与当前 turn id
  - Turn：单轮写租约，AppendUser / AppendAssistant / End
  - State：只读模型，支持 Export / Import 序列化
  - Store：进程级会话注册表，未命中时从 Repository 恢复
  - Repository：持久化接口，MultiRepository 按层组合（缓存 → 数据库）

# 主要能力

  - 会话标题：取首条用户消息的前 100 个字符
  - 系统消息：通过 WithSystemMessage 预置，总是位于首条用户消息之前
  - 分层持久化：写入所有层，读取命中后回填更快的层
*/
package conversation
