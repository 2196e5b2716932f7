// 版权所有 2024 Streamform Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 streaming 驱动一轮对话：记录用户消息、打开模型流、把每个部分值
调和为可渲染的快照并推送给 Sink，最后把最终值提交为助手消息。

# 概述

Controller 持有一个 llm.Opener 与一个 Mode。Submit 先取得会话的单写者
租约并追加用户消息，然后以 errgroup 运行一个生产者（读取模型流）和
唯一的消费者（调和并发布快照）。流正常结束时提交助手消息；
流失败、取消或结构不兼容时不追加助手消息，Sink 以 nil 结束。

# 响应模式

  - FreeTextMode：自由文本，快照为截至当前的完整文本
  - QAMode：问答结构，快照为 message.content
  - StepsMode：分步结构，快照为步骤列表，提交内容渲染为 Markdown
  - SchemaMode：任意 structured.Descriptor

# 状态机

每轮经历 idle → awaiting_model → streaming → committing → idle，
非法迁移返回 INVALID_TRANSITION。迁移通过 Metrics 上报。

# Sink

  - ChannelSink：基于 channel，Done 后关闭
  - RecordingSink：在内存中记录全部快照，便于测试
  - WebSocketConn.Sink：把快照写成 WebSocket 帧

Done 之后的任何调用都返回 ErrSinkClosed。
*/
package streaming
