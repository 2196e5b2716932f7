// 版权所有 2024 Streamform Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供模型流的接入层：Provider 抽象、流式分片，以及把分片转换为
对话控制器消费的 [ModelStream]。

# 概述

上层只关心一条按到达顺序投递的事件通道：自由文本模式下每个事件携带一段
文本增量，结构化模式下每个事件携带截至目前解码出的完整部分 JSON 值。
通道关闭即流结束，携带 Err 的事件即流失败。

# 核心接口

  - [Provider]：流式聊天接口，提供 Stream / HealthCheck / Name
  - [Opener]：为一次请求打开 [ModelStream]，[ProviderOpener] 是基于 Provider 的默认实现
  - [OpenerFunc]：函数适配器，便于测试中脚本化模型输出

# 核心类型

  - [ChatRequest]：聊天请求，ResponseFormat 非空即结构化请求
  - [StreamChunk]：Provider 输出的增量分片
  - [StreamEvent] / [ModelStream]：控制器侧的事件与事件流
  - [Error]：Provider 错误，带 HTTP 状态与可重试标记

# 部分 JSON

[ParsePartialJSON] 对任意字节处截断的 JSON 前缀给出当前可确定的值：
未闭合的字符串、对象与数组被补齐，尚无法判定的尾部（缺值的键、"tru"、"1."）
被省略。[JSONEvents] 在每个增量后累积文本并重新解码。

# 相关子包

- llm/providers：OpenAI 兼容实现、错误映射与连接重试。
- llm/tokenizer：Token 计数与历史裁剪。
*/
package llm
