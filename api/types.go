package api

import (
	"time"

	"github.com/BaSui01/streamform/types"
)

// =============================================================================
// 聊天消息类型
// =============================================================================

// SendMessageRequest 表示向聊天追加一条用户消息的请求。
// @Description 发送消息请求结构
type SendMessageRequest struct {
	// 用户输入
	Message string `json:"message" example:"How do I rotate an API key?" binding:"required"`
	// 响应模式（text、qa、steps），为空时使用查询参数或服务默认值
	Mode string `json:"mode,omitempty" example:"steps"`
}

// TurnCommitted 是轮次提交后发送的最后一个 SSE 事件。
// @Description 轮次提交结果
type TurnCommitted struct {
	// 轮次 ID
	TurnID string `json:"turn_id" example:"0b6c8c9e-7c1b-4a61-9d1e-2f0b1c9d6a10"`
	// 助手消息 ID
	MessageID string `json:"message_id" example:"5f3c2a1e-2d4b-4c8e-9a7f-1b2c3d4e5f60"`
	// 发布的快照数
	Snapshots int `json:"snapshots" example:"12"`
}

// ChatState 是聊天的读模型。
// @Description 聊天状态结构
type ChatState struct {
	// 聊天 ID
	ChatID string `json:"chat_id" example:"chat-1"`
	// 标题（首条用户消息）
	Title string `json:"title,omitempty" example:"How do I rotate an API key?"`
	// 最近一次轮次 ID
	TurnID string `json:"turn_id"`
	// 有序消息列表
	Messages []Message `json:"messages"`
	// 创建时间
	CreatedAt time.Time `json:"created_at"`
	// 最后更新时间
	UpdatedAt time.Time `json:"updated_at"`
}

// Message 表示一条已提交的消息。
// @Description 对话消息结构
type Message = types.Message

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse表示错误响应。
// @Description 错误响应结构
type ErrorResponse struct {
	// 错误详情
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 表示错误详细信息。
// @Description 错误详细结构
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"INVALID_REQUEST"`
	// 人类可读的错误消息
	Message string `json:"message" example:"message must not be empty"`
	// HTTP 状态码
	HTTPStatus int `json:"http_status,omitempty" example:"400"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
}
