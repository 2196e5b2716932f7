// =============================================================================
// 📦 测试数据工厂 - 模型流测试数据
// =============================================================================
// 提供预定义的流式片段与部分值序列，用于测试
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/streamform/llm"
	"github.com/BaSui01/streamform/types"
)

// =============================================================================
// 🎯 分步回答
// =============================================================================

// StepsPartials 返回分步回答的三个逐步增长的部分值：
// 第一个步骤只有标题，随后补齐内容，最后出现第二个步骤。
func StepsPartials() []any {
	return []any{
		map[string]any{"steps": []any{
			map[string]any{"headline": "1. Install"},
		}},
		map[string]any{"steps": []any{
			map[string]any{"headline": "1. Install", "content": "Run `npm i`."},
		}},
		map[string]any{"steps": []any{
			map[string]any{"headline": "1. Install", "content": "Run `npm i`."},
			map[string]any{"headline": "2. Configure", "content": "Edit the config.",
				"sources": []any{map[string]any{"title": "Docs", "url": "https://example.com/docs"}}},
		}},
	}
}

// StepsMarkdown 是 StepsPartials 最终值的渲染结果
const StepsMarkdown = "### 1. Install\n\nRun `npm i`.\n\n" +
	"### 2. Configure\n\nEdit the config.\n\nSources:\n- [Docs](https://example.com/docs)"

// StepsSources 是 StepsPartials 最终值的引用来源
func StepsSources() []types.Source {
	return []types.Source{{Title: "Docs", URL: "https://example.com/docs"}}
}

// StepsJSONChunks 把最终分步回答切成任意边界的原始 JSON 片段
func StepsJSONChunks() []string {
	return []string{
		`{"steps":[{"head`,
		`line":"1. Install","con`,
		"tent\":\"Run `npm i`.\"}",
		`,{"headline":"2. Configure","content":"Edit the config.",`,
		`"sources":[{"title":"Docs","url":"https://example.com/docs"}]}]}`,
	}
}

// =============================================================================
// 💬 问答
// =============================================================================

// QAPartials 返回问答回答的部分值序列
func QAPartials() []any {
	return []any{
		map[string]any{"message": map[string]any{"content": "Hel"}},
		map[string]any{"message": map[string]any{"content": "Hello", "role": "assistant"}},
		map[string]any{
			"message": map[string]any{"content": "Hello world", "role": "assistant"},
			"recordsCited": map[string]any{"citations": []any{
				map[string]any{"number": float64(1), "record": map[string]any{
					"type": "DOCUMENTATION", "title": "Guide", "url": "https://example.com/guide",
				}},
			}},
		},
	}
}

// =============================================================================
// 📝 自由文本
// =============================================================================

// TextChunks 返回自由文本片段
func TextChunks() []string {
	return []string{"Hello", ", ", "world", "!"}
}

// StreamChunks 把文本片段包装为 Provider 流式块
func StreamChunks(fragments ...string) []llm.StreamChunk {
	out := make([]llm.StreamChunk, 0, len(fragments))
	for i, f := range fragments {
		chunk := llm.StreamChunk{
			ID:       "chunk-001",
			Provider: "mock",
			Model:    "gpt-4o-mini",
			Delta:    llm.Message{Role: types.RoleAssistant, Content: f},
		}
		if i == len(fragments)-1 {
			chunk.FinishReason = "stop"
		}
		out = append(out, chunk)
	}
	return out
}

// =============================================================================
// 🗨️ 对话历史
// =============================================================================

// History 返回 n 轮用户/助手交替消息
func History(n int) []types.Message {
	out := make([]types.Message, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out,
			types.NewUserMessage("question "+string(rune('a'+i%26))),
			types.NewAssistantMessage("answer "+string(rune('a'+i%26))),
		)
	}
	return out
}
