package tokenizer

import (
	"strings"
)

// Tokenizer counts tokens for history budgeting.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Message 是一个轻量级消息结构, 由 tokenizer 包使用
// 以避免与 llm 包的循环依赖。
type Message struct {
	Role    string
	Content string
}

// ForModel returns a tiktoken tokenizer for OpenAI-family models that falls
// back to the estimator when the encoding cannot be loaded.
func ForModel(model string) Tokenizer {
	est := NewEstimatorTokenizer(model, 0)
	if !isOpenAIFamily(model) {
		return est
	}
	tk := NewTiktokenTokenizer(model)
	return &fallbackTokenizer{primary: tk, fallback: est.withMaxTokens(tk.MaxTokens())}
}

func isOpenAIFamily(model string) bool {
	for _, prefix := range []string{"gpt-", "o1", "o3", "o4", "text-embedding-"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// fallbackTokenizer uses primary and switches to fallback on error.
type fallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.fallback.CountTokens(text)
}

func (f *fallbackTokenizer) CountMessages(messages []Message) (int, error) {
	if n, err := f.primary.CountMessages(messages); err == nil {
		return n, nil
	}
	return f.fallback.CountMessages(messages)
}

func (f *fallbackTokenizer) MaxTokens() int { return f.primary.MaxTokens() }

func (f *fallbackTokenizer) Name() string { return f.primary.Name() }
