package tokenizer

import "fmt"

// FitHistory returns the longest suffix of messages whose token count fits in
// budget. Leading system messages are always kept and count against budget.
// The last message is kept even when it alone exceeds budget.
func FitHistory(t Tokenizer, messages []Message, budget int) ([]Message, error) {
	if budget <= 0 || len(messages) == 0 {
		return messages, nil
	}

	var system []Message
	rest := messages
	for len(rest) > 0 && rest[0].Role == "system" {
		system = append(system, rest[0])
		rest = rest[1:]
	}

	used, err := t.CountMessages(system)
	if err != nil {
		return nil, fmt.Errorf("count system messages: %w", err)
	}

	start := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		n, err := t.CountTokens(rest[i].Content)
		if err != nil {
			return nil, fmt.Errorf("count message %d: %w", i, err)
		}
		n += messageOverhead
		if used+n > budget && start < len(rest) {
			break
		}
		used += n
		start = i
	}

	out := make([]Message, 0, len(system)+len(rest)-start)
	out = append(out, system...)
	return append(out, rest[start:]...), nil
}

// messageOverhead approximates role markers and separators per message.
const messageOverhead = 4
