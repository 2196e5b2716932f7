package structured

import (
	"fmt"
	"strings"

	"github.com/BaSui01/streamform/types"
)

// UntitledSource is shown for sources that carry no title.
const UntitledSource = "Untitled source"

// QAContent projects a reconciled InkeepMessageSchema value onto message.content.
// It returns "" while the content has not arrived.
func QAContent(value any) string {
	msg, _ := lookup(value, "message").(map[string]any)
	content, _ := msg["content"].(string)
	return content
}

// Steps projects a reconciled StepByStepSchema value onto its steps list.
func Steps(value any) []any {
	steps, _ := lookup(value, "steps").([]any)
	return steps
}

// StepsMarkdown renders a reconciled StepByStepSchema value as Markdown.
func StepsMarkdown(value any) string {
	var b strings.Builder
	for i, item := range Steps(value) {
		step, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		headline, _ := step["headline"].(string)
		content, _ := step["content"].(string)
		fmt.Fprintf(&b, "### %s\n\n%s", headline, content)

		sources := sourcesOf(step["sources"])
		if len(sources) > 0 {
			b.WriteString("\n\nSources:")
			for _, src := range sources {
				title := src.Title
				if title == "" {
					title = UntitledSource
				}
				if src.URL != "" {
					fmt.Fprintf(&b, "\n- [%s](%s)", title, src.URL)
				} else {
					fmt.Fprintf(&b, "\n- %s", title)
				}
			}
		}
	}
	return b.String()
}

// Attribution collects the sources cited by a reconciled value, in order.
// It understands both step sources and QA record citations.
func Attribution(value any) []types.Source {
	var out []types.Source
	for _, item := range Steps(value) {
		if step, ok := item.(map[string]any); ok {
			out = append(out, sourcesOf(step["sources"])...)
		}
	}

	cited, _ := lookup(value, "recordsCited").(map[string]any)
	citations, _ := cited["citations"].([]any)
	for _, c := range citations {
		citation, ok := c.(map[string]any)
		if !ok {
			continue
		}
		record, _ := citation["record"].(map[string]any)
		src := types.Source{}
		src.Title, _ = record["title"].(string)
		src.URL, _ = record["url"].(string)
		if src.URL == "" {
			src.URL, _ = citation["hitUrl"].(string)
		}
		if src.Title != "" || src.URL != "" {
			out = append(out, src)
		}
	}
	return out
}

func sourcesOf(v any) []types.Source {
	items, _ := v.([]any)
	out := make([]types.Source, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var src types.Source
		src.Title, _ = m["title"].(string)
		src.URL, _ = m["url"].(string)
		out = append(out, src)
	}
	return out
}

func lookup(value any, key string) any {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}
