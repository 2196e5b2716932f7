package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/streamform/types"
)

func TestQAContent(t *testing.T) {
	assert.Equal(t, "", QAContent(nil))
	assert.Equal(t, "", QAContent(decode(t, `{"message":{}}`)))
	assert.Equal(t, "Hello", QAContent(decode(t, `{"message":{"content":"Hello"}}`)))
}

func TestStepsMarkdown(t *testing.T) {
	value := decode(t, `{"steps":[
		{"headline":"1. Install","content":"Run it.","sources":[{"title":"Docs","url":"https://x.dev"},{"url":"https://y.dev"}]},
		{"headline":"2. Use"}
	]}`)

	want := "### 1. Install\n\nRun it.\n\nSources:\n- [Docs](https://x.dev)\n- [Untitled source](https://y.dev)\n\n### 2. Use\n\n"
	assert.Equal(t, want, StepsMarkdown(value))
	assert.Equal(t, "", StepsMarkdown(decode(t, `{}`)))
}

func TestAttribution(t *testing.T) {
	steps := decode(t, `{"steps":[{"sources":[{"title":"A"}]},{"sources":[{"url":"u"}]}]}`)
	assert.Equal(t, []types.Source{{Title: "A"}, {URL: "u"}}, Attribution(steps))

	qa := decode(t, `{"message":{"content":"x"},"recordsCited":{"citations":[
		{"number":1,"record":{"type":"SITE","title":"Site","url":"https://s"}},
		{"number":2,"record":{"type":"DOCUMENTATION"},"hitUrl":"https://hit"},
		{"number":3,"record":{"type":"DOCUMENTATION"}}
	]}}`)
	assert.Equal(t, []types.Source{{Title: "Site", URL: "https://s"}, {URL: "https://hit"}}, Attribution(qa))

	assert.Nil(t, Attribution(decode(t, `{"message":{"content":"x"}}`)))
}
