package structured

// RecordTypes lists the known record kinds of a cited source.
var RecordTypes = []any{
	"DOCUMENTATION",
	"SITE",
	"DISCOURSE_POST",
	"GITHUB_ISSUE",
	"GITHUB_DISCUSSION",
	"STACKOVERFLOW_QUESTION",
	"DISCORD_FORUM_POST",
	"DISCORD_MESSAGE",
	"CUSTOM_QUESTION_ANSWER",
}

// SourceSchema describes one information source of a step.
func SourceSchema() *Object {
	return NewObject().
		OptionalField("title", NewString()).
		OptionalField("url", NewString()).
		Describe("A single information source used to generate this step, if any.")
}

// StepSchema describes a single step of a step-by-step answer.
func StepSchema() *Object {
	return NewObject().
		Field("headline", NewString().Describe(`The main point or title of the step. E.g. "Install package". Number your steps, e.g. "1. Get Started"`)).
		Field("content", NewString().Describe("Detailed instructions or information for the step. In Markdown.")).
		OptionalField("sources", NewArray(SourceSchema()).Describe("The sources used to generate this step, if any. Please cite the information source you used to generate answers."))
}

// StepByStepSchema describes an answer broken down into steps.
func StepByStepSchema() *Object {
	return NewObject().
		Field("steps", NewArray(StepSchema()).Describe("A list of steps to follow")).
		Describe("Schema for breaking down instructions step by step. Return different steps for each sub-step. Try to be as granular as possible and provide sources for your steps.")
}

// InkeepMessageSchema describes a question-answering reply with cited records.
func InkeepMessageSchema() *Object {
	record := NewObject().
		Field("type", NewOpenLiteral(KindString, RecordTypes...)).
		OptionalField("url", NewString()).
		OptionalField("title", NewString()).
		OptionalField("description", NewString()).
		OptionalField("breadcrumbs", NewArray(NewString()))

	citation := NewObject().
		Field("number", NewInteger()).
		Field("record", record).
		OptionalField("hitUrl", NewString())

	message := NewObject().
		Field("content", NewString()).
		Field("role", NewLiteral(KindString, "assistant"))

	return NewObject().
		Field("message", message).
		OptionalField("recordsCited", NewObject().Field("citations", NewArray(citation)))
}
