// Package openaicompat streams chat completions from any endpoint that speaks
// the OpenAI Chat Completions wire format.
//
// Structured turns send response_format (json_schema or json_object); the
// provider itself only forwards text deltas, decoding is left to llm.JSONEvents.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openai",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.openai.com",
//	    DefaultModel: "gpt-4o-mini",
//	}, logger)
package openaicompat
