// Package llm implements the LLM Enricher (spec.md C7, §4.7): prompt
// construction, model invocation with a fallback chain, response parsing,
// and token/cost calculation. Grounded on a hand-rolled AWS Signature V4
// Bedrock client pattern found in the broader example pack and on the
// teacher's interface-based fallback-provider idiom (pkg/integration/callout.go).
package llm

import "context"

// ModelCaller invokes a single model with a prompt and returns its raw text
// response plus observed token counts. One implementation signs and calls
// Bedrock; tests substitute NoopCaller or a scripted fake.
type ModelCaller interface {
	// Probe sends a 1-token request to check the model is reachable.
	Probe(ctx context.Context, model string) error
	// Invoke sends prompt to model and returns the raw text response and
	// observed token counts.
	Invoke(ctx context.Context, model, prompt string, maxTokens int) (text string, inputTokens, outputTokens int64, err error)
}

// NoopCaller always fails, standing in for "no LLM backend configured"
// (grounded on the teacher's NoopCaller for Caller).
type NoopCaller struct{}

func (NoopCaller) Probe(context.Context, string) error { return errUnavailable }
func (NoopCaller) Invoke(context.Context, string, string, int) (string, int64, int64, error) {
	return "", 0, 0, errUnavailable
}
