package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// FallbackChain returns the ordered list of models to try after the
// configured primary model (spec.md §4.7): a cheaper same-family model,
// then three cross-region Nova Lite variants.
func FallbackChain(primary string) []string {
	chain := []string{primary}
	for _, m := range []string{"haiku-class", "nova-lite-us", "nova-lite-eu", "nova-lite-apac"} {
		if m != primary {
			chain = append(chain, m)
		}
	}
	return chain
}

// ResolveModel probes models in FallbackChain(primary) in order and
// returns the first one that answers, grounded on the teacher's
// interface-based external-collaborator fallback idiom
// (pkg/integration/callout.go: try primary, fall through to backups).
func ResolveModel(ctx context.Context, caller ModelCaller, primary string, logger *slog.Logger) (string, error) {
	var lastErr error
	for _, model := range FallbackChain(primary) {
		if err := caller.Probe(ctx, model); err != nil {
			lastErr = err
			logger.Warn("model probe failed, trying next in fallback chain", "model", model, "error", err)
			continue
		}
		return model, nil
	}
	return "", fmt.Errorf("%w: all models in fallback chain exhausted: %v", errUnavailable, lastErr)
}
