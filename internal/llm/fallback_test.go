package llm

import (
	"context"
	"errors"
	"log/slog"
	"io"
	"testing"
)

type fakeCaller struct {
	failProbe map[string]bool
	probed    []string
}

func (f *fakeCaller) Probe(ctx context.Context, model string) error {
	f.probed = append(f.probed, model)
	if f.failProbe[model] {
		return errUnavailable
	}
	return nil
}

func (f *fakeCaller) Invoke(ctx context.Context, model, prompt string, maxTokens int) (string, int64, int64, error) {
	return "", 0, 0, errors.New("not used in these tests")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallbackChain_PrimaryFirstNoDuplicates(t *testing.T) {
	chain := FallbackChain("nova-lite-us")
	want := []string{"nova-lite-us", "haiku-class", "nova-lite-eu", "nova-lite-apac"}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] = %q, want %q", i, chain[i], want[i])
		}
	}
}

func TestFallbackChain_UnrelatedPrimaryKeepsAllFour(t *testing.T) {
	chain := FallbackChain("claude-opus-custom")
	want := []string{"claude-opus-custom", "haiku-class", "nova-lite-us", "nova-lite-eu", "nova-lite-apac"}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
}

func TestResolveModel_PrimarySucceeds(t *testing.T) {
	caller := &fakeCaller{}
	model, err := ResolveModel(context.Background(), caller, "nova-lite-us", discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "nova-lite-us" {
		t.Errorf("model = %q, want %q", model, "nova-lite-us")
	}
	if len(caller.probed) != 1 {
		t.Errorf("expected exactly one probe, got %v", caller.probed)
	}
}

func TestResolveModel_FallsThroughOnPrimaryFailure(t *testing.T) {
	caller := &fakeCaller{failProbe: map[string]bool{"nova-lite-us": true}}
	model, err := ResolveModel(context.Background(), caller, "nova-lite-us", discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "haiku-class" {
		t.Errorf("model = %q, want %q", model, "haiku-class")
	}
}

func TestResolveModel_AllFail(t *testing.T) {
	caller := &fakeCaller{failProbe: map[string]bool{
		"nova-lite-us": true, "haiku-class": true, "nova-lite-eu": true, "nova-lite-apac": true,
	}}
	_, err := ResolveModel(context.Background(), caller, "nova-lite-us", discardLogger())
	if err == nil {
		t.Fatal("expected error when all models in the fallback chain fail")
	}
	if !errors.Is(err, errUnavailable) {
		t.Errorf("expected error to wrap errUnavailable, got %v", err)
	}
}
