package llm

import "testing"

func TestEstimateCostCents_ScalesWithInputLength(t *testing.T) {
	short := EstimateCostCents(5, "short intent", "short reflection", "nova-lite-us")
	long := EstimateCostCents(5, "a much longer intent with many more words in it",
		"a much longer reflection with a lot more detail about what happened during the session", "nova-lite-us")

	if long <= short {
		t.Errorf("longer input should estimate a higher cost: short=%v long=%v", short, long)
	}
}

func TestEstimateCostCents_UnknownModelFallsBackToNovaLite(t *testing.T) {
	known := EstimateCostCents(5, "intent", "reflection", "nova-lite-us")
	unknown := EstimateCostCents(5, "intent", "reflection", "some-unreleased-model")
	if known != unknown {
		t.Errorf("unknown model should use nova-lite-us rate: known=%v unknown=%v", known, unknown)
	}
}

func TestEstimateCostCents_MultipliesByFour(t *testing.T) {
	// Reconstruct the per-call estimate directly and confirm the public
	// estimate is exactly 4x it, per spec.md §4.7's three-call-sequence rule.
	intent, reflection, model := "intent text", "reflection text", "nova-lite-us"
	chars := len(intent) + len(reflection)
	inputTokens := float64((chars + 3) / 4)
	outputTokens := 50 + 2*inputTokens
	if outputTokens > 300 {
		outputTokens = 300
	}
	r := rateFor(model)
	perCall := (inputTokens/1000)*r.InputPer1K + (outputTokens/1000)*r.OutputPer1K

	got := EstimateCostCents(5, intent, reflection, model)
	want := perCall * 4
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("EstimateCostCents = %v, want %v (4x per-call estimate)", got, want)
	}
}

func TestActualCostCents_NoMultiplier(t *testing.T) {
	// With realistic observed totals across three calls, actual cost should
	// be a plain linear function of tokens, not scaled by 4.
	got := ActualCostCents(1000, 1000, "nova-lite-us")
	want := 0.006 + 0.024
	if got != want {
		t.Errorf("ActualCostCents(1000,1000) = %v, want %v", got, want)
	}
}

func TestActualCostCents_UnknownModelFallsBack(t *testing.T) {
	known := ActualCostCents(500, 300, "nova-lite-eu")
	unknown := ActualCostCents(500, 300, "totally-unknown")
	if known != unknown {
		t.Errorf("unknown model should use nova-lite-us rate: known=%v unknown=%v", known, unknown)
	}
}

func TestRateFor_KnownModels(t *testing.T) {
	tests := []struct {
		model string
		want  rate
	}{
		{"haiku-class", rate{InputPer1K: 0.025, OutputPer1K: 0.125}},
		{"nova-lite-us", rate{InputPer1K: 0.006, OutputPer1K: 0.024}},
		{"nova-lite-eu", rate{InputPer1K: 0.006, OutputPer1K: 0.024}},
		{"nova-lite-apac", rate{InputPer1K: 0.006, OutputPer1K: 0.024}},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := rateFor(tt.model); got != tt.want {
				t.Errorf("rateFor(%q) = %+v, want %+v", tt.model, got, tt.want)
			}
		})
	}
}
