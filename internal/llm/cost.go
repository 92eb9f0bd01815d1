package llm

import "math"

// rate is the per-1000-token price in cents for a model family.
type rate struct {
	InputPer1K  float64
	OutputPer1K float64
}

// modelRates is a coarse price table; unknown models fall back to the
// nova-lite rate, the cheapest fallback target (spec.md §4.7).
var modelRates = map[string]rate{
	"haiku-class":  {InputPer1K: 0.025, OutputPer1K: 0.125},
	"nova-lite-us":  {InputPer1K: 0.006, OutputPer1K: 0.024},
	"nova-lite-eu":  {InputPer1K: 0.006, OutputPer1K: 0.024},
	"nova-lite-apac": {InputPer1K: 0.006, OutputPer1K: 0.024},
}

func rateFor(model string) rate {
	if r, ok := modelRates[model]; ok {
		return r
	}
	return modelRates["nova-lite-us"]
}

// EstimateCostCents projects the total enrichment cost for one pulse
// across the probe call plus the three enrichment calls (title, badge,
// insights): the per-call token estimate is derived from input length
// and multiplied by 4 to cover all four model invocations.
func EstimateCostCents(worthinessScore float64, intent, reflection, model string) float64 {
	chars := len(intent) + len(reflection)
	inputTokens := math.Ceil(float64(chars) / 4)
	outputTokens := math.Min(50+2*inputTokens, 300)

	r := rateFor(model)
	perCall := (inputTokens/1000)*r.InputPer1K + (outputTokens/1000)*r.OutputPer1K
	return perCall * 4
}

// ActualCostCents computes the real cost from observed token counts
// across all calls made for one pulse (spec.md §4.7: "Actual cost is
// computed with observed token counts").
func ActualCostCents(inputTokens, outputTokens int64, model string) float64 {
	r := rateFor(model)
	return (float64(inputTokens)/1000)*r.InputPer1K + (float64(outputTokens)/1000)*r.OutputPer1K
}
