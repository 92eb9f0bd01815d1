package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pulsekeeper/pulsekeeper/internal/domainerr"
	"github.com/pulsekeeper/pulsekeeper/internal/pulse"
)

// Input carries everything a prompt template needs from a stopped pulse.
type Input struct {
	Intent                string
	IntentEmotion         string
	Reflection            string
	ReflectionEmotion     string
	ActualDurationSeconds int64
}

// Output is the result of the three-call enrichment sequence.
type Output struct {
	GenTitle     string
	GenBadge     string
	Insights     pulse.AIInsights
	InputTokens  int64
	OutputTokens int64
}

// Enricher drives the three sequential Bedrock calls that produce a
// title, a badge, and structured insights for one stopped pulse
// (spec.md §4.7). Each call has its own prompt, token budget, and
// response cleaner. A transport/model failure on any call aborts the
// whole enrichment so the caller can demote to the rule-based path
// (spec.md §4.6); a cleaning/parsing failure on one call falls back to
// a deterministic value for that field only, without failing the pulse.
type Enricher struct {
	caller ModelCaller
	logger *slog.Logger
}

func NewEnricher(caller ModelCaller, logger *slog.Logger) *Enricher {
	return &Enricher{caller: caller, logger: logger}
}

// Enrich runs the title, badge, and insights calls against model in
// sequence, accumulating token usage across all three.
func (e *Enricher) Enrich(ctx context.Context, model string, in Input) (Output, error) {
	var out Output

	title, inTok, outTok, err := e.callTitle(ctx, model, in)
	if err != nil {
		return Output{}, fmt.Errorf("title call: %w", err)
	}
	out.GenTitle = title
	out.InputTokens += inTok
	out.OutputTokens += outTok

	badge, inTok, outTok, err := e.callBadge(ctx, model, in)
	if err != nil {
		return Output{}, fmt.Errorf("badge call: %w", err)
	}
	out.GenBadge = badge
	out.InputTokens += inTok
	out.OutputTokens += outTok

	insights, inTok, outTok, err := e.callInsights(ctx, model, in)
	if err != nil {
		return Output{}, fmt.Errorf("insights call: %w", err)
	}
	out.Insights = insights
	out.InputTokens += inTok
	out.OutputTokens += outTok

	return out, nil
}

func (e *Enricher) callTitle(ctx context.Context, model string, in Input) (string, int64, int64, error) {
	prompt := fmt.Sprintf(
		"Write a short, vivid title (max 12 words, start with one emoji) for this focus session.\n"+
			"Intent: %q\nReflection: %q\nDuration: %d seconds\n"+
			"Reply with ONLY the title text, nothing else.",
		in.Intent, in.Reflection, in.ActualDurationSeconds,
	)
	raw, inTok, outTok, err := e.caller.Invoke(ctx, model, prompt, 40)
	if err != nil {
		return "", 0, 0, err
	}
	title := cleanPlainText(raw)
	if title == "" {
		e.logger.Warn("title call returned unusable response, using fallback", "pulse_intent", in.Intent)
		title = "✨ Focus session"
	}
	return title, inTok, outTok, nil
}

func (e *Enricher) callBadge(ctx context.Context, model string, in Input) (string, int64, int64, error) {
	prompt := fmt.Sprintf(
		"Award a short badge (one emoji plus 2-4 words) for this focus session, reflecting its "+
			"intensity and emotional arc.\nIntent: %q\nIntent emotion: %q\nReflection emotion: %q\n"+
			"Duration: %d seconds\nReply with ONLY the badge text, nothing else.",
		in.Intent, in.IntentEmotion, in.ReflectionEmotion, in.ActualDurationSeconds,
	)
	raw, inTok, outTok, err := e.caller.Invoke(ctx, model, prompt, 24)
	if err != nil {
		return "", 0, 0, err
	}
	badge := cleanPlainText(raw)
	if badge == "" {
		e.logger.Warn("badge call returned unusable response, using fallback", "pulse_intent", in.Intent)
		badge = "✨ Progress Maker"
	}
	return badge, inTok, outTok, nil
}

type insightsWire struct {
	ProductivityScore int    `json:"productivity_score"`
	KeyInsight        string `json:"key_insight"`
	NextSuggestion    string `json:"next_suggestion"`
	MoodAssessment    string `json:"mood_assessment"`
	EmotionPattern    string `json:"emotion_pattern"`
}

func (e *Enricher) callInsights(ctx context.Context, model string, in Input) (pulse.AIInsights, int64, int64, error) {
	prompt := fmt.Sprintf(
		"Analyze this focus session and reply with ONLY a JSON object matching this shape, no prose:\n"+
			`{"productivity_score": <1-10 int>, "key_insight": "<one sentence>", `+
			`"next_suggestion": "<one sentence>", "mood_assessment": "<one sentence>", `+
			`"emotion_pattern": "<short phrase>"}`+"\n"+
			"Intent: %q\nIntent emotion: %q\nReflection: %q\nReflection emotion: %q\nDuration: %d seconds",
		in.Intent, in.IntentEmotion, in.Reflection, in.ReflectionEmotion, in.ActualDurationSeconds,
	)
	raw, inTok, outTok, err := e.caller.Invoke(ctx, model, prompt, 220)
	if err != nil {
		return pulse.AIInsights{}, 0, 0, err
	}

	cleaned := cleanJSON(raw)
	var wire insightsWire
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		e.logger.Warn("insights call failed to parse after cleaning, using fallback for this field",
			"error", fmt.Errorf("%w: %v", domainerr.ErrModelParseError, err))
		return fallbackInsights(in), inTok, outTok, nil
	}

	return pulse.AIInsights{
		ProductivityScore: wire.ProductivityScore,
		KeyInsight:        wire.KeyInsight,
		NextSuggestion:    wire.NextSuggestion,
		MoodAssessment:    wire.MoodAssessment,
		EmotionPattern:    wire.EmotionPattern,
	}, inTok, outTok, nil
}

// fallbackInsights is the deterministic per-field fallback used when the
// insights call's response cannot be parsed after cleaning (spec.md §4.7:
// "the enricher returns its deterministic fallback for that field only").
func fallbackInsights(in Input) pulse.AIInsights {
	score := 5
	switch {
	case in.ActualDurationSeconds >= 90*60:
		score = 8
	case in.ActualDurationSeconds >= 30*60:
		score = 6
	}
	return pulse.AIInsights{
		ProductivityScore: score,
		KeyInsight:        "You stayed with it.",
		NextSuggestion:    "Keep the momentum going on your next session.",
		MoodAssessment:    "Steady",
		EmotionPattern:    "stable",
	}
}
