package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptedCaller returns canned responses by call order: title, badge,
// insights. An empty string in responses produces "" (to exercise the
// per-field fallback path); invokeErr, if set, fails every Invoke call.
type scriptedCaller struct {
	responses []string
	call      int
	invokeErr error
}

func (s *scriptedCaller) Probe(ctx context.Context, model string) error { return nil }

func (s *scriptedCaller) Invoke(ctx context.Context, model, prompt string, maxTokens int) (string, int64, int64, error) {
	if s.invokeErr != nil {
		return "", 0, 0, s.invokeErr
	}
	if s.call >= len(s.responses) {
		return "", 0, 0, nil
	}
	r := s.responses[s.call]
	s.call++
	return r, 10, 5, nil
}

func TestEnricher_Enrich_Success(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		"✨ Deep Work Warrior",
		"🔥 Focus Streak",
		`{"productivity_score": 8, "key_insight": "Great focus.", "next_suggestion": "Keep going.", "mood_assessment": "Energized", "emotion_pattern": "upward"}`,
	}}
	e := NewEnricher(caller, discardLogger())

	out, err := e.Enrich(context.Background(), "nova-lite-us", Input{
		Intent: "write the quarterly report", Reflection: "made good progress", ActualDurationSeconds: 1800,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.GenTitle != "✨ Deep Work Warrior" {
		t.Errorf("GenTitle = %q", out.GenTitle)
	}
	if out.GenBadge != "🔥 Focus Streak" {
		t.Errorf("GenBadge = %q", out.GenBadge)
	}
	if out.Insights.ProductivityScore != 8 {
		t.Errorf("ProductivityScore = %d, want 8", out.Insights.ProductivityScore)
	}
	if out.InputTokens != 30 || out.OutputTokens != 15 {
		t.Errorf("token totals = (%d,%d), want (30,15)", out.InputTokens, out.OutputTokens)
	}
}

func TestEnricher_Enrich_EmptyTitleFallsBackWithoutFailingPulse(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		"",
		"🔥 Focus Streak",
		`{"productivity_score": 6, "key_insight": "x", "next_suggestion": "y", "mood_assessment": "z", "emotion_pattern": "w"}`,
	}}
	e := NewEnricher(caller, discardLogger())

	out, err := e.Enrich(context.Background(), "nova-lite-us", Input{Intent: "x", Reflection: "y"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.GenTitle != "✨ Focus session" {
		t.Errorf("GenTitle fallback = %q, want %q", out.GenTitle, "✨ Focus session")
	}
	if out.GenBadge != "🔥 Focus Streak" {
		t.Errorf("GenBadge should not be affected by title fallback, got %q", out.GenBadge)
	}
}

func TestEnricher_Enrich_UnparseableInsightsFallsBackWithoutFailingPulse(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		"✨ Deep Work Warrior",
		"🔥 Focus Streak",
		"not valid json at all",
	}}
	e := NewEnricher(caller, discardLogger())

	out, err := e.Enrich(context.Background(), "nova-lite-us", Input{
		Intent: "x", Reflection: "y", ActualDurationSeconds: 120 * 60,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Insights.ProductivityScore != 8 {
		t.Errorf("expected long-duration fallback score 8, got %d", out.Insights.ProductivityScore)
	}
	if !strings.Contains(out.Insights.KeyInsight, "stayed") {
		t.Errorf("expected deterministic fallback insight text, got %q", out.Insights.KeyInsight)
	}
}

func TestEnricher_Enrich_TransportFailureAbortsWholeEnrichment(t *testing.T) {
	caller := &scriptedCaller{invokeErr: errors.New("connection reset")}
	e := NewEnricher(caller, discardLogger())

	_, err := e.Enrich(context.Background(), "nova-lite-us", Input{Intent: "x", Reflection: "y"})
	if err == nil {
		t.Fatal("expected a transport failure to propagate and abort the whole enrichment")
	}
}

func TestFallbackInsights_ScalesWithDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration int64
		want     int
	}{
		{"short", 10 * 60, 5},
		{"medium", 45 * 60, 6},
		{"long", 120 * 60, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fallbackInsights(Input{ActualDurationSeconds: tt.duration})
			if got.ProductivityScore != tt.want {
				t.Errorf("ProductivityScore = %d, want %d", got.ProductivityScore, tt.want)
			}
		})
	}
}
