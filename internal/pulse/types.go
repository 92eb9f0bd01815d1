// Package pulse implements the typed repository (spec.md C3) over the five
// pulse-lifecycle tables: started_pulses, stopped_pulses, ingested_pulses
// (archived), ai_usage_tracking (usage days + events), and users.
package pulse

import "time"

// Cents is a fixed-point monetary value at 10^-4 cent precision (spec.md
// §9 "floating-point money" redesign note): the stored integer is the cost
// in cents multiplied by 10000. Wire format is a decimal/float in cents.
type Cents int64

// CentsFromFloat converts a wire-format float (cents) to the internal
// fixed-point representation.
func CentsFromFloat(v float64) Cents {
	return Cents(v * 10000)
}

// Float converts back to a wire-format float in cents.
func (c Cents) Float() float64 {
	return float64(c) / 10000
}

// StartedPulse is the single live session for a user (spec.md §3).
type StartedPulse struct {
	UserID          string     `json:"user_id"`
	PulseID         string     `json:"pulse_id"`
	Intent          string     `json:"intent"`
	StartTime       time.Time  `json:"start_time"`
	DurationSeconds int64      `json:"duration_seconds"`
	IntentEmotion   string     `json:"intent_emotion,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	IsPublic        bool       `json:"is_public"`
}

// StoppedPulse is the intermediate record awaiting enrichment.
type StoppedPulse struct {
	PulseID                string    `json:"pulse_id"`
	UserID                 string    `json:"user_id"`
	Intent                 string    `json:"intent"`
	StartTime              time.Time `json:"start_time"`
	DurationSeconds        int64     `json:"duration_seconds"`
	IntentEmotion          string    `json:"intent_emotion,omitempty"`
	Tags                   []string  `json:"tags,omitempty"`
	IsPublic               bool      `json:"is_public"`
	Reflection             string    `json:"reflection"`
	ReflectionEmotion      string    `json:"reflection_emotion,omitempty"`
	StoppedAt              time.Time `json:"stopped_at"`
	ActualDurationSeconds  int64     `json:"actual_duration_seconds"`
}

// FarFuture anchors the inverted-timestamp scheme (spec.md §3): a fixed
// instant far enough in the future that far_future - stopped_at is always
// positive, giving an ascending-sort index that reads most-recent-first.
var FarFuture = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// InvertedTimestamp returns FarFuture - stoppedAt in seconds.
func InvertedTimestamp(stoppedAt time.Time) int64 {
	return int64(FarFuture.Sub(stoppedAt).Seconds())
}

// SelectionInfo records the admission-controller decision trace (spec.md
// §4.5 and §7's ErrBudgetExceeded, ErrModelUnavailable handling).
type SelectionInfo struct {
	DecisionReason string             `json:"decision_reason"` // exceptional, low_roll, low_worthiness, budget, ai_disabled, model_error
	Score          float64            `json:"score"`
	EstCostCents   float64            `json:"est_cost_cents"`
	CouldBeEnhanced bool              `json:"could_be_enhanced"`
	Probability    *float64           `json:"probability,omitempty"`
	Draw           *float64           `json:"draw,omitempty"`
	ModelUsed      string             `json:"model_used,omitempty"`
	BudgetStatus   *BudgetStatus      `json:"budget_status,omitempty"`
}

// BudgetStatus snapshots the usage-day counters consulted for a decision.
type BudgetStatus struct {
	DailyUsed    float64 `json:"daily_used"`
	DailyCap     float64 `json:"daily_cap"`
	MonthlyUsed  float64 `json:"monthly_used"`
	MonthlyCap   float64 `json:"monthly_cap"`
}

// AIInsights is the structured output of the third LLM call (spec.md §4.7).
type AIInsights struct {
	ProductivityScore int    `json:"productivity_score"`
	KeyInsight        string `json:"key_insight"`
	NextSuggestion    string `json:"next_suggestion"`
	MoodAssessment    string `json:"mood_assessment"`
	EmotionPattern    string `json:"emotion_pattern"`
}

// TriggeredReward is one reward-trigger firing (spec.md §4.5).
type TriggeredReward struct {
	Trigger     string `json:"trigger"`
	Credits     int64  `json:"credits"`
	Achievement string `json:"achievement,omitempty"`
}

// ArchivedPulse is the terminal record (spec.md §3).
type ArchivedPulse struct {
	PulseID               string            `json:"pulse_id"`
	UserID                string            `json:"user_id"`
	Intent                string            `json:"intent"`
	StartTime             time.Time         `json:"start_time"`
	DurationSeconds       int64             `json:"duration_seconds"`
	IntentEmotion         string            `json:"intent_emotion,omitempty"`
	Tags                  []string          `json:"tags,omitempty"`
	IsPublic              bool              `json:"is_public"`
	Reflection            string            `json:"reflection"`
	ReflectionEmotion     string            `json:"reflection_emotion,omitempty"`
	StoppedAt             time.Time         `json:"stopped_at"`
	ActualDurationSeconds int64             `json:"actual_duration_seconds"`
	ArchivedAt            time.Time         `json:"archived_at"`
	InvertedTimestamp     int64             `json:"-"`
	GenTitle              string            `json:"gen_title"`
	GenBadge              string            `json:"gen_badge"`
	AIEnhanced            bool              `json:"ai_enhanced"`
	AICostCents           float64           `json:"ai_cost_cents"`
	AIInsights            *AIInsights       `json:"ai_insights,omitempty"`
	AISelectionInfo       SelectionInfo     `json:"ai_selection_info"`
	TriggeredRewards      []TriggeredReward `json:"triggered_rewards,omitempty"`
}

// Tier is the user's subscription plan, determining daily base and monthly
// cap (spec.md §4.5).
type Tier string

const (
	TierFree      Tier = "free"
	TierPremium   Tier = "premium"
	TierUnlimited Tier = "unlimited"
)

// UsageDay is the per-user daily aggregate (spec.md §3), mutated only via
// atomic updates by the budget controller (C6).
type UsageDay struct {
	UserID               string   `json:"user_id"`
	Date                 string   `json:"date"` // YYYY-MM-DD
	Month                string   `json:"month"` // YYYY-MM
	DailyCostCents       Cents    `json:"daily_cost_cents"`
	DailyAICredits       Cents    `json:"daily_ai_credits"`
	DailyPulsesEnhanced  int64    `json:"daily_pulses_enhanced"`
	MonthlyCostCents     Cents    `json:"monthly_cost_cents"`
	MonthlyAICredits     Cents    `json:"monthly_ai_credits"`
	UserTier             Tier     `json:"user_tier"`
	StreakDays           int64    `json:"streak_days"`
	Achievements         []string `json:"achievements,omitempty"`
	TotalAIEnhancements  int64    `json:"total_ai_enhancements"`
}

// UsageEventKind enumerates append-only ledger event kinds.
type UsageEventKind string

const (
	EventSelectionEvaluated  UsageEventKind = "SelectionEvaluated"
	EventEnhancementRequested UsageEventKind = "EnhancementRequested"
	EventEnhancementCompleted UsageEventKind = "EnhancementCompleted"
	EventEnhancementFailed    UsageEventKind = "EnhancementFailed"
)

// UsageEvent is one append-only ledger entry (spec.md §3, §4.8).
type UsageEvent struct {
	UserID       string         `json:"user_id"`
	Timestamp    time.Time      `json:"timestamp"`
	EventID      string         `json:"event_id"`
	PulseID      string         `json:"pulse_id"`
	Kind         UsageEventKind `json:"kind"`
	EstCostCents float64        `json:"est_cost_cents"`
	ActualCostCents float64     `json:"actual_cost_cents"`
	InputTokens  int64          `json:"input_tokens"`
	OutputTokens int64          `json:"output_tokens"`
	DurationMS   int64          `json:"duration_ms"`
	ModelID      string         `json:"model_id,omitempty"`
	QualityScore *float64       `json:"quality_score,omitempty"`
}

// UserProfile holds the user's plan and running stats (spec.md §3).
type UserProfile struct {
	UserID               string     `json:"user_id"`
	Plan                 Tier       `json:"plan"`
	PlanExpires          *time.Time `json:"plan_expires,omitempty"`
	TotalPulses          int64      `json:"total_pulses"`
	TotalAIEnhancements  int64      `json:"total_ai_enhancements"`
}
