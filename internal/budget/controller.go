// Package budget implements the Admission Controller (spec.md C6, §4.5):
// tier-based daily/monthly ceilings, probabilistic gating for mid-tier
// content, reward triggers, and atomic usage-day accounting. Grounded on
// the teacher's atomic-counter/cache pattern (pkg/alert/dedup.go) and its
// interface-based external-notification hookup (pkg/slack/notifier.go).
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pulsekeeper/pulsekeeper/internal/clock"
	"github.com/pulsekeeper/pulsekeeper/internal/pulse"
	"github.com/pulsekeeper/pulsekeeper/internal/worthiness"
)

// TierCaps holds the daily base, daily bonus credits, and monthly cap for
// one tier, in cents (spec.md §4.5 table).
type TierCaps struct {
	DailyBaseCents   float64
	DailyBonusCents  float64
	MonthlyCapCents  float64
}

// DefaultTierCaps is the table from spec.md §4.5, with the free-tier
// monthly cap resolved to 30 cents (spec.md §9 open question 3).
var DefaultTierCaps = map[pulse.Tier]TierCaps{
	pulse.TierFree:      {DailyBaseCents: 5, DailyBonusCents: 0, MonthlyCapCents: 30},
	pulse.TierPremium:   {DailyBaseCents: 18, DailyBonusCents: 2, MonthlyCapCents: 375},
	pulse.TierUnlimited: {DailyBaseCents: 75, DailyBonusCents: 25, MonthlyCapCents: 1000},
}

// Notifier is the minimal surface needed to announce a budget-exhaustion
// event; satisfied by internal/notify.Slack or a no-op.
type Notifier interface {
	NotifyBudgetExhausted(ctx context.Context, userID string, tier pulse.Tier, monthlyCapCents float64)
}

// NoopNotifier sends nothing. Used when Slack is not configured.
type NoopNotifier struct{}

func (NoopNotifier) NotifyBudgetExhausted(context.Context, string, pulse.Tier, float64) {}

// Repo is the subset of *pulse.Repository the controller needs.
type Repo interface {
	GetOrCreateUsageDay(ctx context.Context, userID, date, month string, tier pulse.Tier) (pulse.UsageDay, error)
	CommitUsage(ctx context.Context, userID, date string, actualCost, credits pulse.Cents, achievements []string) error
}

// Controller decides enrichment eligibility and commits cost/reward
// accounting (spec.md C6).
type Controller struct {
	repo                 Repo
	clock                clock.Clock
	notifier             Notifier
	logger               *slog.Logger
	aiEnabled            bool
	maxCostPerPulseCents float64
	caps                 map[pulse.Tier]TierCaps
}

// New creates a budget Controller. maxCostPerPulseCents is the per-pulse
// cost ceiling from spec.md §4.7 ("Refuse the job if the total exceeds
// max_cost_per_pulse_cents"); 0 disables the check.
func New(repo Repo, clk clock.Clock, notifier Notifier, logger *slog.Logger, aiEnabled bool, maxCostPerPulseCents float64) *Controller {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Controller{
		repo: repo, clock: clk, notifier: notifier, logger: logger,
		aiEnabled: aiEnabled, maxCostPerPulseCents: maxCostPerPulseCents, caps: DefaultTierCaps,
	}
}

// Decision is the outcome of Evaluate (spec.md §4.5, §9's sum-type
// redesign note).
type Decision struct {
	Accepted        bool
	Reason          string // exceptional, low_roll, low_worthiness, budget, ai_disabled
	Score           float64
	EstCostCents    float64
	CouldBeEnhanced bool
	Probability     *float64
	Draw            *float64
	UsageDay        pulse.UsageDay
	BudgetStatus    pulse.BudgetStatus
}

// CostEstimator estimates the cost in cents of enriching a pulse with a
// given model (injected so C6 stays independent of C7's wire format).
type CostEstimator func(worthinessScore float64, intent, reflection, model string) float64

// Evaluate runs the decision procedure from spec.md §4.5.
func (c *Controller) Evaluate(ctx context.Context, userID string, w worthiness.Input, intent, reflection, model string, estimate CostEstimator, rng *rand.Rand) (Decision, error) {
	score := worthiness.Score(w)
	estCost := estimate(score, intent, reflection, model)

	now := c.clock.Now()
	date := now.Format("2006-01-02")
	month := now.Format("2006-01")

	profile, err := c.repo.GetOrCreateUsageDay(ctx, userID, date, month, pulse.TierFree)
	if err != nil {
		return Decision{}, fmt.Errorf("loading usage day: %w", err)
	}
	caps, ok := c.caps[profile.UserTier]
	if !ok {
		caps = c.caps[pulse.TierFree]
	}

	status := pulse.BudgetStatus{
		DailyUsed:   profile.DailyCostCents.Float(),
		DailyCap:    caps.DailyBaseCents + profile.DailyAICredits.Float(),
		MonthlyUsed: profile.MonthlyCostCents.Float(),
		MonthlyCap:  caps.MonthlyCapCents,
	}

	base := Decision{Score: score, EstCostCents: estCost, UsageDay: profile, BudgetStatus: status}

	if !c.aiEnabled {
		base.Reason = "ai_disabled"
		return base, nil
	}

	if c.maxCostPerPulseCents > 0 && estCost > c.maxCostPerPulseCents {
		base.Reason = "cost_overrun"
		base.CouldBeEnhanced = true
		return base, nil
	}

	if status.MonthlyUsed+estCost > status.MonthlyCap || status.DailyUsed+estCost > status.DailyCap {
		base.Reason = "budget"
		base.CouldBeEnhanced = true
		if status.MonthlyUsed >= status.MonthlyCap {
			c.notifier.NotifyBudgetExhausted(ctx, userID, profile.UserTier, status.MonthlyCap)
		}
		return base, nil
	}

	if score >= worthiness.Exceptional {
		base.Accepted = true
		base.Reason = "exceptional"
		return base, nil
	}

	if score >= worthiness.Good {
		p := min(1, 1.5*(score-worthiness.Good)/(worthiness.Exceptional-worthiness.Good))
		draw := rng.Float64()
		base.Probability = &p
		base.Draw = &draw
		if draw < p {
			base.Accepted = true
			base.Reason = "low_roll_accept"
		} else {
			base.Reason = "low_roll"
		}
		return base, nil
	}

	base.Reason = "low_worthiness"
	return base, nil
}

// Reward is one fired trigger with its credit amount and optional
// achievement tag (spec.md §4.5).
type Reward struct {
	Trigger     string
	CreditCents float64
	Achievement string
}

// PreviewRewards computes which rewards *would* fire for this attempt,
// without touching the ledger (spec.md §9 open question 4: preview and
// commit are kept strictly separate to avoid double-counting).
func PreviewRewards(profile pulse.UsageDay, actualDurationSeconds int64, reflection, intent string) []Reward {
	var rewards []Reward

	if profile.TotalAIEnhancements == 0 {
		rewards = append(rewards, Reward{Trigger: "first_ai_enhancement", CreditCents: 5, Achievement: "ai_apprentice"})
	}
	switch profile.TotalAIEnhancements + 1 {
	case 10:
		rewards = append(rewards, Reward{Trigger: "ai_enthusiast", CreditCents: 5, Achievement: "ai_enthusiast"})
	case 50:
		rewards = append(rewards, Reward{Trigger: "ai_master", CreditCents: 15, Achievement: "ai_master"})
	}
	if actualDurationSeconds >= 2*3600 {
		rewards = append(rewards, Reward{Trigger: "long_session", CreditCents: 3})
	}
	if len(reflection) >= 200 {
		rewards = append(rewards, Reward{Trigger: "deep_reflection", CreditCents: 2})
	}
	lower := strings.ToLower(intent + " " + reflection)
	for _, w := range []string{"breakthrough", "aha", "finally", "figured it out"} {
		if strings.Contains(lower, w) {
			rewards = append(rewards, Reward{Trigger: "breakthrough_words", CreditCents: 1})
			break
		}
	}
	return rewards
}

// CommitRewards applies actualCost (cents) and the given rewards to the
// usage day in a single atomic update (spec.md §4.5's no-double-debit
// guarantee). Only called by C9 after C7 reports completion.
func (c *Controller) CommitRewards(ctx context.Context, userID string, now time.Time, actualCostCents float64, rewards []Reward) error {
	date := now.Format("2006-01-02")
	var creditTotal float64
	var achievements []string
	for _, r := range rewards {
		creditTotal += r.CreditCents
		if r.Achievement != "" {
			achievements = append(achievements, r.Achievement)
		}
	}
	return c.repo.CommitUsage(ctx, userID, date,
		pulse.CentsFromFloat(actualCostCents), pulse.CentsFromFloat(creditTotal), achievements)
}
