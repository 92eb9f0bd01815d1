// Package notify implements the optional Slack budget-exhaustion
// notification (spec.md §4.5's notify-on-exhaustion step). Grounded on
// the teacher's Slack notifier (pkg/slack/notifier.go): a thin wrapper
// over slack-go/slack with an IsEnabled guard so an unconfigured bot
// token degrades to logging only, never an error.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/pulsekeeper/pulsekeeper/internal/pulse"
	"github.com/pulsekeeper/pulsekeeper/internal/telemetry"
)

// Slack sends budget-exhaustion notices to a single configured channel.
type Slack struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlack creates a Slack notifier. If botToken is empty, the notifier
// is a no-op (logging only).
func NewSlack(botToken, channel string, logger *slog.Logger) *Slack {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Slack{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether a real Slack client is configured.
func (s *Slack) IsEnabled() bool {
	return s.client != nil && s.channel != ""
}

// NotifyBudgetExhausted implements budget.Notifier.
func (s *Slack) NotifyBudgetExhausted(ctx context.Context, userID string, tier pulse.Tier, monthlyCapCents float64) {
	text := fmt.Sprintf(":warning: user `%s` (%s tier) hit their monthly AI budget of %.2f cents.", userID, tier, monthlyCapCents)

	if !s.IsEnabled() {
		s.logger.Info("budget exhausted (slack disabled)", "user_id", userID, "tier", tier, "monthly_cap_cents", monthlyCapCents)
		return
	}

	if _, _, err := s.client.PostMessageContext(ctx, s.channel, goslack.MsgOptionText(text, false)); err != nil {
		s.logger.Error("posting budget-exhaustion notice to slack", "error", err, "user_id", userID)
		return
	}
	telemetry.SlackNotificationsTotal.WithLabelValues("budget_exhausted").Inc()
}
