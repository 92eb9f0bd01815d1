package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pulsekeeper/pulsekeeper/internal/dbtx"
	"github.com/pulsekeeper/pulsekeeper/internal/domainerr"
)

// Repository is the typed CRUD layer over C1 for every pulse-lifecycle
// entity (spec.md §4.2). Grounded on the raw-SQL store idiom of the
// teacher's roster and incident stores: plain dbtx.QueryRow/Query/Exec,
// pgx.ErrNoRows mapped to domain sentinels, conditional inserts via
// ON CONFLICT DO NOTHING plus a rows-affected check.
type Repository struct {
	db dbtx.DBTX
}

// NewRepository creates a Repository bound to a pool or transaction.
func NewRepository(db dbtx.DBTX) *Repository {
	return &Repository{db: db}
}

// CreateStarted inserts a StartedPulse. Returns domainerr.ErrAlreadyStarted
// if the user already has a live one.
func (r *Repository) CreateStarted(ctx context.Context, p StartedPulse) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO started_pulses
			(user_id, pulse_id, intent, start_time, duration_seconds, intent_emotion, tags, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO NOTHING`,
		p.UserID, p.PulseID, p.Intent, p.StartTime, p.DurationSeconds, p.IntentEmotion, p.Tags, p.IsPublic,
	)
	if err != nil {
		return fmt.Errorf("inserting started pulse: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainerr.ErrAlreadyStarted
	}
	return nil
}

// GetStarted returns the user's live StartedPulse, or domainerr.ErrNotFound.
func (r *Repository) GetStarted(ctx context.Context, userID string) (StartedPulse, error) {
	var p StartedPulse
	err := r.db.QueryRow(ctx, `
		SELECT user_id, pulse_id, intent, start_time, duration_seconds, intent_emotion, tags, is_public
		FROM started_pulses WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.PulseID, &p.Intent, &p.StartTime, &p.DurationSeconds, &p.IntentEmotion, &p.Tags, &p.IsPublic)
	if errors.Is(err, pgx.ErrNoRows) {
		return StartedPulse{}, domainerr.ErrNotFound
	}
	if err != nil {
		return StartedPulse{}, fmt.Errorf("getting started pulse: %w", err)
	}
	return p, nil
}

// Stop deletes the user's StartedPulse (returning it) and inserts a
// StoppedPulse keyed by pulse_id, per spec.md §4.2: "delete-returning-old
// on StartedPulse, then conditional insert of StoppedPulse". If the insert
// fails after the delete succeeded, the deleted StartedPulse is NOT
// restored (it cannot be, atomically, in this store model) — instead the
// caller surfaces domainerr.ErrStopFailed and relies on the fact that
// pulse_id is server-generated and unique, so a client retry after
// re-reading state will simply observe NotStarted and can re-declare.
func (r *Repository) Stop(ctx context.Context, userID, reflection, reflectionEmotion string, stoppedAt time.Time) (StoppedPulse, error) {
	var started StartedPulse
	err := r.db.QueryRow(ctx, `
		DELETE FROM started_pulses WHERE user_id = $1
		RETURNING user_id, pulse_id, intent, start_time, duration_seconds, intent_emotion, tags, is_public`,
		userID,
	).Scan(&started.UserID, &started.PulseID, &started.Intent, &started.StartTime, &started.DurationSeconds, &started.IntentEmotion, &started.Tags, &started.IsPublic)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoppedPulse{}, domainerr.ErrNotStarted
	}
	if err != nil {
		return StoppedPulse{}, fmt.Errorf("deleting started pulse: %w", err)
	}

	elapsed := int64(stoppedAt.Sub(started.StartTime).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	actual := elapsed
	if actual > started.DurationSeconds {
		actual = started.DurationSeconds
	}

	stopped := StoppedPulse{
		PulseID:               started.PulseID,
		UserID:                started.UserID,
		Intent:                started.Intent,
		StartTime:             started.StartTime,
		DurationSeconds:       started.DurationSeconds,
		IntentEmotion:         started.IntentEmotion,
		Tags:                  started.Tags,
		IsPublic:              started.IsPublic,
		Reflection:            reflection,
		ReflectionEmotion:     reflectionEmotion,
		StoppedAt:             stoppedAt,
		ActualDurationSeconds: actual,
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO stopped_pulses
			(pulse_id, user_id, intent, start_time, duration_seconds, intent_emotion, tags, is_public,
			 reflection, reflection_emotion, stopped_at, actual_duration_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (pulse_id) DO NOTHING`,
		stopped.PulseID, stopped.UserID, stopped.Intent, stopped.StartTime, stopped.DurationSeconds,
		stopped.IntentEmotion, stopped.Tags, stopped.IsPublic, stopped.Reflection, stopped.ReflectionEmotion,
		stopped.StoppedAt, stopped.ActualDurationSeconds,
	)
	if err != nil {
		return StoppedPulse{}, fmt.Errorf("%w: inserting stopped pulse: %v", domainerr.ErrStopFailed, err)
	}
	if tag.RowsAffected() == 0 {
		// pulse_id is server-generated per start, so this can only happen
		// on stream/stop redelivery; treat as success and return the row
		// already present.
		return r.GetStopped(ctx, stopped.PulseID)
	}
	return stopped, nil
}

// GetStopped returns a StoppedPulse by pulse_id.
func (r *Repository) GetStopped(ctx context.Context, pulseID string) (StoppedPulse, error) {
	var p StoppedPulse
	err := r.db.QueryRow(ctx, `
		SELECT pulse_id, user_id, intent, start_time, duration_seconds, intent_emotion, tags, is_public,
		       reflection, reflection_emotion, stopped_at, actual_duration_seconds
		FROM stopped_pulses WHERE pulse_id = $1`, pulseID,
	).Scan(&p.PulseID, &p.UserID, &p.Intent, &p.StartTime, &p.DurationSeconds, &p.IntentEmotion, &p.Tags, &p.IsPublic,
		&p.Reflection, &p.ReflectionEmotion, &p.StoppedAt, &p.ActualDurationSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoppedPulse{}, domainerr.ErrNotFound
	}
	if err != nil {
		return StoppedPulse{}, fmt.Errorf("getting stopped pulse: %w", err)
	}
	return p, nil
}

// DeleteStopped removes the StoppedPulse; idempotent (no error if absent).
func (r *Repository) DeleteStopped(ctx context.Context, pulseID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM stopped_pulses WHERE pulse_id = $1`, pulseID)
	if err != nil {
		return fmt.Errorf("deleting stopped pulse: %w", err)
	}
	return nil
}

// Archive conditionally inserts an ArchivedPulse. Returns
// domainerr.ErrAlreadyArchived (not a failure — spec.md §4.6 step 5: "on
// Conflict assume prior successful archive and proceed") if one already
// exists for this pulse_id.
func (r *Repository) Archive(ctx context.Context, a ArchivedPulse) error {
	insights, err := json.Marshal(a.AIInsights)
	if err != nil {
		return fmt.Errorf("marshaling ai_insights: %w", err)
	}
	selection, err := json.Marshal(a.AISelectionInfo)
	if err != nil {
		return fmt.Errorf("marshaling ai_selection_info: %w", err)
	}
	rewards, err := json.Marshal(a.TriggeredRewards)
	if err != nil {
		return fmt.Errorf("marshaling triggered_rewards: %w", err)
	}

	inverted := InvertedTimestamp(a.StoppedAt)
	tag, err := r.db.Exec(ctx, `
		INSERT INTO archived_pulses
			(pulse_id, user_id, intent, start_time, duration_seconds, intent_emotion, tags, is_public,
			 reflection, reflection_emotion, stopped_at, actual_duration_seconds, archived_at,
			 inverted_timestamp, gen_title, gen_badge, ai_enhanced, ai_cost_cents,
			 ai_insights, ai_selection_info, triggered_rewards)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (pulse_id) DO NOTHING`,
		a.PulseID, a.UserID, a.Intent, a.StartTime, a.DurationSeconds, a.IntentEmotion, a.Tags, a.IsPublic,
		a.Reflection, a.ReflectionEmotion, a.StoppedAt, a.ActualDurationSeconds, a.ArchivedAt,
		inverted, a.GenTitle, a.GenBadge, a.AIEnhanced, a.AICostCents,
		insights, selection, rewards,
	)
	if err != nil {
		return fmt.Errorf("inserting archived pulse: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainerr.ErrAlreadyArchived
	}
	return nil
}

// ListArchived returns up to limit ArchivedPulses for the user, most
// recent first, via the (user_id, inverted_timestamp) ascending index
// (spec.md §4.2, property 10).
func (r *Repository) ListArchived(ctx context.Context, userID string, limit int64) ([]ArchivedPulse, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT pulse_id, user_id, intent, start_time, duration_seconds, intent_emotion, tags, is_public,
		       reflection, reflection_emotion, stopped_at, actual_duration_seconds, archived_at,
		       gen_title, gen_badge, ai_enhanced, ai_cost_cents, ai_insights, ai_selection_info, triggered_rewards
		FROM archived_pulses
		WHERE user_id = $1
		ORDER BY inverted_timestamp ASC
		LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing archived pulses: %w", err)
	}
	defer rows.Close()

	var out []ArchivedPulse
	for rows.Next() {
		var a ArchivedPulse
		var insights, selection, rewards []byte
		if err := rows.Scan(&a.PulseID, &a.UserID, &a.Intent, &a.StartTime, &a.DurationSeconds, &a.IntentEmotion,
			&a.Tags, &a.IsPublic, &a.Reflection, &a.ReflectionEmotion, &a.StoppedAt, &a.ActualDurationSeconds,
			&a.ArchivedAt, &a.GenTitle, &a.GenBadge, &a.AIEnhanced, &a.AICostCents, &insights, &selection, &rewards,
		); err != nil {
			return nil, fmt.Errorf("scanning archived pulse: %w", err)
		}
		if len(insights) > 0 {
			_ = json.Unmarshal(insights, &a.AIInsights)
		}
		if len(selection) > 0 {
			_ = json.Unmarshal(selection, &a.AISelectionInfo)
		}
		if len(rewards) > 0 {
			_ = json.Unmarshal(rewards, &a.TriggeredRewards)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetOrCreateUserProfile returns the user's profile, creating a free-tier
// default on first use.
func (r *Repository) GetOrCreateUserProfile(ctx context.Context, userID string) (UserProfile, error) {
	var p UserProfile
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (user_id, plan, total_pulses, total_ai_enhancements)
		VALUES ($1, 'free', 0, 0)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, plan, plan_expires, total_pulses, total_ai_enhancements`,
		userID,
	).Scan(&p.UserID, &p.Plan, &p.PlanExpires, &p.TotalPulses, &p.TotalAIEnhancements)
	if err != nil {
		return UserProfile{}, fmt.Errorf("getting or creating user profile: %w", err)
	}
	return p, nil
}

// IncrementUserStats bumps total_pulses and, optionally, total_ai_enhancements.
// Failure here must never fail the archive (spec.md §4.6 step 8); callers
// log and continue on error.
func (r *Repository) IncrementUserStats(ctx context.Context, userID string, aiEnhanced bool) error {
	aiDelta := 0
	if aiEnhanced {
		aiDelta = 1
	}
	_, err := r.db.Exec(ctx, `
		UPDATE users SET total_pulses = total_pulses + 1, total_ai_enhancements = total_ai_enhancements + $2
		WHERE user_id = $1`, userID, aiDelta,
	)
	if err != nil {
		return fmt.Errorf("incrementing user stats: %w", err)
	}
	return nil
}

// GetOrCreateUsageDay returns today's usage aggregate, creating it from the
// user's tier defaults if absent.
func (r *Repository) GetOrCreateUsageDay(ctx context.Context, userID, date, month string, tier Tier) (UsageDay, error) {
	var d UsageDay
	err := r.db.QueryRow(ctx, `
		INSERT INTO usage_days (user_id, date, month, daily_cost_cents, daily_ai_credits,
			daily_pulses_enhanced, monthly_cost_cents, monthly_ai_credits, user_tier, streak_days,
			achievements, total_ai_enhancements)
		VALUES ($1, $2, $3, 0, 0, 0, 0, 0, $4, 0, '{}', 0)
		ON CONFLICT (user_id, date) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, date, month, daily_cost_cents, daily_ai_credits, daily_pulses_enhanced,
			monthly_cost_cents, monthly_ai_credits, user_tier, streak_days, achievements, total_ai_enhancements`,
		userID, date, month, tier,
	).Scan(&d.UserID, &d.Date, &d.Month, &d.DailyCostCents, &d.DailyAICredits, &d.DailyPulsesEnhanced,
		&d.MonthlyCostCents, &d.MonthlyAICredits, &d.UserTier, &d.StreakDays, &d.Achievements, &d.TotalAIEnhancements)
	if err != nil {
		return UsageDay{}, fmt.Errorf("getting or creating usage day: %w", err)
	}
	// Month rollover: if the stored month differs from the current month,
	// monthly counters reset (spec.md §4.5's "month := current_month").
	if d.Month != month {
		if _, err := r.db.Exec(ctx, `
			UPDATE usage_days SET month = $3, monthly_cost_cents = 0, monthly_ai_credits = 0
			WHERE user_id = $1 AND date = $2`, userID, date, month,
		); err != nil {
			return UsageDay{}, fmt.Errorf("rolling over usage month: %w", err)
		}
		d.Month = month
		d.MonthlyCostCents = 0
		d.MonthlyAICredits = 0
	}
	return d, nil
}

// CommitUsage atomically applies a completed-enhancement debit and rewards
// to UsageDay (spec.md §4.5's single atomic update). actualCost and credits
// are both Cents (quarter-micro-cent fixed point).
func (r *Repository) CommitUsage(ctx context.Context, userID, date string, actualCost, credits Cents, achievements []string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE usage_days SET
			daily_cost_cents = daily_cost_cents + $3,
			monthly_cost_cents = monthly_cost_cents + $3,
			daily_ai_credits = daily_ai_credits + $4,
			daily_pulses_enhanced = daily_pulses_enhanced + 1,
			total_ai_enhancements = total_ai_enhancements + 1,
			achievements = (SELECT ARRAY(SELECT DISTINCT unnest(achievements || $5::text[])))
		WHERE user_id = $1 AND date = $2`,
		userID, date, actualCost, credits, achievements,
	)
	if err != nil {
		return fmt.Errorf("committing usage: %w", err)
	}
	return nil
}

// AppendUsageEvent inserts one append-only ledger row (spec.md §4.8).
func (r *Repository) AppendUsageEvent(ctx context.Context, e UsageEvent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO usage_events
			(user_id, timestamp, event_id, pulse_id, kind, est_cost_cents, actual_cost_cents,
			 input_tokens, output_tokens, duration_ms, model_id, quality_score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (user_id, timestamp, event_id) DO NOTHING`,
		e.UserID, e.Timestamp, e.EventID, e.PulseID, e.Kind, e.EstCostCents, e.ActualCostCents,
		e.InputTokens, e.OutputTokens, e.DurationMS, e.ModelID, e.QualityScore,
	)
	if err != nil {
		return fmt.Errorf("appending usage event: %w", err)
	}
	return nil
}
